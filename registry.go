package unistore

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates an Accessor from a string-keyed option map. Option keys
// are backend-specific ("root", "bucket", "endpoint", ...); each service
// package documents its own.
type Factory func(options map[string]string) (Accessor, error)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
)

// Register makes a backend available under the given scheme. It is typically
// called from a service package's init function and panics if the scheme is
// already taken.
func Register(scheme string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := factories[scheme]; exists {
		panic(fmt.Sprintf("unistore: scheme %q already registered", scheme))
	}
	factories[scheme] = factory
}

// Schemes returns the sorted list of registered scheme names.
func Schemes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Open constructs an Operator for the registered scheme, layered with the
// given layers (first layer outermost).
func Open(scheme string, options map[string]string, layers ...Layer) (*Operator, error) {
	registryMu.RLock()
	factory, ok := factories[scheme]
	registryMu.RUnlock()

	if !ok {
		return nil, Errorf(KindConfigInvalid, "open", "",
			"unknown scheme %q (missing service import?)", scheme)
	}

	acc, err := factory(options)
	if err != nil {
		return nil, err
	}
	return NewOperator(acc, layers...), nil
}
