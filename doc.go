// Package unistore is a unified data-access layer: one Operator facade that
// performs the same storage operations against heterogeneous backends
// without backend-specific APIs.
//
// An Operator wraps a chain of composable layers around an Accessor, the
// interface every backend implements. Backends advertise what they can do
// through a Capability, and the Operator rejects unsupported operations
// before any backend call is made.
//
//	import (
//		"github.com/bleepstore/unistore"
//		"github.com/bleepstore/unistore/layers"
//		_ "github.com/bleepstore/unistore/services/fs"
//	)
//
//	op, err := unistore.Open("fs", map[string]string{"root": "/tmp/data"},
//		layers.NewLogging(nil),
//		layers.NewRetry(),
//	)
//	if err != nil { ... }
//	if err := op.Write(ctx, "hello.txt", []byte("hi")); err != nil { ... }
//
// Backends live in services/<scheme> subpackages and register themselves on
// import. Middleware (retry, logging, metrics, concurrency limiting) lives
// in the layers subpackage.
package unistore
