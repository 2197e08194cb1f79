package unistore

// Layer wraps an Accessor with additional behavior while preserving the
// Accessor contract. Layers are applied once, at Operator build time, in the
// order supplied: the first layer becomes outermost and sees each call first.
//
// A layer must not change the reported Capability unless it deliberately
// narrows or widens what the chain supports, and must not assume a particular
// backend.
type Layer interface {
	Apply(Accessor) Accessor
}

// LayerFunc adapts a plain function to the Layer interface.
type LayerFunc func(Accessor) Accessor

// Apply implements Layer.
func (f LayerFunc) Apply(a Accessor) Accessor { return f(a) }

// applyLayers composes the chain: layers[0] outermost, layers[len-1] closest
// to the backend.
func applyLayers(inner Accessor, layers []Layer) Accessor {
	for i := len(layers) - 1; i >= 0; i-- {
		inner = layers[i].Apply(inner)
	}
	return inner
}
