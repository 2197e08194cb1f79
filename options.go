package unistore

// WriteOption tunes a single write.
type WriteOption func(*OpWrite)

// WithContentType records the media type with the object.
func WithContentType(ct string) WriteOption {
	return func(o *OpWrite) { o.ContentType = ct }
}

// WithContentDisposition records the disposition with the object.
func WithContentDisposition(cd string) WriteOption {
	return func(o *OpWrite) { o.ContentDisposition = cd }
}

// WithCacheControl records the cache directive with the object.
func WithCacheControl(cc string) WriteOption {
	return func(o *OpWrite) { o.CacheControl = cc }
}

// WithAppend appends to the existing object instead of replacing it.
func WithAppend() WriteOption {
	return func(o *OpWrite) { o.Append = true }
}

// WithChunkSize sets the preferred upload chunk size in bytes.
func WithChunkSize(n int64) WriteOption {
	return func(o *OpWrite) { o.ChunkSize = n }
}

// ListOption tunes a single listing.
type ListOption func(*OpList)

// WithRecursive flattens nested directories into one sequence.
func WithRecursive() ListOption {
	return func(o *OpList) { o.Recursive = true }
}

// WithLimit stops the listing after n entries.
func WithLimit(n int) ListOption {
	return func(o *OpList) { o.Limit = n }
}
