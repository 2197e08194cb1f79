package unistore

// Capability declares which operations a backend supports, plus its numeric
// limits. The Operator consults it before every call and fails fast with an
// Unsupported error when an operation or option is not advertised, so a
// capability violation never reaches the backend.
//
// A backend must never advertise an operation it cannot execute.
type Capability struct {
	// Stat indicates support for metadata lookup.
	Stat bool
	// Read indicates support for streaming reads.
	Read bool
	// Write indicates support for streaming writes.
	Write bool
	// WriteCanAppend indicates support for appending to an existing object.
	WriteCanAppend bool
	// WriteCanMulti indicates support for chunked (multipart) uploads.
	WriteCanMulti bool
	// CreateDir indicates support for explicit directory creation.
	CreateDir bool
	// Delete indicates support for deleting a single path.
	Delete bool
	// Copy indicates support for server-side copy.
	Copy bool
	// Rename indicates support for atomic rename.
	Rename bool
	// List indicates support for directory enumeration.
	List bool
	// ListWithRecursive indicates the backend can flatten nested directories
	// into one listing.
	ListWithRecursive bool
	// ListWithLimit indicates the backend honors a result-count limit.
	ListWithLimit bool
	// Presign indicates support for generating presigned requests.
	Presign bool
	// PresignRead, PresignWrite, and PresignStat narrow Presign to the
	// individual operations.
	PresignRead  bool
	PresignWrite bool
	PresignStat  bool
	// Batch indicates support for batched operations.
	Batch bool
	// BatchDelete indicates the batch implementation covers deletes.
	BatchDelete bool

	// WriteMultiMinSize is the smallest chunk a multipart upload accepts,
	// in bytes. Zero means no minimum.
	WriteMultiMinSize int64
	// WriteMultiMaxSize is the largest chunk a multipart upload accepts,
	// in bytes. Zero means no maximum.
	WriteMultiMaxSize int64
	// WriteMultiAlignSize is the required chunk alignment, in bytes.
	// Zero means no alignment requirement.
	WriteMultiAlignSize int64
	// BatchMaxOperations is the most operations one batch call accepts.
	// Zero means unbounded.
	BatchMaxOperations int
}
