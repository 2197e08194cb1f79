package unistore

import (
	"net/http"
	"time"
)

// Operation names used in errors, logs, and metrics.
const (
	OpStatName      = "stat"
	OpReadName      = "read"
	OpWriteName     = "write"
	OpCreateDirName = "create_dir"
	OpDeleteName    = "delete"
	OpCopyName      = "copy"
	OpRenameName    = "rename"
	OpListName      = "list"
	OpBatchName     = "batch"
	OpPresignName   = "presign"
)

// OpStat carries arguments for Accessor.Stat.
type OpStat struct{}

// OpRead carries arguments for Accessor.Read. The zero value reads the whole
// object.
type OpRead struct {
	// Offset is the starting byte.
	Offset int64
	// Length is the number of bytes to read. Negative means to the end.
	Length int64
}

// IsFull reports whether the range covers the whole object.
func (o OpRead) IsFull() bool { return o.Offset == 0 && o.Length < 0 }

// OpWrite carries arguments for Accessor.Write.
type OpWrite struct {
	// ContentType sets the stored media type, if the backend records one.
	ContentType string
	// ContentDisposition sets the stored disposition.
	ContentDisposition string
	// CacheControl sets the stored cache directive.
	CacheControl string
	// Append opens the object for appending instead of replacement.
	// Requires Capability.WriteCanAppend.
	Append bool
	// ChunkSize is the preferred upload chunk in bytes. Zero lets the
	// backend choose. Requires Capability.WriteCanMulti when set.
	ChunkSize int64
}

// OpList carries arguments for Accessor.List.
type OpList struct {
	// Recursive flattens nested directories into one sequence.
	// Requires Capability.ListWithRecursive.
	Recursive bool
	// Limit stops the listing after this many entries. Zero means no limit.
	// Requires Capability.ListWithLimit when set.
	Limit int
}

// PresignOperation selects which operation a presigned request authorizes.
type PresignOperation uint8

const (
	// PresignRead authorizes a ranged or full read.
	PresignRead PresignOperation = iota
	// PresignWrite authorizes a full overwrite.
	PresignWrite
	// PresignStat authorizes a metadata lookup.
	PresignStat
)

func (o PresignOperation) String() string {
	switch o {
	case PresignWrite:
		return "presign_write"
	case PresignStat:
		return "presign_stat"
	default:
		return "presign_read"
	}
}

// OpPresign carries arguments for Accessor.Presign.
type OpPresign struct {
	// Operation is the authorized operation.
	Operation PresignOperation
	// Expire bounds how long the request stays valid.
	Expire time.Duration
}

// PresignedRequest describes a time-limited, backend-authenticated HTTP
// request. The core never executes it.
type PresignedRequest struct {
	// Method is the HTTP method to use.
	Method string
	// URL is the fully signed URL.
	URL string
	// Header holds headers that must accompany the request.
	Header http.Header
}

// OpBatch carries arguments for Accessor.Batch. Only deletes are batched
// today.
type OpBatch struct {
	// Delete lists paths to remove. Idempotent per path: missing paths
	// succeed.
	Delete []string
}

// BatchResult reports the outcome of one operation inside a batch.
type BatchResult struct {
	// Path is the operated path.
	Path string
	// Err is nil on success.
	Err error
}
