package unistore

import (
	"context"
	"io"
)

// AccessorInfo identifies a backend instance and snapshots its Capability.
type AccessorInfo struct {
	// Scheme is the backend scheme, e.g. "fs", "memory", "s3".
	Scheme string
	// Root is the backend root prefix. Always "/"-terminated.
	Root string
	// Name is the backend instance name (bucket, database file, host...).
	Name string
	// Capability declares the supported operations and limits.
	Capability Capability
}

// Accessor is the backend interface: one implementation per storage service.
// The Operator calls it through the layer chain and never directly.
//
// Contract for every implementation:
//
//   - Info must be stable for the lifetime of the instance.
//   - Write must durably commit all bytes before the returned writer's Close
//     reports success.
//   - Stat and Read must observe the most recent successful Write on the
//     same instance.
//   - List must return paths relative to the backend root and terminate.
//   - Unsupported operations are signaled through Capability alone, never by
//     failing at run time.
//
// All implementations must be safe for concurrent use.
type Accessor interface {
	// Info returns the backend identity and capability snapshot.
	Info() AccessorInfo

	// Stat returns metadata for the path.
	Stat(ctx context.Context, path string, args OpStat) (Metadata, error)

	// Read opens a byte stream over the given range. The caller must close
	// the returned ReadCloser.
	Read(ctx context.Context, path string, args OpRead) (io.ReadCloser, error)

	// Write opens a byte sink for the path. Data is only committed when
	// Close returns nil; an unclosed writer leaves the object's final state
	// backend-defined. The ctx governs the whole upload.
	Write(ctx context.Context, path string, args OpWrite) (io.WriteCloser, error)

	// CreateDir creates the directory and any missing parents.
	CreateDir(ctx context.Context, path string) error

	// Delete removes the path. Deleting a missing path succeeds.
	Delete(ctx context.Context, path string) error

	// Copy duplicates a file. Destination is overwritten; missing parents
	// are created.
	Copy(ctx context.Context, from, to string) error

	// Rename moves a file. Destination is overwritten; missing parents are
	// created.
	Rename(ctx context.Context, from, to string) error

	// List opens a pager over the directory.
	List(ctx context.Context, path string, args OpList) (Pager, error)

	// Batch executes many operations in one backend call, returning one
	// result per operation in input order.
	Batch(ctx context.Context, args OpBatch) ([]BatchResult, error)

	// Presign builds a signed request descriptor without performing I/O.
	Presign(ctx context.Context, path string, args OpPresign) (*PresignedRequest, error)
}

// Pager yields listing results one page at a time. A nil page with nil error
// means the listing is exhausted. Pagers are not safe for concurrent use and
// not restartable.
type Pager interface {
	// NextPage returns the next batch of entries, or (nil, nil) at the end.
	NextPage(ctx context.Context) ([]Entry, error)
}
