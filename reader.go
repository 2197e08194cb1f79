package unistore

import (
	"context"
	"io"
)

// Reader is a sequential, optionally seekable consumer of one object. It
// opens the underlying backend stream lazily and reopens it at the new
// offset after a Seek, so sparse access does not transfer skipped bytes.
//
// End of data is signaled with io.EOF, never with an *Error. A Reader is not
// safe for concurrent use. Close releases the backend stream.
type Reader struct {
	ctx  context.Context
	acc  Accessor
	path string

	// size is the object length, or -1 when the backend cannot report it.
	// Seeking from io.SeekEnd requires a known size.
	size int64

	offset int64
	rc     io.ReadCloser
	closed bool
}

func newReader(ctx context.Context, acc Accessor, path string, size int64) *Reader {
	return &Reader{ctx: ctx, acc: acc, path: path, size: size}
}

// Size returns the object length, or -1 when unknown.
func (r *Reader) Size() int64 { return r.size }

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, NewError(KindUnexpected, OpReadName, r.path, "reader already closed")
	}
	if r.size >= 0 && r.offset >= r.size {
		return 0, io.EOF
	}

	if r.rc == nil {
		rc, err := r.acc.Read(r.ctx, r.path, OpRead{Offset: r.offset, Length: -1})
		if err != nil {
			return 0, err
		}
		r.rc = rc
	}

	n, err := r.rc.Read(p)
	r.offset += int64(n)
	return n, err
}

// Seek implements io.Seeker. Seeking drops the current backend stream; the
// next Read opens a fresh one at the new offset.
func (r *Reader) Seek(offset int64, whence int) (int64, error) {
	if r.closed {
		return 0, NewError(KindUnexpected, OpReadName, r.path, "reader already closed")
	}

	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = r.offset + offset
	case io.SeekEnd:
		if r.size < 0 {
			return 0, NewError(KindUnsupported, OpReadName, r.path, "object size unknown, cannot seek from end")
		}
		abs = r.size + offset
	default:
		return 0, Errorf(KindConfigInvalid, OpReadName, r.path, "invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, Errorf(KindConfigInvalid, OpReadName, r.path, "seek to negative offset %d", abs)
	}

	if abs != r.offset && r.rc != nil {
		_ = r.rc.Close()
		r.rc = nil
	}
	r.offset = abs
	return abs, nil
}

// Close implements io.Closer. It is safe to call more than once.
func (r *Reader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	if r.rc != nil {
		err := r.rc.Close()
		r.rc = nil
		return err
	}
	return nil
}

var _ io.ReadSeekCloser = (*Reader)(nil)
