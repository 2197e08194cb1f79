package unistore

import "io"

// Writer is a streaming byte sink for one object. Bytes are staged through
// the backend's write handle and committed only when Close returns nil;
// failing to call Close leaves the object's final state backend-defined.
//
// When a chunk size is configured, Write accumulates bytes and forwards them
// to the backend in exact chunk-size units, with the remainder flushed on
// Close. A Writer is not safe for concurrent use.
type Writer struct {
	wc      io.WriteCloser
	chunk   int64
	buf     []byte
	written int64
	closed  bool
}

func newWriter(wc io.WriteCloser, chunk int64) *Writer {
	return &Writer{wc: wc, chunk: chunk}
}

// Written returns the number of bytes accepted so far.
func (w *Writer) Written() int64 { return w.written }

// Write implements io.Writer. Calling Write after Close is an error.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, NewError(KindUnexpected, OpWriteName, "", "writer already closed")
	}

	total := len(p)
	if w.chunk <= 0 {
		n, err := w.wc.Write(p)
		w.written += int64(n)
		return n, err
	}

	w.buf = append(w.buf, p...)
	for int64(len(w.buf)) >= w.chunk {
		if _, err := w.wc.Write(w.buf[:w.chunk]); err != nil {
			return 0, err
		}
		w.buf = w.buf[w.chunk:]
	}
	w.written += int64(total)
	return total, nil
}

// Close flushes any buffered remainder and commits the object. Close is
// idempotent: the first call decides the outcome and later calls return nil.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if len(w.buf) > 0 {
		if _, err := w.wc.Write(w.buf); err != nil {
			_ = w.wc.Close()
			w.buf = nil
			return err
		}
		w.buf = nil
	}
	return w.wc.Close()
}

var _ io.WriteCloser = (*Writer)(nil)
