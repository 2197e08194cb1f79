package unistore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// recordingWriteCloser captures every Write call so chunking can be checked.
type recordingWriteCloser struct {
	writes [][]byte
	closed bool
}

func (w *recordingWriteCloser) Write(p []byte) (int, error) {
	buf := make([]byte, len(p))
	copy(buf, p)
	w.writes = append(w.writes, buf)
	return len(p), nil
}

func (w *recordingWriteCloser) Close() error {
	w.closed = true
	return nil
}

func TestWriterPassthrough(t *testing.T) {
	rec := &recordingWriteCloser{}
	w := newWriter(rec, 0)

	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.NoError(t, w.Close())

	require.True(t, rec.closed)
	require.Equal(t, [][]byte{[]byte("hello")}, rec.writes)
	require.Equal(t, int64(5), w.Written())
}

func TestWriterChunking(t *testing.T) {
	rec := &recordingWriteCloser{}
	w := newWriter(rec, 4)

	_, err := w.Write([]byte("abcdefghij")) // 10 bytes, chunk 4
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.Equal(t, [][]byte{[]byte("abcd"), []byte("efgh"), []byte("ij")}, rec.writes)
}

func TestWriterWriteAfterClose(t *testing.T) {
	w := newWriter(&recordingWriteCloser{}, 0)
	require.NoError(t, w.Close())

	_, err := w.Write([]byte("late"))
	require.Error(t, err)
}

func TestWriterCloseIdempotent(t *testing.T) {
	rec := &recordingWriteCloser{}
	w := newWriter(rec, 2)
	_, err := w.Write([]byte("abc"))
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	// Remainder flushed exactly once.
	require.Equal(t, [][]byte{[]byte("ab"), []byte("c")}, rec.writes)
}
