// Package storetest provides a reusable conformance suite for unistore
// backends. Service packages call TestOperator from their own tests to
// verify the Accessor contract end to end:
//
//	func TestMemoryConformance(t *testing.T) {
//		op := unistore.NewOperator(memory.New())
//		storetest.TestOperator(t, op)
//	}
//
// Subtests gate themselves on the backend's Capability, so partial backends
// can still run the suite.
package storetest

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bleepstore/unistore"
)

// TestOperator runs the conformance suite against op. The backend root
// should be empty or disposable: the suite creates and removes paths under
// top-level directories named "storetest-*".
func TestOperator(t *testing.T, op *unistore.Operator) {
	t.Helper()
	ctx := context.Background()
	c := op.Info().Capability

	if c.Write && c.Read && c.Stat {
		t.Run("RoundTrip", func(t *testing.T) { testRoundTrip(ctx, t, op) })
		t.Run("Overwrite", func(t *testing.T) { testOverwrite(ctx, t, op) })
		t.Run("ReaderSeek", func(t *testing.T) { testReaderSeek(ctx, t, op) })
	}
	if c.Delete {
		t.Run("IdempotentDelete", func(t *testing.T) { testIdempotentDelete(ctx, t, op) })
	}
	if c.Write && c.Read && c.Copy {
		t.Run("Copy", func(t *testing.T) { testCopy(ctx, t, op) })
	}
	if c.Write && c.Read && c.Rename {
		t.Run("Rename", func(t *testing.T) { testRename(ctx, t, op) })
	}
	if c.Write && c.WriteCanAppend && c.Read {
		t.Run("Append", func(t *testing.T) { testAppend(ctx, t, op) })
	}
	if c.Write && c.List {
		t.Run("ListContainment", func(t *testing.T) { testListContainment(ctx, t, op) })
		t.Run("ListValidation", func(t *testing.T) { testListValidation(ctx, t, op) })
	}
	if c.Write && c.List && c.ListWithRecursive {
		t.Run("Scan", func(t *testing.T) { testScan(ctx, t, op) })
	}
	if c.Write && c.List && c.ListWithLimit {
		t.Run("ListLimit", func(t *testing.T) { testListLimit(ctx, t, op) })
	}
	if c.Write && c.Delete {
		t.Run("RemoveMany", func(t *testing.T) { testRemoveMany(ctx, t, op) })
	}
	if c.Write && c.Delete && c.List && c.ListWithRecursive {
		t.Run("RemoveAll", func(t *testing.T) { testRemoveAll(ctx, t, op) })
	}
	if c.CreateDir && c.Stat {
		t.Run("CreateDir", func(t *testing.T) { testCreateDir(ctx, t, op) })
	}
	if c.Write {
		t.Run("ConcurrentWrites", func(t *testing.T) { testConcurrentWrites(ctx, t, op) })
	}
	t.Run("Check", func(t *testing.T) {
		require.NoError(t, op.Check(ctx))
	})
}

func testRoundTrip(ctx context.Context, t *testing.T, op *unistore.Operator) {
	path := "storetest-roundtrip/hello.txt"
	content := []byte("hello unistore")

	require.NoError(t, op.Write(ctx, path, content))

	got, err := op.Read(ctx, path)
	require.NoError(t, err)
	require.Equal(t, content, got)

	meta, err := op.Stat(ctx, path)
	require.NoError(t, err)
	require.Equal(t, unistore.ModeFile, meta.Mode)
	require.Equal(t, int64(len(content)), meta.ContentLength)

	// Cleanup.
	require.NoError(t, op.Delete(ctx, path))

	_, err = op.Stat(ctx, path)
	require.ErrorIs(t, err, unistore.ErrNotFound)
}

func testOverwrite(ctx context.Context, t *testing.T, op *unistore.Operator) {
	path := "storetest-overwrite/f.txt"
	require.NoError(t, op.Write(ctx, path, []byte("first version")))
	require.NoError(t, op.Write(ctx, path, []byte("second")))

	got, err := op.Read(ctx, path)
	require.NoError(t, err)
	require.Equal(t, "second", string(got))

	require.NoError(t, op.Delete(ctx, path))
}

func testReaderSeek(ctx context.Context, t *testing.T, op *unistore.Operator) {
	path := "storetest-reader/f.txt"
	require.NoError(t, op.Write(ctx, path, []byte("hello world")))
	defer func() { _ = op.Delete(ctx, path) }()

	r, err := op.Reader(ctx, path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Seek(6, io.SeekStart)
	require.NoError(t, err)
	rest, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "world", string(rest))

	// Ranged read without a Reader.
	part, err := op.ReadRange(ctx, path, 0, 5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(part))
}

func testIdempotentDelete(ctx context.Context, t *testing.T, op *unistore.Operator) {
	require.NoError(t, op.Delete(ctx, "storetest-delete/never-existed.txt"))
}

func testCopy(ctx context.Context, t *testing.T, op *unistore.Operator) {
	from := "storetest-copy/src.txt"
	to := "storetest-copy/nested/dst.txt"
	content := []byte("copy me")

	require.NoError(t, op.Write(ctx, from, content))
	defer func() { _ = op.Delete(ctx, from); _ = op.Delete(ctx, to) }()

	// Copy to self is a no-op.
	require.NoError(t, op.Copy(ctx, from, from))
	got, err := op.Read(ctx, from)
	require.NoError(t, err)
	require.Equal(t, content, got)

	// Parent directories of the destination are created implicitly.
	require.NoError(t, op.Copy(ctx, from, to))
	got, err = op.Read(ctx, to)
	require.NoError(t, err)
	require.Equal(t, content, got)

	// Source is untouched.
	got, err = op.Read(ctx, from)
	require.NoError(t, err)
	require.Equal(t, content, got)
}

func testRename(ctx context.Context, t *testing.T, op *unistore.Operator) {
	from := "storetest-rename/src.txt"
	to := "storetest-rename/nested/dst.txt"
	content := []byte("move me")

	require.NoError(t, op.Write(ctx, from, content))
	defer func() { _ = op.Delete(ctx, from); _ = op.Delete(ctx, to) }()

	require.ErrorIs(t, op.Rename(ctx, from, from), unistore.ErrIsSameFile)

	require.NoError(t, op.Rename(ctx, from, to))
	got, err := op.Read(ctx, to)
	require.NoError(t, err)
	require.Equal(t, content, got)

	_, err = op.Stat(ctx, from)
	require.ErrorIs(t, err, unistore.ErrNotFound)
}

func testAppend(ctx context.Context, t *testing.T, op *unistore.Operator) {
	path := "storetest-append/log.txt"
	defer func() { _ = op.Delete(ctx, path) }()

	require.NoError(t, op.Write(ctx, path, []byte("one,")))
	require.NoError(t, op.Write(ctx, path, []byte("two"), unistore.WithAppend()))

	got, err := op.Read(ctx, path)
	require.NoError(t, err)
	require.Equal(t, "one,two", string(got))
}

func testListContainment(ctx context.Context, t *testing.T, op *unistore.Operator) {
	dir := "storetest-list/"
	path := dir + "f.txt"
	require.NoError(t, op.Write(ctx, path, []byte("x")))
	defer func() { _ = op.Delete(ctx, path) }()

	lister, err := op.List(ctx, dir)
	require.NoError(t, err)
	defer lister.Close()

	found := false
	for {
		entry, err := lister.Next(ctx)
		require.NoError(t, err)
		if entry == nil {
			break
		}
		if entry.Path == path {
			found = true
			// The listed path must be stat-able.
			_, err := op.Stat(ctx, entry.Path)
			require.NoError(t, err)
		}
	}
	require.True(t, found, "expected %q in listing of %q", path, dir)
}

func testListValidation(ctx context.Context, t *testing.T, op *unistore.Operator) {
	_, err := op.List(ctx, "storetest-list")
	require.ErrorIs(t, err, unistore.ErrNotADirectory)
}

func testScan(ctx context.Context, t *testing.T, op *unistore.Operator) {
	dir := "storetest-scan/"
	paths := []string{dir + "a.txt", dir + "sub/b.txt", dir + "sub/deep/c.txt"}
	for _, p := range paths {
		require.NoError(t, op.Write(ctx, p, []byte("x")))
	}
	defer func() { _ = op.RemoveAll(ctx, dir) }()

	lister, err := op.Scan(ctx, dir)
	require.NoError(t, err)
	defer lister.Close()

	got := map[string]bool{}
	for {
		entry, err := lister.Next(ctx)
		require.NoError(t, err)
		if entry == nil {
			break
		}
		got[entry.Path] = true
	}
	for _, p := range paths {
		require.True(t, got[p], "expected %q in recursive listing", p)
	}
}

func testListLimit(ctx context.Context, t *testing.T, op *unistore.Operator) {
	dir := "storetest-limit/"
	for i := range 5 {
		require.NoError(t, op.Write(ctx, fmt.Sprintf("%sf%d.txt", dir, i), []byte("x")))
	}
	defer func() { _ = op.RemoveAll(ctx, dir) }()

	lister, err := op.List(ctx, dir, unistore.WithLimit(3))
	require.NoError(t, err)
	defer lister.Close()

	count := 0
	for {
		entry, err := lister.Next(ctx)
		require.NoError(t, err)
		if entry == nil {
			break
		}
		count++
	}
	require.Equal(t, 3, count)
}

func testRemoveMany(ctx context.Context, t *testing.T, op *unistore.Operator) {
	dir := "storetest-remove/"
	paths := []string{dir + "a.txt", dir + "b.txt", dir + "c.txt"}
	for _, p := range paths {
		require.NoError(t, op.Write(ctx, p, []byte("x")))
	}

	// Include a path that never existed: removal is idempotent.
	require.NoError(t, op.Remove(ctx, append(paths, dir+"ghost.txt")))

	if op.Info().Capability.Stat {
		for _, p := range paths {
			_, err := op.Stat(ctx, p)
			require.ErrorIs(t, err, unistore.ErrNotFound)
		}
	}
}

func testRemoveAll(ctx context.Context, t *testing.T, op *unistore.Operator) {
	dir := "storetest-removeall/"
	for _, p := range []string{dir + "a.txt", dir + "x/b.txt", dir + "x/y/c.txt"} {
		require.NoError(t, op.Write(ctx, p, []byte("x")))
	}

	require.NoError(t, op.RemoveAll(ctx, dir))

	lister, err := op.Scan(ctx, dir)
	if err != nil {
		require.ErrorIs(t, err, unistore.ErrNotFound)
		return
	}
	defer lister.Close()
	entry, err := lister.Next(ctx)
	require.NoError(t, err)
	require.Nil(t, entry, "expected empty listing after RemoveAll, got %v", entry)
}

func testCreateDir(ctx context.Context, t *testing.T, op *unistore.Operator) {
	dir := "storetest-mkdir/a/b/"
	require.NoError(t, op.CreateDir(ctx, dir))

	meta, err := op.Stat(ctx, dir)
	require.NoError(t, err)
	require.Equal(t, unistore.ModeDir, meta.Mode)

	// File-style path is rejected before reaching the backend.
	require.ErrorIs(t, op.CreateDir(ctx, "storetest-mkdir/f"), unistore.ErrNotADirectory)
}

func testConcurrentWrites(ctx context.Context, t *testing.T, op *unistore.Operator) {
	dir := "storetest-concurrent/"
	const n = 8

	errs := make(chan error, n)
	for i := range n {
		go func(i int) {
			errs <- op.Write(ctx, fmt.Sprintf("%sf%d.txt", dir, i), fmt.Appendf(nil, "content-%d", i))
		}(i)
	}
	for range n {
		require.NoError(t, <-errs)
	}

	if op.Info().Capability.Read {
		for i := range n {
			got, err := op.Read(ctx, fmt.Sprintf("%sf%d.txt", dir, i))
			require.NoError(t, err)
			require.Equal(t, fmt.Sprintf("content-%d", i), string(got))
		}
	}
	if op.Info().Capability.Delete {
		var paths []string
		for i := range n {
			paths = append(paths, fmt.Sprintf("%sf%d.txt", dir, i))
		}
		require.NoError(t, op.Remove(ctx, paths))
	}
}
