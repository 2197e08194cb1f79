package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bleepstore/unistore"
	"github.com/bleepstore/unistore/storetest"
)

func TestMemoryConformance(t *testing.T) {
	op := unistore.NewOperator(New())
	storetest.TestOperator(t, op)
}

func TestMemoryOpenViaRegistry(t *testing.T) {
	op, err := unistore.Open("memory", nil)
	require.NoError(t, err)
	require.Equal(t, "memory", op.Info().Scheme)
}

func TestMemoryImplicitDirectories(t *testing.T) {
	ctx := context.Background()
	op := unistore.NewOperator(New())

	require.NoError(t, op.Write(ctx, "a/b/c.txt", []byte("x")))

	// Parents exist implicitly.
	meta, err := op.Stat(ctx, "a/")
	require.NoError(t, err)
	require.Equal(t, unistore.ModeDir, meta.Mode)

	// Non-recursive listing of the root collapses deep objects into the
	// direct child directory.
	lister, err := op.List(ctx, "/")
	require.NoError(t, err)
	defer lister.Close()

	entry, err := lister.Next(ctx)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, "a/", entry.Path)
	require.True(t, entry.IsDir())
}

func TestMemoryBatchDelete(t *testing.T) {
	ctx := context.Background()
	b := New()
	op := unistore.NewOperator(b)

	paths := []string{"x/a.txt", "x/b.txt", "x/c.txt"}
	for _, p := range paths {
		require.NoError(t, op.Write(ctx, p, []byte("x")))
	}

	results, err := b.Batch(ctx, unistore.OpBatch{Delete: paths})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, r := range results {
		require.NoError(t, r.Err)
	}

	for _, p := range paths {
		_, err := op.Stat(ctx, p)
		require.ErrorIs(t, err, unistore.ErrNotFound)
	}
}

func TestMemoryMetadata(t *testing.T) {
	ctx := context.Background()
	op := unistore.NewOperator(New())

	require.NoError(t, op.Write(ctx, "m.bin", []byte("abc"),
		unistore.WithContentType("application/octet-stream")))

	meta, err := op.Stat(ctx, "m.bin")
	require.NoError(t, err)
	require.Equal(t, int64(3), meta.ContentLength)
	require.Equal(t, "application/octet-stream", meta.ContentType)
	require.NotEmpty(t, meta.ETag)
	require.False(t, meta.LastModified.IsZero())
}
