package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bleepstore/unistore"
	"github.com/bleepstore/unistore/storetest"
)

func openTestBackend(t *testing.T) *Backend {
	t.Helper()
	backend, err := Open(filepath.Join(t.TempDir(), "store.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestBoltConformance(t *testing.T) {
	storetest.TestOperator(t, unistore.NewOperator(openTestBackend(t)))
}

func TestRegistryOpen(t *testing.T) {
	op, err := unistore.Open("bolt", map[string]string{"path": filepath.Join(t.TempDir(), "r.db")})
	require.NoError(t, err)
	require.Equal(t, "bolt", op.Info().Scheme)

	_, err = unistore.Open("bolt", nil)
	require.Equal(t, unistore.KindConfigInvalid, unistore.KindOf(err))
}

func TestPersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "persist.db")

	backend, err := Open(path)
	require.NoError(t, err)
	op := unistore.NewOperator(backend)
	require.NoError(t, op.Write(ctx, "kept.txt", []byte("survives reopen")))
	require.NoError(t, backend.Close())

	backend, err = Open(path)
	require.NoError(t, err)
	defer backend.Close()

	data, err := unistore.NewOperator(backend).Read(ctx, "kept.txt")
	require.NoError(t, err)
	require.Equal(t, "survives reopen", string(data))
}

func TestBatchDeleteIsTransactional(t *testing.T) {
	ctx := context.Background()
	op := unistore.NewOperator(openTestBackend(t))

	paths := []string{"bulk/a.txt", "bulk/b.txt", "bulk/c.txt"}
	for _, p := range paths {
		require.NoError(t, op.Write(ctx, p, []byte("x")))
	}

	require.NoError(t, op.Remove(ctx, paths))
	for _, p := range paths {
		exists, err := op.Exists(ctx, p)
		require.NoError(t, err)
		require.False(t, exists, "path %s should be gone", p)
	}
}

func TestMetadataRecord(t *testing.T) {
	ctx := context.Background()
	op := unistore.NewOperator(openTestBackend(t))

	require.NoError(t, op.Write(ctx, "m.json", []byte(`{"k":1}`),
		unistore.WithContentType("application/json")))

	meta, err := op.Stat(ctx, "m.json")
	require.NoError(t, err)
	require.Equal(t, "application/json", meta.ContentType)
	require.NotEmpty(t, meta.ETag)
	require.False(t, meta.LastModified.IsZero())
	require.Equal(t, int64(7), meta.ContentLength)
}
