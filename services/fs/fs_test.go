package fs

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/bleepstore/unistore"
	"github.com/bleepstore/unistore/storetest"
)

func TestFsConformance(t *testing.T) {
	backend, err := New(t.TempDir())
	require.NoError(t, err)
	storetest.TestOperator(t, unistore.NewOperator(backend))
}

func TestRegistryOpen(t *testing.T) {
	op, err := unistore.Open("fs", map[string]string{"root": t.TempDir()})
	require.NoError(t, err)
	require.Equal(t, "fs", op.Info().Scheme)

	_, err = unistore.Open("fs", map[string]string{})
	require.Error(t, err)
	require.Equal(t, unistore.KindConfigInvalid, unistore.KindOf(err))
}

func TestAtomicWrite(t *testing.T) {
	ctx := context.Background()
	backend := NewWithFs(afero.NewMemMapFs())
	op := unistore.NewOperator(backend)

	w, err := op.Writer(ctx, "data/report.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)

	// Not visible until Close commits the rename.
	exists, err := op.Exists(ctx, "data/report.txt")
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, w.Close())

	data, err := op.Read(ctx, "data/report.txt")
	require.NoError(t, err)
	require.Equal(t, "partial", string(data))

	// No temp files left behind.
	entries, err := afero.ReadDir(backend.fs, "data")
	require.NoError(t, err)
	for _, e := range entries {
		require.False(t, strings.Contains(e.Name(), ".tmp-"), "leftover temp file %s", e.Name())
	}
}

func TestStatModeMismatch(t *testing.T) {
	ctx := context.Background()
	backend := NewWithFs(afero.NewMemMapFs())
	op := unistore.NewOperator(backend)

	require.NoError(t, op.Write(ctx, "plain.txt", []byte("x")))
	require.NoError(t, op.CreateDir(ctx, "sub/"))

	_, err := op.Stat(ctx, "plain.txt/")
	require.Equal(t, unistore.KindNotADirectory, unistore.KindOf(err))

	_, err = op.Stat(ctx, "sub")
	require.Equal(t, unistore.KindIsADirectory, unistore.KindOf(err))
}

func TestRangedRead(t *testing.T) {
	ctx := context.Background()
	op := unistore.NewOperator(NewWithFs(afero.NewMemMapFs()))

	require.NoError(t, op.Write(ctx, "r.txt", []byte("0123456789")))

	data, err := op.ReadRange(ctx, "r.txt", 3, 4)
	require.NoError(t, err)
	require.Equal(t, "3456", string(data))

	data, err = op.ReadRange(ctx, "r.txt", 7, -1)
	require.NoError(t, err)
	require.Equal(t, "789", string(data))
}

func TestDeleteMissingIsIdempotent(t *testing.T) {
	ctx := context.Background()
	op := unistore.NewOperator(NewWithFs(afero.NewMemMapFs()))
	require.NoError(t, op.Delete(ctx, "no/such/file.txt"))
}
