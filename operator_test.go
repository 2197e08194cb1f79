package unistore

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// mockAccessor is a configurable Accessor for facade tests. It records how
// many times each operation reached the backend.
type mockAccessor struct {
	capability Capability
	calls      map[string]int

	statMeta Metadata
	statErr  error
	readData []byte
	entries  []Entry
	batchErr error
}

func newMockAccessor(c Capability) *mockAccessor {
	return &mockAccessor{capability: c, calls: map[string]int{}}
}

func (m *mockAccessor) Info() AccessorInfo {
	return AccessorInfo{Scheme: "mock", Root: "/", Name: "mock", Capability: m.capability}
}

func (m *mockAccessor) Stat(ctx context.Context, path string, args OpStat) (Metadata, error) {
	m.calls[OpStatName]++
	return m.statMeta, m.statErr
}

func (m *mockAccessor) Read(ctx context.Context, path string, args OpRead) (io.ReadCloser, error) {
	m.calls[OpReadName]++
	data := m.readData
	if args.Offset > int64(len(data)) {
		data = nil
	} else {
		data = data[args.Offset:]
	}
	if args.Length >= 0 && args.Length < int64(len(data)) {
		data = data[:args.Length]
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *mockAccessor) Write(ctx context.Context, path string, args OpWrite) (io.WriteCloser, error) {
	m.calls[OpWriteName]++
	return nopWriteCloser{}, nil
}

func (m *mockAccessor) CreateDir(ctx context.Context, path string) error {
	m.calls[OpCreateDirName]++
	return nil
}

func (m *mockAccessor) Delete(ctx context.Context, path string) error {
	m.calls[OpDeleteName]++
	return nil
}

func (m *mockAccessor) Copy(ctx context.Context, from, to string) error {
	m.calls[OpCopyName]++
	return nil
}

func (m *mockAccessor) Rename(ctx context.Context, from, to string) error {
	m.calls[OpRenameName]++
	return nil
}

func (m *mockAccessor) List(ctx context.Context, path string, args OpList) (Pager, error) {
	m.calls[OpListName]++
	return &slicePager{entries: m.entries}, nil
}

func (m *mockAccessor) Batch(ctx context.Context, args OpBatch) ([]BatchResult, error) {
	m.calls[OpBatchName]++
	if m.batchErr != nil {
		return nil, m.batchErr
	}
	results := make([]BatchResult, len(args.Delete))
	for i, p := range args.Delete {
		results[i] = BatchResult{Path: p}
	}
	return results, nil
}

func (m *mockAccessor) Presign(ctx context.Context, path string, args OpPresign) (*PresignedRequest, error) {
	m.calls[OpPresignName]++
	return &PresignedRequest{Method: "GET", URL: "https://example.com/" + path}, nil
}

type nopWriteCloser struct{}

func (nopWriteCloser) Write(p []byte) (int, error) { return len(p), nil }
func (nopWriteCloser) Close() error                { return nil }

// slicePager pages a fixed entry slice one entry at a time, to exercise the
// Lister's page-pulling loop.
type slicePager struct {
	entries []Entry
}

func (p *slicePager) NextPage(ctx context.Context) ([]Entry, error) {
	if len(p.entries) == 0 {
		return nil, nil
	}
	page := p.entries[:1]
	p.entries = p.entries[1:]
	return page, nil
}

func fullCapability() Capability {
	return Capability{
		Stat: true, Read: true, Write: true, WriteCanAppend: true, WriteCanMulti: true,
		CreateDir: true, Delete: true, Copy: true, Rename: true,
		List: true, ListWithRecursive: true, ListWithLimit: true,
		Presign: true, PresignRead: true, PresignWrite: true, PresignStat: true,
		Batch: true, BatchDelete: true,
	}
}

func TestCapabilityGating(t *testing.T) {
	ctx := context.Background()
	c := fullCapability()
	c.Write = false
	m := newMockAccessor(c)
	op := NewOperator(m)

	err := op.Write(ctx, "a.txt", []byte("x"))
	require.ErrorIs(t, err, ErrUnsupported)
	// The backend must not have been invoked.
	require.Zero(t, m.calls[OpWriteName])
}

func TestAppendRequiresCapability(t *testing.T) {
	ctx := context.Background()
	c := fullCapability()
	c.WriteCanAppend = false
	m := newMockAccessor(c)
	op := NewOperator(m)

	err := op.Write(ctx, "a.txt", []byte("x"), WithAppend())
	require.ErrorIs(t, err, ErrUnsupported)
	require.Zero(t, m.calls[OpWriteName])
}

func TestChunkSizeValidation(t *testing.T) {
	ctx := context.Background()
	c := fullCapability()
	c.WriteMultiMinSize = 1024
	c.WriteMultiMaxSize = 4096
	c.WriteMultiAlignSize = 512
	m := newMockAccessor(c)
	op := NewOperator(m)

	_, err := op.Writer(ctx, "a.txt", WithChunkSize(100))
	require.ErrorIs(t, err, ErrConfigInvalid)

	_, err = op.Writer(ctx, "a.txt", WithChunkSize(8192))
	require.ErrorIs(t, err, ErrConfigInvalid)

	_, err = op.Writer(ctx, "a.txt", WithChunkSize(1536))
	require.NoError(t, err)
}

func TestCopyToSelfIsNoOp(t *testing.T) {
	ctx := context.Background()
	m := newMockAccessor(fullCapability())
	op := NewOperator(m)

	require.NoError(t, op.Copy(ctx, "a.txt", "a.txt"))
	require.Zero(t, m.calls[OpCopyName])
}

func TestRenameToSelfFails(t *testing.T) {
	ctx := context.Background()
	m := newMockAccessor(fullCapability())
	op := NewOperator(m)

	err := op.Rename(ctx, "a.txt", "a.txt")
	require.ErrorIs(t, err, ErrIsSameFile)
	require.Zero(t, m.calls[OpRenameName])
}

func TestCopyRejectsDirectoryOperands(t *testing.T) {
	ctx := context.Background()
	op := NewOperator(newMockAccessor(fullCapability()))

	require.ErrorIs(t, op.Copy(ctx, "dir/", "b.txt"), ErrIsADirectory)
	require.ErrorIs(t, op.Copy(ctx, "a.txt", "dir/"), ErrIsADirectory)
}

func TestListRequiresTrailingSlash(t *testing.T) {
	ctx := context.Background()
	op := NewOperator(newMockAccessor(fullCapability()))

	_, err := op.List(ctx, "dir")
	require.ErrorIs(t, err, ErrNotADirectory)
}

func TestCreateDirRequiresTrailingSlash(t *testing.T) {
	ctx := context.Background()
	op := NewOperator(newMockAccessor(fullCapability()))

	require.ErrorIs(t, op.CreateDir(ctx, "f"), ErrNotADirectory)
}

func TestListOptionGating(t *testing.T) {
	ctx := context.Background()
	c := fullCapability()
	c.ListWithRecursive = false
	op := NewOperator(newMockAccessor(c))

	_, err := op.List(ctx, "dir/", WithRecursive())
	require.ErrorIs(t, err, ErrUnsupported)

	c = fullCapability()
	c.ListWithLimit = false
	op = NewOperator(newMockAccessor(c))

	_, err = op.List(ctx, "dir/", WithLimit(10))
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestRemoveUsesBatch(t *testing.T) {
	ctx := context.Background()
	c := fullCapability()
	c.BatchMaxOperations = 2
	m := newMockAccessor(c)
	op := NewOperator(m)

	err := op.Remove(ctx, []string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	// Five paths, two per batch: three batch calls, no per-path deletes.
	require.Equal(t, 3, m.calls[OpBatchName])
	require.Zero(t, m.calls[OpDeleteName])
}

func TestRemoveFallsBackToPerPathDelete(t *testing.T) {
	ctx := context.Background()
	c := fullCapability()
	c.Batch = false
	m := newMockAccessor(c)
	op := NewOperator(m)

	err := op.Remove(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Equal(t, 3, m.calls[OpDeleteName])
	require.Zero(t, m.calls[OpBatchName])
}

func TestPresignGating(t *testing.T) {
	ctx := context.Background()
	c := fullCapability()
	c.PresignWrite = false
	m := newMockAccessor(c)
	op := NewOperator(m)

	req, err := op.PresignRead(ctx, "a.txt", time.Hour)
	require.NoError(t, err)
	require.Equal(t, "GET", req.Method)

	_, err = op.PresignWrite(ctx, "a.txt", time.Hour)
	require.ErrorIs(t, err, ErrUnsupported)
	require.Equal(t, 1, m.calls[OpPresignName])
}

func TestPresignRequiresPositiveExpire(t *testing.T) {
	ctx := context.Background()
	op := NewOperator(newMockAccessor(fullCapability()))

	_, err := op.PresignRead(ctx, "a.txt", 0)
	require.ErrorIs(t, err, ErrConfigInvalid)
}

func TestExists(t *testing.T) {
	ctx := context.Background()
	m := newMockAccessor(fullCapability())
	op := NewOperator(m)

	ok, err := op.Exists(ctx, "a.txt")
	require.NoError(t, err)
	require.True(t, ok)

	m.statErr = NewError(KindNotFound, "stat", "a.txt", "")
	ok, err = op.Exists(ctx, "a.txt")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheck(t *testing.T) {
	ctx := context.Background()
	m := newMockAccessor(fullCapability())
	op := NewOperator(m)

	require.NoError(t, op.Check(ctx))
	require.Equal(t, 1, m.calls[OpListName])
}

func TestLayerOrdering(t *testing.T) {
	var order []string
	tag := func(name string) Layer {
		return LayerFunc(func(inner Accessor) Accessor {
			return &taggingAccessor{Accessor: inner, name: name, order: &order}
		})
	}

	m := newMockAccessor(fullCapability())
	op := NewOperator(m, tag("outer"), tag("inner"))

	_, err := op.Stat(context.Background(), "a.txt")
	require.NoError(t, err)
	// The first layer added sees the call first.
	require.Equal(t, []string{"outer", "inner"}, order)
}

type taggingAccessor struct {
	Accessor
	name  string
	order *[]string
}

func (a *taggingAccessor) Stat(ctx context.Context, path string, args OpStat) (Metadata, error) {
	*a.order = append(*a.order, a.name)
	return a.Accessor.Stat(ctx, path, args)
}
