package layers

import (
	"context"
	"io"

	"github.com/bleepstore/unistore"
)

// ConcurrencyLimit bounds the number of operations in flight through the
// chain with a token semaphore. Waiting respects the operation's context.
// The reported Capability is unchanged.
type ConcurrencyLimit struct {
	tokens chan struct{}
}

// NewConcurrencyLimit creates a layer admitting at most permits concurrent
// operations. Permits below 1 are raised to 1.
func NewConcurrencyLimit(permits int) *ConcurrencyLimit {
	if permits < 1 {
		permits = 1
	}
	return &ConcurrencyLimit{tokens: make(chan struct{}, permits)}
}

// Apply implements unistore.Layer.
func (l *ConcurrencyLimit) Apply(inner unistore.Accessor) unistore.Accessor {
	return &limitAccessor{Accessor: inner, tokens: l.tokens}
}

type limitAccessor struct {
	unistore.Accessor
	tokens chan struct{}
}

func (a *limitAccessor) acquire(ctx context.Context) error {
	select {
	case a.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return unistore.NewError(unistore.KindUnexpected, "limit", "", "context canceled while waiting for permit").
			AsTemporary().WithCause(ctx.Err())
	}
}

func (a *limitAccessor) release() { <-a.tokens }

func (a *limitAccessor) Stat(ctx context.Context, path string, args unistore.OpStat) (unistore.Metadata, error) {
	if err := a.acquire(ctx); err != nil {
		return unistore.Metadata{}, err
	}
	defer a.release()
	return a.Accessor.Stat(ctx, path, args)
}

func (a *limitAccessor) Read(ctx context.Context, path string, args unistore.OpRead) (io.ReadCloser, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()
	return a.Accessor.Read(ctx, path, args)
}

func (a *limitAccessor) Write(ctx context.Context, path string, args unistore.OpWrite) (io.WriteCloser, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()
	return a.Accessor.Write(ctx, path, args)
}

func (a *limitAccessor) CreateDir(ctx context.Context, path string) error {
	if err := a.acquire(ctx); err != nil {
		return err
	}
	defer a.release()
	return a.Accessor.CreateDir(ctx, path)
}

func (a *limitAccessor) Delete(ctx context.Context, path string) error {
	if err := a.acquire(ctx); err != nil {
		return err
	}
	defer a.release()
	return a.Accessor.Delete(ctx, path)
}

func (a *limitAccessor) Copy(ctx context.Context, from, to string) error {
	if err := a.acquire(ctx); err != nil {
		return err
	}
	defer a.release()
	return a.Accessor.Copy(ctx, from, to)
}

func (a *limitAccessor) Rename(ctx context.Context, from, to string) error {
	if err := a.acquire(ctx); err != nil {
		return err
	}
	defer a.release()
	return a.Accessor.Rename(ctx, from, to)
}

func (a *limitAccessor) List(ctx context.Context, path string, args unistore.OpList) (unistore.Pager, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()
	return a.Accessor.List(ctx, path, args)
}

func (a *limitAccessor) Batch(ctx context.Context, args unistore.OpBatch) ([]unistore.BatchResult, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()
	return a.Accessor.Batch(ctx, args)
}

func (a *limitAccessor) Presign(ctx context.Context, path string, args unistore.OpPresign) (*unistore.PresignedRequest, error) {
	if err := a.acquire(ctx); err != nil {
		return nil, err
	}
	defer a.release()
	return a.Accessor.Presign(ctx, path, args)
}

var _ unistore.Layer = (*ConcurrencyLimit)(nil)
