package layers

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/bleepstore/unistore"
)

// Logging logs every operation through the chain with its duration and
// outcome. Successful calls log at debug, failures at warn.
type Logging struct {
	logger *slog.Logger
}

// NewLogging creates a logging layer. A nil logger uses slog.Default.
func NewLogging(logger *slog.Logger) *Logging {
	return &Logging{logger: logger}
}

// Apply implements unistore.Layer.
func (l *Logging) Apply(inner unistore.Accessor) unistore.Accessor {
	logger := l.logger
	if logger == nil {
		logger = slog.Default()
	}
	info := inner.Info()
	return &loggingAccessor{
		Accessor: inner,
		logger:   logger.With("scheme", info.Scheme, "name", info.Name),
	}
}

type loggingAccessor struct {
	unistore.Accessor
	logger *slog.Logger
}

func (a *loggingAccessor) log(op, path string, start time.Time, err error) {
	if err != nil {
		a.logger.Warn("operation failed",
			"operation", op, "path", path, "duration", time.Since(start), "error", err)
		return
	}
	a.logger.Debug("operation finished",
		"operation", op, "path", path, "duration", time.Since(start))
}

func (a *loggingAccessor) Stat(ctx context.Context, path string, args unistore.OpStat) (unistore.Metadata, error) {
	start := time.Now()
	meta, err := a.Accessor.Stat(ctx, path, args)
	a.log(unistore.OpStatName, path, start, err)
	return meta, err
}

func (a *loggingAccessor) Read(ctx context.Context, path string, args unistore.OpRead) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := a.Accessor.Read(ctx, path, args)
	a.log(unistore.OpReadName, path, start, err)
	return rc, err
}

func (a *loggingAccessor) Write(ctx context.Context, path string, args unistore.OpWrite) (io.WriteCloser, error) {
	start := time.Now()
	wc, err := a.Accessor.Write(ctx, path, args)
	a.log(unistore.OpWriteName, path, start, err)
	return wc, err
}

func (a *loggingAccessor) CreateDir(ctx context.Context, path string) error {
	start := time.Now()
	err := a.Accessor.CreateDir(ctx, path)
	a.log(unistore.OpCreateDirName, path, start, err)
	return err
}

func (a *loggingAccessor) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := a.Accessor.Delete(ctx, path)
	a.log(unistore.OpDeleteName, path, start, err)
	return err
}

func (a *loggingAccessor) Copy(ctx context.Context, from, to string) error {
	start := time.Now()
	err := a.Accessor.Copy(ctx, from, to)
	a.log(unistore.OpCopyName, from, start, err)
	return err
}

func (a *loggingAccessor) Rename(ctx context.Context, from, to string) error {
	start := time.Now()
	err := a.Accessor.Rename(ctx, from, to)
	a.log(unistore.OpRenameName, from, start, err)
	return err
}

func (a *loggingAccessor) List(ctx context.Context, path string, args unistore.OpList) (unistore.Pager, error) {
	start := time.Now()
	pager, err := a.Accessor.List(ctx, path, args)
	a.log(unistore.OpListName, path, start, err)
	return pager, err
}

func (a *loggingAccessor) Batch(ctx context.Context, args unistore.OpBatch) ([]unistore.BatchResult, error) {
	start := time.Now()
	results, err := a.Accessor.Batch(ctx, args)
	a.log(unistore.OpBatchName, "", start, err)
	return results, err
}

func (a *loggingAccessor) Presign(ctx context.Context, path string, args unistore.OpPresign) (*unistore.PresignedRequest, error) {
	start := time.Now()
	req, err := a.Accessor.Presign(ctx, path, args)
	a.log(args.Operation.String(), path, start, err)
	return req, err
}

var _ unistore.Layer = (*Logging)(nil)
