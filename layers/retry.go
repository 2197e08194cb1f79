// Package layers provides composable middleware for unistore Operator
// chains: retry with exponential backoff, structured logging, Prometheus
// metrics, and concurrency limiting. Layers are backend-agnostic and may be
// combined in any order; the first layer passed to NewOperator sees each
// call first.
package layers

import (
	"context"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/bleepstore/unistore"
)

// Retry retries operations that fail with a temporary error, sleeping an
// exponentially growing delay between attempts. After MaxTimes attempts the
// last error is returned relabeled persistent.
//
// Write-family operations are never retried: a partially observed write
// cannot be repeated without duplicate side effects, so writes pass straight
// through to the inner chain.
type Retry struct {
	// MaxTimes is the total attempt budget. Zero or one disables retry.
	MaxTimes int
	// MinDelay is the first inter-attempt delay.
	MinDelay time.Duration
	// MaxDelay caps the computed delay.
	MaxDelay time.Duration
	// Factor multiplies the delay after each failed attempt. Must be >= 1.
	Factor float64
	// Jitter adds a uniform random duration in [0, MinDelay) to every
	// computed delay.
	Jitter bool
	// Logger receives a warning per retried attempt. Nil uses slog.Default.
	Logger *slog.Logger

	// sleep is a test hook; nil means a ctx-aware time.Sleep.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewRetry returns a Retry with defaults: 3 attempts, 100ms initial delay
// doubling up to 10s, jitter enabled.
func NewRetry() *Retry {
	return &Retry{
		MaxTimes: 3,
		MinDelay: 100 * time.Millisecond,
		MaxDelay: 10 * time.Second,
		Factor:   2.0,
		Jitter:   true,
	}
}

// Apply implements unistore.Layer.
func (r *Retry) Apply(inner unistore.Accessor) unistore.Accessor {
	cfg := *r
	if cfg.MaxTimes < 1 {
		cfg.MaxTimes = 1
	}
	if cfg.Factor < 1 {
		cfg.Factor = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.sleep == nil {
		cfg.sleep = sleepCtx
	}
	return &retryAccessor{Accessor: inner, cfg: cfg}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// retryAccessor wraps every retryable operation. Write and Info come from
// the embedded inner accessor untouched.
type retryAccessor struct {
	unistore.Accessor
	cfg Retry
}

// do runs f until it succeeds, fails with a non-temporary error, or the
// attempt budget runs out.
func (a *retryAccessor) do(ctx context.Context, op, path string, f func() error) error {
	delay := a.cfg.MinDelay
	for attempt := 1; ; attempt++ {
		err := f()
		if err == nil || !unistore.IsTemporary(err) {
			return err
		}
		if attempt >= a.cfg.MaxTimes {
			return unistore.MarkPersistent(err)
		}

		d := delay
		if a.cfg.Jitter && a.cfg.MinDelay > 0 {
			d += rand.N(a.cfg.MinDelay)
		}
		a.cfg.Logger.Warn("retrying after temporary error",
			"operation", op, "path", path, "attempt", attempt, "delay", d, "error", err)
		if serr := a.cfg.sleep(ctx, d); serr != nil {
			return unistore.MarkPersistent(err)
		}

		delay = time.Duration(float64(delay) * a.cfg.Factor)
		if a.cfg.MaxDelay > 0 && delay > a.cfg.MaxDelay {
			delay = a.cfg.MaxDelay
		}
	}
}

func (a *retryAccessor) Stat(ctx context.Context, path string, args unistore.OpStat) (unistore.Metadata, error) {
	var meta unistore.Metadata
	err := a.do(ctx, unistore.OpStatName, path, func() error {
		var err error
		meta, err = a.Accessor.Stat(ctx, path, args)
		return err
	})
	return meta, err
}

func (a *retryAccessor) Read(ctx context.Context, path string, args unistore.OpRead) (io.ReadCloser, error) {
	var rc io.ReadCloser
	err := a.do(ctx, unistore.OpReadName, path, func() error {
		var err error
		rc, err = a.Accessor.Read(ctx, path, args)
		return err
	})
	return rc, err
}

func (a *retryAccessor) CreateDir(ctx context.Context, path string) error {
	return a.do(ctx, unistore.OpCreateDirName, path, func() error {
		return a.Accessor.CreateDir(ctx, path)
	})
}

func (a *retryAccessor) Delete(ctx context.Context, path string) error {
	return a.do(ctx, unistore.OpDeleteName, path, func() error {
		return a.Accessor.Delete(ctx, path)
	})
}

func (a *retryAccessor) Copy(ctx context.Context, from, to string) error {
	return a.do(ctx, unistore.OpCopyName, from, func() error {
		return a.Accessor.Copy(ctx, from, to)
	})
}

func (a *retryAccessor) Rename(ctx context.Context, from, to string) error {
	return a.do(ctx, unistore.OpRenameName, from, func() error {
		return a.Accessor.Rename(ctx, from, to)
	})
}

func (a *retryAccessor) List(ctx context.Context, path string, args unistore.OpList) (unistore.Pager, error) {
	var pager unistore.Pager
	err := a.do(ctx, unistore.OpListName, path, func() error {
		var err error
		pager, err = a.Accessor.List(ctx, path, args)
		return err
	})
	return pager, err
}

func (a *retryAccessor) Batch(ctx context.Context, args unistore.OpBatch) ([]unistore.BatchResult, error) {
	var results []unistore.BatchResult
	err := a.do(ctx, unistore.OpBatchName, "", func() error {
		var err error
		results, err = a.Accessor.Batch(ctx, args)
		return err
	})
	return results, err
}

func (a *retryAccessor) Presign(ctx context.Context, path string, args unistore.OpPresign) (*unistore.PresignedRequest, error) {
	var req *unistore.PresignedRequest
	err := a.do(ctx, unistore.OpPresignName, path, func() error {
		var err error
		req, err = a.Accessor.Presign(ctx, path, args)
		return err
	})
	return req, err
}

var _ unistore.Layer = (*Retry)(nil)
