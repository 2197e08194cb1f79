package layers

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bleepstore/unistore"
)

// flakyAccessor fails every operation with a temporary error until failures
// hits zero, then succeeds. It counts attempts per operation.
type flakyAccessor struct {
	failures int
	attempts map[string]int
	err      *unistore.Error
}

func newFlakyAccessor(failures int) *flakyAccessor {
	return &flakyAccessor{
		failures: failures,
		attempts: map[string]int{},
		err:      unistore.NewError(unistore.KindRateLimited, "", "", "throttled").AsTemporary(),
	}
}

func (f *flakyAccessor) tryFail(op string) error {
	f.attempts[op]++
	if f.failures > 0 {
		f.failures--
		e := *f.err
		e.Op = op
		return &e
	}
	return nil
}

func (f *flakyAccessor) Info() unistore.AccessorInfo {
	return unistore.AccessorInfo{Scheme: "flaky", Root: "/", Name: "flaky"}
}

func (f *flakyAccessor) Stat(ctx context.Context, path string, args unistore.OpStat) (unistore.Metadata, error) {
	return unistore.Metadata{Mode: unistore.ModeFile}, f.tryFail(unistore.OpStatName)
}

func (f *flakyAccessor) Read(ctx context.Context, path string, args unistore.OpRead) (io.ReadCloser, error) {
	if err := f.tryFail(unistore.OpReadName); err != nil {
		return nil, err
	}
	return io.NopCloser(nil), nil
}

func (f *flakyAccessor) Write(ctx context.Context, path string, args unistore.OpWrite) (io.WriteCloser, error) {
	if err := f.tryFail(unistore.OpWriteName); err != nil {
		return nil, err
	}
	return nopWriteCloser{io.Discard}, nil
}

func (f *flakyAccessor) CreateDir(ctx context.Context, path string) error {
	return f.tryFail(unistore.OpCreateDirName)
}

func (f *flakyAccessor) Delete(ctx context.Context, path string) error {
	return f.tryFail(unistore.OpDeleteName)
}

func (f *flakyAccessor) Copy(ctx context.Context, from, to string) error {
	return f.tryFail(unistore.OpCopyName)
}

func (f *flakyAccessor) Rename(ctx context.Context, from, to string) error {
	return f.tryFail(unistore.OpRenameName)
}

func (f *flakyAccessor) List(ctx context.Context, path string, args unistore.OpList) (unistore.Pager, error) {
	if err := f.tryFail(unistore.OpListName); err != nil {
		return nil, err
	}
	return emptyPager{}, nil
}

func (f *flakyAccessor) Batch(ctx context.Context, args unistore.OpBatch) ([]unistore.BatchResult, error) {
	return nil, f.tryFail(unistore.OpBatchName)
}

func (f *flakyAccessor) Presign(ctx context.Context, path string, args unistore.OpPresign) (*unistore.PresignedRequest, error) {
	if err := f.tryFail(unistore.OpPresignName); err != nil {
		return nil, err
	}
	return &unistore.PresignedRequest{}, nil
}

type emptyPager struct{}

func (emptyPager) NextPage(ctx context.Context) ([]unistore.Entry, error) { return nil, nil }

// retryForTest builds a Retry with a recording sleeper instead of real
// sleeps.
func retryForTest(maxTimes int, minDelay, maxDelay time.Duration, factor float64, slept *[]time.Duration) *Retry {
	return &Retry{
		MaxTimes: maxTimes,
		MinDelay: minDelay,
		MaxDelay: maxDelay,
		Factor:   factor,
		sleep: func(ctx context.Context, d time.Duration) error {
			*slept = append(*slept, d)
			return nil
		},
	}
}

func TestRetrySucceedsAfterTemporaryFailures(t *testing.T) {
	ctx := context.Background()
	var slept []time.Duration
	inner := newFlakyAccessor(2)
	acc := retryForTest(5, 10*time.Millisecond, 100*time.Millisecond, 2, &slept).Apply(inner)

	_, err := acc.Stat(ctx, "a.txt", unistore.OpStat{})
	require.NoError(t, err)
	require.Equal(t, 3, inner.attempts[unistore.OpStatName])
	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, slept)
}

func TestRetryExhaustionReportsPersistent(t *testing.T) {
	ctx := context.Background()
	var slept []time.Duration
	inner := newFlakyAccessor(100) // never recovers
	acc := retryForTest(3, 10*time.Millisecond, 100*time.Millisecond, 2, &slept).Apply(inner)

	err := acc.Delete(ctx, "a.txt")
	require.Error(t, err)
	// Exactly 3 attempts with delays 10ms, 20ms between them.
	require.Equal(t, 3, inner.attempts[unistore.OpDeleteName])
	require.Equal(t, []time.Duration{10 * time.Millisecond, 20 * time.Millisecond}, slept)
	// The surfaced error keeps its kind but is no longer temporary.
	require.Equal(t, unistore.KindRateLimited, unistore.KindOf(err))
	require.False(t, unistore.IsTemporary(err))
}

func TestRetryDelayCappedAtMax(t *testing.T) {
	ctx := context.Background()
	var slept []time.Duration
	inner := newFlakyAccessor(100)
	acc := retryForTest(5, 10*time.Millisecond, 25*time.Millisecond, 2, &slept).Apply(inner)

	_ = acc.CreateDir(ctx, "d/")
	require.Equal(t, []time.Duration{
		10 * time.Millisecond, 20 * time.Millisecond, 25 * time.Millisecond, 25 * time.Millisecond,
	}, slept)
}

func TestRetryJitterBound(t *testing.T) {
	ctx := context.Background()
	minDelay := 10 * time.Millisecond
	var slept []time.Duration
	r := retryForTest(5, minDelay, 100*time.Millisecond, 2, &slept)
	r.Jitter = true
	acc := r.Apply(newFlakyAccessor(100))

	_ = acc.Delete(ctx, "a.txt")
	require.Len(t, slept, 4)
	// Each delay is the deterministic schedule plus jitter in [0, minDelay).
	expected := []time.Duration{10, 20, 40, 80}
	for i, d := range slept {
		base := expected[i] * time.Millisecond
		require.GreaterOrEqual(t, d, base)
		require.Less(t, d, base+minDelay)
	}
}

func TestRetryDoesNotRetryWrites(t *testing.T) {
	ctx := context.Background()
	var slept []time.Duration
	inner := newFlakyAccessor(1)
	acc := retryForTest(5, 10*time.Millisecond, 100*time.Millisecond, 2, &slept).Apply(inner)

	_, err := acc.Write(ctx, "a.txt", unistore.OpWrite{})
	require.Error(t, err)
	require.Equal(t, 1, inner.attempts[unistore.OpWriteName])
	require.Empty(t, slept)
	// Write errors pass through with their temporary flag intact.
	require.True(t, unistore.IsTemporary(err))
}

func TestRetrySkipsNonTemporaryErrors(t *testing.T) {
	ctx := context.Background()
	var slept []time.Duration
	inner := newFlakyAccessor(100)
	inner.err = unistore.NewError(unistore.KindNotFound, "", "", "gone") // persistent
	acc := retryForTest(5, 10*time.Millisecond, 100*time.Millisecond, 2, &slept).Apply(inner)

	_, err := acc.Stat(ctx, "a.txt", unistore.OpStat{})
	require.ErrorIs(t, err, unistore.ErrNotFound)
	require.Equal(t, 1, inner.attempts[unistore.OpStatName])
	require.Empty(t, slept)
}

func TestRetryDisabledWithZeroAttempts(t *testing.T) {
	ctx := context.Background()
	var slept []time.Duration
	inner := newFlakyAccessor(100)
	acc := retryForTest(0, 10*time.Millisecond, 100*time.Millisecond, 2, &slept).Apply(inner)

	err := acc.Delete(ctx, "a.txt")
	require.Error(t, err)
	require.Equal(t, 1, inner.attempts[unistore.OpDeleteName])
	require.Empty(t, slept)
}

func TestRetryStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	inner := newFlakyAccessor(100)
	r := &Retry{MaxTimes: 5, MinDelay: 10 * time.Millisecond, MaxDelay: time.Second, Factor: 2,
		sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	}
	acc := r.Apply(inner)

	err := acc.Delete(ctx, "a.txt")
	require.Error(t, err)
	require.False(t, unistore.IsTemporary(err))
	require.Equal(t, 1, inner.attempts[unistore.OpDeleteName])
}
