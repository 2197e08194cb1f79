package layers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bleepstore/unistore"
)

// gaugeAccessor tracks the highest number of concurrent Stat calls.
type gaugeAccessor struct {
	flakyAccessor
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (g *gaugeAccessor) Stat(ctx context.Context, path string, args unistore.OpStat) (unistore.Metadata, error) {
	n := g.inFlight.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	g.inFlight.Add(-1)
	return unistore.Metadata{}, nil
}

func TestConcurrencyLimitBoundsInFlight(t *testing.T) {
	ctx := context.Background()
	inner := &gaugeAccessor{}
	acc := NewConcurrencyLimit(2).Apply(inner)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = acc.Stat(ctx, "a.txt", unistore.OpStat{})
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, inner.peak.Load(), int32(2))
}

func TestConcurrencyLimitRespectsContext(t *testing.T) {
	inner := newFlakyAccessor(0)
	l := NewConcurrencyLimit(1)
	acc := l.Apply(inner)

	// Occupy the only permit.
	l.tokens <- struct{}{}
	defer func() { <-l.tokens }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := acc.Read(ctx, "a.txt", unistore.OpRead{})
	require.Error(t, err)
	require.True(t, unistore.IsTemporary(err))
}

func TestConcurrencyLimitPreservesCapability(t *testing.T) {
	inner := newFlakyAccessor(0)
	acc := NewConcurrencyLimit(4).Apply(inner)
	require.Equal(t, inner.Info(), acc.Info())
}
