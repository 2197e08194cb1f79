package layers

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/bleepstore/unistore"
)

func TestMetricsRecordsOutcomes(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	inner := newFlakyAccessor(1)
	acc := NewMetrics(reg).Apply(inner)

	_, err := acc.Stat(ctx, "a.txt", unistore.OpStat{}) // fails once
	require.Error(t, err)
	_, err = acc.Stat(ctx, "a.txt", unistore.OpStat{}) // then succeeds
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)

	counts := map[string]float64{}
	for _, fam := range families {
		if fam.GetName() != "unistore_operations_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			var status string
			for _, l := range m.GetLabel() {
				if l.GetName() == "status" {
					status = l.GetValue()
				}
			}
			counts[status] = m.GetCounter().GetValue()
		}
	}
	require.Equal(t, float64(1), counts["success"])
	require.Equal(t, float64(1), counts["RateLimited"])
}

// dataAccessor serves fixed bytes so stream counters have something to count.
type dataAccessor struct {
	*flakyAccessor
	data []byte
	sink bytes.Buffer
}

func (d *dataAccessor) Read(ctx context.Context, path string, args unistore.OpRead) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(d.data)), nil
}

func (d *dataAccessor) Write(ctx context.Context, path string, args unistore.OpWrite) (io.WriteCloser, error) {
	return nopWriteCloser{&d.sink}, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func TestMetricsCountsBytes(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	inner := &dataAccessor{flakyAccessor: newFlakyAccessor(0), data: []byte("0123456789")}
	acc := NewMetrics(reg).Apply(inner)

	rc, err := acc.Read(ctx, "a.txt", unistore.OpRead{Length: -1})
	require.NoError(t, err)
	_, err = io.Copy(io.Discard, rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	wc, err := acc.Write(ctx, "a.txt", unistore.OpWrite{})
	require.NoError(t, err)
	_, err = wc.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, wc.Close())

	families, err := reg.Gather()
	require.NoError(t, err)

	totals := map[string]float64{}
	for _, fam := range families {
		if fam.GetName() != "unistore_operation_bytes_total" {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "operation" {
					totals[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	require.Equal(t, float64(10), totals[unistore.OpReadName])
	require.Equal(t, float64(3), totals[unistore.OpWriteName])
}

func TestLoggingPassesResultsThrough(t *testing.T) {
	ctx := context.Background()
	inner := newFlakyAccessor(0)
	acc := NewLogging(nil).Apply(inner)

	meta, err := acc.Stat(ctx, "a.txt", unistore.OpStat{})
	require.NoError(t, err)
	require.Equal(t, unistore.ModeFile, meta.Mode)

	err = acc.Delete(ctx, "a.txt")
	require.NoError(t, err)
}
