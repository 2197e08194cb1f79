package layers

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bleepstore/unistore"
)

// durationBuckets cover sub-millisecond memory hits through multi-second
// remote calls.
var durationBuckets = []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10}

// Metrics records per-operation Prometheus metrics: a counter by outcome, a
// latency histogram, and a byte counter for read/write traffic, all labeled
// with the backend scheme.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	bytes      *prometheus.CounterVec
}

// NewMetrics creates a metrics layer registered with reg. A nil registerer
// uses prometheus.DefaultRegisterer. One Metrics value may be applied to any
// number of chains; they share the same collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unistore_operations_total",
				Help: "Total storage operations by scheme, operation, and outcome",
			},
			[]string{"scheme", "operation", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "unistore_operation_duration_seconds",
				Help:    "Storage operation latency in seconds",
				Buckets: durationBuckets,
			},
			[]string{"scheme", "operation"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "unistore_operation_bytes_total",
				Help: "Bytes transferred by read and write operations",
			},
			[]string{"scheme", "operation"},
		),
	}
	reg.MustRegister(m.operations, m.duration, m.bytes)
	return m
}

// Apply implements unistore.Layer.
func (m *Metrics) Apply(inner unistore.Accessor) unistore.Accessor {
	return &metricsAccessor{Accessor: inner, m: m, scheme: inner.Info().Scheme}
}

type metricsAccessor struct {
	unistore.Accessor
	m      *Metrics
	scheme string
}

func (a *metricsAccessor) observe(op string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = unistore.KindOf(err).String()
	}
	a.m.operations.WithLabelValues(a.scheme, op, status).Inc()
	a.m.duration.WithLabelValues(a.scheme, op).Observe(time.Since(start).Seconds())
}

func (a *metricsAccessor) Stat(ctx context.Context, path string, args unistore.OpStat) (unistore.Metadata, error) {
	start := time.Now()
	meta, err := a.Accessor.Stat(ctx, path, args)
	a.observe(unistore.OpStatName, start, err)
	return meta, err
}

func (a *metricsAccessor) Read(ctx context.Context, path string, args unistore.OpRead) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := a.Accessor.Read(ctx, path, args)
	a.observe(unistore.OpReadName, start, err)
	if err != nil {
		return nil, err
	}
	return &countingReader{rc: rc, counter: a.m.bytes.WithLabelValues(a.scheme, unistore.OpReadName)}, nil
}

type countingReader struct {
	rc      io.ReadCloser
	counter prometheus.Counter
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if n > 0 {
		r.counter.Add(float64(n))
	}
	return n, err
}

func (r *countingReader) Close() error { return r.rc.Close() }

func (a *metricsAccessor) Write(ctx context.Context, path string, args unistore.OpWrite) (io.WriteCloser, error) {
	start := time.Now()
	wc, err := a.Accessor.Write(ctx, path, args)
	a.observe(unistore.OpWriteName, start, err)
	if err != nil {
		return nil, err
	}
	return &countingWriter{wc: wc, counter: a.m.bytes.WithLabelValues(a.scheme, unistore.OpWriteName)}, nil
}

type countingWriter struct {
	wc      io.WriteCloser
	counter prometheus.Counter
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.wc.Write(p)
	if n > 0 {
		w.counter.Add(float64(n))
	}
	return n, err
}

func (w *countingWriter) Close() error { return w.wc.Close() }

func (a *metricsAccessor) CreateDir(ctx context.Context, path string) error {
	start := time.Now()
	err := a.Accessor.CreateDir(ctx, path)
	a.observe(unistore.OpCreateDirName, start, err)
	return err
}

func (a *metricsAccessor) Delete(ctx context.Context, path string) error {
	start := time.Now()
	err := a.Accessor.Delete(ctx, path)
	a.observe(unistore.OpDeleteName, start, err)
	return err
}

func (a *metricsAccessor) Copy(ctx context.Context, from, to string) error {
	start := time.Now()
	err := a.Accessor.Copy(ctx, from, to)
	a.observe(unistore.OpCopyName, start, err)
	return err
}

func (a *metricsAccessor) Rename(ctx context.Context, from, to string) error {
	start := time.Now()
	err := a.Accessor.Rename(ctx, from, to)
	a.observe(unistore.OpRenameName, start, err)
	return err
}

func (a *metricsAccessor) List(ctx context.Context, path string, args unistore.OpList) (unistore.Pager, error) {
	start := time.Now()
	pager, err := a.Accessor.List(ctx, path, args)
	a.observe(unistore.OpListName, start, err)
	return pager, err
}

func (a *metricsAccessor) Batch(ctx context.Context, args unistore.OpBatch) ([]unistore.BatchResult, error) {
	start := time.Now()
	results, err := a.Accessor.Batch(ctx, args)
	a.observe(unistore.OpBatchName, start, err)
	return results, err
}

func (a *metricsAccessor) Presign(ctx context.Context, path string, args unistore.OpPresign) (*unistore.PresignedRequest, error) {
	start := time.Now()
	req, err := a.Accessor.Presign(ctx, path, args)
	a.observe(unistore.OpPresignName, start, err)
	return req, err
}

var _ unistore.Layer = (*Metrics)(nil)
