package metrics

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scfingest/internal/blobstore"
	"scfingest/internal/ingest"
)

const defaultNamespace = "scfingest"

// Observer exports ingest and blob store telemetry to Prometheus. It
// satisfies both ingest.Observer and blobstore.Observer.
type Observer struct {
	storageDuration *prometheus.HistogramVec
	storageErrors   *prometheus.CounterVec
	storedBytes     prometheus.Counter
	parts           *prometheus.CounterVec
	ingests         *prometheus.CounterVec
	ingestDuration  prometheus.Histogram
}

// NewObserver registers the collectors on reg (prometheus.DefaultRegisterer
// when nil). Registering twice on the same registry reuses the existing
// collectors.
func NewObserver(namespace string, reg prometheus.Registerer) (*Observer, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	o := &Observer{}
	var err error
	if o.storageDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "operation_duration_seconds",
		Help:      "Latency of blob store operations, retries included.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})); err != nil {
		return nil, err
	}
	if o.storageErrors, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "operation_errors_total",
		Help:      "Blob store failures by operation and kind.",
	}, []string{"operation", "kind"})); err != nil {
		return nil, err
	}
	if o.storedBytes, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "stored_bytes_total",
		Help:      "Payload bytes acknowledged by the blob store.",
	})); err != nil {
		return nil, err
	}
	if o.parts, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "parts_total",
		Help:      "Per-slot outcomes.",
	}, []string{"slot", "status"})); err != nil {
		return nil, err
	}
	if o.ingests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "submissions_total",
		Help:      "Ingests by overall outcome.",
	}, []string{"overall"})); err != nil {
		return nil, err
	}
	if o.ingestDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "duration_seconds",
		Help:      "Wall time of one ingest from validation to aggregation.",
		Buckets:   prometheus.DefBuckets,
	})); err != nil {
		return nil, err
	}
	return o, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("register metric: %w", err)
	}
	return c, nil
}

// RecordPut implements blobstore.Observer.
func (o *Observer) RecordPut(duration time.Duration, sizeBytes int, err error) {
	if o == nil {
		return
	}
	o.recordStorage("put", duration, err)
	if err == nil {
		o.storedBytes.Add(float64(sizeBytes))
	}
}

// RecordGet implements blobstore.Observer.
func (o *Observer) RecordGet(duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.recordStorage("get", duration, err)
}

func (o *Observer) recordStorage(op string, duration time.Duration, err error) {
	o.storageDuration.WithLabelValues(op).Observe(duration.Seconds())
	if err != nil {
		o.storageErrors.WithLabelValues(op, errorKind(err)).Inc()
	}
}

// RecordPart implements ingest.Observer.
func (o *Observer) RecordPart(slot string, status ingest.Status, _ int64) {
	if o == nil {
		return
	}
	o.parts.WithLabelValues(slot, string(status)).Inc()
}

// RecordIngest implements ingest.Observer.
func (o *Observer) RecordIngest(overall ingest.Overall, duration time.Duration) {
	if o == nil {
		return
	}
	o.ingests.WithLabelValues(string(overall)).Inc()
	o.ingestDuration.Observe(duration.Seconds())
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func errorKind(err error) string {
	kinds := []struct {
		err  error
		name string
	}{
		{blobstore.ErrNotFound, "not_found"},
		{blobstore.ErrTimeout, "timeout"},
		{blobstore.ErrThrottled, "throttled"},
		{blobstore.ErrAuth, "auth"},
		{blobstore.ErrAccessDenied, "access_denied"},
		{blobstore.ErrNetwork, "network"},
		{blobstore.ErrInvalidKey, "invalid_key"},
		{blobstore.ErrUnavailable, "unavailable"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "other"
}

var (
	_ ingest.Observer    = (*Observer)(nil)
	_ blobstore.Observer = (*Observer)(nil)
)
