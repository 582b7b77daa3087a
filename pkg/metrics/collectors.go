package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors holds every Prometheus collector the daemon records against.
// A nil *Collectors is valid everywhere: every method is a no-op on a nil
// receiver, so callers that don't wire metrics pay no overhead beyond one
// nil check.
type Collectors struct {
	objectStoreSize      *prometheus.GaugeVec
	dispatcherQueueDepth *prometheus.GaugeVec
	dispatchDuration     *prometheus.HistogramVec
	chunkBytes           *prometheus.CounterVec
	fileTransferRequests *prometheus.CounterVec
	fileTransferDuration *prometheus.HistogramVec
}

// NewCollectors registers this daemon's collectors against the active
// registry and returns them. Returns nil if InitRegistry has not been
// called, so the result can be handed to constructors unconditionally.
func NewCollectors() *Collectors {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &Collectors{
		objectStoreSize: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fabric_object_store_size",
				Help: "Number of managed objects currently held by a connection's object store.",
			},
			[]string{"connection"},
		),
		dispatcherQueueDepth: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fabric_dispatcher_queue_depth",
				Help: "Calls currently queued or in flight in a provider's dispatcher.",
			},
			[]string{"provider_id", "mode"},
		),
		dispatchDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fabric_dispatch_duration_milliseconds",
				Help:    "Duration of a dispatched provider call, from Dispatch to completion.",
				Buckets: []float64{0.5, 1, 5, 10, 50, 100, 500, 1000, 5000},
			},
			[]string{"provider_id", "mode"},
		),
		chunkBytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fabric_filetransfer_chunk_bytes_total",
				Help: "Bytes moved through the file-transfer engine's chunked read/write loop.",
			},
			[]string{"direction"}, // "read", "write"
		),
		fileTransferRequests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fabric_filetransfer_requests_total",
				Help: "Completed file-transfer HTTP requests by method and status.",
			},
			[]string{"method", "status"},
		),
		fileTransferDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fabric_filetransfer_request_duration_milliseconds",
				Help:    "Duration of a file-transfer HTTP request.",
				Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 15000},
			},
			[]string{"method"},
		),
	}
}

// SetObjectStoreSize records the current object count for one connection.
func (c *Collectors) SetObjectStoreSize(connection string, count int) {
	if c == nil {
		return
	}
	c.objectStoreSize.WithLabelValues(connection).Set(float64(count))
}

// SetDispatcherQueueDepth records a dispatcher's current backlog.
func (c *Collectors) SetDispatcherQueueDepth(providerID, mode string, depth int) {
	if c == nil {
		return
	}
	c.dispatcherQueueDepth.WithLabelValues(providerID, mode).Set(float64(depth))
}

// ObserveDispatch records how long a dispatched call took from Dispatch to
// completion.
func (c *Collectors) ObserveDispatch(providerID, mode string, d time.Duration) {
	if c == nil {
		return
	}
	c.dispatchDuration.WithLabelValues(providerID, mode).Observe(float64(d.Milliseconds()))
}

// RecordChunkBytes records n bytes moved in direction ("read" or "write").
func (c *Collectors) RecordChunkBytes(direction string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.chunkBytes.WithLabelValues(direction).Add(float64(n))
}

// RecordFileTransferRequest records one completed HTTP request.
func (c *Collectors) RecordFileTransferRequest(method, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.fileTransferRequests.WithLabelValues(method, status).Inc()
	c.fileTransferDuration.WithLabelValues(method).Observe(float64(d.Milliseconds()))
}
