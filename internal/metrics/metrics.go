// Package metrics exposes work queue and poll activity as Prometheus metrics.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"casework/internal/events"
	"casework/internal/logging"
)

// Collector turns bus events into metrics on its own registry.
type Collector struct {
	registry *prometheus.Registry

	queueDepth    prometheus.Gauge
	tasksTotal    *prometheus.CounterVec
	taskDuration  *prometheus.HistogramVec
	transferBytes *prometheus.CounterVec
	pollNewFiles  *prometheus.GaugeVec
	pollsTotal    prometheus.Counter

	mu       sync.Mutex
	lastDone map[string]int64
}

// New registers the casework metrics plus Go runtime collectors.
func New() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "casework_queue_depth",
			Help: "Tasks waiting or running in the work queue",
		}),
		tasksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "casework_tasks_total",
			Help: "Completed tasks by kind and outcome",
		}, []string{"kind", "outcome"}),
		taskDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "casework_task_duration_seconds",
			Help:    "Task run time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
		}, []string{"kind"}),
		transferBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "casework_transfer_bytes_total",
			Help: "Bytes moved by downloads and uploads",
		}, []string{"mode"}),
		pollNewFiles: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "casework_poll_new_files",
			Help: "New remote root entries seen by the last poll, per case",
		}, []string{"case"}),
		pollsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "casework_polls_total",
			Help: "Completed poll passes",
		}),
		lastDone: make(map[string]int64),
	}
}

// Registry returns the registry backing the collector.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// Attach subscribes the collector to bus and returns the unsubscribe func.
func (c *Collector) Attach(bus *events.Bus) func() {
	return bus.Subscribe(c.Observe)
}

// Observe updates metrics for one event.
func (c *Collector) Observe(e events.Event) {
	switch ev := e.(type) {
	case *events.QueueDepthChanged:
		c.queueDepth.Set(float64(ev.Depth))
	case *events.TaskProgress:
		c.observeProgress(ev)
	case *events.TaskCompleted:
		outcome := "succeeded"
		if ev.Err != nil {
			outcome = "failed"
		}
		c.tasksTotal.WithLabelValues(ev.Kind, outcome).Inc()
		c.taskDuration.WithLabelValues(ev.Kind).Observe(ev.Duration.Seconds())
		c.mu.Lock()
		for key := range c.lastDone {
			if strings.HasPrefix(key, ev.TaskID+"/") {
				delete(c.lastDone, key)
			}
		}
		c.mu.Unlock()
	case *events.PollCompleted:
		c.pollsTotal.Inc()
		for id, r := range ev.Results {
			c.pollNewFiles.WithLabelValues(id).Set(float64(r.NewFileDelta))
		}
	}
}

// observeProgress converts cumulative progress into byte increments.
func (c *Collector) observeProgress(ev *events.TaskProgress) {
	if ev.Mode != events.ModeDownload && ev.Mode != events.ModeUpload {
		return
	}
	key := ev.TaskID + "/" + string(ev.Mode) + "/" + ev.SourcePath
	c.mu.Lock()
	prev, seen := c.lastDone[key]
	if ev.BytesDone < prev || !seen {
		prev = 0
	}
	c.lastDone[key] = ev.BytesDone
	c.mu.Unlock()
	if delta := ev.BytesDone - prev; delta > 0 {
		c.transferBytes.WithLabelValues(string(ev.Mode)).Add(float64(delta))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Serve exposes /metrics on bind until ctx is done.
func (c *Collector) Serve(ctx context.Context, bind string, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	logger.Info("metrics listening", logging.String("bind", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
