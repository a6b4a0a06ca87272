package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector collects and exposes upload metrics
type Collector struct {
	registry        *prometheus.Registry
	uploadsTotal    *prometheus.CounterVec
	bytesTotal      prometheus.Counter
	tasksTotal      *prometheus.CounterVec
	inflightUploads prometheus.Gauge
	duration        prometheus.Histogram
}

// New creates a new metrics collector
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		uploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upload_files_total",
				Help: "Total number of file uploads by outcome",
			},
			[]string{"status"},
		),
		bytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "upload_bytes_total",
				Help: "Total bytes uploaded",
			},
		),
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "upload_tasks_total",
				Help: "Total number of upload tasks by outcome",
			},
			[]string{"status"},
		),
		inflightUploads: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "upload_inflight_files",
				Help: "Number of files currently uploading",
			},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "upload_file_duration_seconds",
				Help:    "Time taken to upload a file",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	c.registry.MustRegister(c.uploadsTotal)
	c.registry.MustRegister(c.bytesTotal)
	c.registry.MustRegister(c.tasksTotal)
	c.registry.MustRegister(c.inflightUploads)
	c.registry.MustRegister(c.duration)

	return c
}

// IncSuccess records a successful file upload
func (c *Collector) IncSuccess(bytes int64) {
	c.uploadsTotal.WithLabelValues("success").Inc()
	c.bytesTotal.Add(float64(bytes))
}

// IncFailed records a failed file upload
func (c *Collector) IncFailed() {
	c.uploadsTotal.WithLabelValues("failed").Inc()
}

// IncTaskSuccess records a successful task
func (c *Collector) IncTaskSuccess() {
	c.tasksTotal.WithLabelValues("success").Inc()
}

// IncTaskFailed records a failed task
func (c *Collector) IncTaskFailed() {
	c.tasksTotal.WithLabelValues("failed").Inc()
}

// IncTaskSkipped records a disabled task that was skipped
func (c *Collector) IncTaskSkipped() {
	c.tasksTotal.WithLabelValues("skipped").Inc()
}

// UploadStarted marks a file upload as in flight
func (c *Collector) UploadStarted() {
	c.inflightUploads.Inc()
}

// UploadFinished marks a file upload as no longer in flight
func (c *Collector) UploadFinished() {
	c.inflightUploads.Dec()
}

// ObserveDuration observes one file upload duration
func (c *Collector) ObserveDuration(duration time.Duration) {
	c.duration.Observe(duration.Seconds())
}

// StartServer starts the metrics HTTP server
func (c *Collector) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
