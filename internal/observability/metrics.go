package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notifier"

// Metrics holds the Prometheus collectors of the api and worker processes.
// Every method is a no-op on a nil receiver so components may run unmetered.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	notificationsSentTotal   *prometheus.CounterVec
	notificationsFailedTotal *prometheus.CounterVec
	deadLettersTotal         *prometheus.CounterVec
	retryScheduledTotal      *prometheus.CounterVec
	discardedTotal           *prometheus.CounterVec
	requeuedTotal            *prometheus.CounterVec
	workerInflight           *prometheus.GaugeVec

	providerCallsTotal   *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec
}

func counter(name, help string, labels ...string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
}

func histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets}, labels)
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		httpRequestsTotal: counter("http_requests_total",
			"HTTP requests processed by method, path and status.", "method", "path", "status"),
		httpRequestDuration: histogram("http_request_duration_seconds",
			"HTTP request duration in seconds by method and path.", prometheus.DefBuckets, "method", "path"),

		notificationsSentTotal: counter("notifications_sent_total",
			"Notifications that reached the sent state.", "channel"),
		notificationsFailedTotal: counter("notifications_failed_total",
			"Notifications that reached the failed state, by failure kind.", "channel", "kind"),
		deadLettersTotal: counter("dead_letters_total",
			"Dead-letter entries recorded, by failure kind.", "channel", "kind"),
		retryScheduledTotal: counter("retry_scheduled_total",
			"Failed attempts re-enqueued with a backoff delay.", "channel"),
		discardedTotal: counter("work_discarded_total",
			"Units of work dropped without a provider call.", "channel", "reason"),
		requeuedTotal: counter("lease_requeued_total",
			"Stale notifications re-published by the reaper.", "channel"),
		workerInflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_inflight",
			Help:      "Notifications currently being dispatched, by channel.",
		}, []string{"channel"}),

		providerCallsTotal: counter("provider_calls_total",
			"Provider invocations by adapter and outcome.", "channel", "provider", "outcome"),
		providerCallDuration: histogram("provider_call_duration_seconds",
			"Provider invocation latency in seconds.", prometheus.ExponentialBuckets(0.01, 2, 12), "channel", "provider"),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.notificationsSentTotal,
		m.notificationsFailedTotal,
		m.deadLettersTotal,
		m.retryScheduledTotal,
		m.discardedTotal,
		m.requeuedTotal,
		m.workerInflight,
		m.providerCallsTotal,
		m.providerCallDuration,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncNotificationSent(channel string) {
	if m == nil {
		return
	}
	m.notificationsSentTotal.WithLabelValues(normalizeChannel(channel)).Inc()
}

func (m *Metrics) IncNotificationFailed(channel string, kind string) {
	if m == nil {
		return
	}
	m.notificationsFailedTotal.WithLabelValues(normalizeChannel(channel), normalizeLabel(kind)).Inc()
}

func (m *Metrics) IncDeadLetter(channel string, kind string) {
	if m == nil {
		return
	}
	m.deadLettersTotal.WithLabelValues(normalizeChannel(channel), normalizeLabel(kind)).Inc()
}

// IncDiscarded counts units of work dropped because another handler already
// owns or finished the notification.
func (m *Metrics) IncDiscarded(channel string, reason string) {
	if m == nil {
		return
	}
	m.discardedTotal.WithLabelValues(normalizeChannel(channel), normalizeLabel(reason)).Inc()
}

func (m *Metrics) IncLeaseRequeued(channel string) {
	if m == nil {
		return
	}
	m.requeuedTotal.WithLabelValues(normalizeChannel(channel)).Inc()
}

// ObserveProviderCall records one adapter invocation. outcome is "sent" or
// the failure kind of the returned error.
func (m *Metrics) ObserveProviderCall(channel, provider, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	channel, provider = normalizeChannel(channel), normalizeLabel(provider)
	m.providerCallsTotal.WithLabelValues(channel, provider, normalizeLabel(outcome)).Inc()
	m.providerCallDuration.WithLabelValues(channel, provider).Observe(max(duration.Seconds(), 0))
}

func (m *Metrics) IncWorkerInFlight(channel string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeChannel(channel)).Inc()
}

func (m *Metrics) DecWorkerInFlight(channel string) {
	if m == nil {
		return
	}
	m.workerInflight.WithLabelValues(normalizeChannel(channel)).Dec()
}

func (m *Metrics) IncRetryScheduled(channel string) {
	if m == nil {
		return
	}
	m.retryScheduledTotal.WithLabelValues(normalizeChannel(channel)).Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeChannel(channel string) string {
	return normalizeLabel(channel)
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
