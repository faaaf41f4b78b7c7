package metricsvc

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "prsonline"

type Metrics struct {
	registry *prometheus.Registry

	httpRequests      *prometheus.CounterVec
	httpLatency       *prometheus.HistogramVec
	noticeTransitions *prometheus.CounterVec
	tokenEvents       *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests."},
			[]string{"route", "method", "status"},
		),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		noticeTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "notice_transitions_total", Help: "Upcoming review notice workflow transitions."},
			[]string{"action"}, // generate|toggle_reviewed|release|approve|update|schedule
		),
		tokenEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "token_store_events_total", Help: "Token store hits/misses/sets/dels."},
			[]string{"store", "event"},
		),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests, m.httpLatency, m.noticeTransitions, m.tokenEvents,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(route, method string, status int, dur time.Duration) {
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func (m *Metrics) ObserveNoticeTransition(action string, count int) {
	m.noticeTransitions.WithLabelValues(action).Add(float64(count))
}

func (m *Metrics) ObserveTokenEvent(store, event string) { // event: hit|miss|set|del
	m.tokenEvents.WithLabelValues(store, event).Inc()
}
