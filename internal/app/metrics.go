package app

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sheettracker/api/internal/sheet"
)

// Metrics owns a private registry so several servers can coexist in tests.
type Metrics struct {
	registry  *prometheus.Registry
	mutations *prometheus.CounterVec
	requests  *prometheus.HistogramVec
	questions *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sheet",
			Name:      "mutations_total",
			Help:      "Sheet mutations by operation and result.",
		}, []string{"op", "result"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sheet",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status"}),
		questions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "sheet",
			Name:      "questions",
			Help:      "Questions in the committed sheet.",
		}, []string{"state"}),
	}
	m.registry.MustRegister(
		m.mutations,
		m.requests,
		m.questions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observeMutation(op sheet.Op, err error) {
	m.mutations.WithLabelValues(string(op), resultLabel(err)).Inc()
}

func (m *Metrics) observeRequest(method string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// Observe refreshes the question gauges from sh. It has the sheet.CommitHook shape.
func (m *Metrics) Observe(_ sheet.Mutation, sh sheet.Sheet) {
	stats := sheet.ComputeStats(sh)
	m.questions.WithLabelValues("total").Set(float64(stats.Total))
	m.questions.WithLabelValues("solved").Set(float64(stats.Solved))
}
