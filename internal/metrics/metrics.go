// Package metrics exports follow-up engine statistics to Prometheus.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"followup_backend/internal/events"
	"followup_backend/internal/followups/engine"
	"followup_backend/platform/logger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "followups"

// Recorder collects engine, delivery and HTTP metrics.
type Recorder struct {
	passes        *prometheus.CounterVec
	passDuration  prometheus.Histogram
	leadOutcomes  *prometheus.CounterVec
	scheduled     *prometheus.CounterVec
	failures      *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	lastPassEnded prometheus.Gauge
}

// NewRecorder creates a recorder and registers its metrics with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "passes_total",
			Help:      "Orchestration passes by result",
		}, []string{"result"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of orchestration passes",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		leadOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lead_outcomes_total",
			Help:      "Per-lead pass outcomes",
		}, []string{"outcome"}),
		scheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduled_total",
			Help:      "Follow-ups handed to the dispatcher by style and message source",
		}, []string{"style", "source"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Follow-up failures by stage",
		}, []string{"stage"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		lastPassEnded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_pass_finished_timestamp_seconds",
			Help:      "Unix time the last pass finished",
		}),
	}
	reg.MustRegister(r.passes, r.passDuration, r.leadOutcomes, r.scheduled, r.failures, r.httpDuration, r.lastPassEnded)
	return r
}

// ObservePass implements engine.Observer.
func (r *Recorder) ObservePass(report engine.PassReport) {
	result := "completed"
	if report.Cancelled {
		result = "cancelled"
	}
	r.passes.WithLabelValues(result).Inc()
	if !report.FinishedAt.IsZero() {
		r.passDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
		r.lastPassEnded.Set(float64(report.FinishedAt.Unix()))
	}
	for _, res := range report.Results {
		r.leadOutcomes.WithLabelValues(string(res.Outcome)).Inc()
	}
}

// ObserveHTTP records one HTTP request.
func (r *Recorder) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	r.httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// RegisterHandlers subscribes the recorder to follow-up events.
func (r *Recorder) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.FollowupScheduled{}.EventName(), r)
	bus.Subscribe(events.FollowupDeliveryFailed{}.EventName(), r)
}

// Handle routes events to counters.
func (r *Recorder) Handle(_ context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.FollowupScheduled:
		r.scheduled.WithLabelValues(e.Style, e.Source).Inc()
	case events.FollowupDeliveryFailed:
		r.failures.WithLabelValues(e.Stage).Inc()
	}
	return nil
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

var _ engine.Observer = (*Recorder)(nil)

var activeRulesDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "", "active_rules"),
	"Active follow-up rules by trigger kind",
	[]string{"trigger_kind"},
	nil,
)

// ActiveRuleCounter reports active rule totals per trigger kind.
type ActiveRuleCounter interface {
	ActiveRuleCounts(ctx context.Context) (map[string]int, error)
}

// ActiveRulesCollector reads active rule counts from the database on each scrape.
type ActiveRulesCollector struct {
	counter ActiveRuleCounter
	log     *logger.Logger
	timeout time.Duration
}

// NewActiveRulesCollector creates the collector.
func NewActiveRulesCollector(counter ActiveRuleCounter, log *logger.Logger) *ActiveRulesCollector {
	return &ActiveRulesCollector{counter: counter, log: log, timeout: 5 * time.Second}
}

// Describe sends the metric descriptor to the channel.
func (c *ActiveRulesCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- activeRulesDesc
}

// Collect queries the rule counts and emits them as gauges.
func (c *ActiveRulesCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	counts, err := c.counter.ActiveRuleCounts(ctx)
	if err != nil {
		c.log.Error("failed to collect active rule metrics", "error", err)
		return
	}
	for kind, n := range counts {
		ch <- prometheus.MustNewConstMetric(activeRulesDesc, prometheus.GaugeValue, float64(n), kind)
	}
}
