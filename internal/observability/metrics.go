package observability

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// opLatencyMaxAge bounds how long an observation influences the quantiles
// served by /v1/perf/operations.
const opLatencyMaxAge = 10 * time.Minute

// Metrics groups all Prometheus instruments used by the service. Each
// instance owns its registry so servers built in tests do not collide.
type Metrics struct {
	registry  *prometheus.Registry
	latencyFQ string

	Operations   *prometheus.CounterVec
	OpLatency    *prometheus.SummaryVec
	Entities     *prometheus.GaugeVec
	Subscribers  prometheus.Gauge
	WSMessages   *prometheus.CounterVec
	StoreSaves   *prometheus.CounterVec
	StoreLatency prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	return &Metrics{
		registry:  reg,
		latencyFQ: prometheus.BuildFQName(namespace, "", "operation_latency_ms"),
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Tracker operations by name and result.",
		}, []string{"op", "result"}),
		OpLatency: factory.NewSummaryVec(prometheus.SummaryOpts{
			Namespace:  namespace,
			Name:       "operation_latency_ms",
			Help:       "Tracker operation latency in milliseconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.95: 0.01, 0.99: 0.001},
			MaxAge:     opLatencyMaxAge,
			AgeBuckets: 5,
		}, []string{"op"}),
		Entities: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "entities",
			Help:      "Stored entities by kind.",
		}, []string{"kind"}),
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "event_subscribers",
			Help:      "Number of connected change stream clients.",
		}),
		WSMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		StoreSaves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_saves_total",
			Help:      "Snapshot saves by backend and result.",
		}, []string{"backend", "result"}),
		StoreLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_save_latency_ms",
			Help:      "Snapshot save latency in milliseconds.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
	}
}

// ObserveOperation counts one operation and records its latency.
func (m *Metrics) ObserveOperation(op, result string, d time.Duration) {
	if m == nil || op == "" {
		return
	}
	m.Operations.WithLabelValues(op, result).Inc()
	m.OpLatency.WithLabelValues(op).Observe(float64(d.Microseconds()) / 1000)
}

func (m *Metrics) ObserveStoreSave(backend string, err error, d time.Duration) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StoreSaves.WithLabelValues(backend, result).Inc()
	m.StoreLatency.Observe(float64(d.Microseconds()) / 1000)
}

func (m *Metrics) SetEntityCounts(counts map[string]int) {
	if m == nil {
		return
	}
	for kind, n := range counts {
		m.Entities.WithLabelValues(kind).Set(float64(n))
	}
}

type OperationStats struct {
	Op          string  `json:"op"`
	Samples     uint64  `json:"samples"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type OperationSnapshot struct {
	GeneratedAt   time.Time        `json:"generated_at"`
	WindowSeconds float64          `json:"window_seconds"`
	Operations    []OperationStats `json:"operations"`
}

// SnapshotOperations reads the latency summary back from the registry.
// Operations come out sorted by name.
func (m *Metrics) SnapshotOperations() OperationSnapshot {
	snap := OperationSnapshot{
		GeneratedAt:   time.Now().UTC(),
		WindowSeconds: opLatencyMaxAge.Seconds(),
		Operations:    []OperationStats{},
	}
	if m == nil {
		return snap
	}
	families, _ := m.registry.Gather()
	for _, mf := range families {
		if mf.GetName() != m.latencyFQ {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if stats, ok := operationStats(metric); ok {
				snap.Operations = append(snap.Operations, stats)
			}
		}
	}
	return snap
}

func operationStats(metric *dto.Metric) (OperationStats, bool) {
	sum := metric.GetSummary()
	if sum == nil || sum.GetSampleCount() == 0 {
		return OperationStats{}, false
	}
	var stats OperationStats
	for _, lp := range metric.GetLabel() {
		if lp.GetName() == "op" {
			stats.Op = lp.GetValue()
		}
	}
	stats.Samples = sum.GetSampleCount()
	stats.AvgMS = roundMS(sum.GetSampleSum() / float64(stats.Samples))
	for _, q := range sum.GetQuantile() {
		switch q.GetQuantile() {
		case 0.5:
			stats.P50MS = roundMS(q.GetValue())
		case 0.95:
			stats.P95MS = roundMS(q.GetValue())
		case 0.99:
			stats.P99MS = roundMS(q.GetValue())
		}
	}
	stats.TargetP95MS = opTargetP95MS(stats.Op)
	return stats, true
}

// ResetOperations drops every per-operation latency series.
func (m *Metrics) ResetOperations() {
	if m == nil {
		return
	}
	m.OpLatency.Reset()
}

// roundMS keeps two decimals. Quantiles with no samples left in the window
// come back as NaN and are reported as zero.
func roundMS(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return math.Round(v*100) / 100
}

// opTargetP95MS is the latency budget for operation families. Mutations
// include a snapshot save when a store is configured.
func opTargetP95MS(op string) float64 {
	switch {
	case strings.HasPrefix(op, "get_"), strings.HasPrefix(op, "list_"), op == "history", op == "prioritized":
		return 5
	case strings.HasPrefix(op, "add_"), strings.HasPrefix(op, "update_"), strings.HasPrefix(op, "remove_"):
		return 50
	default:
		return 0
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
