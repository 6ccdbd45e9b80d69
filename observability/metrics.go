package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	taskMarketOnce sync.Once
	taskMarketReg  *TaskMarketMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "taskmarket",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON RPC requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "taskmarket",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON RPC errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "taskmarket",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "taskmarket",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of RPC requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of an RPC request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" or
// "quota_exceeded" so dashboards and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// TaskMarketMetrics tracks the task escrow lifecycle: every transition
// event the native modules emit, settlement volume by path, and the
// operator-controlled pause gauge, so the engine's own event stream doubles
// as the source of the dashboard.
type TaskMarketMetrics struct {
	events          *prometheus.CounterVec
	settlements     *prometheus.CounterVec
	custodyVolume   *prometheus.CounterVec
	disputesOpened  prometheus.Counter
	disputesResolved *prometheus.CounterVec
	pauseEngaged    *prometheus.GaugeVec
}

// TaskMarket returns the lazily-initialised task market metrics registry.
func TaskMarket() *TaskMarketMetrics {
	taskMarketOnce.Do(func() {
		taskMarketReg = &TaskMarketMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "taskmarket",
				Subsystem: "core",
				Name:      "events_total",
				Help:      "Count of native module events segmented by event type.",
			}, []string{"event"}),
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "taskmarket",
				Subsystem: "core",
				Name:      "settlements_total",
				Help:      "Count of terminal task settlements segmented by settlement path.",
			}, []string{"path"}),
			custodyVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "taskmarket",
				Subsystem: "core",
				Name:      "custody_volume_total",
				Help:      "Cumulative token volume moved into or out of market custody, by token and direction.",
			}, []string{"token", "direction"}),
			disputesOpened: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "taskmarket",
				Subsystem: "dispute",
				Name:      "opened_total",
				Help:      "Count of disputes opened by buyers within the challenge window.",
			}),
			disputesResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "taskmarket",
				Subsystem: "dispute",
				Name:      "resolved_total",
				Help:      "Count of disputes resolved segmented by outcome.",
			}, []string{"outcome"}),
			pauseEngaged: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "taskmarket",
				Subsystem: "core",
				Name:      "module_paused",
				Help:      "Indicates whether a native module's mutating calls are paused (1) or not (0).",
			}, []string{"module"}),
		}
		prometheus.MustRegister(
			taskMarketReg.events,
			taskMarketReg.settlements,
			taskMarketReg.custodyVolume,
			taskMarketReg.disputesOpened,
			taskMarketReg.disputesResolved,
			taskMarketReg.pauseEngaged,
		)
	})
	return taskMarketReg
}

// RecordEvent increments the events-by-type counter. eventType is the
// dotted event name each module's NewXEvent constructors assign, e.g.
// "market.task.settled_v2".
func (m *TaskMarketMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	if eventType == "" {
		eventType = "unknown"
	}
	m.events.WithLabelValues(eventType).Inc()
}

// RecordSettlement increments the settlement counter for path.
func (m *TaskMarketMetrics) RecordSettlement(path string) {
	if m == nil {
		return
	}
	if path == "" {
		path = "unknown"
	}
	m.settlements.WithLabelValues(path).Inc()
}

// RecordCustodyMovement adds amount to the cumulative custody volume for
// token in the given direction ("in" or "out").
func (m *TaskMarketMetrics) RecordCustodyMovement(token, direction string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.custodyVolume.WithLabelValues(labelAsset(token), direction).Add(bigToFloat(amount))
}

// RecordDisputeOpened increments the disputes-opened counter.
func (m *TaskMarketMetrics) RecordDisputeOpened() {
	if m == nil {
		return
	}
	m.disputesOpened.Inc()
}

// RecordDisputeResolved increments the disputes-resolved counter for outcome.
func (m *TaskMarketMetrics) RecordDisputeResolved(outcome string) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.disputesResolved.WithLabelValues(outcome).Inc()
}

// SetPauseEngaged toggles the pause gauge for module.
func (m *TaskMarketMetrics) SetPauseEngaged(module string, engaged bool) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	value := 0.0
	if engaged {
		value = 1.0
	}
	m.pauseEngaged.WithLabelValues(module).Set(value)
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
