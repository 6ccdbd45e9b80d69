package observability

import "taskmarket/core/events"

// MetricsEmitter adapts the core events.Emitter surface each native module
// accepts into Prometheus counters. It never inspects event payloads beyond
// the EventType() string every module's internal eventWrapper exposes, so
// it stays decoupled from each module's own attribute shapes.
type MetricsEmitter struct {
	metrics *TaskMarketMetrics
}

// NewMetricsEmitter constructs an emitter bound to the supplied metrics
// registry. Passing nil is safe; RecordEvent becomes a no-op.
func NewMetricsEmitter(metrics *TaskMarketMetrics) *MetricsEmitter {
	return &MetricsEmitter{metrics: metrics}
}

// Emit implements events.Emitter.
func (e *MetricsEmitter) Emit(evt events.Event) {
	if e == nil || evt == nil {
		return
	}
	eventType := evt.EventType()
	e.metrics.RecordEvent(eventType)
	switch eventType {
	case "dispute.opened":
		e.metrics.RecordDisputeOpened()
	case "dispute.resolved":
		// The outcome label isn't visible through EventType(); callers that
		// need outcome-level granularity should also call
		// RecordDisputeResolved directly once they have the Outcome value.
	}
}
