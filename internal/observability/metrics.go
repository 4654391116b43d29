package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsManager owns every OTel instrument exported on the
// Prometheus endpoint: generic event-bus throughput/latency, the
// Redis broker's own publish/consume/connection counters, and the
// orchestrator's task/feature lifecycle counters.
type MetricsManager struct {
	meter metric.Meter

	// Event bus metrics (both backends)
	eventsProcessedTotal    metric.Int64Counter
	eventProcessingDuration metric.Float64Histogram
	eventErrorsTotal        metric.Int64Counter
	eventsPublishedTotal    metric.Int64Counter

	// Brokered backend metrics (internal/eventbus/redis.go)
	brokerPublishDuration  metric.Float64Histogram
	brokerConsumeDuration  metric.Float64Histogram
	brokerConnectionErrors metric.Int64Counter

	// Orchestrator task/feature lifecycle metrics (internal/orchestrator)
	tasksInProgress              metric.Int64UpDownCounter
	tasksCompletedTotal          metric.Int64Counter
	tasksFailedTotal             metric.Int64Counter
	tasksRetriedTotal            metric.Int64Counter
	tasksPermanentlyFailedTotal  metric.Int64Counter
	tasksRecoveredTotal          metric.Int64Counter
	featuresCompletedTotal       metric.Int64Counter
	featuresBlockedTotal         metric.Int64Counter
}

func NewMetricsManager(meter metric.Meter) (*MetricsManager, error) {
	mm := &MetricsManager{meter: meter}

	var err error

	mm.eventsProcessedTotal, err = meter.Int64Counter(
		"eventbus_events_processed_total",
		metric.WithDescription("Total number of events dispatched to a handler"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.eventProcessingDuration, err = meter.Float64Histogram(
		"eventbus_event_processing_duration_seconds",
		metric.WithDescription("Time spent running a single event handler"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mm.eventErrorsTotal, err = meter.Int64Counter(
		"eventbus_event_errors_total",
		metric.WithDescription("Total number of handler panics recovered during dispatch"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.eventsPublishedTotal, err = meter.Int64Counter(
		"eventbus_events_published_total",
		metric.WithDescription("Total number of events published"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.brokerPublishDuration, err = meter.Float64Histogram(
		"eventbus_broker_publish_duration_seconds",
		metric.WithDescription("Redis Pub/Sub publish duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mm.brokerConsumeDuration, err = meter.Float64Histogram(
		"eventbus_broker_consume_duration_seconds",
		metric.WithDescription("Redis Pub/Sub consume-to-dispatch duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mm.brokerConnectionErrors, err = meter.Int64Counter(
		"eventbus_broker_connection_errors_total",
		metric.WithDescription("Total number of Redis connection errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.tasksInProgress, err = meter.Int64UpDownCounter(
		"orchestrator_tasks_in_progress",
		metric.WithDescription("Number of tasks currently InProgress"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.tasksCompletedTotal, err = meter.Int64Counter(
		"orchestrator_tasks_completed_total",
		metric.WithDescription("Total number of tasks that reached Completed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.tasksFailedTotal, err = meter.Int64Counter(
		"orchestrator_tasks_failed_total",
		metric.WithDescription("Total number of task attempts that reached Failed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.tasksRetriedTotal, err = meter.Int64Counter(
		"orchestrator_tasks_retried_total",
		metric.WithDescription("Total number of TaskRetry events published"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.tasksPermanentlyFailedTotal, err = meter.Int64Counter(
		"orchestrator_tasks_permanently_failed_total",
		metric.WithDescription("Total number of tasks that exhausted their retry budget"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.tasksRecoveredTotal, err = meter.Int64Counter(
		"orchestrator_tasks_recovered_total",
		metric.WithDescription("Total number of stalled tasks recovered by the maintenance loop"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.featuresCompletedTotal, err = meter.Int64Counter(
		"orchestrator_features_completed_total",
		metric.WithDescription("Total number of features that reached Completed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	mm.featuresBlockedTotal, err = meter.Int64Counter(
		"orchestrator_features_blocked_total",
		metric.WithDescription("Total number of features that reached Blocked"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return mm, nil
}

// Event bus metrics methods

func (mm *MetricsManager) IncrementEventsProcessed(ctx context.Context, eventType, source string, success bool) {
	mm.eventsProcessedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("source", source),
		attribute.Bool("success", success),
	))
}

func (mm *MetricsManager) RecordEventProcessingDuration(ctx context.Context, eventType, source string, duration time.Duration) {
	mm.eventProcessingDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("source", source),
	))
}

func (mm *MetricsManager) IncrementEventErrors(ctx context.Context, eventType, source, errorType string) {
	mm.eventErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("source", source),
		attribute.String("error", errorType),
	))
}

func (mm *MetricsManager) IncrementEventsPublished(ctx context.Context, eventType, destination string) {
	mm.eventsPublishedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_type", eventType),
		attribute.String("destination", destination),
	))
}

// Brokered-backend metrics methods

func (mm *MetricsManager) RecordBrokerPublishDuration(ctx context.Context, topic string, duration time.Duration) {
	mm.brokerPublishDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("topic", topic),
	))
}

func (mm *MetricsManager) RecordBrokerConsumeDuration(ctx context.Context, topic string, duration time.Duration) {
	mm.brokerConsumeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("topic", topic),
	))
}

func (mm *MetricsManager) IncrementBrokerConnectionErrors(ctx context.Context) {
	mm.brokerConnectionErrors.Add(ctx, 1)
}

// Orchestrator metrics methods

// AdjustTasksInProgress changes the InProgress gauge by delta (+1 on
// Pending->InProgress, -1 on any transition out of InProgress).
func (mm *MetricsManager) AdjustTasksInProgress(ctx context.Context, delta int64) {
	mm.tasksInProgress.Add(ctx, delta)
}

func (mm *MetricsManager) IncrementTasksCompleted(ctx context.Context, agent string) {
	mm.tasksCompletedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agent)))
}

func (mm *MetricsManager) IncrementTasksFailed(ctx context.Context, agent string) {
	mm.tasksFailedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agent)))
}

func (mm *MetricsManager) IncrementTasksRetried(ctx context.Context, agent string) {
	mm.tasksRetriedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agent)))
}

func (mm *MetricsManager) IncrementTasksPermanentlyFailed(ctx context.Context, agent string) {
	mm.tasksPermanentlyFailedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agent)))
}

func (mm *MetricsManager) IncrementTasksRecovered(ctx context.Context, count int64) {
	if count <= 0 {
		return
	}
	mm.tasksRecoveredTotal.Add(ctx, count)
}

func (mm *MetricsManager) IncrementFeaturesCompleted(ctx context.Context) {
	mm.featuresCompletedTotal.Add(ctx, 1)
}

func (mm *MetricsManager) IncrementFeaturesBlocked(ctx context.Context) {
	mm.featuresBlockedTotal.Add(ctx, 1)
}
