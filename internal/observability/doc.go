// Package observability provides the logging, tracing, and metrics
// infrastructure shared by the event bus, the orchestrator, and every
// agent.
//
// # Quick start
//
//	config := observability.DefaultConfig("orchestrator")
//	obs, err := observability.NewObservability(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer obs.Shutdown(context.Background())
//
// This sets up an OTLP gRPC trace exporter, a Prometheus metrics
// exporter, and a slog.Logger that tags every record with the active
// span's trace and span IDs. Below DEBUG, only the observability
// handler is used; at DEBUG, logs are also mirrored to stdout.
//
// TraceManager wraps span creation with attributes for event
// processing, publishing, and task lifecycle. MetricsManager exposes
// counters and histograms for event throughput, processing latency,
// and broker operations, all served on the Prometheus endpoint.
package observability
