// Package config provides centralized configuration management for the
// orchestration runtime through environment variables with sensible
// defaults.
//
// # Quick start
//
//	cfg := config.Load()
//	fmt.Println(cfg.StatePath())
//	fmt.Println(cfg.GetPrometheusURL())
//
// # Configuration fields
//
// **Project**: MAF_PROJECT_ROOT, MAF_PROJECT_NAME
//
// **Agents**: MAF_ENABLED_AGENTS (comma-separated subset of the role set)
//
// **Model provider**: MAF_MODEL_PROVIDER ("mock" or "vertexai"), MAF_MODEL_NAME
//
// **Event bus**: MAF_EVENT_BUS_TYPE ("inmemory" or "brokered"),
// MAF_BROKER_ADDR, MAF_CONSUMER_GROUP, MAF_WORKER_POOL_SIZE, MAF_HISTORY_SIZE
//
// **Orchestrator policy**: MAF_STALL_TIMEOUT, MAF_MAX_RETRIES,
// MAF_CLEANUP_RETENTION, MAF_HEALTH_INTERVAL, MAF_RECOVERY_INTERVAL,
// MAF_CLEANUP_INTERVAL, MAF_HEARTBEAT_INTERVAL
//
// **Observability**: JAEGER_ENDPOINT, PROMETHEUS_PORT, GRAFANA_PORT,
// ALERTMANAGER_PORT, OTLP_GRPC_PORT, OTLP_HTTP_PORT, SERVICE_NAME,
// SERVICE_VERSION, ENVIRONMENT, LOG_LEVEL
//
// **Testing**: TEST_MODE, when true, makes mafd use the deterministic
// mock LLM client (and so a deterministic task decomposer) instead of a
// real provider. The artifact sink still writes to disk.
//
// All fields have defaults, so the runtime starts with zero environment
// configuration. AppConfig is a read-only snapshot of the environment
// taken at Load() and is safe to read from multiple goroutines
// afterward.
package config
