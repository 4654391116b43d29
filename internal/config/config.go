package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig holds all application configuration for the orchestration
// runtime, loaded from environment variables with sensible defaults.
type AppConfig struct {
	// Project
	ProjectRoot string
	ProjectName string

	// Agents
	EnabledAgents []string

	// Model provider
	ModelProvider string
	ModelName     string

	// Event bus
	EventBusType     string // "inmemory" or "brokered"
	BrokerAddr       string
	ConsumerGroup    string
	WorkerPoolSize   int
	HistorySize      int

	// Orchestrator policy
	StallTimeout      time.Duration
	LongRunningFactor float64 // fraction of StallTimeout marking "long running"
	MaxRetries        int
	CleanupRetention  time.Duration
	HealthInterval    time.Duration
	RecoveryInterval  time.Duration
	CleanupInterval   time.Duration
	HeartbeatInterval time.Duration

	// Observability
	JaegerEndpoint   string
	PrometheusPort   string
	GrafanaPort      string
	AlertManagerPort string

	// Health check ports
	OrchestratorHealthPort string
	AgentHealthPort        string

	// OpenTelemetry Collector Ports
	OTLPGRPCPort string
	OTLPHTTPPort string

	// Service Configuration
	ServiceName    string
	ServiceVersion string
	Environment    string
	LogLevel       string

	// TestMode makes cmd/mafd use the deterministic mock LLM client
	// instead of a real provider; the decomposer, which calls that
	// client, follows suit. The artifact sink is unaffected and writes
	// to disk in every mode.
	TestMode bool
}

// defaultEnabledAgents is the canonical role set (spec §4.7's
// available_agents list).
var defaultEnabledAgents = []string{
	"frontend_agent", "backend_agent", "db_agent", "devops_agent",
	"qa_agent", "docs_agent", "security_agent", "ux_ui_agent",
}

// Load loads configuration from environment variables with defaults.
func Load() *AppConfig {
	return &AppConfig{
		ProjectRoot: getEnv("MAF_PROJECT_ROOT", "."),
		ProjectName: getEnv("MAF_PROJECT_NAME", "maf-project"),

		EnabledAgents: getEnvAsList("MAF_ENABLED_AGENTS", defaultEnabledAgents),

		ModelProvider: getEnv("MAF_MODEL_PROVIDER", "mock"),
		ModelName:     getEnv("MAF_MODEL_NAME", "mock-model"),

		EventBusType:   getEnv("MAF_EVENT_BUS_TYPE", "inmemory"),
		BrokerAddr:     getEnv("MAF_BROKER_ADDR", "localhost:6379"),
		ConsumerGroup:  getEnv("MAF_CONSUMER_GROUP", "maf-runtime"),
		WorkerPoolSize: getEnvAsInt("MAF_WORKER_POOL_SIZE", 10),
		HistorySize:    getEnvAsInt("MAF_HISTORY_SIZE", 1000),

		StallTimeout:      getEnvAsDuration("MAF_STALL_TIMEOUT", 30*time.Minute),
		LongRunningFactor: 0.5,
		MaxRetries:        getEnvAsInt("MAF_MAX_RETRIES", 3),
		CleanupRetention:  getEnvAsDuration("MAF_CLEANUP_RETENTION", 7*24*time.Hour),
		HealthInterval:    getEnvAsDuration("MAF_HEALTH_INTERVAL", 5*time.Minute),
		RecoveryInterval:  getEnvAsDuration("MAF_RECOVERY_INTERVAL", 10*time.Minute),
		CleanupInterval:   getEnvAsDuration("MAF_CLEANUP_INTERVAL", 24*time.Hour),
		HeartbeatInterval: getEnvAsDuration("MAF_HEARTBEAT_INTERVAL", 5*time.Minute),

		JaegerEndpoint:   getEnv("JAEGER_ENDPOINT", "127.0.0.1:4317"),
		PrometheusPort:   getEnv("PROMETHEUS_PORT", "9090"),
		GrafanaPort:      getEnv("GRAFANA_PORT", "3333"),
		AlertManagerPort: getEnv("ALERTMANAGER_PORT", "9093"),

		OrchestratorHealthPort: getEnv("MAF_ORCHESTRATOR_HEALTH_PORT", "8080"),
		AgentHealthPort:        getEnv("MAF_AGENT_HEALTH_PORT", "8081"),

		OTLPGRPCPort: getEnv("OTLP_GRPC_PORT", "4320"),
		OTLPHTTPPort: getEnv("OTLP_HTTP_PORT", "4321"),

		ServiceName:    getEnv("SERVICE_NAME", "maf-runtime"),
		ServiceVersion: getEnv("SERVICE_VERSION", "1.0.0"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "INFO"),

		TestMode: getEnvAsBool("TEST_MODE", false),
	}
}

// StatePath returns the path to the persisted state document (§6.4).
func (c *AppConfig) StatePath() string {
	return c.ProjectRoot + "/.maf/state.json"
}

// GetHealthPort returns the health port for a given service type.
func (c *AppConfig) GetHealthPort(serviceType string) string {
	switch serviceType {
	case "orchestrator":
		return c.OrchestratorHealthPort
	case "agent":
		return c.AgentHealthPort
	default:
		return "8080"
	}
}

// GetJaegerWebURL returns the Jaeger web interface URL.
func (c *AppConfig) GetJaegerWebURL() string {
	return "http://localhost:16686"
}

// GetGrafanaURL returns the Grafana web interface URL.
func (c *AppConfig) GetGrafanaURL() string {
	return "http://localhost:" + c.GrafanaPort
}

// GetPrometheusURL returns the Prometheus web interface URL.
func (c *AppConfig) GetPrometheusURL() string {
	return "http://localhost:" + c.PrometheusPort
}

// GetAlertManagerURL returns the AlertManager web interface URL.
func (c *AppConfig) GetAlertManagerURL() string {
	return "http://localhost:" + c.AlertManagerPort
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
