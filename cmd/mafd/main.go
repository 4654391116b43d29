// Command mafd is the orchestration daemon: it wires together the
// event bus, task store, orchestrator, and every enabled specialized
// agent shell, then runs until told to stop (§4, §6.5).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/taskforge/maf/internal/agent"
	"github.com/taskforge/maf/internal/artifact"
	"github.com/taskforge/maf/internal/config"
	"github.com/taskforge/maf/internal/decomposer"
	"github.com/taskforge/maf/internal/event"
	"github.com/taskforge/maf/internal/eventbus"
	"github.com/taskforge/maf/internal/llm"
	"github.com/taskforge/maf/internal/llm/vertexai"
	"github.com/taskforge/maf/internal/observability"
	"github.com/taskforge/maf/internal/orchestrator"
	"github.com/taskforge/maf/internal/roles"
	"github.com/taskforge/maf/internal/store"
)

func main() {
	cfg := config.Load()

	obs, err := observability.NewObservability(observability.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		JaegerEndpoint: cfg.JaegerEndpoint,
		PrometheusPort: cfg.PrometheusPort,
		Environment:    cfg.Environment,
		LogLevel:       cfg.LogLevel,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "mafd: observability init: %v\n", err)
		os.Exit(1)
	}
	logger := obs.Logger

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bus, err := eventbus.Global(cfg, obs)
	if err != nil {
		logger.Error("mafd: event bus init", "error", err)
		os.Exit(1)
	}

	st := store.New(cfg.StatePath(), cfg.StallTimeout, cfg.MaxRetries)

	client, err := buildLLMClient(ctx, cfg, logger)
	if err != nil {
		logger.Error("mafd: llm client init", "error", err)
		os.Exit(1)
	}

	sink := artifact.NewFSSink(cfg.ProjectRoot)
	dec := decomposer.NewLLMDecomposer(client)

	orch := orchestrator.New(orchestrator.Config{
		MaxRetries:       cfg.MaxRetries,
		StallTimeout:     cfg.StallTimeout,
		CleanupRetention: cfg.CleanupRetention,
		HealthInterval:   cfg.HealthInterval,
		RecoveryInterval: cfg.RecoveryInterval,
		CleanupInterval:  cfg.CleanupInterval,
	}, bus, st, dec, obs)

	if err := orch.Start(ctx); err != nil {
		logger.Error("mafd: orchestrator start", "error", err)
		os.Exit(1)
	}
	defer orch.Stop()

	runtimes := buildRoleRuntimes(cfg, bus, obs, client, sink)
	for name, rt := range runtimes {
		if err := rt.Start(ctx); err != nil {
			logger.Error("mafd: agent start", "agent", name, "error", err)
			os.Exit(1)
		}
		defer rt.Stop()
	}
	logger.Info("mafd: enabled agents started", "agents", cfg.EnabledAgents)

	health := observability.NewHealthServer(cfg.OrchestratorHealthPort, cfg.ServiceName, cfg.ServiceVersion)
	health.AddChecker("event_bus", observability.NewBasicHealthChecker("event_bus", func(ctx context.Context) error {
		if !bus.GetStatistics().Running {
			return fmt.Errorf("event bus not running")
		}
		return nil
	}))
	health.AddChecker("store", observability.NewBasicHealthChecker("store", func(ctx context.Context) error {
		if report := st.TaskHealthCheck(); !report.Healthy {
			return fmt.Errorf("task store unhealthy: %v", report.Issues)
		}
		return nil
	}))
	go func() {
		if err := health.Start(ctx); err != nil {
			logger.Warn("mafd: health server stopped", "error", err)
		}
	}()

	logger.Info("mafd: started", "project", cfg.ProjectName, "event_bus", cfg.EventBusType)

	<-ctx.Done()
	logger.Info("mafd: shutdown signal received")

	shutdownCtx := context.Background()
	_ = bus.Publish(shutdownCtx, event.New(event.SystemShutdown, "mafd", nil, ""))
	_ = health.Shutdown(shutdownCtx)
	_ = obs.Shutdown(shutdownCtx)
}

// buildLLMClient returns the mock client in TestMode, otherwise a
// Vertex AI-backed client per cfg.ModelProvider.
func buildLLMClient(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (llm.Client, error) {
	if cfg.TestMode || cfg.ModelProvider == "mock" {
		logger.Info("mafd: using mock LLM client", "reason", "test mode or mock provider configured")
		return llm.NewMockClient(), nil
	}

	vcfg := vertexai.NewConfigFromEnv()
	vcfg.Model = cfg.ModelName
	return vertexai.NewClient(ctx, vcfg)
}

// buildRoleRuntimes constructs one agent.Runtime per entry in
// cfg.EnabledAgents, skipping any name that is not one of the roles
// package's *AgentName constants.
func buildRoleRuntimes(cfg *config.AppConfig, bus eventbus.Bus, obs *observability.Observability, client llm.Client, sink artifact.Sink) map[string]*agent.Runtime {
	out := make(map[string]*agent.Runtime, len(cfg.EnabledAgents))
	for _, name := range cfg.EnabledAgents {
		switch name {
		case roles.FrontendAgentName:
			out[name] = roles.NewFrontendAgent(bus, obs, client, sink, "generated/frontend")
		case roles.BackendAgentName:
			out[name] = roles.NewBackendAgent(bus, obs, client, sink, "generated/backend")
		case roles.DBAgentName:
			out[name] = roles.NewDBAgent(bus, obs, client, sink, "generated/db")
		case roles.DevOpsAgentName:
			out[name] = roles.NewDevOpsAgent(bus, obs, client, sink, "generated/devops")
		case roles.QAAgentName:
			out[name] = roles.NewQAAgent(bus, obs, client, sink, "generated/qa")
		case roles.DocsAgentName:
			out[name] = roles.NewDocsAgent(bus, obs, client, sink, "generated/docs")
		case roles.SecurityAgentName:
			out[name] = roles.NewSecurityAgent(bus, obs, client, sink, "generated/security")
		case roles.UXUIAgentName:
			out[name] = roles.NewUXUIAgent(bus, obs, client, sink, "generated/ux_ui")
		default:
			obs.Logger.Warn("mafd: unrecognized agent name in MAF_ENABLED_AGENTS, skipping", "agent", name)
		}
	}
	return out
}
