// Command mafctl is the operator CLI (§6.6): inspect store state,
// trigger a new feature, launch the runtime in the foreground, or
// reset persisted state.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskforge/maf/internal/artifact"
	"github.com/taskforge/maf/internal/config"
	"github.com/taskforge/maf/internal/decomposer"
	"github.com/taskforge/maf/internal/event"
	"github.com/taskforge/maf/internal/eventbus"
	"github.com/taskforge/maf/internal/llm"
	"github.com/taskforge/maf/internal/observability"
	"github.com/taskforge/maf/internal/orchestrator"
	"github.com/taskforge/maf/internal/roles"
	"github.com/taskforge/maf/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:   "mafctl",
		Short: "Operate the multi-agent orchestration runtime",
	}

	root.AddCommand(newStatusCmd(), newTriggerCmd(), newLaunchCmd(), newResetCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print task/feature statistics and a health report",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			st := store.New(cfg.StatePath(), cfg.StallTimeout, cfg.MaxRetries)

			stats := st.GetTaskStatistics()
			health := st.TaskHealthCheck()

			out := struct {
				Statistics store.Statistics  `json:"statistics"`
				Health     store.HealthReport `json:"health"`
			}{stats, health}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if !health.Healthy {
				os.Exit(2)
			}
			return nil
		},
	}
}

func newTriggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <description>",
		Short: "Publish a new_feature_request custom event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			obs, err := observability.NewObservability(observability.DefaultConfig(cfg.ServiceName))
			if err != nil {
				return fmt.Errorf("mafctl: observability init: %w", err)
			}
			defer obs.Shutdown(context.Background())

			bus, err := eventbus.Global(cfg, obs)
			if err != nil {
				return fmt.Errorf("mafctl: event bus init: %w", err)
			}

			description := args[0]
			evt := event.NewCustom("new_feature_request", "mafctl", map[string]interface{}{
				"description": description,
			}, "")
			if err := bus.Publish(cmd.Context(), evt); err != nil {
				return fmt.Errorf("mafctl: publish: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "triggered feature %s: %s\n", evt.ID, description)
			return nil
		},
	}
}

func newLaunchCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Start the orchestrator and enabled agents in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			obs, err := observability.NewObservability(observability.DefaultConfig(cfg.ServiceName))
			if err != nil {
				return fmt.Errorf("mafctl: observability init: %w", err)
			}
			defer obs.Shutdown(context.Background())

			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			if timeout > 0 {
				var timeoutCancel context.CancelFunc
				ctx, timeoutCancel = context.WithTimeout(ctx, timeout)
				defer timeoutCancel()
			}

			bus, err := eventbus.Global(cfg, obs)
			if err != nil {
				return fmt.Errorf("mafctl: event bus init: %w", err)
			}
			st := store.New(cfg.StatePath(), cfg.StallTimeout, cfg.MaxRetries)

			var client llm.Client = llm.NewMockClient()
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
				return fmt.Errorf("mafctl: orchestrator start: %w", err)
			}
			defer orch.Stop()

			for _, name := range cfg.EnabledAgents {
				rt := roleRuntime(name, bus, obs, client, sink)
				if rt == nil {
					continue
				}
				if err := rt.Start(ctx); err != nil {
					return fmt.Errorf("mafctl: agent %s start: %w", name, err)
				}
				defer rt.Stop()
			}

			fmt.Fprintln(cmd.OutOrStdout(), "mafctl: launched, press Ctrl-C to stop")
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "stop automatically after this duration (0 = run until interrupted)")
	return cmd
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Delete persisted task/feature state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if err := os.Remove(cfg.StatePath()); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("mafctl: reset: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "state reset")
			return nil
		},
	}
}

func roleRuntime(name string, bus eventbus.Bus, obs *observability.Observability, client llm.Client, sink artifact.Sink) interface {
	Start(ctx context.Context) error
	Stop()
} {
	switch name {
	case roles.FrontendAgentName:
		return roles.NewFrontendAgent(bus, obs, client, sink, "generated/frontend")
	case roles.BackendAgentName:
		return roles.NewBackendAgent(bus, obs, client, sink, "generated/backend")
	case roles.DBAgentName:
		return roles.NewDBAgent(bus, obs, client, sink, "generated/db")
	case roles.DevOpsAgentName:
		return roles.NewDevOpsAgent(bus, obs, client, sink, "generated/devops")
	case roles.QAAgentName:
		return roles.NewQAAgent(bus, obs, client, sink, "generated/qa")
	case roles.DocsAgentName:
		return roles.NewDocsAgent(bus, obs, client, sink, "generated/docs")
	case roles.SecurityAgentName:
		return roles.NewSecurityAgent(bus, obs, client, sink, "generated/security")
	case roles.UXUIAgentName:
		return roles.NewUXUIAgent(bus, obs, client, sink, "generated/ux_ui")
	default:
		return nil
	}
}
