package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexar-labs/nexar/internal/agent"
	"github.com/nexar-labs/nexar/internal/agent/providers"
	"github.com/nexar-labs/nexar/internal/config"
	"github.com/nexar-labs/nexar/internal/gateway"
	"github.com/nexar-labs/nexar/internal/observability"
	"github.com/nexar-labs/nexar/internal/terminal"
	"github.com/nexar-labs/nexar/internal/tools"
	"github.com/nexar-labs/nexar/internal/tools/catalog"
	"github.com/nexar-labs/nexar/internal/tools/files"
	"github.com/nexar-labs/nexar/internal/workspace"
)

func buildServeCmd() *cobra.Command {
	var configPath string
	var addr string
	var workspaceRoot string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the nexar engine",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if workspaceRoot != "" {
				cfg.Workspace = workspaceRoot
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&addr, "addr", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&workspaceRoot, "workspace", "", "Workspace root directory (overrides config)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config) error {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	metrics := observability.NewMetrics()

	if err := os.MkdirAll(cfg.Workspace, 0o755); err != nil {
		return fmt.Errorf("create workspace root: %w", err)
	}

	router := providers.NewRouter(cfg, logger, metrics)

	toolRegistry := tools.NewRegistry(tools.RegistryConfig{
		PoolSize: cfg.Engine.ToolPool,
		Logger:   logger,
		Metrics:  metrics,
	})
	// Editor saves and agent writes serialize on the same lock table.
	pathLocks := files.NewPathLocks()
	catalog.Register(toolRegistry, cfg.Workspace, pathLocks)

	planner := agent.NewPlanner(agent.PlannerConfig{
		Router:    router,
		Registry:  toolRegistry,
		Workspace: cfg.Workspace,
		Logger:    logger,
	})
	executor := agent.NewExecutor(agent.ExecutorConfig{
		Planner:  planner,
		Registry: toolRegistry,
		Logger:   logger,
		Metrics:  metrics,
	})
	runs := agent.NewRegistry(agent.RegistryConfig{
		Executor:       executor,
		Logger:         logger,
		Metrics:        metrics,
		RunTTL:         cfg.Engine.RunTTL,
		DefaultRetries: cfg.Engine.MaxRetries,
	})
	defer runs.Close()

	fileService := workspace.NewService(workspace.Config{Root: cfg.Workspace, Locks: pathLocks})
	terminals := terminal.NewManager(terminal.Config{
		Workspace: cfg.Workspace,
		Logger:    logger,
		Metrics:   metrics,
	})
	defer terminals.CloseAll()

	server := gateway.NewServer(gateway.Config{
		Addr:      cfg.Server.Addr,
		Runs:      runs,
		Router:    router,
		Files:     fileService,
		Terminals: terminals,
		Logger:    logger,
		Metrics:   metrics,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
	}

	logger.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
