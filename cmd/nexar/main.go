// Package main provides the CLI entry point for the Nexar agent engine.
//
// Nexar is the backend of an AI-assisted code editor: an LLM planner
// emits batches of workspace actions, an executor runs them with
// dependency ordering and cancellation, and HTTP surfaces expose files,
// terminal sessions, and the run control plane to the editor UI.
//
// # Basic Usage
//
// Start the server:
//
//	nexar serve --config nexar.yaml
//
// # Environment Variables
//
//   - OPENAI_API_KEY / OPENAI_BASE_URL / OPENAI_MODEL
//   - ANTHROPIC_API_KEY / ANTHROPIC_MODEL
//   - CUSTOM_API_KEY / CUSTOM_BASE_URL / CUSTOM_MODEL
//   - WORKSPACE_ROOT: directory the agent operates on
//   - NEXAR_ADDR, NEXAR_LOG_LEVEL, NEXAR_LOG_FORMAT, NEXAR_RUN_TTL,
//     NEXAR_TOOL_POOL
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	// A missing .env is fine; explicit environment always wins.
	_ = godotenv.Load()

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nexar",
		Short: "Nexar agent engine for AI-assisted code editing",
		Long: `Nexar runs the agent orchestration engine behind an AI code editor:
LLM planning, workspace tools, terminal sessions, and the run control plane.`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the nexar version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "nexar", version)
		},
	}
}
