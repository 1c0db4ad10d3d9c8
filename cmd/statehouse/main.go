// Command statehouse is a local operator CLI for exercising an
// embedded engine instance directly — not a wire protocol, since
// spec.md §1 places RPC marshalling outside the core. It is grounded
// on cmd/warren/main.go's cobra root command and version-template
// wiring. Each invocation is its own process, so the Transaction Table
// a subcommand sees is empty at start: the write/delete subcommands
// each run begin → stage → commit within one invocation rather than
// exposing begin/commit as separate CLI calls across process
// boundaries.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/statehouse-dev/statehouse/internal/engine"
	"github.com/statehouse-dev/statehouse/internal/slog"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "statehouse",
	Short:   "Statehouse - a transactional state and memory engine for agents",
	Version: engine.Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"statehouse version %s\nbuild: %s\n", engine.Version, engine.BuildID,
	))
	rootCmd.PersistentFlags().String("data-dir", "./data", "storage directory")
	rootCmd.PersistentFlags().Bool("in-memory", false, "use an ephemeral in-memory backend")
	rootCmd.PersistentFlags().String("namespace", "", "namespace (default: \"default\")")
	rootCmd.PersistentFlags().String("agent", "", "agent id")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "output logs in JSON format")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	slog.Init(slog.Config{
		Level:      slog.Level(logLevel),
		JSONOutput: logJSON,
	})
}
