package main

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/statehouse-dev/statehouse/internal/config"
	"github.com/statehouse-dev/statehouse/internal/engine"
	"github.com/statehouse-dev/statehouse/internal/model"
)

func openEngine(cmd *cobra.Command) (*engine.Engine, error) {
	cfg := config.Default()
	if v, err := cmd.Flags().GetString("data-dir"); err == nil && v != "" {
		cfg.DataDir = v
	}
	if v, err := cmd.Flags().GetBool("in-memory"); err == nil {
		cfg.InMemory = v
	}
	return engine.New(cfg)
}

func scope(cmd *cobra.Command) (namespace, agent string) {
	namespace, _ = cmd.Flags().GetString("namespace")
	agent, _ = cmd.Flags().GetString("agent")
	return namespace, agent
}

func triple(cmd *cobra.Command, key string) model.Triple {
	namespace, agent := scope(cmd)
	return model.Triple{Namespace: namespace, Agent: agent, Key: key}
}

// oneShotCommit runs begin → stage(op) → commit within a single
// process lifetime, since the CLI has no way to carry a transaction
// id across separate invocations.
func oneShotCommit(e *engine.Engine, stage func(txnID string) *model.Error) (uint64, *model.Error) {
	txnID := e.BeginTransaction(30 * time.Second)
	if err := stage(txnID); err != nil {
		e.Abort(txnID)
		return 0, err
	}
	return e.Commit(txnID)
}
