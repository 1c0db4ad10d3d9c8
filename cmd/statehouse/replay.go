package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/statehouse-dev/statehouse/internal/eventlog"
	"github.com/statehouse-dev/statehouse/internal/model"
	"gopkg.in/yaml.v3"
)

// opDisplay and eventDisplay re-shape an eventlog.Event for yaml.v3
// output: value.Value carries unexported fields, so it is first
// round-tripped through its own JSON encoding into a generic
// interface{} that yaml.v3 can walk directly.
type opDisplay struct {
	Namespace string      `yaml:"namespace"`
	Agent     string      `yaml:"agent"`
	Key       string      `yaml:"key"`
	Deleted   bool        `yaml:"deleted,omitempty"`
	Value     interface{} `yaml:"value,omitempty"`
	Version   uint64      `yaml:"version"`
}

type eventDisplay struct {
	TxnID    string      `yaml:"txn_id"`
	CommitTS uint64      `yaml:"commit_ts"`
	Ops      []opDisplay `yaml:"ops"`
}

func toDisplay(ev eventlog.Event) (eventDisplay, error) {
	d := eventDisplay{TxnID: ev.TxnID, CommitTS: ev.CommitTS}
	for _, op := range ev.Ops {
		od := opDisplay{
			Namespace: op.Triple.Namespace,
			Agent:     op.Triple.Agent,
			Key:       op.Triple.Key,
			Version:   op.Version,
		}
		if op.Kind == model.OpDelete {
			od.Deleted = true
		} else {
			raw, err := json.Marshal(op.Value)
			if err != nil {
				return eventDisplay{}, err
			}
			var generic interface{}
			if err := json.Unmarshal(raw, &generic); err != nil {
				return eventDisplay{}, err
			}
			od.Value = generic
		}
		d.Ops = append(d.Ops, od)
	}
	return d, nil
}

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Stream committed events for (namespace, agent) over a commit_ts range",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		startTS, _ := cmd.Flags().GetUint64("start")
		endTS, _ := cmd.Flags().GetUint64("end")
		namespace, agent := scope(cmd)

		events, stop, rerr := e.Replay(namespace, agent, startTS, endTS)
		if rerr != nil {
			return fmt.Errorf("%s", rerr.Error())
		}
		defer stop()

		for ev := range events {
			d, err := toDisplay(ev)
			if err != nil {
				return err
			}
			doc, err := yaml.Marshal(d)
			if err != nil {
				return err
			}
			fmt.Println("---")
			fmt.Print(string(doc))
		}
		return nil
	},
}

func init() {
	replayCmd.Flags().Uint64("start", 0, "first commit_ts to include")
	replayCmd.Flags().Uint64("end", 0, "last commit_ts to include (0 means the latest at stream start)")
	rootCmd.AddCommand(replayCmd)
}
