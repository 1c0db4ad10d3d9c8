package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/statehouse-dev/statehouse/internal/model"
	"github.com/statehouse-dev/statehouse/internal/value"
)

var writeCmd = &cobra.Command{
	Use:   "write <key> <json-value>",
	Short: "Begin a transaction, stage a write, and commit it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := value.Parse([]byte(args[1]))
		if err != nil {
			return fmt.Errorf("parse value: %w", err)
		}

		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		key := args[0]
		commitTS, cerr := oneShotCommit(e, func(txnID string) *model.Error {
			return e.Write(txnID, triple(cmd, key), v)
		})
		if cerr != nil {
			return fmt.Errorf("%s", cerr.Error())
		}
		fmt.Printf("committed at commit_ts=%d\n", commitTS)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(writeCmd)
}
