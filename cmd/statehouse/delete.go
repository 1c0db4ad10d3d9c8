package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/statehouse-dev/statehouse/internal/model"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <key>",
	Short: "Begin a transaction, stage a delete, and commit it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		key := args[0]
		commitTS, cerr := oneShotCommit(e, func(txnID string) *model.Error {
			return e.Delete(txnID, triple(cmd, key))
		})
		if cerr != nil {
			return fmt.Errorf("%s", cerr.Error())
		}
		fmt.Printf("committed at commit_ts=%d\n", commitTS)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}
