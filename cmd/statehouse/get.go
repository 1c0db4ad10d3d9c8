package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/statehouse-dev/statehouse/internal/model"
)

var getCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Read the current state record for a key",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		version, _ := cmd.Flags().GetUint64("version")

		if version > 0 {
			rec, gerr := e.GetStateAtVersion(triple(cmd, args[0]), version)
			if gerr != nil {
				return fmt.Errorf("%s", gerr.Error())
			}
			return printRecord(rec)
		}

		rec, gerr := e.GetState(triple(cmd, args[0]))
		if gerr != nil {
			return fmt.Errorf("%s", gerr.Error())
		}
		return printRecord(rec)
	},
}

func init() {
	getCmd.Flags().Uint64("version", 0, "read a specific version instead of the current one")
	rootCmd.AddCommand(getCmd)
}

func printRecord(rec model.StateRecord) error {
	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
