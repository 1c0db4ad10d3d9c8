package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var scanCmd = &cobra.Command{
	Use:   "scan <key-prefix>",
	Short: "Scan live records for (namespace, agent, key-prefix)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		namespace, agent := scope(cmd)
		recs, serr := e.ScanPrefix(namespace, agent, args[0])
		if serr != nil {
			return fmt.Errorf("%s", serr.Error())
		}
		for _, rec := range recs {
			out, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			fmt.Println(string(out))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
}
