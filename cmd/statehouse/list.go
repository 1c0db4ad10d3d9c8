package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List live keys for (namespace, agent)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		namespace, agent := scope(cmd)
		keys, lerr := e.ListKeys(namespace, agent)
		if lerr != nil {
			return fmt.Errorf("%s", lerr.Error())
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
