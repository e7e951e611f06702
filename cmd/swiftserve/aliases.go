package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var aliasesCmd = &cobra.Command{
	Use:   "aliases",
	Short: "List configured dataset aliases",
	RunE: func(cmd *cobra.Command, args []string) error {
		names := app.table.Aliases()
		if len(names) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "no aliases configured")
			return nil
		}
		tw := tabwriter.NewWriter(stdout(cmd), 0, 4, 2, ' ', 0)
		for _, name := range names {
			p, _ := app.table.Lookup(name)
			fmt.Fprintf(tw, "%s\t%s\n", name, p)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(aliasesCmd)
}
