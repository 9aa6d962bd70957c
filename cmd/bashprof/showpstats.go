package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/bashprof/bashprof/internal/pstats"
)

func newShowPstatsCommand() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "showpstats [flags] file",
		Short: "Print the contents of a pstats file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			table, err := pstats.Read(f)
			if err != nil {
				return err
			}
			if raw {
				return pstats.WriteRaw(os.Stdout, table)
			}
			return pstats.WriteTop(os.Stdout, table)
		},
	}
	cmd.Flags().BoolVarP(&raw, "raw", "r", false, "print the stats file content entry by entry")
	return cmd
}
