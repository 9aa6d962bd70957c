// bashprof profiles the execution of bash scripts: it instruments a
// script to emit a line-per-command trace, reconstructs the call graph
// from it, and reports where the time went.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bashprof/bashprof/internal/logutil"
)

var verbose bool

func main() {
	rootCmd := &cobra.Command{
		Use:           "bashprof",
		Short:         "Profile execution of bash scripts",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logutil.ConfigureLogger(verbose)
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(newProfileCommand())
	rootCmd.AddCommand(newAnalyzeCommand())
	rootCmd.AddCommand(newShowPstatsCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
