package main

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bashprof/bashprof/internal/harness"
)

func newProfileCommand() *cobra.Command {
	var spec harness.Spec
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "profile [flags] script [args...]",
		Short: "Generate profiling information for a bash script",
		Long: `Generate profiling information for a bash script.

The script runs in the current execution environment; use
"source ./script.sh" to profile a script file. Further arguments are
passed to the script. The trace goes to --output, or stdout so it can
be piped straight into "bashprof analyze".`,
		Example: `  bashprof profile -n10 'echo hello world' | bashprof analyze
  bashprof profile -n200 -b i=0 '((i)); [[ $i ]]; [ "$i" ]' | bashprof analyze
  bashprof profile -o trace.txt 'source ./script.sh'`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec.Script = args[0]
			spec.Args = args[1:]
			if dryRun {
				argv, err := spec.Command()
				if err != nil {
					return err
				}
				fmt.Println(harness.Quote(argv))
				return nil
			}
			out := spec.Output
			if out == "" {
				out = "stdout"
			}
			log.Info().Str("script", spec.Script).Str("output", out).Msg("profiling")
			if err := harness.Run(cmd.Context(), spec); err != nil {
				return err
			}
			log.Info().Str("output", out).Msg("profiling ended")
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&spec.Output, "output", "o", "", "output file for profiling information, stdout when empty")
	f.StringVarP(&spec.Method, "method", "m", "XTRACE",
		"profiling method: XTRACE/1 uses set -x with BASH_XTRACEFD, DEBUG/2 uses a DEBUG trap, VAR/3 buffers the trace in a bash array")
	f.IntVarP(&spec.Repeat, "repeat", "n", 1, "repeat the script n times joined with newlines")
	f.StringVarP(&spec.Before, "before", "b", "", "commands to run before the script, for environment setup")
	f.BoolVar(&dryRun, "dryrun", false, "print the generated bash command instead of running it")
	return cmd
}
