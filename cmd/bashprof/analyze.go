package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/bashprof/bashprof/internal/callgraph"
	"github.com/bashprof/bashprof/internal/callstats"
	"github.com/bashprof/bashprof/internal/dot"
	"github.com/bashprof/bashprof/internal/pstats"
	"github.com/bashprof/bashprof/internal/report"
	"github.com/bashprof/bashprof/internal/trace"
)

type analyzeOptions struct {
	showTimes      bool
	lineLimit      int
	callgraphFile  string
	callstatsFile  string
	callstatsCmds  bool
	pstatsFile     string
	dumpRecords    string
	jsonStats      string
	dotLimit       int
	filterFunction string
}

func newAnalyzeCommand() *cobra.Command {
	var opts analyzeOptions
	cmd := &cobra.Command{
		Use:   "analyze [flags] [profilefile]",
		Short: "Analyze profiling information stored in a trace file",
		Long: `Analyze profiling information stored in a trace file.

Reads the trace produced by "bashprof profile" (stdin when no file is
given), prints the longest-commands and longest-functions tables, and
optionally writes DOT graphs and a Python-pstats-compatible stats file.`,
		Example: `  bashprof profile -n10 'echo hello world' | bashprof analyze
  bashprof analyze profile.txt \
      --dumprecords profile.records.txt \
      --callgraph profile.callgraph.dot \
      --callstats profile.callstats.dot \
      --pstats profile.pstats \
      --callstatscmds \
      --dotlimit 3`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "-"
			if len(args) == 1 {
				path = args[0]
			}
			return runAnalyze(cmd.Context(), path, opts)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.showTimes, "showtimes", false, "show processing times of each stage")
	f.IntVar(&opts.lineLimit, "linelimit", 0, "parse only this many lines from the top of the input")
	f.StringVar(&opts.callgraphFile, "callgraph", "", "output file for the DOT callgraph, view with e.g. xdot")
	f.StringVar(&opts.callstatsFile, "callstats", "", "output file for the DOT callstats graph with per-function statistics")
	f.BoolVar(&opts.callstatsCmds, "callstatscmds", false, "add commands to the callstats graph")
	f.StringVar(&opts.pstatsFile, "pstats", "", "generate a Python pstats file just like a cProfile file")
	f.StringVar(&opts.dumpRecords, "dumprecords", "", "dump the callgraph in text format, command by command, call by call")
	f.StringVar(&opts.jsonStats, "jsonstats", "", "write per-function statistics as JSON")
	f.IntVar(&opts.dotLimit, "dotlimit", 0, "limit the number of children of each DOT node, 0 = no limit")
	f.StringVar(&opts.filterFunction, "filterfunction", "", "restrict analysis to callgraph subtrees rooted at functions matching this pattern")
	return cmd
}

func runAnalyze(ctx context.Context, path string, opts analyzeOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	in, err := trace.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	var records []trace.Record
	err = timed("reading trace", opts.showTimes, func() error {
		var err error
		records, err = trace.ReadTrace(ctx, in, trace.Options{
			Workers:   cfg.Workers,
			BatchSize: cfg.BatchSize,
			LineLimit: opts.lineLimit,
		})
		return err
	})
	if err != nil {
		return err
	}

	var root *callgraph.Node
	err = timed("building callgraph", opts.showTimes, func() error {
		var err error
		root, err = callgraph.Build(records)
		if err != nil {
			return err
		}
		if opts.filterFunction != "" {
			root, err = callgraph.Filter(root, opts.filterFunction)
		}
		return err
	})
	if err != nil {
		return err
	}

	err = timed("printing reports", opts.showTimes, func() error {
		report.Commands(os.Stdout, root, cfg.Top)
		report.Functions(os.Stdout, root, cfg.Top)
		return nil
	})
	if err != nil {
		return err
	}

	if opts.dumpRecords != "" {
		err := writeOutput(opts.dumpRecords, func(f *os.File) error {
			return callgraph.WriteRecords(f, root)
		})
		if err != nil {
			return err
		}
		log.Info().Str("path", opts.dumpRecords).Msg("records dumped")
	}

	if opts.callgraphFile != "" {
		err := writeOutput(opts.callgraphFile, func(f *os.File) error {
			return dot.WriteCallgraph(f, root, opts.dotLimit)
		})
		if err != nil {
			return err
		}
		log.Info().Str("path", opts.callgraphFile).Msg("callgraph written")
	}

	var stats *callstats.Node
	if opts.callstatsFile != "" || opts.pstatsFile != "" || opts.jsonStats != "" {
		err = timed("aggregating callstats", opts.showTimes, func() error {
			stats = callstats.Aggregate(root)
			return nil
		})
		if err != nil {
			return err
		}
	}

	if opts.callstatsFile != "" {
		err := writeOutput(opts.callstatsFile, func(f *os.File) error {
			return dot.WriteCallstats(f, stats, dot.StatsOptions{
				Limit:    opts.dotLimit,
				Commands: opts.callstatsCmds,
			})
		})
		if err != nil {
			return err
		}
		log.Info().Str("path", opts.callstatsFile).Msg("callstats written")
	}

	if opts.pstatsFile != "" {
		err := timed("generating pstats file", opts.showTimes, func() error {
			return writeOutput(opts.pstatsFile, func(f *os.File) error {
				return pstats.Write(f, pstats.Collect(stats))
			})
		})
		if err != nil {
			return err
		}
		log.Info().Str("path", opts.pstatsFile).Msg("pstats file written")
	}

	if opts.jsonStats != "" {
		err := writeOutput(opts.jsonStats, func(f *os.File) error {
			return report.JSONStats(f, stats)
		})
		if err != nil {
			return err
		}
		log.Info().Str("path", opts.jsonStats).Msg("json stats written")
	}

	report.Summary(os.Stdout, root, report.FunctionCount(root))
	return nil
}

func writeOutput(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating output %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("writing output %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing output %s: %w", path, err)
	}
	return nil
}

func timed(name string, show bool, fn func() error) error {
	start := time.Now()
	err := fn()
	if show {
		log.Info().Dur("took", time.Since(start)).Msg(name)
	}
	return err
}
