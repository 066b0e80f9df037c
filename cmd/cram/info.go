package main

import (
	"fmt"
	"io"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/llnl/cram"
	"github.com/llnl/cram/internal/config"
)

func cmdInfo(out, errOut io.Writer, cfg config.Config, workDir string, args []string) int {
	flagSet := flag.NewFlagSet("info", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	all := flagSet.BoolP("all", "a", false, "print every job, not just the header")
	job := flagSet.Int64P("job", "j", -1, "print only job N")
	limit := flagSet.IntP("limit", "n", 10, "limit the number of jobs printed with --all")
	file := flagSet.StringP("file", "f", cfg.DefaultFile, "Cramfile to read")

	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	path := *file
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}

	c, err := cram.OpenRead(path)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	defer c.Close()

	fmt.Fprintf(out, "version:      %d\n", c.Version())
	fmt.Fprintf(out, "num_jobs:     %d\n", c.NumJobs())
	fmt.Fprintf(out, "num_procs:    %d\n", c.NumProcs())
	fmt.Fprintf(out, "max_job_size: %d\n", c.MaxJobSize())

	if !*all && *job < 0 {
		return 0
	}

	it := c.Iterate()

	var idx int64

	for it.Next() {
		j := it.Job()

		switch {
		case *job >= 0 && idx == *job:
			printJob(out, idx, j)
		case *job < 0 && idx < int64(*limit):
			printJob(out, idx, j)
		}

		idx++
	}

	if err := it.Err(); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	return 0
}

func printJob(out io.Writer, idx int64, j cram.Job) {
	fmt.Fprintf(out, "\njob #%d\n", idx)
	fmt.Fprintf(out, "  num_procs:   %d\n", j.NumProcs)
	fmt.Fprintf(out, "  working_dir: %s\n", j.WorkingDir)
	fmt.Fprintf(out, "  args:        %q\n", j.Args)
	fmt.Fprintf(out, "  env entries: %d\n", len(j.Env))
}
