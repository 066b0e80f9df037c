package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/llnl/cram"
	"github.com/llnl/cram/internal/config"
)

func cmdPack(out, errOut io.Writer, cfg config.Config, workDir string, args []string) int {
	flagSet := flag.NewFlagSet("pack", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	nprocs := flagSet.Uint32P("nprocs", "n", cfg.DefaultNprocs, "number of processes for this job")
	file := flagSet.StringP("file", "f", cfg.DefaultFile, "Cramfile to append to")
	exe := flagSet.String("exe", cfg.DefaultExe, "executable, defaults to "+cram.UseAppExe)

	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	path := *file
	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}

	c, err := cram.OpenAppend(path)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	defer c.Close()

	argv := make([][]byte, len(flagSet.Args()))
	for i, a := range flagSet.Args() {
		argv[i] = []byte(a)
	}

	if err := c.PackArgs(*nprocs, []byte(workDir), argv, environToMap(os.Environ()), *exe); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	if err := c.Close(); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	fmt.Fprintf(out, "packed job %d into %s\n", c.NumJobs()-1, path)

	return 0
}
