package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/llnl/cram/internal/config"
	"github.com/llnl/cram/internal/testgen"
)

func cmdTestGen(out, errOut io.Writer, _ config.Config, workDir string, args []string) int {
	flagSet := flag.NewFlagSet("test-gen", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	jobsPerDir := flagSet.Uint32("jobs-per-dir", 1024, "number of jobs per working directory")
	printMem := flagSet.Bool("print-mem-usage", false, "print memory usage when done")

	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	rest := flagSet.Args()
	if len(rest) != 2 {
		fmt.Fprintln(errOut, "error: usage: cram test-gen <nprocs> <job_size>")
		return 1
	}

	nprocs, err := strconv.ParseUint(rest[0], 10, 32)
	if err != nil {
		fmt.Fprintln(errOut, "error: invalid nprocs:", err)
		return 1
	}

	jobSize, err := strconv.ParseUint(rest[1], 10, 32)
	if err != nil {
		fmt.Fprintln(errOut, "error: invalid job_size:", err)
		return 1
	}

	result, err := testgen.Generate(workDir, uint32(nprocs), uint32(jobSize), *jobsPerDir)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	fmt.Fprintln(out, "Created a test directory:", result.TestDir)
	fmt.Fprintln(out, "And a cram file:", result.CramFile)
	fmt.Fprintln(out, "To check that everything works, run cram test-verify on the directory.")

	if *printMem {
		fmt.Fprintf(out, "Memory usage: %s\n", memUsage())
	}

	return 0
}

func cmdTestVerify(out, errOut io.Writer, _ config.Config, workDir string, args []string) int {
	flagSet := flag.NewFlagSet("test-verify", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	report := flagSet.String("report", "", "write a pass/fail report to `file` instead of stdout only")

	if err := flagSet.Parse(args); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	rest := flagSet.Args()
	if len(rest) != 1 {
		fmt.Fprintln(errOut, "error: usage: cram test-verify <directory>")
		return 1
	}

	dir := rest[0]

	verifyErr := testgen.Verify(dir)

	if *report != "" {
		line := "ok\n"
		if verifyErr != nil {
			line = fmt.Sprintf("fail: %v\n", verifyErr)
		}

		if err := atomic.WriteFile(*report, strings.NewReader(line)); err != nil {
			fmt.Fprintln(errOut, "error: writing report:", err)
			return 1
		}
	}

	if verifyErr != nil {
		fmt.Fprintln(errOut, "error:", verifyErr)
		return 1
	}

	fmt.Fprintln(out, "Success! All jobs look ok.")

	return 0
}
