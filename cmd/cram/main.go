// Command cram packs job invocations into a Cramfile and inspects
// existing ones. It is a thin wrapper over the public cram API: every
// format decision lives in the root package, not here.
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/llnl/cram/internal/config"
)

func main() {
	os.Exit(Run(os.Stdout, os.Stderr, os.Args, os.Environ()))
}

// command is one cram subcommand.
type command struct {
	name  string
	short string
	exec  func(out, errOut io.Writer, cfg config.Config, workDir string, args []string) int
}

func commands() []command {
	return []command{
		{"pack", "pack one job invocation into a Cramfile", cmdPack},
		{"info", "print header counters and job summaries", cmdInfo},
		{"test-gen", "generate a synthetic test ensemble", cmdTestGen},
		{"test-verify", "verify a test-gen ensemble", cmdTestVerify},
	}
}

// Run is the CLI entry point. Returns a process exit code.
func Run(out, errOut io.Writer, args []string, env []string) int {
	globalFlags := flag.NewFlagSet("cram", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.SetOutput(io.Discard)

	flagCwd := globalFlags.StringP("cwd", "C", "", "run as if started in `dir`")
	flagConfig := globalFlags.StringP("config", "c", "", "use specified config `file`")

	if err := globalFlags.Parse(args[1:]); err != nil {
		fmt.Fprintln(errOut, "error:", err)
		printUsage(errOut)

		return 1
	}

	workDir := *flagCwd
	if workDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			fmt.Fprintln(errOut, "error:", err)
			return 1
		}

		workDir = wd
	}

	cfg, _, err := config.Load(workDir, *flagConfig, config.Config{}, env)
	if err != nil {
		fmt.Fprintln(errOut, "error:", err)
		return 1
	}

	rest := globalFlags.Args()
	if len(rest) == 0 {
		printUsage(out)
		return 0
	}

	name := rest[0]

	for _, cmd := range commands() {
		if cmd.name == name {
			return cmd.exec(out, errOut, cfg, workDir, rest[1:])
		}
	}

	fmt.Fprintln(errOut, "error: unknown command:", name)
	printUsage(errOut)

	return 1
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: cram [-C dir] [-c config] <command> [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")

	for _, cmd := range commands() {
		fmt.Fprintf(w, "  %-12s %s\n", cmd.name, cmd.short)
	}
}

func environToMap(environ []string) map[string][]byte {
	env := make(map[string][]byte, len(environ))

	for _, e := range environ {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = []byte(v)
		}
	}

	return env
}
