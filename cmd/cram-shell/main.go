// cram-shell is an interactive browser for Cramfiles.
//
// Usage:
//
//	cram-shell <cramfile>
//
// Commands (in REPL):
//
//	next              Show the next job
//	prev              Show the previous job
//	show <n>          Show job n
//	find <substring>  Find the next job whose working dir or args contain substring
//	info              Show header counters
//	help              Show this help
//	exit / quit / q   Exit
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/llnl/cram"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: cram-shell <cramfile>")
		os.Exit(1)
	}

	c, err := cram.OpenRead(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	defer c.Close()

	// cram-shell is a human-facing inspector over already-small files; it
	// trades the core container's O(1) memory guarantee for the random
	// access "show <n>" and "prev" need.
	jobs := make([]cram.Job, 0, c.NumJobs())

	it := c.Iterate()
	for it.Next() {
		jobs = append(jobs, it.Job())
	}

	if err := it.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	r := &repl{c: c, jobs: jobs}
	if err := r.run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type repl struct {
	c     *cram.Container
	jobs  []cram.Job
	cur   int
	liner *liner.State
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".cram_shell_history")
}

func (r *repl) run() error {
	r.liner = liner.NewLiner()
	defer r.liner.Close()

	r.liner.SetCtrlCAborts(true)
	r.liner.SetCompleter(r.completer)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = r.liner.ReadHistory(f)
		f.Close()
	}

	fmt.Printf("cram-shell - %d jobs, %d procs total\n", r.c.NumJobs(), r.c.NumProcs())
	fmt.Println("Type 'help' for available commands.")

	for {
		line, err := r.liner.Prompt("cram> ")
		if err != nil {
			if err == liner.ErrPromptAborted || err == io.EOF {
				fmt.Println("\nBye!")
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		r.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "exit", "quit", "q":
			r.saveHistory()
			return nil
		case "help", "?":
			r.printHelp()
		case "next", "n":
			r.cmdNext()
		case "prev", "p":
			r.cmdPrev()
		case "show":
			r.cmdShow(args)
		case "find":
			r.cmdFind(args)
		case "info":
			r.cmdInfo()
		default:
			fmt.Printf("unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}

	r.saveHistory()

	return nil
}

func (r *repl) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	if f, err := os.Create(path); err == nil {
		r.liner.WriteHistory(f)
		f.Close()
	}
}

func (r *repl) printHelp() {
	fmt.Println(`Commands:
  next              Show the next job
  prev              Show the previous job
  show <n>          Show job n
  find <substring>  Find the next job whose working dir or args contain substring
  info              Show header counters
  help              Show this help
  exit / quit / q   Exit`)
}

func (r *repl) cmdInfo() {
	fmt.Printf("version: %d, num_jobs: %d, num_procs: %d, max_job_size: %d\n",
		r.c.Version(), r.c.NumJobs(), r.c.NumProcs(), r.c.MaxJobSize())
}

func (r *repl) cmdNext() {
	if len(r.jobs) == 0 {
		fmt.Println("no jobs")
		return
	}

	if r.cur < len(r.jobs)-1 {
		r.cur++
	}

	r.printJob(r.cur)
}

func (r *repl) cmdPrev() {
	if len(r.jobs) == 0 {
		fmt.Println("no jobs")
		return
	}

	if r.cur > 0 {
		r.cur--
	}

	r.printJob(r.cur)
}

func (r *repl) cmdShow(args []string) {
	if len(args) != 1 {
		fmt.Println("usage: show <n>")
		return
	}

	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 || n >= len(r.jobs) {
		fmt.Printf("no such job: %s\n", args[0])
		return
	}

	r.cur = n

	r.printJob(n)
}

func (r *repl) cmdFind(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: find <substring>")
		return
	}

	needle := []byte(strings.Join(args, " "))

	for i := r.cur + 1; i < len(r.jobs); i++ {
		if jobMatches(r.jobs[i], needle) {
			r.cur = i
			r.printJob(i)

			return
		}
	}

	fmt.Println("no match found after current position")
}

func jobMatches(job cram.Job, needle []byte) bool {
	if bytes.Contains(job.WorkingDir, needle) {
		return true
	}

	for _, a := range job.Args {
		if bytes.Contains(a, needle) {
			return true
		}
	}

	return false
}

func (r *repl) printJob(idx int) {
	j := r.jobs[idx]

	fmt.Printf("job #%d\n", idx)
	fmt.Printf("  num_procs:   %d\n", j.NumProcs)
	fmt.Printf("  working_dir: %s\n", j.WorkingDir)
	fmt.Printf("  args:        %q\n", j.Args)
	fmt.Printf("  env entries: %d\n", len(j.Env))
}

func (r *repl) completer(line string) []string {
	commands := []string{"next", "prev", "show", "find", "info", "help", "exit", "quit"}

	var matches []string

	for _, c := range commands {
		if strings.HasPrefix(c, line) {
			matches = append(matches, c)
		}
	}

	return matches
}
