// Package testgen synthesizes a directory tree of per-job working
// directories plus a matching Cramfile, for exercising a cram build
// end-to-end the way the original test-gen/test-verify commands do. It
// holds no format knowledge of its own: it only drives the public cram
// API (Container.Pack, Container.Iterate).
package testgen

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/llnl/cram"
)

// Result describes a generated test ensemble.
type Result struct {
	TestDir   string
	CramFile  string
	NumJobs   int
	JobsTotal uint32 // total procs packed, i.e. numProcs
}

// Generate builds testDir/wdir.<n>/ directories (jobsPerDir jobs per
// directory) and a cram.job Cramfile under testDir, one job per job_size
// chunk of nprocs, mirroring the original cram test-gen layout
// (cram-test-outputs/<nprocs>/<jobSize>).
func Generate(baseDir string, nprocs, jobSize, jobsPerDir uint32) (Result, error) {
	if jobSize == 0 {
		return Result{}, fmt.Errorf("testgen: job_size must be >= 1")
	}

	if jobsPerDir == 0 {
		jobsPerDir = 1024
	}

	testDir := filepath.Join(baseDir, "cram-test-outputs", strconv.FormatUint(uint64(nprocs), 10), strconv.FormatUint(uint64(jobSize), 10))
	if err := os.MkdirAll(testDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("testgen: mkdir %s: %w", testDir, err)
	}

	cramFile := filepath.Join(testDir, "cram.job")

	c, err := cram.OpenWrite(cramFile)
	if err != nil {
		return Result{}, fmt.Errorf("testgen: open %s: %w", cramFile, err)
	}

	defer c.Close()

	var (
		jobID uint32
		wdir  string
	)

	for rank := uint32(0); rank < nprocs; rank += jobSize {
		if jobID%jobsPerDir == 0 {
			wdir = filepath.Join(testDir, fmt.Sprintf("wdir.%d", jobID/jobsPerDir))
			if err := os.MkdirAll(wdir, 0o755); err != nil {
				return Result{}, fmt.Errorf("testgen: mkdir %s: %w", wdir, err)
			}
		}

		job := cram.NewJob(jobSize, []byte(wdir),
			[]string{cram.UseAppExe, "foo", "bar", "baz", strconv.FormatUint(uint64(jobID), 10)},
			map[string][]byte{"CRAM_JOB_ID": []byte(strconv.FormatUint(uint64(jobID), 10))})

		if err := c.Pack(job); err != nil {
			return Result{}, fmt.Errorf("testgen: pack job %d: %w", jobID, err)
		}

		jobID++
	}

	if err := c.Close(); err != nil {
		return Result{}, fmt.Errorf("testgen: close: %w", err)
	}

	return Result{TestDir: testDir, CramFile: cramFile, NumJobs: int(jobID), JobsTotal: jobID * jobSize}, nil
}

// Verify re-reads the Cramfile under testDir and checks that every job's
// last argument and CRAM_JOB_ID environment entry equal its position in
// the sequence, that its working directory is non-empty and exists, and
// that the number of jobs iterated matches the header. It does not check
// which wdir.<n> directory a job points at, nor the arguments before the
// last one. It does not check program stdout: running the packed jobs is
// the MPI backend's job, out of scope for cram itself.
func Verify(testDir string) error {
	cramFile := filepath.Join(testDir, "cram.job")

	c, err := cram.OpenRead(cramFile)
	if err != nil {
		return fmt.Errorf("testgen: open %s: %w", cramFile, err)
	}
	defer c.Close()

	it := c.Iterate()

	var jobID uint64

	for it.Next() {
		job := it.Job()

		wantID := strconv.FormatUint(jobID, 10)

		if len(job.Args) == 0 || string(job.Args[len(job.Args)-1]) != wantID {
			return fmt.Errorf("testgen: job %d: args do not end with job id %s: %q", jobID, wantID, job.Args)
		}

		gotID, ok := job.Env["CRAM_JOB_ID"]
		if !ok || string(gotID) != wantID {
			return fmt.Errorf("testgen: job %d: CRAM_JOB_ID env mismatch: got %q, want %s", jobID, gotID, wantID)
		}

		if len(job.WorkingDir) == 0 {
			return fmt.Errorf("testgen: job %d: empty working directory", jobID)
		}

		if _, err := os.Stat(string(job.WorkingDir)); err != nil {
			return fmt.Errorf("testgen: job %d: working directory %s: %w", jobID, job.WorkingDir, err)
		}

		jobID++
	}

	if err := it.Err(); err != nil {
		return fmt.Errorf("testgen: verify: %w", err)
	}

	if jobID != c.NumJobs() {
		return fmt.Errorf("testgen: verify: iterated %d jobs, header declares %d", jobID, c.NumJobs())
	}

	return nil
}
