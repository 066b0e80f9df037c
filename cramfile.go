// Package cram implements the Cramfile container: a binary format that
// packs many independent job invocations into one file so a parallel
// allocation can later fan them all out. See spec.md for the normative
// format description.
package cram

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/llnl/cram/codec"
	"github.com/llnl/cram/envdiff"
	"github.com/llnl/cram/pkg/stream"
)

// Mode is the mode a Container was opened in. A Container is single-
// purpose: there is no transition between Read and Write/Append.
type Mode int

const (
	// ModeRead opens an existing Cramfile for streaming iteration.
	ModeRead Mode = iota
	// ModeWrite truncates (or creates) a Cramfile for packing.
	ModeWrite
	// ModeAppend extends an existing Cramfile, or creates one if absent.
	ModeAppend
)

// Container is a stateful object over a seekable byte stream that
// maintains a running header summary and packs or iterates Job records.
//
// A Container exclusively owns its stream and must be closed exactly
// once. It is not safe for concurrent use by multiple goroutines.
type Container struct {
	file stream.File
	mode Mode

	header fileHeader

	// baseline is the first job written to or read from the file. It is
	// retained for the lifetime of the Container and used as the
	// reference point for environment diffing; other jobs are never
	// cached (spec.md §3, "bounded writer memory").
	baseline *Job

	closed bool
}

// OpenRead opens path for streaming iteration. The path must exist, be a
// regular file, and start with a valid v2 header. If the file contains at
// least one job, job #0 is eagerly decoded and retained as the baseline.
func OpenRead(path string) (*Container, error) {
	return openRead(stream.NewReal(), path)
}

// OpenWrite truncates (or creates) path and writes a fresh zeroed-counter
// header.
func OpenWrite(path string) (*Container, error) {
	return openWrite(stream.NewReal(), path)
}

// OpenAppend opens path for appending. If path does not exist, it behaves
// like OpenWrite. Otherwise the existing header is validated as in
// OpenRead and the stream is seeked to the end.
func OpenAppend(path string) (*Container, error) {
	return openAppend(stream.NewReal(), path)
}

// OpenReadFS is OpenRead against a caller-supplied [stream.FS], primarily
// for testing without touching the real filesystem.
func OpenReadFS(fsys stream.FS, path string) (*Container, error) {
	return openRead(fsys, path)
}

// OpenWriteFS is OpenWrite against a caller-supplied [stream.FS].
func OpenWriteFS(fsys stream.FS, path string) (*Container, error) {
	return openWrite(fsys, path)
}

// OpenAppendFS is OpenAppend against a caller-supplied [stream.FS].
func OpenAppendFS(fsys stream.FS, path string) (*Container, error) {
	return openAppend(fsys, path)
}

func openRead(fsys stream.FS, path string) (*Container, error) {
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cram: open read: %w", err)
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("cram: open read: %q is not a regular file", path)
	}

	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cram: open read: %w", err)
	}

	c := &Container{file: f, mode: ModeRead}

	if err := c.readHeaderAndBaseline(); err != nil {
		_ = f.Close()
		return nil, err
	}

	return c, nil
}

func openWrite(fsys stream.FS, path string) (*Container, error) {
	f, err := fsys.Create(path)
	if err != nil {
		return nil, fmt.Errorf("cram: open write: %w", err)
	}

	c := &Container{file: f, mode: ModeWrite, header: fileHeader{version: formatVersion}}

	if err := writeHeader(f, c.header); err != nil {
		_ = f.Close()
		return nil, err
	}

	return c, nil
}

func openAppend(fsys stream.FS, path string) (*Container, error) {
	_, statErr := fsys.Stat(path)
	if statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return openWrite(fsys, path)
		}

		return nil, fmt.Errorf("cram: open append: %w", statErr)
	}

	f, err := fsys.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("cram: open append: %w", err)
	}

	c := &Container{file: f, mode: ModeAppend}

	if err := c.readHeaderAndBaseline(); err != nil {
		_ = f.Close()
		return nil, err
	}

	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("cram: open append: seek end: %w", err)
	}

	return c, nil
}

// readHeaderAndBaseline reads the 20-byte header and, if it declares at
// least one job, eagerly decodes job #0 as the baseline. The stream ends
// up positioned immediately after job #0 (or after the header, if empty).
func (c *Container) readHeaderAndBaseline() error {
	if _, err := c.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("cram: seek header: %w", err)
	}

	h, err := readHeader(c.file)
	if err != nil {
		return err
	}

	c.header = h

	if h.numJobs > 0 {
		job, err := c.readRecord(nil)
		if err != nil {
			return err
		}

		c.baseline = &job
	}

	return nil
}

// Version returns the file format version.
func (c *Container) Version() uint32 { return c.header.version }

// NumJobs returns the number of jobs recorded in the header.
func (c *Container) NumJobs() uint64 { return c.header.numJobs }

// NumProcs returns the sum of num_procs across all packed jobs.
func (c *Container) NumProcs() uint64 { return c.header.numProcs }

// MaxJobSize returns the largest record_size_bytes written so far.
func (c *Container) MaxJobSize() uint64 { return c.header.maxJobSize }

// Len returns the number of jobs in the file (same as NumJobs).
func (c *Container) Len() uint64 { return c.header.numJobs }

// Pack appends job to the Container, compressing its environment against
// the baseline (the first job ever packed). Header counters are updated
// only after the record body is fully written and its size backpatched.
func (c *Container) Pack(job Job) error {
	if c.closed {
		return fmt.Errorf("cram: pack: %w: container is closed", ErrModeViolation)
	}

	if c.mode == ModeRead {
		return fmt.Errorf("cram: pack: %w: container opened for reading", ErrModeViolation)
	}

	if job.NumProcs < 1 {
		return errors.New("cram: pack: job.NumProcs must be >= 1")
	}

	start, err := c.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("cram: pack: seek: %w", err)
	}

	size, err := c.writeRecordBody(job)
	if err != nil {
		return err
	}

	end, err := c.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("cram: pack: seek: %w", err)
	}

	if err := c.backpatch(start, end, job.NumProcs, size); err != nil {
		return err
	}

	if c.baseline == nil {
		cloned := job.clone()
		c.baseline = &cloned
	}

	return nil
}

// PackArgs is a convenience that prepends the exe sentinel to args and
// delegates to Pack. exe defaults to [UseAppExe] when empty.
func (c *Container) PackArgs(numProcs uint32, workingDir []byte, args [][]byte, env map[string][]byte, exe string) error {
	if exe == "" {
		exe = UseAppExe
	}

	full := make([][]byte, 0, len(args)+1)
	full = append(full, []byte(exe))
	full = append(full, args...)

	return c.Pack(Job{NumProcs: numProcs, WorkingDir: workingDir, Args: full, Env: env})
}

// writeRecordBody writes the placeholder size, then the job fields and the
// env diff, returning the number of bytes written after the placeholder
// (the eventual record_size_bytes).
func (c *Container) writeRecordBody(job Job) (uint64, error) {
	if _, err := codec.WriteUint(c.file, 0, 4); err != nil {
		return 0, fmt.Errorf("cram: pack: write placeholder size: %w", err)
	}

	var size uint64

	add := func(n int, err error) error {
		if err != nil {
			return err
		}

		size += uint64(n)

		return nil
	}

	if err := add(codec.WriteUint(c.file, uint64(job.NumProcs), 4)); err != nil {
		return 0, fmt.Errorf("cram: pack: write num_procs: %w", err)
	}

	if err := add(codec.WriteBytes(c.file, job.WorkingDir)); err != nil {
		return 0, fmt.Errorf("cram: pack: write working_dir: %w", err)
	}

	if err := add(codec.WriteUint(c.file, uint64(len(job.Args)), 4)); err != nil {
		return 0, fmt.Errorf("cram: pack: write num_args: %w", err)
	}

	for _, arg := range job.Args {
		if err := add(codec.WriteBytes(c.file, arg)); err != nil {
			return 0, fmt.Errorf("cram: pack: write arg: %w", err)
		}
	}

	baseEnv := map[string][]byte{}
	if c.baseline != nil {
		baseEnv = c.baseline.Env
	}

	diff := envdiff.Compute(baseEnv, job.Env)

	removedKeys := make([]string, len(diff.Removed))
	for i, k := range diff.Removed {
		removedKeys[i] = string(k)
	}

	sort.Strings(removedKeys)

	if err := add(codec.WriteUint(c.file, uint64(len(removedKeys)), 4)); err != nil {
		return 0, fmt.Errorf("cram: pack: write num_removed: %w", err)
	}

	for _, k := range removedKeys {
		if err := add(codec.WriteBytes(c.file, []byte(k))); err != nil {
			return 0, fmt.Errorf("cram: pack: write removed key: %w", err)
		}
	}

	changedKeys := make([]string, 0, len(diff.Changed))
	for k := range diff.Changed {
		changedKeys = append(changedKeys, k)
	}

	sort.Strings(changedKeys)

	if err := add(codec.WriteUint(c.file, uint64(len(changedKeys)), 4)); err != nil {
		return 0, fmt.Errorf("cram: pack: write num_changed: %w", err)
	}

	for _, k := range changedKeys {
		if err := add(codec.WriteBytes(c.file, []byte(k))); err != nil {
			return 0, fmt.Errorf("cram: pack: write changed key: %w", err)
		}

		if err := add(codec.WriteBytes(c.file, diff.Changed[k])); err != nil {
			return 0, fmt.Errorf("cram: pack: write changed value: %w", err)
		}
	}

	return size, nil
}

// backpatch overwrites the record_size_bytes placeholder at start, updates
// the header counters, and restores the stream to end. Counters are only
// durable after this call returns, so a reader that sees the updated
// num_jobs can trust the full record it names (spec.md §5, §9).
func (c *Container) backpatch(start, end int64, numProcs uint32, size uint64) error {
	defer func() {
		_, _ = c.file.Seek(end, io.SeekStart)
	}()

	if _, err := c.file.Seek(start, io.SeekStart); err != nil {
		return fmt.Errorf("cram: pack: seek record start: %w", err)
	}

	if _, err := codec.WriteUint(c.file, size, 4); err != nil {
		return fmt.Errorf("cram: pack: backpatch record size: %w", err)
	}

	c.header.numJobs++
	c.header.numProcs += uint64(numProcs)

	if size > c.header.maxJobSize {
		c.header.maxJobSize = size
	}

	if _, err := c.file.Seek(offMagic, io.SeekStart); err != nil {
		return fmt.Errorf("cram: pack: seek header: %w", err)
	}

	if err := writeHeader(c.file, c.header); err != nil {
		return fmt.Errorf("cram: pack: update header: %w", err)
	}

	return nil
}

// readRecord reads the next job record, reconstructing its environment
// against baseEnv (the baseline's environment, or nil/empty for job #0).
func (c *Container) readRecord(baseEnv map[string][]byte) (Job, error) {
	recordSize, err := codec.ReadUint(c.file, 4)
	if err != nil {
		return Job{}, fmt.Errorf("cram: read record size: %w", err)
	}

	start, err := c.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return Job{}, fmt.Errorf("cram: read record: seek: %w", err)
	}

	numProcs, err := codec.ReadUint(c.file, 4)
	if err != nil {
		return Job{}, fmt.Errorf("cram: read num_procs: %w", err)
	}

	workingDir, err := codec.ReadBytes(c.file)
	if err != nil {
		return Job{}, fmt.Errorf("cram: read working_dir: %w", err)
	}

	numArgs, err := codec.ReadUint(c.file, 4)
	if err != nil {
		return Job{}, fmt.Errorf("cram: read num_args: %w", err)
	}

	args := make([][]byte, 0, numArgs)

	for i := uint64(0); i < numArgs; i++ {
		arg, err := codec.ReadBytes(c.file)
		if err != nil {
			return Job{}, fmt.Errorf("cram: read arg %d: %w", i, err)
		}

		args = append(args, arg)
	}

	numRemoved, err := codec.ReadUint(c.file, 4)
	if err != nil {
		return Job{}, fmt.Errorf("cram: read num_removed: %w", err)
	}

	removed := make([][]byte, 0, numRemoved)

	for i := uint64(0); i < numRemoved; i++ {
		key, err := codec.ReadBytes(c.file)
		if err != nil {
			return Job{}, fmt.Errorf("cram: read removed key %d: %w", i, err)
		}

		removed = append(removed, key)
	}

	numChanged, err := codec.ReadUint(c.file, 4)
	if err != nil {
		return Job{}, fmt.Errorf("cram: read num_changed: %w", err)
	}

	changed := make(map[string][]byte, numChanged)

	for i := uint64(0); i < numChanged; i++ {
		key, err := codec.ReadBytes(c.file)
		if err != nil {
			return Job{}, fmt.Errorf("cram: read changed key %d: %w", i, err)
		}

		value, err := codec.ReadBytes(c.file)
		if err != nil {
			return Job{}, fmt.Errorf("cram: read changed value %d: %w", i, err)
		}

		changed[string(key)] = value
	}

	actualSize, err := c.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return Job{}, fmt.Errorf("cram: read record: seek: %w", err)
	}

	if uint64(actualSize-start) != recordSize {
		return Job{}, fmt.Errorf("%w: declared %d, decoded %d bytes", ErrCorruptRecord, recordSize, actualSize-start)
	}

	env := envdiff.Apply(baseEnv, envdiff.Diff{Removed: removed, Changed: changed})

	return Job{NumProcs: uint32(numProcs), WorkingDir: workingDir, Args: args, Env: env}, nil
}

// Iterate returns an Iterator over all jobs in file order, starting with
// the cached baseline. Iterate requires the Container to be in ModeRead.
func (c *Container) Iterate() *Iterator {
	if c.mode != ModeRead {
		return &Iterator{err: fmt.Errorf("cram: iterate: %w: container not opened for reading", ErrModeViolation)}
	}

	return &Iterator{c: c}
}

// Close flushes and releases the underlying stream. Idempotent.
func (c *Container) Close() error {
	if c.closed {
		return nil
	}

	c.closed = true

	if c.mode != ModeRead {
		if err := c.file.Sync(); err != nil {
			_ = c.file.Close()
			return fmt.Errorf("cram: close: sync: %w", err)
		}
	}

	if err := c.file.Close(); err != nil {
		return fmt.Errorf("cram: close: %w", err)
	}

	return nil
}
