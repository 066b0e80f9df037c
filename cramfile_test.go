package cram_test

import (
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/llnl/cram"
	"github.com/llnl/cram/codec"
	"github.com/llnl/cram/pkg/stream"
)

func bs(s string) []byte { return []byte(s) }

func envOf(pairs ...string) map[string][]byte {
	env := make(map[string][]byte, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		env[pairs[i]] = []byte(pairs[i+1])
	}

	return env
}

func collectJobs(t *testing.T, c *cram.Container) []cram.Job {
	t.Helper()

	var jobs []cram.Job

	it := c.Iterate()
	for it.Next() {
		jobs = append(jobs, it.Job())
	}

	require.NoError(t, it.Err())

	return jobs
}

func TestEmptyContainer(t *testing.T) {
	t.Parallel()

	fsys := stream.NewMem()

	w, err := cram.OpenWriteFS(fsys, "/empty.cram")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	info, err := fsys.Stat("/empty.cram")
	require.NoError(t, err)
	require.Equal(t, int64(20), info.Size())

	f, err := fsys.Open("/empty.cram")
	require.NoError(t, err)

	magicBytes := make([]byte, 4)
	_, err = io.ReadFull(f, magicBytes)
	require.NoError(t, err)
	require.Equal(t, []byte{0x63, 0x72, 0x61, 0x6d}, magicBytes)

	r, err := cram.OpenReadFS(fsys, "/empty.cram")
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, uint64(0), r.NumJobs())
	require.Equal(t, uint64(0), r.NumProcs())
	require.Equal(t, uint64(0), r.MaxJobSize())
	require.Empty(t, collectJobs(t, r))
}

func TestSingleJobRoundTrip(t *testing.T) {
	t.Parallel()

	fsys := stream.NewMem()

	job := cram.Job{
		NumProcs:   64,
		WorkingDir: bs("/foo/bar/baz"),
		Args:       [][]byte{bs("foo"), bs("bar"), bs("baz")},
		Env:        envOf("foo", "bar", "bar", "baz", "baz", "quux"),
	}

	w, err := cram.OpenWriteFS(fsys, "/one.cram")
	require.NoError(t, err)
	require.NoError(t, w.Pack(job))
	require.NoError(t, w.Close())

	r, err := cram.OpenReadFS(fsys, "/one.cram")
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, uint64(1), r.NumJobs())
	require.Equal(t, uint64(64), r.NumProcs())

	jobs := collectJobs(t, r)
	require.Len(t, jobs, 1)
	require.True(t, job.Equal(jobs[0]), cmp.Diff(job, jobs[0]))
}

// TestIteratedBaselineIsIsolatedFromContainer guards the ownership rule
// in spec.md §3: a Job yielded by Iterate is the caller's own copy.
// Mutating it must not corrupt the Container's retained baseline, which
// every later readRecord call reconstructs the environment against.
func TestIteratedBaselineIsIsolatedFromContainer(t *testing.T) {
	t.Parallel()

	fsys := stream.NewMem()

	job0 := cram.Job{
		NumProcs:   1,
		WorkingDir: bs("/work/0"),
		Args:       [][]byte{bs("<exe>")},
		Env:        envOf("SHARED", "original"),
	}
	job1 := cram.Job{
		NumProcs:   1,
		WorkingDir: bs("/work/1"),
		Args:       [][]byte{bs("<exe>")},
		Env:        envOf("SHARED", "original"),
	}

	w, err := cram.OpenWriteFS(fsys, "/baseline.cram")
	require.NoError(t, err)
	require.NoError(t, w.Pack(job0))
	require.NoError(t, w.Pack(job1))
	require.NoError(t, w.Close())

	r, err := cram.OpenReadFS(fsys, "/baseline.cram")
	require.NoError(t, err)
	defer r.Close()

	it := r.Iterate()
	require.True(t, it.Next())

	baseline := it.Job()
	baseline.Env["SHARED"] = []byte("mutated-by-caller")
	baseline.Env["INJECTED"] = []byte("should-not-leak")

	require.True(t, it.Next())
	second := it.Job()

	require.Equal(t, "original", string(second.Env["SHARED"]), "caller mutation of the yielded baseline leaked into a later job's reconstructed environment")
	_, injected := second.Env["INJECTED"]
	require.False(t, injected, "caller mutation of the yielded baseline leaked a new key into a later job's reconstructed environment")
}

func buildEnsemble(n int) []cram.Job {
	sizes := []uint32{1, 2, 4, 8, 16}
	jobs := make([]cram.Job, n)

	for i := 0; i < n; i++ {
		env := envOf(
			"WORKING_DIR", "job-dir",
			"INDEX", string(rune('0'+i%10)),
			"PATH", "/usr/bin:/bin",
			"SHARED", "constant-value",
		)

		if i%3 != 0 {
			delete(env, "PATH")
		}

		jobs[i] = cram.Job{
			NumProcs:   sizes[i%len(sizes)],
			WorkingDir: []byte("/work/job"),
			Args:       [][]byte{bs("<exe>"), bs("--index"), []byte(string(rune('0' + i%10)))},
			Env:        env,
		}
	}

	return jobs
}

func TestManyJobRoundTrip(t *testing.T) {
	t.Parallel()

	const n = 512

	jobs := buildEnsemble(n)

	fsys := stream.NewMem()

	w, err := cram.OpenWriteFS(fsys, "/many.cram")
	require.NoError(t, err)

	var wantProcs uint64

	for _, j := range jobs {
		require.NoError(t, w.Pack(j))
		wantProcs += uint64(j.NumProcs)
	}

	require.NoError(t, w.Close())

	r, err := cram.OpenReadFS(fsys, "/many.cram")
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, uint64(n), r.NumJobs())
	require.Equal(t, wantProcs, r.NumProcs())

	got := collectJobs(t, r)
	require.Len(t, got, n)

	for i := range jobs {
		require.True(t, jobs[i].Equal(got[i]), "job %d mismatch: %s", i, cmp.Diff(jobs[i], got[i]))
	}
}

func TestAppendEquivalence(t *testing.T) {
	t.Parallel()

	jobs := buildEnsemble(64)

	// One session.
	oneSession := stream.NewMem()

	w, err := cram.OpenWriteFS(oneSession, "/a.cram")
	require.NoError(t, err)

	for _, j := range jobs {
		require.NoError(t, w.Pack(j))
	}

	require.NoError(t, w.Close())

	// Many sessions, one append per job.
	manySessions := stream.NewMem()

	for _, j := range jobs {
		aw, err := cram.OpenAppendFS(manySessions, "/b.cram")
		require.NoError(t, err)
		require.NoError(t, aw.Pack(j))
		require.NoError(t, aw.Close())
	}

	r1, err := cram.OpenReadFS(oneSession, "/a.cram")
	require.NoError(t, err)
	defer r1.Close()

	r2, err := cram.OpenReadFS(manySessions, "/b.cram")
	require.NoError(t, err)
	defer r2.Close()

	require.Equal(t, r1.NumJobs(), r2.NumJobs())
	require.Equal(t, r1.NumProcs(), r2.NumProcs())
	require.Equal(t, r1.MaxJobSize(), r2.MaxJobSize())

	got1 := collectJobs(t, r1)
	got2 := collectJobs(t, r2)
	require.Len(t, got2, len(got1))

	for i := range got1 {
		require.True(t, got1[i].Equal(got2[i]), "job %d mismatch: %s", i, cmp.Diff(got1[i], got2[i]))
	}
}

func TestHeaderConsistencyAfterEveryPack(t *testing.T) {
	t.Parallel()

	jobs := buildEnsemble(20)
	fsys := stream.NewMem()

	w, err := cram.OpenWriteFS(fsys, "/c.cram")
	require.NoError(t, err)

	var wantProcs uint64

	var wantMax uint64

	for i, j := range jobs {
		require.NoError(t, w.Pack(j))

		wantProcs += uint64(j.NumProcs)
		require.Equal(t, uint64(i+1), w.NumJobs())
		require.Equal(t, wantProcs, w.NumProcs())

		if w.MaxJobSize() > wantMax {
			wantMax = w.MaxJobSize()
		}
	}

	require.NoError(t, w.Close())
}

func TestRejectV1Header(t *testing.T) {
	t.Parallel()

	fsys := stream.NewMem()

	f, err := fsys.Create("/v1.cram")
	require.NoError(t, err)

	_, err = codec.WriteUint(f, 0x6372616d, 4)
	require.NoError(t, err)
	_, err = codec.WriteUint(f, 1, 4) // version 1
	require.NoError(t, err)
	_, err = codec.WriteUint(f, 0, 4)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = cram.OpenReadFS(fsys, "/v1.cram")
	require.ErrorIs(t, err, cram.ErrVersionMismatch)
}

func TestBadMagic(t *testing.T) {
	t.Parallel()

	fsys := stream.NewMem()

	f, err := fsys.Create("/bad.cram")
	require.NoError(t, err)
	_, err = codec.WriteUint(f, 0xdeadbeef, 4)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = cram.OpenReadFS(fsys, "/bad.cram")
	require.ErrorIs(t, err, cram.ErrBadMagic)
}

func TestCorruptRecordDetected(t *testing.T) {
	t.Parallel()

	fsys := stream.NewMem()

	job := cram.Job{
		NumProcs:   4,
		WorkingDir: bs("/foo/bar/baz"),
		Args:       [][]byte{bs("foo"), bs("bar")},
		Env:        envOf("foo", "bar"),
	}

	w, err := cram.OpenWriteFS(fsys, "/corrupt.cram")
	require.NoError(t, err)
	require.NoError(t, w.Pack(job))
	require.NoError(t, w.Close())

	// Corrupt the record_size_bytes field of job #0, at offset 20 (right
	// after the 20-byte header). Since job #0 is eagerly decoded at open
	// time, this surfaces as an OpenRead failure.
	f, err := fsys.OpenFile("/corrupt.cram", 0, 0)
	require.NoError(t, err)

	_, err = f.Seek(20, io.SeekStart)
	require.NoError(t, err)

	_, err = codec.WriteUint(f, 0xFFFFFFFF, 4)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = cram.OpenReadFS(fsys, "/corrupt.cram")
	require.ErrorIs(t, err, cram.ErrCorruptRecord)
}

func TestCorruptRecordDetectedOnSecondJob(t *testing.T) {
	t.Parallel()

	fsys := stream.NewMem()

	w, err := cram.OpenWriteFS(fsys, "/corrupt2.cram")
	require.NoError(t, err)
	require.NoError(t, w.Pack(cram.Job{NumProcs: 1, WorkingDir: bs("/a"), Env: envOf("A", "1")}))

	secondStart, err := func() (int64, error) {
		f, err := fsys.Open("/corrupt2.cram")
		if err != nil {
			return 0, err
		}

		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return 0, err
		}

		return info.Size(), nil
	}()
	require.NoError(t, err)

	require.NoError(t, w.Pack(cram.Job{NumProcs: 1, WorkingDir: bs("/b"), Env: envOf("A", "2")}))
	require.NoError(t, w.Close())

	f, err := fsys.OpenFile("/corrupt2.cram", 0, 0)
	require.NoError(t, err)

	// Corrupt the record_size_bytes field of the second record.
	_, err = f.Seek(secondStart, io.SeekStart)
	require.NoError(t, err)
	_, err = codec.WriteUint(f, 0xFFFF, 4)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := cram.OpenReadFS(fsys, "/corrupt2.cram")
	require.NoError(t, err)

	defer r.Close()

	it := r.Iterate()
	require.True(t, it.Next()) // baseline still fine

	require.False(t, it.Next())
	require.ErrorIs(t, it.Err(), cram.ErrCorruptRecord)
}

func TestPackRejectsZeroProcs(t *testing.T) {
	t.Parallel()

	fsys := stream.NewMem()

	w, err := cram.OpenWriteFS(fsys, "/zero.cram")
	require.NoError(t, err)

	err = w.Pack(cram.Job{NumProcs: 0, WorkingDir: bs("/x")})
	require.Error(t, err)
}

func TestPackOnReadContainerIsModeViolation(t *testing.T) {
	t.Parallel()

	fsys := stream.NewMem()

	w, err := cram.OpenWriteFS(fsys, "/ro.cram")
	require.NoError(t, err)
	require.NoError(t, w.Pack(cram.Job{NumProcs: 1, WorkingDir: bs("/x")}))
	require.NoError(t, w.Close())

	r, err := cram.OpenReadFS(fsys, "/ro.cram")
	require.NoError(t, err)
	defer r.Close()

	err = r.Pack(cram.Job{NumProcs: 1, WorkingDir: bs("/y")})
	require.ErrorIs(t, err, cram.ErrModeViolation)
}

func TestIterateOnWriteContainerIsModeViolation(t *testing.T) {
	t.Parallel()

	fsys := stream.NewMem()

	w, err := cram.OpenWriteFS(fsys, "/wo.cram")
	require.NoError(t, err)
	defer w.Close()

	it := w.Iterate()
	require.False(t, it.Next())
	require.ErrorIs(t, it.Err(), cram.ErrModeViolation)
}

func TestPackArgsPrependsSentinel(t *testing.T) {
	t.Parallel()

	fsys := stream.NewMem()

	w, err := cram.OpenWriteFS(fsys, "/exe.cram")
	require.NoError(t, err)
	require.NoError(t, w.PackArgs(8, bs("/work"), [][]byte{bs("--flag")}, envOf("A", "1"), ""))
	require.NoError(t, w.Close())

	r, err := cram.OpenReadFS(fsys, "/exe.cram")
	require.NoError(t, err)
	defer r.Close()

	jobs := collectJobs(t, r)
	require.Len(t, jobs, 1)
	require.Equal(t, [][]byte{bs(cram.UseAppExe), bs("--flag")}, jobs[0].Args)
}

func TestSortedEnvCanonicalBytes(t *testing.T) {
	t.Parallel()

	job := cram.Job{
		NumProcs:   2,
		WorkingDir: bs("/w"),
		Env:        envOf("ZETA", "1", "ALPHA", "2", "MID", "3"),
	}

	fsys1 := stream.NewMem()
	fsys2 := stream.NewMem()

	for _, fsys := range []*stream.Mem{fsys1, fsys2} {
		w, err := cram.OpenWriteFS(fsys, "/s.cram")
		require.NoError(t, err)
		require.NoError(t, w.Pack(job))
		require.NoError(t, w.Close())
	}

	f1, err := fsys1.Open("/s.cram")
	require.NoError(t, err)

	data1, err := io.ReadAll(f1)
	require.NoError(t, err)

	f2, err := fsys2.Open("/s.cram")
	require.NoError(t, err)

	data2, err := io.ReadAll(f2)
	require.NoError(t, err)

	require.Equal(t, data1, data2)
}

func TestCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	fsys := stream.NewMem()

	w, err := cram.OpenWriteFS(fsys, "/idem.cram")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
}
