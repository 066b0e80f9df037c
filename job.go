package cram

import (
	"bytes"
	"strings"
)

// UseAppExe is the sentinel placeholder recognized by the MPI-side launcher
// as "substitute the host application's executable name here." Cram treats
// it as ordinary opaque bytes; only the launcher interprets it.
const UseAppExe = "<exe>"

// Job bundles all context needed to launch a single MPI job invocation
// later: process count, working directory, argument vector, and
// environment. Once appended to a Container, a Job is never rewritten.
type Job struct {
	NumProcs   uint32
	WorkingDir []byte
	Args       [][]byte
	Env        map[string][]byte
}

// NewJob constructs a Job. args may be passed as a single whitespace-
// delimited string for convenience; it is split on runs of whitespace
// (quotes and escapes are not interpreted). The on-disk representation
// always stores the already-split vector — this convenience never affects
// serialization.
func NewJob(numProcs uint32, workingDir []byte, args any, env map[string][]byte) Job {
	var argv [][]byte

	switch v := args.(type) {
	case string:
		for _, field := range strings.Fields(v) {
			argv = append(argv, []byte(field))
		}
	case [][]byte:
		argv = v
	case []string:
		for _, s := range v {
			argv = append(argv, []byte(s))
		}
	}

	if env == nil {
		env = map[string][]byte{}
	}

	return Job{NumProcs: numProcs, WorkingDir: workingDir, Args: argv, Env: env}
}

// Equal reports whether j and other have structural equality: equal
// NumProcs, WorkingDir, Args (elementwise, ordered), and Env (as a
// mapping, unordered).
func (j Job) Equal(other Job) bool {
	if j.NumProcs != other.NumProcs {
		return false
	}

	if !bytes.Equal(j.WorkingDir, other.WorkingDir) {
		return false
	}

	if len(j.Args) != len(other.Args) {
		return false
	}

	for i := range j.Args {
		if !bytes.Equal(j.Args[i], other.Args[i]) {
			return false
		}
	}

	if len(j.Env) != len(other.Env) {
		return false
	}

	for k, v := range j.Env {
		ov, ok := other.Env[k]
		if !ok || !bytes.Equal(v, ov) {
			return false
		}
	}

	return true
}

// clone returns a defensive deep copy of j, so that later caller-side
// mutations of the original cannot alter a Container's retained baseline.
func (j Job) clone() Job {
	workingDir := append([]byte(nil), j.WorkingDir...)

	args := make([][]byte, len(j.Args))
	for i, a := range j.Args {
		args[i] = append([]byte(nil), a...)
	}

	env := make(map[string][]byte, len(j.Env))
	for k, v := range j.Env {
		env[k] = append([]byte(nil), v...)
	}

	return Job{NumProcs: j.NumProcs, WorkingDir: workingDir, Args: args, Env: env}
}
