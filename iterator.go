package cram

import "errors"

// Iterator yields the Jobs in a Container opened for reading, in file
// order. It is a finite, non-restartable sequence: once exhausted (or once
// it returns an error), it yields nothing further.
//
// Usage:
//
//	it := c.Iterate()
//	for it.Next() {
//	    job := it.Job()
//	    // ...
//	}
//	if err := it.Err(); err != nil {
//	    // handle
//	}
type Iterator struct {
	c   *Container
	idx uint64
	cur Job
	err error
}

// Next advances the iterator and reports whether a Job is available via
// Job. It returns false at the end of the sequence or on error; call Err
// to distinguish the two.
func (it *Iterator) Next() bool {
	if it.err != nil || it.c == nil {
		return false
	}

	if it.idx >= it.c.header.numJobs {
		return false
	}

	if it.idx == 0 {
		if it.c.baseline == nil {
			it.err = errors.New("cram: iterate: num_jobs > 0 but no baseline was decoded")
			return false
		}

		it.cur = it.c.baseline.clone()
		it.idx++

		return true
	}

	baseEnv := map[string][]byte{}
	if it.c.baseline != nil {
		baseEnv = it.c.baseline.Env
	}

	job, err := it.c.readRecord(baseEnv)
	if err != nil {
		it.err = err
		return false
	}

	it.cur = job
	it.idx++

	return true
}

// Job returns the Job most recently yielded by Next.
func (it *Iterator) Job() Job { return it.cur }

// Err returns the first error encountered during iteration, if any.
func (it *Iterator) Err() error { return it.err }
