package cram

import (
	"fmt"
	"io"

	"github.com/llnl/cram/codec"
)

// Fixed 20-byte header prefix at file offset 0 (spec.md §3, §4.4).
const (
	magic         uint32 = 0x6372616d
	formatVersion uint32 = 2

	headerSize = 20

	offMagic      = 0
	offVersion    = 4
	offNumJobs    = 8
	offNumProcs   = 12
	offMaxJobSize = 16
)

// fileHeader mirrors the fixed 20-byte Cramfile header.
type fileHeader struct {
	version    uint32
	numJobs    uint64
	numProcs   uint64
	maxJobSize uint64
}

// writeHeader writes the full 20-byte header at the current stream
// position, which must be offset 0.
func writeHeader(w io.Writer, h fileHeader) error {
	if _, err := codec.WriteUint(w, uint64(magic), 4); err != nil {
		return fmt.Errorf("cram: write header magic: %w", err)
	}

	if _, err := codec.WriteUint(w, uint64(h.version), 4); err != nil {
		return fmt.Errorf("cram: write header version: %w", err)
	}

	if _, err := codec.WriteUint(w, h.numJobs, 4); err != nil {
		return fmt.Errorf("cram: write header num_jobs: %w", err)
	}

	if _, err := codec.WriteUint(w, h.numProcs, 4); err != nil {
		return fmt.Errorf("cram: write header num_procs: %w", err)
	}

	if _, err := codec.WriteUint(w, h.maxJobSize, 4); err != nil {
		return fmt.Errorf("cram: write header max_job_size: %w", err)
	}

	return nil
}

// readHeader reads and validates the 20-byte header at the current stream
// position, which must be offset 0.
func readHeader(r io.Reader) (fileHeader, error) {
	gotMagic, err := codec.ReadUint(r, 4)
	if err != nil {
		return fileHeader{}, fmt.Errorf("cram: read header magic: %w", err)
	}

	if uint32(gotMagic) != magic {
		return fileHeader{}, fmt.Errorf("%w: got 0x%x", ErrBadMagic, gotMagic)
	}

	version, err := codec.ReadUint(r, 4)
	if err != nil {
		return fileHeader{}, fmt.Errorf("cram: read header version: %w", err)
	}

	if uint32(version) != formatVersion {
		return fileHeader{}, fmt.Errorf("%w: file has version %d, this is version %d",
			ErrVersionMismatch, version, formatVersion)
	}

	numJobs, err := codec.ReadUint(r, 4)
	if err != nil {
		return fileHeader{}, fmt.Errorf("cram: read header num_jobs: %w", err)
	}

	numProcs, err := codec.ReadUint(r, 4)
	if err != nil {
		return fileHeader{}, fmt.Errorf("cram: read header num_procs: %w", err)
	}

	maxJobSize, err := codec.ReadUint(r, 4)
	if err != nil {
		return fileHeader{}, fmt.Errorf("cram: read header max_job_size: %w", err)
	}

	return fileHeader{
		version:    uint32(version),
		numJobs:    numJobs,
		numProcs:   numProcs,
		maxJobSize: maxJobSize,
	}, nil
}
