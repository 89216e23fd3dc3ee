// Package checksum computes file digests for transfer verification.
//
// Two algorithms are exposed: BLAKE3 for full cryptographic verification
// and xxhash64 for the cheap fast level and per-range resume checks.
package checksum

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// windowSize is the read granularity when streaming a file through a hash.
const windowSize = 1 << 20 // 1 MiB

var windowPool = sync.Pool{
	New: func() any {
		b := make([]byte, windowSize)
		return &b
	},
}

// File computes the BLAKE3 hash of the file at path, returning the
// hex-encoded digest.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := blake3.New()
	bufp := windowPool.Get().(*[]byte)
	defer windowPool.Put(bufp)
	if _, err := io.CopyBuffer(h, f, *bufp); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// FastFile computes the xxhash64 digest of the file at path.
func FastFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := xxhash.New()
	bufp := windowPool.Get().(*[]byte)
	defer windowPool.Put(bufp)
	if _, err := io.CopyBuffer(h, f, *bufp); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return FormatFast(h.Sum64()), nil
}

// FastRange computes the xxhash64 digest of length bytes starting at
// offset in the file at path. Used to re-check already-written ranges
// before a resume continues.
func FastRange(path string, offset, length int64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := xxhash.New()
	bufp := windowPool.Get().(*[]byte)
	defer windowPool.Put(bufp)
	if _, err := io.CopyBuffer(h, io.NewSectionReader(f, offset, length), *bufp); err != nil {
		return "", fmt.Errorf("hash %s [%d,%d): %w", path, offset, offset+length, err)
	}

	return FormatFast(h.Sum64()), nil
}

// FormatFast renders an xxhash64 sum in the fixed-width hex form stored
// in ledgers and compared during fast verification.
func FormatFast(sum uint64) string {
	return fmt.Sprintf("%016x", sum)
}
