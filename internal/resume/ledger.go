// Package resume persists the byte ranges a transfer has already
// completed, so an interrupted copy can continue instead of restarting.
//
// State lives in a JSON sidecar beside the destination file, named by
// appending a fixed suffix to the destination's final path segment. The
// format carries a schema version and ignores unknown fields, so newer
// writers stay readable. A record is only usable when its ranges, sorted
// by offset, tile contiguously from zero; any gap, overlap, or overrun
// invalidates the whole record.
//
// The ledger has no locking of its own. Callers must not run two
// transfers against the same destination path concurrently.
package resume

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"
)

// Suffix is appended to the destination's final path segment to name the
// sidecar file.
const Suffix = ".ferry-resume.json"

// Version is the schema version written into new records.
const Version = 1

// ErrInvalidState marks a sidecar that exists but cannot be trusted:
// unparseable content, a version this build doesn't know, ranges that
// fail contiguity validation, or a destination mismatch. Callers should
// warn that prior progress was lost and start fresh.
var ErrInvalidState = errors.New("invalid resume state")

// Range is one completed span of the destination file. Checksum, when
// present, is the xxhash64 digest of the span's bytes.
type Range struct {
	Offset   int64  `json:"offset"`
	Length   int64  `json:"length"`
	Checksum string `json:"checksum,omitempty"`
}

// End returns the first offset past the range.
func (r Range) End() int64 { return r.Offset + r.Length }

// Record is the persisted resume state for one destination path.
type Record struct {
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	TotalSize int64     `json:"total_size"`
	Ranges    []Range   `json:"ranges"`
	UpdatedAt time.Time `json:"updated_at"`
	Version   int       `json:"version"`
}

// NewRecord creates an empty record for a transfer that is starting
// without usable prior state.
func NewRecord(source, target string, totalSize int64) *Record {
	return &Record{
		Source:    source,
		Target:    target,
		TotalSize: totalSize,
		Version:   Version,
	}
}

// SidecarPath returns the sidecar file path for a destination.
func SidecarPath(target string) string {
	return target + Suffix
}

// Load reads and validates the sidecar for target. It returns (nil, nil)
// when no sidecar exists, and (nil, ErrInvalidState) when one exists but
// is unusable.
func Load(target string) (*Record, error) {
	data, err := os.ReadFile(SidecarPath(target))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read sidecar: %v", ErrInvalidState, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: parse sidecar: %v", ErrInvalidState, err)
	}
	if rec.Version == 0 || rec.Version > Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidState, rec.Version)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkRangeDone records [offset, offset+length) as completed. Adjacent
// checksum-free ranges coalesce to keep the sidecar small.
func (r *Record) MarkRangeDone(offset, length int64, checksum string) {
	if length <= 0 {
		return
	}
	if n := len(r.Ranges); n > 0 && checksum == "" {
		last := &r.Ranges[n-1]
		if last.Checksum == "" && last.End() == offset {
			last.Length += length
			return
		}
	}
	r.Ranges = append(r.Ranges, Range{Offset: offset, Length: length, Checksum: checksum})
}

// BytesCompleted returns the number of bytes covered by completed ranges.
func (r *Record) BytesCompleted() int64 {
	var total int64
	for _, rg := range r.Ranges {
		total += rg.Length
	}
	return total
}

// Validate checks the contiguity invariant: ranges sorted by offset must
// tile [0, BytesCompleted) with no gap and no overlap, and must not
// extend past the recorded total size. Any violation invalidates the
// whole record.
func (r *Record) Validate() error {
	sorted := make([]Range, len(r.Ranges))
	copy(sorted, r.Ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	var expected int64
	for _, rg := range sorted {
		if rg.Length <= 0 {
			return fmt.Errorf("%w: empty range at offset %d", ErrInvalidState, rg.Offset)
		}
		switch {
		case rg.Offset < expected:
			return fmt.Errorf("%w: range at offset %d overlaps previous end %d", ErrInvalidState, rg.Offset, expected)
		case rg.Offset > expected:
			return fmt.Errorf("%w: gap between offset %d and range at %d", ErrInvalidState, expected, rg.Offset)
		}
		expected = rg.End()
	}
	if expected > r.TotalSize {
		return fmt.Errorf("%w: ranges end at %d past total size %d", ErrInvalidState, expected, r.TotalSize)
	}
	return nil
}

// Save writes the record to its sidecar. The write goes through a
// temporary file and rename so a crash never leaves a half-written
// sidecar. Persistence is bookkeeping: callers treat failures as
// non-fatal.
func (r *Record) Save() error {
	r.UpdatedAt = time.Now().UTC()

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encode resume record: %w", err)
	}

	path := SidecarPath(r.Target)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write sidecar %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit sidecar %s: %w", path, err)
	}
	return nil
}

// Cleanup removes the sidecar for target, if any.
func Cleanup(target string) error {
	err := os.Remove(SidecarPath(target))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove sidecar: %w", err)
	}
	return nil
}
