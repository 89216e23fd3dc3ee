// Package platform isolates the filesystem capabilities that differ per
// operating system: offset-range copies, copy-on-write clones, disk
// pre-allocation, and sparse-layout detection. Each capability has a
// build-tagged implementation plus a universal fallback, so the transfer
// engines never branch on the platform themselves.
package platform

import "errors"

// CloneMode controls whether a copy-on-write clone is attempted before
// byte copying.
type CloneMode int

const (
	// CloneAuto tries to clone and silently falls back to byte copying.
	CloneAuto CloneMode = iota
	// CloneAlways requires a clone; its failure fails the transfer.
	CloneAlways
	// CloneNever skips the clone attempt entirely.
	CloneNever
)

func (m CloneMode) String() string {
	switch m {
	case CloneAuto:
		return "auto"
	case CloneAlways:
		return "always"
	case CloneNever:
		return "never"
	default:
		return "unknown"
	}
}

// ErrCloneUnsupported is returned by reflink on platforms or filesystems
// with no copy-on-write clone mechanism.
var ErrCloneUnsupported = errors.New("reflink not supported")

// Segment describes a contiguous region of a file.
type Segment struct {
	Offset int64
	Length int64
	IsData bool
}

// End returns the first offset past the segment.
func (s Segment) End() int64 { return s.Offset + s.Length }

// wholeFileSegment is the layout reported when a filesystem cannot map
// holes: one data segment covering everything.
func wholeFileSegment(size int64) []Segment {
	return []Segment{{Offset: 0, Length: size, IsData: true}}
}

// TryReflink attempts a copy-on-write clone of src at dst and reports
// whether one was created. CloneNever short-circuits to false. CloneAuto
// swallows the failure so the caller falls back to byte copying.
// CloneAlways propagates it.
func TryReflink(src, dst string, mode CloneMode) (bool, error) {
	if mode == CloneNever {
		return false, nil
	}
	if err := reflink(src, dst); err != nil {
		if mode == CloneAlways {
			return false, err
		}
		return false, nil
	}
	return true, nil
}
