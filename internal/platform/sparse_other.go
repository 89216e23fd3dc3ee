//go:build !linux && !darwin

package platform

import "os"

// IsSparse always reports false where block counts are unavailable.
func IsSparse(_ os.FileInfo) bool { return false }

// SparseSegments reports one data segment covering the whole file on
// platforms without hole detection.
func SparseSegments(_ *os.File, fileSize int64) ([]Segment, error) {
	if fileSize == 0 {
		return nil, nil
	}
	return wholeFileSegment(fileSize), nil
}
