//go:build !linux

package platform

import "os"

// CopyRange copies length bytes at the same offset from src to dst using
// positional read/write.
func CopyRange(src, dst *os.File, offset, length int64) (int64, error) {
	return readWriteRange(src, dst, offset, length)
}
