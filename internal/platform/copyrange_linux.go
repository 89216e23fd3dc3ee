//go:build linux

package platform

import (
	"os"

	"golang.org/x/sys/unix"
)

// CopyRange copies length bytes at the same offset from src to dst,
// trying copy_file_range(2) first and falling through to positional
// read/write on unsupported or cross-device errors.
func CopyRange(src, dst *os.File, offset, length int64) (int64, error) {
	n, err := copyFileRange(src, dst, offset, length)
	if err == nil {
		return n, nil
	}
	if n == 0 && isFallbackErr(err) {
		return readWriteRange(src, dst, offset, length)
	}
	return n, err
}

func copyFileRange(src, dst *os.File, offset, length int64) (int64, error) {
	roff := offset
	woff := offset
	remaining := length

	var total int64
	for remaining > 0 {
		n, err := unix.CopyFileRange(int(src.Fd()), &roff, int(dst.Fd()), &woff, int(remaining), 0)
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		remaining -= int64(n)
		total += int64(n)
	}
	return total, nil
}

// isFallbackErr reports whether err should trigger a fall-through to the
// next copy strategy rather than failing the transfer.
func isFallbackErr(err error) bool {
	switch err {
	case unix.ENOSYS, unix.EXDEV, unix.EINVAL, unix.ENOTSUP:
		return true
	}
	if e, ok := err.(*os.PathError); ok {
		return isFallbackErr(e.Err)
	}
	return false
}
