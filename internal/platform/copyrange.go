package platform

import (
	"io"
	"os"
	"sync"
)

const bufferSize = 1 << 20 // 1 MiB

var bufPool = sync.Pool{
	New: func() any {
		b := make([]byte, bufferSize)
		return &b
	},
}

// GetBuffer leases a pooled copy buffer. The caller must return it with
// PutBuffer.
func GetBuffer() *[]byte  { return bufPool.Get().(*[]byte) }
func PutBuffer(b *[]byte) { bufPool.Put(b) }

// readWriteRange copies length bytes at offset from src to dst using
// positional reads and writes on a pooled buffer. Neither file's seek
// position is touched, so concurrent workers can share nothing but the
// two paths.
func readWriteRange(src, dst *os.File, offset, length int64) (int64, error) {
	bufp := bufPool.Get().(*[]byte)
	defer bufPool.Put(bufp)
	buf := *bufp

	var copied int64
	for copied < length {
		toRead := length - copied
		if toRead > bufferSize {
			toRead = bufferSize
		}

		n, err := src.ReadAt(buf[:toRead], offset+copied)
		if n > 0 {
			if _, werr := dst.WriteAt(buf[:n], offset+copied); werr != nil {
				return copied, werr
			}
			copied += int64(n)
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return copied, err
		}
	}
	return copied, nil
}
