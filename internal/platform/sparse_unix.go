//go:build linux || darwin

package platform

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// IsSparse reports whether fi describes a file whose allocated blocks
// cover less than its logical size.
func IsSparse(fi os.FileInfo) bool {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return st.Blocks*512 < fi.Size()
}

// SparseSegments walks SEEK_DATA/SEEK_HOLE to map out the sparse layout
// of a file. Returns a single data segment covering the whole file when
// the filesystem doesn't support hole detection.
func SparseSegments(f *os.File, fileSize int64) ([]Segment, error) {
	if fileSize == 0 {
		return nil, nil
	}

	fd := int(f.Fd())
	var segments []Segment
	offset := int64(0)

	for offset < fileSize {
		dataStart, err := unix.Seek(fd, offset, unix.SEEK_DATA)
		if err != nil {
			if err == syscall.ENXIO {
				// Rest of file is a hole.
				segments = append(segments, Segment{
					Offset: offset,
					Length: fileSize - offset,
					IsData: false,
				})
				break
			}
			if err == syscall.EINVAL {
				return wholeFileSegment(fileSize), nil
			}
			return nil, err
		}

		if dataStart > offset {
			segments = append(segments, Segment{
				Offset: offset,
				Length: dataStart - offset,
				IsData: false,
			})
		}

		holeStart, err := unix.Seek(fd, dataStart, unix.SEEK_HOLE)
		if err != nil {
			switch err {
			case syscall.ENXIO:
				// Data extends to EOF.
				holeStart = fileSize
			case syscall.EINVAL:
				return wholeFileSegment(fileSize), nil
			default:
				return nil, err
			}
		}
		if holeStart > fileSize {
			holeStart = fileSize
		}

		segments = append(segments, Segment{
			Offset: dataStart,
			Length: holeStart - dataStart,
			IsData: true,
		})
		offset = holeStart
	}

	if len(segments) == 0 {
		return wholeFileSegment(fileSize), nil
	}
	return segments, nil
}
