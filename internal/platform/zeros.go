package platform

import (
	"fmt"
	"io"
	"os"
)

// ZeroRegions scans the file at path in granularity-sized blocks and
// returns the runs made entirely of zero bytes, adjacent runs merged.
// It is advisory: callers use it to skip writing known-zero regions on
// filesystems that cannot map holes themselves.
func ZeroRegions(path string, granularity int64) ([]Segment, error) {
	if granularity <= 0 {
		granularity = bufferSize
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, granularity)
	var regions []Segment
	var offset int64

	for {
		n, err := io.ReadFull(f, buf)
		if n > 0 && isZero(buf[:n]) {
			if last := len(regions) - 1; last >= 0 && regions[last].End() == offset {
				regions[last].Length += int64(n)
			} else {
				regions = append(regions, Segment{Offset: offset, Length: int64(n)})
			}
		}
		offset += int64(n)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", path, err)
		}
	}
	return regions, nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
