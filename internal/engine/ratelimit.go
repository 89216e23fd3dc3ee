package engine

import (
	"context"
	"os"

	"golang.org/x/time/rate"

	"github.com/ferrylabs/ferry/internal/platform"
)

// NewBWLimiter creates a rate.Limiter that caps aggregate throughput at
// bytesPerSec. The burst matches the 1 MiB copy buffer so full buffers
// pass without artificial stalls.
func NewBWLimiter(bytesPerSec int64) *rate.Limiter {
	burst := 1 << 20
	if bytesPerSec < int64(burst) {
		burst = int(bytesPerSec)
	}
	return rate.NewLimiter(rate.Limit(bytesPerSec), burst)
}

// limitedCopyRange copies a byte range through platform.CopyRange in
// limiter-sized steps. A nil limiter copies the whole range in one call.
func limitedCopyRange(ctx context.Context, limiter *rate.Limiter, src, dst *os.File, offset, length int64) (int64, error) {
	if limiter == nil {
		return platform.CopyRange(src, dst, offset, length)
	}

	const step = 1 << 20
	var copied int64
	for copied < length {
		n := length - copied
		if n > step {
			n = step
		}
		if err := limiter.WaitN(ctx, int(n)); err != nil {
			return copied, err
		}
		w, err := platform.CopyRange(src, dst, offset+copied, n)
		copied += w
		if err != nil {
			return copied, err
		}
		if w < n {
			break // source shorter than expected
		}
	}
	return copied, nil
}
