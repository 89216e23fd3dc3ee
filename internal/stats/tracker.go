// Package stats tracks transfer progress with lock-free atomic counters.
// Workers add to the counters; a presenter polls Snapshot and Tick
// concurrently. The byte counter is the only value shared across every
// worker of a parallel transfer.
package stats

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// Tracker accumulates counters for one operation.
type Tracker struct {
	bytesDone       atomic.Int64
	bytesTotal      atomic.Int64
	filesCopied     atomic.Int64
	filesSkipped    atomic.Int64
	filesFailed     atomic.Int64
	filesTotal      atomic.Int64
	dirsCreated     atomic.Int64
	symlinksCreated atomic.Int64
	filesVerified   atomic.Int64
	verifyFailed    atomic.Int64
	resumed         atomic.Bool
	startTime       time.Time

	// Ring buffer written only by the presenter's Tick, never by workers.
	mu         sync.Mutex
	throughput [ringSize]int64 // bytes delta per second
	ringIdx    int
	ringCount  int
	lastBytes  int64
}

// NewTracker creates a Tracker with startTime set to now.
func NewTracker() *Tracker {
	return &Tracker{startTime: time.Now()}
}

// Snapshot is a point-in-time read of all counters.
type Snapshot struct {
	BytesDone       int64
	BytesTotal      int64
	FilesCopied     int64
	FilesSkipped    int64
	FilesFailed     int64
	FilesTotal      int64
	DirsCreated     int64
	SymlinksCreated int64
	FilesVerified   int64
	VerifyFailed    int64
	Resumed         bool
	Elapsed         time.Duration
}

func (t *Tracker) AddBytes(n int64)       { t.bytesDone.Add(n) }
func (t *Tracker) AddBytesTotal(n int64)  { t.bytesTotal.Add(n) }
func (t *Tracker) AddFilesTotal(n int64)  { t.filesTotal.Add(n) }
func (t *Tracker) AddFileCopied()         { t.filesCopied.Add(1) }
func (t *Tracker) AddFileSkipped()        { t.filesSkipped.Add(1) }
func (t *Tracker) AddFileFailed()         { t.filesFailed.Add(1) }
func (t *Tracker) AddDirCreated()         { t.dirsCreated.Add(1) }
func (t *Tracker) AddSymlinkCreated()     { t.symlinksCreated.Add(1) }
func (t *Tracker) AddFileVerified()       { t.filesVerified.Add(1) }
func (t *Tracker) AddVerifyFailed()       { t.verifyFailed.Add(1) }
func (t *Tracker) MarkResumed()           { t.resumed.Store(true) }
func (t *Tracker) BytesDone() int64       { return t.bytesDone.Load() }
func (t *Tracker) BytesTotal() int64      { return t.bytesTotal.Load() }

// SetTotals records enumeration totals once scanning completes.
func (t *Tracker) SetTotals(files, bytes int64) {
	t.filesTotal.Store(files)
	t.bytesTotal.Store(bytes)
}

// Snapshot returns a consistent point-in-time read of all counters.
func (t *Tracker) Snapshot() Snapshot {
	return Snapshot{
		BytesDone:       t.bytesDone.Load(),
		BytesTotal:      t.bytesTotal.Load(),
		FilesCopied:     t.filesCopied.Load(),
		FilesSkipped:    t.filesSkipped.Load(),
		FilesFailed:     t.filesFailed.Load(),
		FilesTotal:      t.filesTotal.Load(),
		DirsCreated:     t.dirsCreated.Load(),
		SymlinksCreated: t.symlinksCreated.Load(),
		FilesVerified:   t.filesVerified.Load(),
		VerifyFailed:    t.verifyFailed.Load(),
		Resumed:         t.resumed.Load(),
		Elapsed:         t.Elapsed(),
	}
}

// Tick snapshots the byte delta into the ring buffer. Called once per
// second by the presenter.
func (t *Tracker) Tick() {
	current := t.bytesDone.Load()

	t.mu.Lock()
	defer t.mu.Unlock()

	delta := current - t.lastBytes
	t.lastBytes = current

	t.throughput[t.ringIdx] = delta
	t.ringIdx = (t.ringIdx + 1) % ringSize
	if t.ringCount < ringSize {
		t.ringCount++
	}
}

// RollingSpeed returns average bytes/sec over the last n seconds of samples.
func (t *Tracker) RollingSpeed(seconds int) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := seconds
	if count > t.ringCount {
		count = t.ringCount
	}
	if count == 0 {
		return 0
	}
	var sum int64
	for i := range count {
		idx := (t.ringIdx - 1 - i + ringSize) % ringSize
		sum += t.throughput[idx]
	}
	return float64(sum) / float64(count)
}

// SparklineData returns the last n bytes/sec samples, oldest first.
func (t *Tracker) SparklineData(n int) []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := n
	if count > t.ringCount {
		count = t.ringCount
	}
	if count == 0 {
		return nil
	}
	data := make([]float64, count)
	for i := range count {
		idx := (t.ringIdx - count + i + ringSize) % ringSize
		data[i] = float64(t.throughput[idx])
	}
	return data
}

// ETA estimates remaining time from rolling speed and remaining bytes.
func (t *Tracker) ETA() time.Duration {
	speed := t.RollingSpeed(10)
	if speed <= 0 {
		return 0
	}
	remaining := t.bytesTotal.Load() - t.bytesDone.Load()
	if remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining)/speed) * time.Second
}

// Elapsed returns time since tracker creation.
func (t *Tracker) Elapsed() time.Duration {
	return time.Since(t.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"copied=%d skipped=%d failed=%d bytes=%d/%d dirs=%d",
		s.FilesCopied, s.FilesSkipped, s.FilesFailed,
		s.BytesDone, s.BytesTotal, s.DirsCreated,
	)
}
