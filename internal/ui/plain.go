package ui

import (
	"fmt"
	"io"
	"time"

	"github.com/ferrylabs/ferry/internal/stats"
)

// plainPresenter outputs one line per completed file to stdout,
// and periodic progress to stderr when not a TTY.
type plainPresenter struct {
	w       io.Writer
	errW    io.Writer
	tracker *stats.Tracker
	dstRoot string
}

func (p *plainPresenter) Run(events <-chan Event) error {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	secTicker := time.NewTicker(1 * time.Second)
	defer secTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ev)
		case <-secTicker.C:
			p.tracker.Tick()
		case <-ticker.C:
			p.printProgress()
		}
	}
}

func (p *plainPresenter) handleEvent(ev Event) {
	path := StripRoot(p.dstRoot, ev.Path)
	switch ev.Type {
	case FileCompleted:
		speed := p.tracker.RollingSpeed(5)
		fmt.Fprintf(p.w, "%s  %s  %s\n", path, FormatBytes(ev.Size), FormatRate(speed))
	case FilePlanned:
		fmt.Fprintf(p.w, "plan: %s  %s\n", path, FormatBytes(ev.Size))
	case FileFailed:
		errMsg := "error"
		if ev.Error != nil {
			errMsg = ev.Error.Error()
		}
		fmt.Fprintf(p.w, "%s  %s  %s\n", path, FormatBytes(ev.Size), errMsg)
	case FileSkipped:
		fmt.Fprintf(p.w, "%s  skipped\n", path)
	case ResumeFound:
		fmt.Fprintf(p.w, "resuming %s at %s of %s\n",
			path, FormatBytes(ev.Size), FormatBytes(ev.TotalSize))
	case ResumeInvalid:
		fmt.Fprintf(p.w, "resume state for %s invalid, restarting\n", path)
	case VerifyStarted:
		fmt.Fprintln(p.w, "verifying...")
	case VerifyFailed:
		fmt.Fprintf(p.w, "MISMATCH: %s\n", path)
	case VerifyOK:
		// silent in plain mode
	}
}

func (p *plainPresenter) printProgress() {
	snap := p.tracker.Snapshot()
	if snap.BytesTotal > 0 {
		pct := float64(snap.BytesDone) / float64(snap.BytesTotal) * 100
		speed := p.tracker.RollingSpeed(10)
		eta := p.tracker.ETA()
		fmt.Fprintf(p.errW, "progress: %.0f%% %s/%s %s/%s files %s eta %s\n",
			pct,
			FormatBytes(snap.BytesDone), FormatBytes(snap.BytesTotal),
			FormatCount(snap.FilesCopied), FormatCount(snap.FilesTotal),
			FormatRate(speed),
			FormatETA(eta),
		)
	} else {
		fmt.Fprintf(p.errW, "progress: %s copied %s files\n",
			FormatBytes(snap.BytesDone),
			FormatCount(snap.FilesCopied),
		)
	}
}

func (p *plainPresenter) Summary() string {
	return CompletionSummary(p.tracker.Snapshot())
}
