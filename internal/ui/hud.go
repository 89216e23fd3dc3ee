package ui

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/ferrylabs/ferry/internal/stats"
)

// ANSI escape sequences.
const (
	ansiDim   = "\033[2m"
	ansiReset = "\033[0m"
)

// barPresenter provides a rich TTY display with a scrolling feed of
// completed files and a 2-line HUD that redraws in place.
type barPresenter struct {
	w       io.Writer
	tracker *stats.Tracker
	dstRoot string // destination root, stripped from displayed paths

	// Internal state.
	hudDrawn     bool
	hudLineCount int // actual number of lines in the last HUD draw
	lastHUDDraw  time.Time
}

const (
	sparklineWidth   = 20
	progressBarWidth = 20
	hudMinInterval   = 50 * time.Millisecond // don't redraw faster than this
)

func (p *barPresenter) Run(events <-chan Event) error {
	// Fire first tick quickly to seed the ring buffer with initial speed
	// data, then switch to 1s interval.
	secTicker := time.NewTicker(250 * time.Millisecond)
	defer secTicker.Stop()
	firstTickDone := false

	// Redraw ticker for when no events are flowing (e.g., one large file).
	redrawTicker := time.NewTicker(100 * time.Millisecond)
	defer redrawTicker.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				p.clearHUD()
				return nil
			}
			p.handleEvent(ev)
			p.maybeDrawHUD()

		case <-redrawTicker.C:
			p.drawHUD()

		case <-secTicker.C:
			p.tracker.Tick()
			if !firstTickDone {
				firstTickDone = true
				secTicker.Reset(1 * time.Second)
			}
		}
	}
}

func (p *barPresenter) handleEvent(ev Event) {
	switch ev.Type {
	case FileCompleted:
		p.clearHUD()
		p.printFileCompleted(ev)
		p.drawHUD() // always redraw HUD after feed line

	case FileFailed:
		p.clearHUD()
		p.printFileFailed(ev)
		p.drawHUD()

	case FileSkipped:
		p.clearHUD()
		p.printFileSkipped(ev)
		p.drawHUD()

	case FilePlanned:
		p.clearHUD()
		fmt.Fprintf(p.w, "·  %s  %10s  %s(plan)%s\n",
			p.styledPath(ev.Path), FormatBytes(ev.Size), ansiDim, ansiReset)
		p.drawHUD()

	case ResumeFound:
		p.clearHUD()
		fmt.Fprintf(p.w, "↻  %s  resuming at %s of %s\n",
			p.styledPath(ev.Path), FormatBytes(ev.Size), FormatBytes(ev.TotalSize))
		p.drawHUD()

	case ResumeInvalid:
		p.clearHUD()
		fmt.Fprintf(p.w, "↻  %s  %sresume state invalid, restarting%s\n",
			p.styledPath(ev.Path), ansiDim, ansiReset)
		p.drawHUD()

	case VerifyStarted:
		p.clearHUD()
		fmt.Fprintf(p.w, "%sverifying checksums...%s\n", ansiDim, ansiReset)

	case VerifyOK:
		// Silent; the summary line reports the verified count.

	case VerifyFailed:
		p.clearHUD()
		fmt.Fprintf(p.w, "✗  %s  CHECKSUM MISMATCH\n", p.styledPath(ev.Path))
		p.drawHUD()
	}
}

func (p *barPresenter) printFileCompleted(ev Event) {
	speed := p.tracker.RollingSpeed(5)
	if speed > 0 {
		fmt.Fprintf(p.w, "✓  %s  %10s  %s\n",
			p.styledPath(ev.Path), FormatBytes(ev.Size), FormatRate(speed))
	} else {
		fmt.Fprintf(p.w, "✓  %s  %10s\n",
			p.styledPath(ev.Path), FormatBytes(ev.Size))
	}
}

func (p *barPresenter) printFileFailed(ev Event) {
	errMsg := "error"
	if ev.Error != nil {
		errMsg = ev.Error.Error()
	}
	fmt.Fprintf(p.w, "✗  %s  %10s  %s\n",
		p.styledPath(ev.Path), FormatBytes(ev.Size), errMsg)
}

func (p *barPresenter) printFileSkipped(ev Event) {
	fmt.Fprintf(p.w, "–  %s  %10s  %sskipped%s\n",
		p.styledPath(ev.Path), FormatBytes(ev.Size), ansiDim, ansiReset)
}

// maybeDrawHUD redraws the HUD if enough time has passed since the last draw.
func (p *barPresenter) maybeDrawHUD() {
	if time.Since(p.lastHUDDraw) < hudMinInterval {
		return
	}
	p.drawHUD()
}

func (p *barPresenter) drawHUD() {
	snap := p.tracker.Snapshot()

	// Clear previous HUD if drawn.
	p.clearHUD()

	var pct float64
	if snap.BytesTotal > 0 {
		pct = float64(snap.BytesDone) / float64(snap.BytesTotal)
	}

	speed := p.tracker.RollingSpeed(10)
	eta := p.tracker.ETA()

	lines := 0

	// Line 1: throughput sparkline + speed + byte totals.
	spark := Sparkline(p.tracker.SparklineData(sparklineWidth), sparklineWidth)
	fmt.Fprintf(p.w, "       %s   %s   %s / %s\n",
		spark, FormatRate(speed),
		FormatBytes(snap.BytesDone), FormatBytes(snap.BytesTotal))
	lines++

	// Line 2: progress bar + files + eta.
	bar := ProgressBar(pct, progressBarWidth)
	fmt.Fprintf(p.w, " %3.0f%%  %s   %s / %s files   eta %s\n",
		pct*100, bar,
		FormatCount(snap.FilesCopied), FormatCount(snap.FilesTotal),
		FormatETA(eta))
	lines++

	p.hudDrawn = true
	p.hudLineCount = lines
	p.lastHUDDraw = time.Now()
}

func (p *barPresenter) clearHUD() {
	if !p.hudDrawn {
		return
	}
	lines := p.hudLineCount
	if lines == 0 {
		lines = 2 // fallback
	}
	// Move cursor up N lines and clear to end of screen.
	fmt.Fprintf(p.w, "\033[%dA\033[J", lines)
	p.hudDrawn = false
}

func (p *barPresenter) Summary() string {
	return CompletionSummary(p.tracker.Snapshot())
}

// relPath strips the dstRoot prefix from an absolute path to produce a
// cleaner relative path for display. Falls back to the original path.
func (p *barPresenter) relPath(path string) string {
	if p.dstRoot == "" {
		return path
	}
	rel, err := filepath.Rel(p.dstRoot, path)
	if err != nil {
		return path
	}
	return rel
}

// styledPath returns the path with the directory portion dimmed and the
// filename in normal weight, making the actual filename stand out.
func (p *barPresenter) styledPath(path string) string {
	path = p.relPath(path)
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if dir == "." || dir == "" {
		return base
	}
	return fmt.Sprintf("%s%s/%s%s", ansiDim, dir, ansiReset, base)
}

// StripRoot removes a root prefix from a path, returning a clean relative path.
// Exported for use by the plain presenter.
func StripRoot(root, path string) string {
	if root == "" {
		return path
	}
	// Ensure root ends with separator for clean stripping.
	if !strings.HasSuffix(root, string(filepath.Separator)) {
		root += string(filepath.Separator)
	}
	if strings.HasPrefix(path, root) {
		return path[len(root):]
	}
	return path
}
