package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrylabs/ferry/internal/event"
	"github.com/ferrylabs/ferry/internal/stats"
)

func newBar(out *bytes.Buffer) *barPresenter {
	tracker := stats.NewTracker()
	tracker.SetTotals(10, 10240)
	return &barPresenter{w: out, tracker: tracker}
}

func TestBarPresenterFileCompleted(t *testing.T) {
	var out bytes.Buffer
	p := newBar(&out)

	runEvents(t, p, Event{Type: event.FileCompleted, Path: "test/file.txt", Size: 1024})

	// Should contain the checkmark and file path.
	assert.Contains(t, out.String(), "file.txt")
	assert.Contains(t, out.String(), "✓")
}

func TestBarPresenterStyledPath(t *testing.T) {
	var out bytes.Buffer
	p := newBar(&out)

	runEvents(t, p, Event{Type: event.FileCompleted, Path: "some/dir/file.txt", Size: 1024})

	output := out.String()
	// Directory should be dimmed (ANSI dim code present).
	assert.Contains(t, output, ansiDim)
	assert.Contains(t, output, "file.txt")
}

func TestBarPresenterRelativePaths(t *testing.T) {
	var out bytes.Buffer
	p := newBar(&out)
	p.dstRoot = "/home/user/dst"

	runEvents(t, p, Event{Type: event.FileCompleted, Path: "/home/user/dst/subdir/file.txt", Size: 1024})

	output := out.String()
	assert.NotContains(t, output, "/home/user/dst/")
	assert.Contains(t, output, "subdir")
	assert.Contains(t, output, "file.txt")
}

func TestBarPresenterSummary(t *testing.T) {
	tracker := stats.NewTracker()
	for range 500 {
		tracker.AddFileCopied()
	}
	tracker.AddBytes(1024 * 1024 * 100)

	p := &barPresenter{tracker: tracker}
	s := p.Summary()
	assert.Contains(t, s, "done")
	assert.Contains(t, s, "files 500")
}

func TestBarPresenterSummaryWithVerify(t *testing.T) {
	tracker := stats.NewTracker()
	for range 100 {
		tracker.AddFileCopied()
		tracker.AddFileVerified()
	}
	tracker.AddBytes(1024 * 1024)

	p := &barPresenter{tracker: tracker}
	s := p.Summary()
	assert.Contains(t, s, "verified 100")
	assert.Contains(t, s, "errors 0")
}

func TestStyledPath(t *testing.T) {
	p := &barPresenter{}

	// File without directory, no dim prefix.
	assert.Equal(t, "file.txt", p.styledPath("file.txt"))

	// File with directory, the directory is dimmed.
	styled := p.styledPath("some/dir/file.txt")
	assert.Contains(t, styled, ansiDim+"some/dir/"+ansiReset+"file.txt")

	// Single directory level.
	styled = p.styledPath("dir/file.txt")
	assert.Contains(t, styled, ansiDim+"dir/"+ansiReset+"file.txt")
}

func TestStyledPathWithDstRoot(t *testing.T) {
	p := &barPresenter{dstRoot: "/home/user/backup"}

	// Absolute path gets root stripped, then styled.
	styled := p.styledPath("/home/user/backup/photos/img.jpg")
	assert.NotContains(t, styled, "/home/user/backup")
	assert.Contains(t, styled, ansiDim+"photos/"+ansiReset+"img.jpg")

	// File directly in root.
	styled = p.styledPath("/home/user/backup/file.txt")
	assert.Equal(t, "file.txt", styled)
}

func TestStripRoot(t *testing.T) {
	assert.Equal(t, "sub/file.txt", StripRoot("/home/user/dst", "/home/user/dst/sub/file.txt"))
	assert.Equal(t, "file.txt", StripRoot("/home/user/dst", "/home/user/dst/file.txt"))
	assert.Equal(t, "/other/path/file.txt", StripRoot("/home/user/dst", "/other/path/file.txt"))
	assert.Equal(t, "file.txt", StripRoot("", "file.txt"))
}

func TestBarClearHUDSequence(t *testing.T) {
	var out bytes.Buffer
	p := &barPresenter{w: &out, tracker: stats.NewTracker()}

	// Draw HUD then clear it.
	p.drawHUD()
	assert.True(t, p.hudDrawn)
	assert.Equal(t, 2, p.hudLineCount)

	out.Reset()
	p.clearHUD()
	// Should contain ANSI escape for cursor up.
	assert.Contains(t, out.String(), "\033[2A")
	assert.False(t, p.hudDrawn)
}

func TestBarAlwaysRedrawsAfterFeedLine(t *testing.T) {
	var out bytes.Buffer
	p := newBar(&out)

	runEvents(t, p,
		Event{Type: event.FileCompleted, Path: "a.txt", Size: 100},
		Event{Type: event.FileCompleted, Path: "b.txt", Size: 200},
	)

	output := out.String()
	assert.Contains(t, output, "a.txt")
	assert.Contains(t, output, "b.txt")
	// The progress bar character should appear (HUD was drawn).
	assert.Contains(t, output, "□")
}

func TestBarPresenterVerifyStarted(t *testing.T) {
	var out bytes.Buffer
	p := newBar(&out)

	runEvents(t, p, Event{Type: event.VerifyStarted})
	assert.Contains(t, out.String(), "verifying checksums...")
}

func TestBarPresenterVerifyFailed(t *testing.T) {
	var out bytes.Buffer
	p := newBar(&out)

	runEvents(t, p, Event{Type: event.VerifyFailed, Path: "bad/file.txt"})

	output := out.String()
	assert.Contains(t, output, "✗")
	assert.Contains(t, output, "file.txt")
	assert.Contains(t, output, "CHECKSUM MISMATCH")
}

func TestBarPresenterResumeFound(t *testing.T) {
	var out bytes.Buffer
	p := newBar(&out)

	runEvents(t, p, Event{Type: event.ResumeFound, Path: "big.bin", Size: 4096, TotalSize: 10240})

	output := out.String()
	require.Contains(t, output, "big.bin")
	assert.Contains(t, output, "resuming at")
}

func TestNewPresenterSelection(t *testing.T) {
	tracker := stats.NewTracker()
	var out, errOut bytes.Buffer
	base := Config{Writer: &out, ErrWriter: &errOut, Tracker: tracker}

	cfg := base
	cfg.Mode = ModeQuiet
	_, ok := NewPresenter(cfg).(*quietPresenter)
	assert.True(t, ok)

	cfg = base
	cfg.Mode = ModeAuto
	cfg.IsTTY = true
	_, ok = NewPresenter(cfg).(*barPresenter)
	assert.True(t, ok)

	cfg = base
	cfg.Mode = ModeAuto
	cfg.IsTTY = false
	_, ok = NewPresenter(cfg).(*plainPresenter)
	assert.True(t, ok)

	cfg = base
	cfg.Mode = ModeBar
	cfg.IsTTY = false
	_, ok = NewPresenter(cfg).(*barPresenter)
	assert.True(t, ok, "explicit bar mode wins over TTY detection")
}

func TestParseMode(t *testing.T) {
	for s, want := range map[string]Mode{
		"":      ModeAuto,
		"auto":  ModeAuto,
		"bar":   ModeBar,
		"plain": ModePlain,
		"quiet": ModeQuiet,
	} {
		got, err := ParseMode(s)
		require.NoError(t, err, s)
		assert.Equal(t, want, got, s)
	}
	_, err := ParseMode("fancy")
	assert.Error(t, err)
}
