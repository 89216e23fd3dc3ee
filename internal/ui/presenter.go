package ui

import (
	"fmt"
	"io"

	"github.com/ferrylabs/ferry/internal/stats"
)

// Presenter consumes events and displays progress.
type Presenter interface {
	// Run consumes events until the channel closes. Blocks until done.
	Run(events <-chan Event) error
	// Summary returns the final summary line.
	Summary() string
}

// Mode selects the progress rendering style.
type Mode int

const (
	ModeAuto Mode = iota
	ModeBar
	ModePlain
	ModeQuiet
)

// ParseMode parses the CLI/config spelling of a progress mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "auto":
		return ModeAuto, nil
	case "bar":
		return ModeBar, nil
	case "plain":
		return ModePlain, nil
	case "quiet":
		return ModeQuiet, nil
	default:
		return 0, fmt.Errorf("unknown progress mode %q (use auto, bar, plain, or quiet)", s)
	}
}

// Config configures a Presenter.
type Config struct {
	Writer    io.Writer
	ErrWriter io.Writer
	Tracker   *stats.Tracker
	DstRoot   string
	Mode      Mode
	IsTTY     bool
}

// NewPresenter creates the appropriate presenter based on configuration.
// Auto mode picks the in-place bar on a TTY and the line-per-file plain
// presenter otherwise.
//
//nolint:ireturn // factory function returns interface by design
func NewPresenter(cfg Config) Presenter {
	mode := cfg.Mode
	if mode == ModeAuto {
		if cfg.IsTTY {
			mode = ModeBar
		} else {
			mode = ModePlain
		}
	}
	switch mode {
	case ModeQuiet:
		return &quietPresenter{tracker: cfg.Tracker}
	case ModeBar:
		return &barPresenter{
			w:       cfg.ErrWriter, // bar renders to stderr (the TTY)
			tracker: cfg.Tracker,
			dstRoot: cfg.DstRoot,
		}
	default:
		return &plainPresenter{
			w:       cfg.Writer,
			errW:    cfg.ErrWriter,
			tracker: cfg.Tracker,
			dstRoot: cfg.DstRoot,
		}
	}
}
