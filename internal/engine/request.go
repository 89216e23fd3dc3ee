package engine

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/time/rate"

	"github.com/ferrylabs/ferry/internal/event"
	"github.com/ferrylabs/ferry/internal/platform"
	"github.com/ferrylabs/ferry/internal/stats"
)

const (
	// DefaultChunkSize is the streaming and partitioning granularity.
	DefaultChunkSize = 64 << 20
	// DefaultPersistInterval is how many new bytes accumulate before the
	// resume ledger is saved again.
	DefaultPersistInterval = 128 << 20
)

// OverwriteMode governs what happens when the destination already exists.
type OverwriteMode int

const (
	OverwriteNever OverwriteMode = iota
	OverwriteAlways
	OverwritePrompt
	OverwriteSmart
)

func (m OverwriteMode) String() string {
	switch m {
	case OverwriteNever:
		return "never"
	case OverwriteAlways:
		return "always"
	case OverwritePrompt:
		return "prompt"
	case OverwriteSmart:
		return "smart"
	default:
		return "unknown"
	}
}

// ParseOverwriteMode parses the CLI/config spelling of an overwrite mode.
func ParseOverwriteMode(s string) (OverwriteMode, error) {
	switch s {
	case "never":
		return OverwriteNever, nil
	case "always":
		return OverwriteAlways, nil
	case "prompt":
		return OverwritePrompt, nil
	case "smart":
		return OverwriteSmart, nil
	default:
		return 0, fmt.Errorf("unknown overwrite mode %q (use never, always, prompt, or smart)", s)
	}
}

// VerifyMode selects post-transfer integrity checking.
type VerifyMode int

const (
	VerifyNone VerifyMode = iota
	VerifyFast             // xxhash64
	VerifyFull             // BLAKE3
)

func (m VerifyMode) String() string {
	switch m {
	case VerifyNone:
		return "none"
	case VerifyFast:
		return "fast"
	case VerifyFull:
		return "full"
	default:
		return "unknown"
	}
}

// ParseVerifyMode parses the CLI/config spelling of a verify mode.
func ParseVerifyMode(s string) (VerifyMode, error) {
	switch s {
	case "none":
		return VerifyNone, nil
	case "fast":
		return VerifyFast, nil
	case "full":
		return VerifyFull, nil
	default:
		return 0, fmt.Errorf("unknown verify mode %q (use none, fast, or full)", s)
	}
}

// ParseCloneMode parses the CLI/config spelling of a reflink mode.
func ParseCloneMode(s string) (platform.CloneMode, error) {
	switch s {
	case "auto":
		return platform.CloneAuto, nil
	case "always":
		return platform.CloneAlways, nil
	case "never":
		return platform.CloneNever, nil
	default:
		return 0, fmt.Errorf("unknown reflink mode %q (use auto, always, or never)", s)
	}
}

// Decision is the outcome of overwrite resolution. A rename choice is
// declared at the prompt level but not yet supported, so it never
// reaches the engines as a Decision.
type Decision int

const (
	Proceed Decision = iota
	Skip
	Abort
)

// OverwritePolicy resolves what to do with an existing destination. It
// is consulted only in OverwritePrompt mode; the other modes resolve
// without a collaborator.
type OverwritePolicy interface {
	Resolve(ctx context.Context, target string, src, dst os.FileInfo) (Decision, error)
}

// OverwritePolicyFunc adapts a function to OverwritePolicy.
type OverwritePolicyFunc func(ctx context.Context, target string, src, dst os.FileInfo) (Decision, error)

func (f OverwritePolicyFunc) Resolve(ctx context.Context, target string, src, dst os.FileInfo) (Decision, error) {
	return f(ctx, target, src, dst)
}

// ResumeDecider chooses between continuing a partial transfer and
// restarting it. A nil decider continues automatically.
type ResumeDecider interface {
	Continue(ctx context.Context, source, target string, completed, total int64) (bool, error)
}

// ResumeDeciderFunc adapts a function to ResumeDecider.
type ResumeDeciderFunc func(ctx context.Context, source, target string, completed, total int64) (bool, error)

func (f ResumeDeciderFunc) Continue(ctx context.Context, source, target string, completed, total int64) (bool, error) {
	return f(ctx, source, target, completed, total)
}

// TransferRequest describes one file transfer. Treat it as immutable
// once an engine begins executing it.
type TransferRequest struct {
	Source        string
	Target        string
	Overwrite     OverwriteMode
	Verify        VerifyMode
	Resume        bool
	Atomic        bool
	Workers       int   // parallelism degree; 0 picks NumCPU
	ChunkSize     int64 // 0 picks DefaultChunkSize
	PersistEvery  int64 // 0 picks DefaultPersistInterval
	Reflink       platform.CloneMode
	Sparse        bool
	PreserveTimes bool

	// Tree dispatch concerns; ignored for single-file transfers.
	Dispatch       DispatchStrategy
	FollowSymlinks bool
	Excludes       []string
}

func (r TransferRequest) chunkSize() int64 {
	if r.ChunkSize > 0 {
		return r.ChunkSize
	}
	return DefaultChunkSize
}

func (r TransferRequest) persistEvery() int64 {
	if r.PersistEvery > 0 {
		return r.PersistEvery
	}
	return DefaultPersistInterval
}

func (r TransferRequest) workers() int {
	if r.Workers > 0 {
		return r.Workers
	}
	return runtime.NumCPU()
}

// Options carries the collaborators shared by the transfer engines.
type Options struct {
	Tracker  *stats.Tracker
	Events   chan<- event.Event
	Prompter OverwritePolicy
	Resumer  ResumeDecider
	Limiter  *rate.Limiter
}

func (o Options) withDefaults() Options {
	if o.Tracker == nil {
		o.Tracker = stats.NewTracker()
	}
	return o
}

// resolveOverwrite applies the overwrite decision protocol for an
// existing destination. It returns the decision, or a classified error
// for Never mode, prompt aborts, and prompt failures.
func (o Options) resolveOverwrite(ctx context.Context, mode OverwriteMode, target string, src, dst os.FileInfo) (Decision, error) {
	switch mode {
	case OverwriteAlways:
		return Proceed, nil
	case OverwriteSmart:
		// Keep the destination when it is at least as new as the source.
		if !dst.ModTime().Before(src.ModTime()) {
			return Skip, nil
		}
		return Proceed, nil
	case OverwritePrompt:
		if o.Prompter == nil {
			return Abort, NewError(KindTargetExists, target, nil)
		}
		d, err := o.Prompter.Resolve(ctx, target, src, dst)
		if err != nil {
			return Abort, fmt.Errorf("resolve overwrite for %s: %w", target, err)
		}
		if d == Abort {
			return Abort, NewError(KindUserAborted, target, ErrUserAborted)
		}
		return d, nil
	default: // OverwriteNever
		return Abort, NewError(KindTargetExists, target, nil)
	}
}
