// Package engine implements the resumable, verifiable, parallel
// file-transfer core: a sequential engine with ledger-backed crash
// recovery and atomic staging-plus-rename commits, a parallel engine
// that partitions large files round-robin across workers, a tree
// dispatcher, and a move coordinator.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ferrylabs/ferry/internal/event"
)

// Operation selects what Run does with each source.
type Operation int

const (
	OpCopy Operation = iota
	OpMove
)

func (o Operation) String() string {
	if o == OpMove {
		return "move"
	}
	return "copy"
}

// Config describes one operation over one or more sources.
type Config struct {
	Operation Operation
	Sources   []string
	Dest      string
	// Request is the per-transfer template; Source and Target are
	// filled in per source.
	Request TransferRequest
	DryRun  bool
}

// Summary is the per-operation result exposed to reporting layers.
type Summary struct {
	BytesTransferred int64
	FilesCopied      int64
	FilesSkipped     int64
	FilesFailed      int64
	DirsCreated      int64
	Duration         time.Duration
	Resumed          bool
	Verified         bool
}

// Result is the outcome of Run.
type Result struct {
	Summary Summary
	Err     error
}

// Run executes the operation, blocking until complete. All progress
// flows through opts.Tracker and opts.Events while Run is in flight.
func Run(ctx context.Context, cfg Config, opts Options) Result {
	opts = opts.withDefaults()
	start := time.Now()

	err := run(ctx, cfg, opts)
	event.Send(opts.Events, event.Event{Type: event.Finished, Error: err})

	snap := opts.Tracker.Snapshot()
	return Result{
		Summary: Summary{
			BytesTransferred: snap.BytesDone,
			FilesCopied:      snap.FilesCopied,
			FilesSkipped:     snap.FilesSkipped,
			FilesFailed:      snap.FilesFailed,
			DirsCreated:      snap.DirsCreated,
			Duration:         time.Since(start),
			Resumed:          snap.Resumed,
			Verified:         cfg.Request.Verify != VerifyNone && snap.VerifyFailed == 0 && snap.FilesVerified > 0,
		},
		Err: err,
	}
}

func run(ctx context.Context, cfg Config, opts Options) error {
	if len(cfg.Sources) == 0 {
		return NewError(KindConfig, "", fmt.Errorf("no sources given"))
	}

	destInfo, destErr := os.Stat(cfg.Dest)
	destIsDir := destErr == nil && destInfo.IsDir()
	if len(cfg.Sources) > 1 {
		if destErr == nil && !destIsDir {
			return NewError(KindConfig, cfg.Dest,
				fmt.Errorf("destination must be a directory for multiple sources"))
		}
		if destErr != nil && !cfg.DryRun {
			if err := os.MkdirAll(cfg.Dest, 0o755); err != nil {
				return classifyPathErr("create destination", cfg.Dest, err)
			}
			destIsDir = true
		}
	}

	var firstErr error
	var errCount int
	for _, source := range cfg.Sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := runOne(ctx, cfg, opts, source, destIsDir)
		if err != nil {
			if IsKind(err, KindUserAborted) {
				return err
			}
			errCount++
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return aggregateErrs(firstErr, errCount)
}

func runOne(ctx context.Context, cfg Config, opts Options, source string, destIsDir bool) error {
	srcInfo, err := os.Lstat(source)
	if err != nil {
		return classifySourceErr(source, err)
	}

	req := cfg.Request
	req.Source = source
	req.Target = resolveTarget(source, cfg.Dest, destIsDir)

	if cfg.DryRun {
		return planOne(ctx, req, opts, srcInfo)
	}

	if cfg.Operation == OpMove {
		return Move(ctx, req, opts)
	}

	if srcInfo.IsDir() {
		return CopyTree(ctx, req, opts)
	}
	if req.workers() > 1 && srcInfo.Size() > req.chunkSize() {
		return CopyFileParallel(ctx, req, opts)
	}
	return CopyFile(ctx, req, opts)
}

// resolveTarget applies cp-style target resolution: sources land inside
// an existing destination directory, otherwise at the destination path
// itself.
func resolveTarget(source, dest string, destIsDir bool) string {
	if destIsDir {
		return filepath.Join(dest, filepath.Base(source))
	}
	return dest
}

// planOne enumerates what a transfer would do without touching the
// filesystem, feeding the same totals and events a real run would.
func planOne(ctx context.Context, req TransferRequest, opts Options, srcInfo os.FileInfo) error {
	if !srcInfo.IsDir() {
		opts.Tracker.AddFilesTotal(1)
		opts.Tracker.AddBytesTotal(srcInfo.Size())
		event.Send(opts.Events, event.Event{Type: event.FilePlanned, Path: req.Target, Size: srcInfo.Size()})
		return nil
	}

	onExclude := func(rel string) {
		opts.Tracker.AddFileSkipped()
		event.Send(opts.Events, event.Event{Type: event.FileSkipped, Path: rel})
	}
	return walkTree(ctx, req.Source, req.Target, req, func(e treeEntry) error {
		if e.kind != entryFile {
			return nil
		}
		opts.Tracker.AddFilesTotal(1)
		opts.Tracker.AddBytesTotal(e.info.Size())
		event.Send(opts.Events, event.Event{Type: event.FilePlanned, Path: e.dst, Size: e.info.Size()})
		return nil
	}, onExclude)
}
