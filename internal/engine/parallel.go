package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ferrylabs/ferry/internal/event"
	"github.com/ferrylabs/ferry/internal/platform"
)

// CopyFileParallel copies one large regular file by partitioning its
// byte range across workers that write disjoint chunks of a pre-sized
// destination. Output is identical to a sequential copy; the first
// worker error aborts the whole transfer.
//
// Parallel transfers are not resumable: an interrupted run leaves a
// pre-sized file with uncopied holes and no ledger record, so a retry
// starts over.
func CopyFileParallel(ctx context.Context, req TransferRequest, opts Options) error {
	opts = opts.withDefaults()

	srcInfo, err := statSource(req.Source)
	if err != nil {
		return err
	}
	total := srcInfo.Size()
	chunkSize := req.chunkSize()

	// Below one chunk there is nothing to partition.
	if total <= chunkSize || req.workers() <= 1 {
		return CopyFile(ctx, req, opts)
	}

	if dstInfo, lerr := os.Lstat(req.Target); lerr == nil {
		d, derr := opts.resolveOverwrite(ctx, req.Overwrite, req.Target, srcInfo, dstInfo)
		if derr != nil {
			return derr
		}
		if d == Skip {
			opts.Tracker.AddFileSkipped()
			event.Send(opts.Events, event.Event{Type: event.FileSkipped, Path: req.Target, Size: total})
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(req.Target), 0o755); err != nil {
		return classifyPathErr("create parent dir", filepath.Dir(req.Target), err)
	}

	writePath := req.Target
	if req.Atomic {
		writePath = stagingPath(req.Target)
		RegisterStaging(writePath)
		defer func() {
			DeregisterStaging(writePath)
			_ = os.Remove(writePath)
		}()
	}

	event.Send(opts.Events, event.Event{Type: event.FileStarted, Path: req.Target, Size: total})

	if err := runParallel(ctx, req, opts, srcInfo, writePath); err != nil {
		// A pre-sized file with holes is a failed transfer, never a
		// resumable one; remove it so it cannot be mistaken for output.
		if !req.Atomic {
			_ = os.Remove(writePath)
		}
		opts.Tracker.AddFileFailed()
		event.Send(opts.Events, event.Event{Type: event.FileFailed, Path: req.Target, Size: total, Error: err})
		return err
	}

	opts.Tracker.AddFileCopied()
	event.Send(opts.Events, event.Event{Type: event.FileCompleted, Path: req.Target, Size: total})
	return nil
}

func runParallel(ctx context.Context, req TransferRequest, opts Options, srcInfo os.FileInfo, writePath string) error {
	total := srcInfo.Size()
	chunkSize := req.chunkSize()
	numChunks := (total + chunkSize - 1) / chunkSize

	workers := req.workers()
	if int64(workers) > numChunks {
		workers = int(numChunks)
	}

	// Pre-size the destination so every worker can write at its own
	// offsets without racing on growth or truncation.
	dst, err := os.OpenFile(writePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, srcInfo.Mode().Perm())
	if err != nil {
		return classifyPathErr("open destination", writePath, err)
	}
	if err := dst.Truncate(total); err != nil {
		dst.Close()
		return fmt.Errorf("presize %s to %d: %w", writePath, total, err)
	}
	platform.Preallocate(dst, total)
	if err := dst.Close(); err != nil {
		return fmt.Errorf("close %s: %w", writePath, err)
	}

	slog.Debug("parallel copy",
		"source", req.Source, "chunks", numChunks, "chunk_size", chunkSize, "workers", workers)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for id := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if werr := copyAssignedChunks(ctx, req, opts, writePath, total, id, workers); werr != nil {
				select {
				case errs <- fmt.Errorf("worker %d: %w", id, werr):
				default:
				}
				cancel()
			}
		}()
	}
	wg.Wait()
	close(errs)
	if werr := <-errs; werr != nil {
		return werr
	}

	if err := applyMetadata(writePath, srcInfo, req.PreserveTimes); err != nil {
		return err
	}
	if req.Atomic {
		if err := os.Rename(writePath, req.Target); err != nil {
			return classifyPathErr("commit", req.Target, err)
		}
	}
	return verifyTransfer(req, opts, "")
}

// copyAssignedChunks copies every chunk whose index is congruent to id
// modulo workers. Each worker opens its own handles; positional reads
// and writes mean nothing is shared beyond the progress counter.
func copyAssignedChunks(ctx context.Context, req TransferRequest, opts Options, writePath string, total int64, id, workers int) error {
	src, err := os.Open(req.Source)
	if err != nil {
		return classifyPathErr("open source", req.Source, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(writePath, os.O_WRONLY, 0)
	if err != nil {
		return classifyPathErr("open destination", writePath, err)
	}
	defer dst.Close()

	chunkSize := req.chunkSize()
	numChunks := (total + chunkSize - 1) / chunkSize

	for idx := int64(id); idx < numChunks; idx += int64(workers) {
		if err := ctx.Err(); err != nil {
			return err
		}
		offset := idx * chunkSize
		length := chunkSize
		if offset+length > total {
			length = total - offset
		}

		n, cerr := limitedCopyRange(ctx, opts.Limiter, src, dst, offset, length)
		opts.Tracker.AddBytes(n)
		if cerr != nil {
			return fmt.Errorf("chunk %d at offset %d: %w", idx, offset, cerr)
		}
		if n < length {
			return fmt.Errorf("chunk %d: source %s truncated during copy", idx, req.Source)
		}
	}
	return dst.Close()
}
