package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/ferrylabs/ferry/internal/event"
)

// DispatchStrategy selects how a directory tree is parallelized.
type DispatchStrategy int

const (
	// DispatchAuto picks per-file or flat-list dispatch from the tree's
	// file-size profile.
	DispatchAuto DispatchStrategy = iota
	// DispatchTree copies files one at a time, parallelizing within
	// each file. Suits trees dominated by few large files.
	DispatchTree
	// DispatchFlat splits the flat file list into contiguous slices,
	// one per worker, each copied sequentially. Suits many small files.
	DispatchFlat
)

func (s DispatchStrategy) String() string {
	switch s {
	case DispatchAuto:
		return "auto"
	case DispatchTree:
		return "tree"
	case DispatchFlat:
		return "flat"
	default:
		return "unknown"
	}
}

// ParseDispatchStrategy parses the CLI/config spelling of a strategy.
func ParseDispatchStrategy(s string) (DispatchStrategy, error) {
	switch s {
	case "auto":
		return DispatchAuto, nil
	case "tree":
		return DispatchTree, nil
	case "flat":
		return DispatchFlat, nil
	default:
		return 0, fmt.Errorf("unknown dispatch strategy %q (use auto, tree, or flat)", s)
	}
}

type entryKind int

const (
	entryDir entryKind = iota
	entryFile
	entrySymlink
)

// treeEntry is one enumerated filesystem entry, emitted with every
// directory preceding its contents.
type treeEntry struct {
	kind       entryKind
	src        string
	dst        string
	rel        string // slash-separated, relative to the source root
	info       os.FileInfo
	linkTarget string
}

// walkTree enumerates srcRoot with an explicit work-list of pending
// directories, so traversal depth never grows call state. Entries
// matching an exclude pattern are reported through onExclude and not
// descended into. Special files are ignored.
func walkTree(ctx context.Context, srcRoot, dstRoot string, req TransferRequest, fn func(treeEntry) error, onExclude func(rel string)) error {
	type dirItem struct{ src, dst, rel string }
	stack := []dirItem{{srcRoot, dstRoot, ""}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		entries, err := os.ReadDir(it.src)
		if err != nil {
			return classifyPathErr("read dir", it.src, err)
		}

		for _, de := range entries {
			name := de.Name()
			rel := name
			if it.rel != "" {
				rel = it.rel + "/" + name
			}
			if matchesExclude(req.Excludes, rel, name) {
				if onExclude != nil {
					onExclude(rel)
				}
				continue
			}

			src := filepath.Join(it.src, name)
			dst := filepath.Join(it.dst, name)
			info, err := os.Lstat(src)
			if err != nil {
				return classifyPathErr("lstat", src, err)
			}

			switch {
			case info.IsDir():
				if err := fn(treeEntry{kind: entryDir, src: src, dst: dst, rel: rel, info: info}); err != nil {
					return err
				}
				stack = append(stack, dirItem{src, dst, rel})

			case info.Mode()&os.ModeSymlink != 0:
				if req.FollowSymlinks {
					ti, serr := os.Stat(src)
					if serr == nil && ti.Mode().IsRegular() {
						if err := fn(treeEntry{kind: entryFile, src: src, dst: dst, rel: rel, info: ti}); err != nil {
							return err
						}
						continue
					}
					// Broken links and symlinked directories fall back
					// to recreating the link itself.
				}
				target, rerr := os.Readlink(src)
				if rerr != nil {
					return fmt.Errorf("readlink %s: %w", src, rerr)
				}
				if err := fn(treeEntry{kind: entrySymlink, src: src, dst: dst, rel: rel, info: info, linkTarget: target}); err != nil {
					return err
				}

			case info.Mode().IsRegular():
				if err := fn(treeEntry{kind: entryFile, src: src, dst: dst, rel: rel, info: info}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// matchesExclude reports whether any glob matches the relative path or
// the base name.
func matchesExclude(patterns []string, rel, base string) bool {
	for _, p := range patterns {
		if ok, _ := path.Match(p, rel); ok {
			return true
		}
		if ok, _ := path.Match(p, base); ok {
			return true
		}
	}
	return false
}

// CopyTree mirrors the directory at req.Source under req.Target and
// transfers every regular file it contains. Directories are created as
// they are discovered, always before any file below them.
func CopyTree(ctx context.Context, req TransferRequest, opts Options) error {
	opts = opts.withDefaults()

	srcInfo, err := os.Stat(req.Source)
	if err != nil {
		return classifySourceErr(req.Source, err)
	}
	if !srcInfo.IsDir() {
		return fmt.Errorf("source %s is not a directory", req.Source)
	}

	if err := os.MkdirAll(req.Target, srcInfo.Mode().Perm()); err != nil {
		return classifyPathErr("create destination", req.Target, err)
	}

	event.Send(opts.Events, event.Event{Type: event.ScanStarted, Path: req.Source})

	var cp *CheckpointDB
	if req.Resume {
		cp, err = OpenCheckpoint(req.Source, req.Target)
		if err != nil {
			// File-level resume is an optimization; a broken checkpoint
			// must not block the copy.
			slog.Warn("tree checkpoint unavailable", "error", err)
			cp = nil
		} else {
			defer cp.Close()
		}
	}

	files, totalBytes, err := enumerateTree(ctx, req, opts, cp)
	if err != nil {
		return err
	}

	opts.Tracker.SetTotals(int64(len(files)), totalBytes)
	event.Send(opts.Events, event.Event{
		Type: event.ScanComplete, Path: req.Source,
		Total: int64(len(files)), TotalSize: totalBytes,
	})

	strategy := req.Dispatch
	if strategy == DispatchAuto {
		strategy = pickStrategy(files, totalBytes, req.chunkSize())
	}
	slog.Debug("dispatching tree",
		"files", len(files), "bytes", totalBytes, "strategy", strategy.String())

	switch strategy {
	case DispatchFlat:
		err = dispatchFlat(ctx, req, opts, cp, files)
	default:
		err = dispatchPerFile(ctx, req, opts, cp, files)
	}
	if err != nil {
		return err
	}

	if cp != nil {
		if err := cp.Flush(); err != nil {
			slog.Debug("checkpoint flush", "error", err)
		}
		if err := cp.Remove(); err != nil {
			slog.Debug("checkpoint remove", "error", err)
		}
	}
	return nil
}

// enumerateTree walks the source, creating directories and symlinks on
// the way, and returns the regular files still to copy.
func enumerateTree(ctx context.Context, req TransferRequest, opts Options, cp *CheckpointDB) ([]treeEntry, int64, error) {
	var files []treeEntry
	var totalBytes int64

	onExclude := func(rel string) {
		opts.Tracker.AddFileSkipped()
		event.Send(opts.Events, event.Event{Type: event.FileSkipped, Path: rel})
	}

	err := walkTree(ctx, req.Source, req.Target, req, func(e treeEntry) error {
		switch e.kind {
		case entryDir:
			if err := os.MkdirAll(e.dst, e.info.Mode().Perm()); err != nil {
				return classifyPathErr("mkdir", e.dst, err)
			}
			opts.Tracker.AddDirCreated()
			event.Send(opts.Events, event.Event{Type: event.DirCreated, Path: e.dst})

		case entrySymlink:
			// Symlinks honor the same overwrite protocol as files.
			if dstInfo, lerr := os.Lstat(e.dst); lerr == nil {
				d, derr := opts.resolveOverwrite(ctx, req.Overwrite, e.dst, e.info, dstInfo)
				if derr != nil {
					return derr
				}
				if d == Skip {
					opts.Tracker.AddFileSkipped()
					event.Send(opts.Events, event.Event{Type: event.FileSkipped, Path: e.dst})
					return nil
				}
				if err := os.Remove(e.dst); err != nil {
					return classifyPathErr("remove existing", e.dst, err)
				}
			}
			if err := os.Symlink(e.linkTarget, e.dst); err != nil {
				return fmt.Errorf("symlink %s -> %s: %w", e.dst, e.linkTarget, err)
			}
			opts.Tracker.AddSymlinkCreated()
			event.Send(opts.Events, event.Event{Type: event.SymlinkCreated, Path: e.dst})

		case entryFile:
			if cp != nil && cp.IsCompleted(e.rel, e.info.Size(), e.info.ModTime().UnixNano()) {
				opts.Tracker.AddFileSkipped()
				event.Send(opts.Events, event.Event{Type: event.FileSkipped, Path: e.rel, Size: e.info.Size()})
				return nil
			}
			files = append(files, e)
			totalBytes += e.info.Size()
		}
		return nil
	}, onExclude)
	if err != nil {
		return nil, 0, err
	}
	return files, totalBytes, nil
}

// pickStrategy chooses flat-list slicing when files are small relative
// to the chunk threshold, per-file parallelism when large files
// dominate.
func pickStrategy(files []treeEntry, totalBytes, chunkSize int64) DispatchStrategy {
	if len(files) == 0 {
		return DispatchFlat
	}
	if totalBytes/int64(len(files)) >= 2*chunkSize {
		return DispatchTree
	}
	return DispatchFlat
}

// dispatchPerFile copies files one at a time, each through the parallel
// engine sized by the request's worker count.
func dispatchPerFile(ctx context.Context, req TransferRequest, opts Options, cp *CheckpointDB, files []treeEntry) error {
	var firstErr error
	var errCount int

	for _, e := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyTreeFile(ctx, req, opts, cp, e, req.workers()); err != nil {
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

// dispatchFlat splits the file list into one contiguous slice per
// worker; each worker copies its slice sequentially.
func dispatchFlat(ctx context.Context, req TransferRequest, opts Options, cp *CheckpointDB, files []treeEntry) error {
	workers := req.workers()
	if workers > len(files) {
		workers = len(files)
	}
	if workers <= 1 {
		return dispatchSlice(ctx, req, opts, cp, files)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	per := (len(files) + workers - 1) / workers
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < len(files); i += per {
		end := i + per
		if end > len(files) {
			end = len(files)
		}
		slice := files[i:end]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := dispatchSlice(ctx, req, opts, cp, slice); err != nil {
				select {
				case errs <- err:
				default:
				}
				if IsKind(err, KindUserAborted) {
					cancel()
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	var firstErr error
	var errCount int
	for err := range errs {
		errCount++
		if firstErr == nil {
			firstErr = err
		}
	}
	return aggregateErrs(firstErr, errCount)
}

func dispatchSlice(ctx context.Context, req TransferRequest, opts Options, cp *CheckpointDB, files []treeEntry) error {
	var firstErr error
	var errCount int
	for _, e := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := copyTreeFile(ctx, req, opts, cp, e, 1); err != nil {
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

func copyTreeFile(ctx context.Context, req TransferRequest, opts Options, cp *CheckpointDB, e treeEntry, workers int) error {
	fileReq := req
	fileReq.Source = e.src
	fileReq.Target = e.dst
	fileReq.Workers = workers

	var err error
	if workers > 1 {
		err = CopyFileParallel(ctx, fileReq, opts)
	} else {
		err = CopyFile(ctx, fileReq, opts)
	}
	if err != nil {
		return err
	}

	if cp != nil {
		if merr := cp.MarkCompleted(e.rel, e.info.Size(), e.info.ModTime().UnixNano()); merr != nil {
			slog.Debug("checkpoint mark", "path", e.rel, "error", merr)
		}
	}
	return nil
}

func aggregateErrs(first error, count int) error {
	if first == nil {
		return nil
	}
	if count > 1 {
		return fmt.Errorf("%w (and %d more errors)", first, count-1)
	}
	return first
}
