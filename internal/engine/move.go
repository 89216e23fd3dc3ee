package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/ferrylabs/ferry/internal/event"
)

// Move relocates a file or directory, preferring a metadata-only
// rename. A rename that fails with a cross-device or permission error
// falls back to copy-then-delete; the source is removed only after the
// copy fully succeeds, so a failed copy leaves it untouched.
func Move(ctx context.Context, req TransferRequest, opts Options) error {
	opts = opts.withDefaults()

	srcInfo, err := os.Lstat(req.Source)
	if err != nil {
		return classifySourceErr(req.Source, err)
	}

	if dstInfo, lerr := os.Lstat(req.Target); lerr == nil {
		d, derr := opts.resolveOverwrite(ctx, req.Overwrite, req.Target, srcInfo, dstInfo)
		if derr != nil {
			return derr
		}
		if d == Skip {
			opts.Tracker.AddFileSkipped()
			event.Send(opts.Events, event.Event{Type: event.FileSkipped, Path: req.Target})
			return nil
		}
		// Rename over an existing directory never succeeds; clear the
		// way only once the overwrite protocol said to proceed.
		if dstInfo.IsDir() {
			if err := os.RemoveAll(req.Target); err != nil {
				return classifyPathErr("remove existing", req.Target, err)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(req.Target), 0o755); err != nil {
		return classifyPathErr("create parent dir", filepath.Dir(req.Target), err)
	}

	err = os.Rename(req.Source, req.Target)
	if err == nil {
		if srcInfo.IsDir() {
			// A directory inode's Size() is not payload; count the tree
			// as a relocated directory, not a copied file.
			opts.Tracker.AddDirCreated()
			event.Send(opts.Events, event.Event{Type: event.DirCreated, Path: req.Target})
			return nil
		}
		opts.Tracker.AddFileCopied()
		opts.Tracker.AddBytes(srcInfo.Size())
		event.Send(opts.Events, event.Event{Type: event.FileCompleted, Path: req.Target, Size: srcInfo.Size()})
		return nil
	}
	if !renameNeedsCopy(err) {
		return classifyPathErr("rename", req.Target, err)
	}

	slog.Debug("rename not possible, falling back to copy",
		"source", req.Source, "target", req.Target, "error", err)

	return copyThenDelete(ctx, req, opts, srcInfo.IsDir())
}

// copyThenDelete is the cross-filesystem move path. The overwrite
// protocol already ran, so the inner copy must not prompt again.
func copyThenDelete(ctx context.Context, req TransferRequest, opts Options, isDir bool) error {
	inner := req
	inner.Overwrite = OverwriteAlways

	if isDir {
		if err := CopyTree(ctx, inner, opts); err != nil {
			return err
		}
		if err := os.RemoveAll(req.Source); err != nil {
			return classifyPathErr("remove source", req.Source, err)
		}
		return nil
	}

	if err := CopyFile(ctx, inner, opts); err != nil {
		return err
	}
	if err := os.Remove(req.Source); err != nil {
		return classifyPathErr("remove source", req.Source, err)
	}
	return nil
}

// renameNeedsCopy reports whether a rename failure selects the
// copy-then-delete fallback: cross-device links and permission errors.
func renameNeedsCopy(err error) bool {
	if errors.Is(err, unix.EXDEV) {
		return true
	}
	if os.IsPermission(err) || errors.Is(err, unix.EPERM) || errors.Is(err, unix.EACCES) {
		return true
	}
	return false
}
