package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"

	"github.com/ferrylabs/ferry/internal/checksum"
	"github.com/ferrylabs/ferry/internal/event"
	"github.com/ferrylabs/ferry/internal/platform"
	"github.com/ferrylabs/ferry/internal/resume"
)

// CopyFile copies one regular file from req.Source to req.Target in
// bounded-memory chunks. It honors the overwrite protocol, resumes from
// a valid ledger record when req.Resume is set, commits through a
// staging file when req.Atomic is set, and verifies per req.Verify.
func CopyFile(ctx context.Context, req TransferRequest, opts Options) error {
	opts = opts.withDefaults()

	srcInfo, err := statSource(req.Source)
	if err != nil {
		return err
	}
	total := srcInfo.Size()

	st, err := prepareSequential(ctx, req, opts, srcInfo)
	if err != nil || st == nil {
		return err // nil state: skipped
	}

	event.Send(opts.Events, event.Event{Type: event.FileStarted, Path: req.Target, Size: total})

	if err := runSequential(ctx, req, opts, srcInfo, st); err != nil {
		opts.Tracker.AddFileFailed()
		event.Send(opts.Events, event.Event{Type: event.FileFailed, Path: req.Target, Size: total, Error: err})
		// Best-effort save so a crash after a persist gap loses little.
		if st.rec != nil && st.rec.BytesCompleted() > 0 {
			if serr := st.rec.Save(); serr != nil {
				slog.Debug("resume save on failure", "target", req.Target, "error", serr)
			}
		}
		return err
	}

	opts.Tracker.AddFileCopied()
	event.Send(opts.Events, event.Event{Type: event.FileCompleted, Path: req.Target, Size: total})
	return nil
}

// seqState carries the resolved write plan for one sequential transfer.
type seqState struct {
	writePath string // where bytes land before any atomic rename
	offset    int64  // first byte still to copy
	resuming  bool
	staged    bool // writePath registered for abort cleanup
	rec       *resume.Record
}

// prepareSequential resolves resume state and the overwrite protocol.
// A nil state with nil error means the transfer was skipped.
func prepareSequential(ctx context.Context, req TransferRequest, opts Options, srcInfo os.FileInfo) (*seqState, error) {
	total := srcInfo.Size()

	st := &seqState{writePath: req.Target}
	if req.Atomic {
		if req.Resume {
			// Deterministic name so a later run finds the partial bytes.
			st.writePath = partialPath(req.Target)
		} else {
			st.writePath = stagingPath(req.Target)
			st.staged = true
		}
	}

	if req.Resume {
		if err := loadResumeState(ctx, req, opts, st, total); err != nil {
			return nil, err
		}
	}

	if !st.resuming {
		if dstInfo, err := os.Lstat(req.Target); err == nil {
			d, derr := opts.resolveOverwrite(ctx, req.Overwrite, req.Target, srcInfo, dstInfo)
			if derr != nil {
				return nil, derr
			}
			if d == Skip {
				opts.Tracker.AddFileSkipped()
				event.Send(opts.Events, event.Event{Type: event.FileSkipped, Path: req.Target, Size: total})
				return nil, nil
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(req.Target), 0o755); err != nil {
		return nil, classifyPathErr("create parent dir", filepath.Dir(req.Target), err)
	}

	if req.Resume && st.rec == nil {
		st.rec = resume.NewRecord(req.Source, req.Target, total)
	}
	return st, nil
}

// loadResumeState loads and vets any prior ledger record, consults the
// resume decider, and re-verifies written ranges under fast verify. An
// unusable record is discarded and surfaced as ResumeInvalid; a declined
// offer removes the partial bytes.
func loadResumeState(ctx context.Context, req TransferRequest, opts Options, st *seqState, total int64) error {
	rec, err := resume.Load(req.Target)
	if err != nil {
		slog.Warn("discarding unusable resume state", "target", req.Target, "error", err)
		event.Send(opts.Events, event.Event{Type: event.ResumeInvalid, Path: req.Target, Error: err})
		_ = resume.Cleanup(req.Target)
		return nil
	}
	if rec == nil {
		return nil
	}

	if rec.Source != req.Source || rec.TotalSize != total {
		slog.Warn("resume state does not match this transfer",
			"target", req.Target, "recorded_source", rec.Source, "recorded_size", rec.TotalSize)
		event.Send(opts.Events, event.Event{Type: event.ResumeInvalid, Path: req.Target,
			Error: fmt.Errorf("%w: record describes a different transfer", resume.ErrInvalidState)})
		_ = resume.Cleanup(req.Target)
		return nil
	}

	completed := rec.BytesCompleted()
	if completed <= 0 || completed >= total {
		_ = resume.Cleanup(req.Target)
		return nil
	}

	// The partial must actually hold every recorded byte. Resuming past
	// its end would zero-fill the gap when the write offset is restored.
	if info, serr := os.Lstat(st.writePath); serr != nil || info.Size() < completed {
		slog.Warn("partial file missing or shorter than the recorded offset, restarting",
			"target", req.Target, "recorded", completed)
		event.Send(opts.Events, event.Event{Type: event.ResumeInvalid, Path: req.Target,
			Error: fmt.Errorf("%w: partial shorter than recorded offset", resume.ErrInvalidState)})
		_ = resume.Cleanup(req.Target)
		_ = os.Remove(st.writePath)
		return nil
	}

	if req.Verify == VerifyFast {
		if ok := recheckRanges(rec, st.writePath); !ok {
			slog.Warn("written ranges no longer match their checksums, restarting",
				"target", req.Target)
			event.Send(opts.Events, event.Event{Type: event.ResumeInvalid, Path: req.Target,
				Error: fmt.Errorf("%w: range checksum mismatch", resume.ErrInvalidState)})
			_ = resume.Cleanup(req.Target)
			_ = os.Remove(st.writePath)
			return nil
		}
	}

	event.Send(opts.Events, event.Event{
		Type: event.ResumeFound, Path: req.Target, Size: completed, TotalSize: total,
	})

	cont := true
	if opts.Resumer != nil {
		var derr error
		cont, derr = opts.Resumer.Continue(ctx, req.Source, req.Target, completed, total)
		if derr != nil {
			return fmt.Errorf("resolve resume for %s: %w", req.Target, derr)
		}
	}
	if !cont {
		_ = resume.Cleanup(req.Target)
		_ = os.Remove(st.writePath)
		return nil
	}

	st.rec = rec
	st.offset = completed
	st.resuming = true
	opts.Tracker.MarkResumed()
	return nil
}

// recheckRanges re-hashes every range that carries a checksum against
// the bytes currently on disk.
func recheckRanges(rec *resume.Record, writePath string) bool {
	for _, rg := range rec.Ranges {
		if rg.Checksum == "" {
			continue
		}
		sum, err := checksum.FastRange(writePath, rg.Offset, rg.Length)
		if err != nil || sum != rg.Checksum {
			return false
		}
	}
	return true
}

func runSequential(ctx context.Context, req TransferRequest, opts Options, srcInfo os.FileInfo, st *seqState) error {
	total := srcInfo.Size()

	if st.staged {
		RegisterStaging(st.writePath)
		defer func() {
			DeregisterStaging(st.writePath)
			_ = os.Remove(st.writePath) // no-op once renamed
		}()
	}

	cloned := false
	if !st.resuming {
		var cerr error
		cloned, cerr = platform.TryReflink(req.Source, st.writePath, req.Reflink)
		if cerr != nil {
			return fmt.Errorf("reflink %s: %w", req.Source, cerr)
		}
		if cloned {
			slog.Debug("reflinked", "source", req.Source, "target", st.writePath)
			opts.Tracker.AddBytes(total)
		}
	}

	var inlineDigest string
	if !cloned {
		var err error
		inlineDigest, err = streamFile(ctx, req, opts, srcInfo, st)
		if err != nil {
			return err
		}
	}

	if err := applyMetadata(st.writePath, srcInfo, req.PreserveTimes); err != nil {
		return err
	}

	if req.Atomic {
		if err := os.Rename(st.writePath, req.Target); err != nil {
			return classifyPathErr("commit", req.Target, err)
		}
	}

	if err := verifyTransfer(req, opts, inlineDigest); err != nil {
		// Leave the ledger in place: the destination is suspect and a
		// later resume should still be possible.
		return err
	}

	if err := resume.Cleanup(req.Target); err != nil {
		slog.Debug("sidecar cleanup", "target", req.Target, "error", err)
	}
	return nil
}

// streamFile moves the remaining bytes. It returns the inline xxhash64
// source digest when one was computed alongside the copy.
func streamFile(ctx context.Context, req TransferRequest, opts Options, srcInfo os.FileInfo, st *seqState) (string, error) {
	total := srcInfo.Size()

	src, err := os.Open(req.Source)
	if err != nil {
		return "", classifyPathErr("open source", req.Source, err)
	}
	defer src.Close()

	flags := os.O_WRONLY | os.O_CREATE
	if !st.resuming {
		flags |= os.O_TRUNC
	}
	dst, err := os.OpenFile(st.writePath, flags, srcInfo.Mode().Perm())
	if err != nil {
		return "", classifyPathErr("open destination", st.writePath, err)
	}
	defer dst.Close()

	if st.resuming {
		// Always continue from the persisted offset, never end-of-file:
		// bytes written past the last persisted range are discarded so
		// source and destination positions cannot drift apart.
		if err := dst.Truncate(st.offset); err != nil {
			return "", fmt.Errorf("truncate %s to %d: %w", st.writePath, st.offset, err)
		}
	}

	segs := []platform.Segment{{Offset: 0, Length: total, IsData: true}}
	if req.Sparse {
		segs, err = platform.SparseSegments(src, total)
		if err != nil {
			return "", fmt.Errorf("map sparse layout of %s: %w", req.Source, err)
		}
	}

	// Inline hashing only sees bytes that actually flow through the
	// loop, so it is valid only for a fresh, hole-free copy.
	var inline *xxhash.Digest
	if req.Verify == VerifyFast && st.offset == 0 && !req.Sparse {
		inline = xxhash.New()
	}

	var pending int64 // bytes recorded since the last ledger save
	for _, seg := range segs {
		if seg.End() <= st.offset {
			continue
		}
		start := seg.Offset
		if start < st.offset {
			start = st.offset
		}

		if !seg.IsData {
			// Holes are never read; extending by truncation keeps the
			// skipped region reading as zeros.
			if err := dst.Truncate(seg.End()); err != nil {
				return "", fmt.Errorf("extend %s over hole: %w", st.writePath, err)
			}
			markDone(req, opts, st, start, seg.End()-start, "", &pending)
			opts.Tracker.AddBytes(seg.End() - start)
			continue
		}

		if err := copySegment(ctx, req, opts, src, dst, st, start, seg.End(), inline, &pending); err != nil {
			return "", err
		}
	}

	if st.rec != nil && pending > 0 {
		if err := st.rec.Save(); err != nil {
			slog.Warn("resume save failed", "target", req.Target, "error", err)
		}
	}

	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", st.writePath, err)
	}

	if inline != nil {
		return checksum.FormatFast(inline.Sum64()), nil
	}
	return "", nil
}

// copySegment streams [start, end) in ledger-granularity chunks built
// from pooled buffers.
func copySegment(ctx context.Context, req TransferRequest, opts Options, src, dst *os.File, st *seqState, start, end int64, inline *xxhash.Digest, pending *int64) error {
	chunkSize := req.chunkSize()
	bufp := platform.GetBuffer()
	defer platform.PutBuffer(bufp)
	buf := *bufp

	for chunkOff := start; chunkOff < end; {
		chunkEnd := chunkOff + chunkSize
		if chunkEnd > end {
			chunkEnd = end
		}

		var chunkHash *xxhash.Digest
		if req.Verify == VerifyFast && st.rec != nil {
			chunkHash = xxhash.New()
		}

		pos := chunkOff
		for pos < chunkEnd {
			if err := ctx.Err(); err != nil {
				return err
			}
			n := chunkEnd - pos
			if n > int64(len(buf)) {
				n = int64(len(buf))
			}
			if opts.Limiter != nil {
				if err := opts.Limiter.WaitN(ctx, int(n)); err != nil {
					return err
				}
			}

			read, rerr := src.ReadAt(buf[:n], pos)
			if read > 0 {
				if _, werr := dst.WriteAt(buf[:read], pos); werr != nil {
					return classifyPathErr("write", st.writePath, werr)
				}
				if inline != nil {
					_, _ = inline.Write(buf[:read])
				}
				if chunkHash != nil {
					_, _ = chunkHash.Write(buf[:read])
				}
				opts.Tracker.AddBytes(int64(read))
				pos += int64(read)
			}
			if rerr != nil {
				if rerr == io.EOF {
					return fmt.Errorf("source %s truncated during copy at offset %d", req.Source, pos)
				}
				return classifyPathErr("read", req.Source, rerr)
			}
		}

		var sum string
		if chunkHash != nil {
			sum = checksum.FormatFast(chunkHash.Sum64())
		}
		markDone(req, opts, st, chunkOff, chunkEnd-chunkOff, sum, pending)
		chunkOff = chunkEnd
	}
	return nil
}

// markDone records a completed range and persists the ledger once
// enough new bytes have accumulated. Persistence is best-effort.
func markDone(req TransferRequest, _ Options, st *seqState, offset, length int64, sum string, pending *int64) {
	if st.rec == nil {
		return
	}
	st.rec.MarkRangeDone(offset, length, sum)
	*pending += length
	if *pending >= req.persistEvery() {
		if err := st.rec.Save(); err != nil {
			slog.Warn("resume save failed", "target", req.Target, "error", err)
		}
		*pending = 0
	}
}

// verifyTransfer recomputes whole-file digests for source and target
// and compares them. inlineSrc, when non-empty, is the xxhash64 digest
// computed while streaming and stands in for re-reading the source.
func verifyTransfer(req TransferRequest, opts Options, inlineSrc string) error {
	if req.Verify == VerifyNone {
		return nil
	}
	event.Send(opts.Events, event.Event{Type: event.VerifyStarted, Path: req.Target})

	var srcSum, dstSum, algo string
	var err error
	switch req.Verify {
	case VerifyFast:
		algo = "xxh64"
		srcSum = inlineSrc
		if srcSum == "" {
			if srcSum, err = checksum.FastFile(req.Source); err != nil {
				return err
			}
		}
		if dstSum, err = checksum.FastFile(req.Target); err != nil {
			return err
		}
	default: // VerifyFull
		algo = "blake3"
		if srcSum, err = checksum.File(req.Source); err != nil {
			return err
		}
		if dstSum, err = checksum.File(req.Target); err != nil {
			return err
		}
	}

	if srcSum != dstSum {
		opts.Tracker.AddVerifyFailed()
		event.Send(opts.Events, event.Event{Type: event.VerifyFailed, Path: req.Target})
		return &ChecksumError{Path: req.Target, Algo: algo, Expected: srcSum, Actual: dstSum}
	}
	opts.Tracker.AddFileVerified()
	event.Send(opts.Events, event.Event{Type: event.VerifyOK, Path: req.Target})
	return nil
}

// statSource stats the source and enforces the regular-file
// precondition shared by both engines.
func statSource(path string) (os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, classifySourceErr(path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("source %s is not a regular file", path)
	}
	return info, nil
}

func classifySourceErr(path string, err error) error {
	if os.IsNotExist(err) {
		return NewError(KindSourceNotFound, path, err)
	}
	if os.IsPermission(err) {
		return NewError(KindPermission, path, err)
	}
	return fmt.Errorf("stat %s: %w", path, err)
}

func classifyPathErr(op, path string, err error) error {
	if os.IsPermission(err) {
		return NewError(KindPermission, path, fmt.Errorf("%s: %w", op, err))
	}
	return fmt.Errorf("%s %s: %w", op, path, err)
}

// applyMetadata replicates permissions and, optionally, timestamps onto
// path before it becomes visible at the final destination.
func applyMetadata(path string, srcInfo os.FileInfo, preserveTimes bool) error {
	if err := os.Chmod(path, srcInfo.Mode().Perm()); err != nil {
		return classifyPathErr("chmod", path, err)
	}
	if preserveTimes {
		if err := os.Chtimes(path, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
			return fmt.Errorf("set times %s: %w", path, err)
		}
	}
	return nil
}
