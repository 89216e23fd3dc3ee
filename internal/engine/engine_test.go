package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferrylabs/ferry/internal/event"
	"github.com/ferrylabs/ferry/internal/stats"
)

func TestRun_SingleFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	writeRandomFile(t, src, 2*testChunk)

	req := newRequest("", "")
	req.Verify = VerifyFull
	res := Run(context.Background(), Config{
		Operation: OpCopy,
		Sources:   []string{src},
		Dest:      dst,
		Request:   req,
	}, Options{Tracker: stats.NewTracker()})

	require.NoError(t, res.Err)
	requireSameContent(t, src, dst)
	assert.Equal(t, int64(2*testChunk), res.Summary.BytesTransferred)
	assert.Equal(t, int64(1), res.Summary.FilesCopied)
	assert.True(t, res.Summary.Verified)
	assert.Positive(t, res.Summary.Duration)
}

func TestRun_MultipleSourcesIntoDirectory(t *testing.T) {
	dir := t.TempDir()
	srcA := filepath.Join(dir, "a.bin")
	srcB := filepath.Join(dir, "b.bin")
	dest := filepath.Join(dir, "out")
	writeRandomFile(t, srcA, 100)
	writeRandomFile(t, srcB, 200)

	res := Run(context.Background(), Config{
		Sources: []string{srcA, srcB},
		Dest:    dest,
		Request: newRequest("", ""),
	}, Options{})

	require.NoError(t, res.Err)
	requireSameContent(t, srcA, filepath.Join(dest, "a.bin"))
	requireSameContent(t, srcB, filepath.Join(dest, "b.bin"))
	assert.Equal(t, int64(2), res.Summary.FilesCopied)
}

func TestRun_MultipleSourcesNeedDirDest(t *testing.T) {
	dir := t.TempDir()
	srcA := filepath.Join(dir, "a.bin")
	srcB := filepath.Join(dir, "b.bin")
	dst := filepath.Join(dir, "existing.bin")
	writeRandomFile(t, srcA, 10)
	writeRandomFile(t, srcB, 10)
	writeRandomFile(t, dst, 10)

	res := Run(context.Background(), Config{
		Sources: []string{srcA, srcB},
		Dest:    dst,
		Request: newRequest("", ""),
	}, Options{})
	assert.True(t, IsKind(res.Err, KindConfig))
}

func TestRun_NoSources(t *testing.T) {
	res := Run(context.Background(), Config{Dest: t.TempDir()}, Options{})
	assert.True(t, IsKind(res.Err, KindConfig))
}

func TestRun_DirectoryIntoExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	srcRoot := filepath.Join(dir, "project")
	dest := filepath.Join(dir, "backup")
	contents := buildTree(t, srcRoot)
	require.NoError(t, os.MkdirAll(dest, 0o755))

	res := Run(context.Background(), Config{
		Sources: []string{srcRoot},
		Dest:    dest,
		Request: newRequest("", ""),
	}, Options{})

	require.NoError(t, res.Err)
	// cp semantics: the tree lands under dest/project.
	for rel := range contents {
		requireSameContent(t,
			filepath.Join(srcRoot, rel),
			filepath.Join(dest, "project", rel))
	}
}

func TestRun_MoveOperation(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	want := writeRandomFile(t, src, 256)

	res := Run(context.Background(), Config{
		Operation: OpMove,
		Sources:   []string{src},
		Dest:      dst,
		Request:   newRequest("", ""),
	}, Options{})

	require.NoError(t, res.Err)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoFileExists(t, src)
}

func TestRun_DryRunTouchesNothing(t *testing.T) {
	dir := t.TempDir()
	srcRoot := filepath.Join(dir, "src")
	dest := filepath.Join(dir, "dst")
	contents := buildTree(t, srcRoot)

	events := make(chan event.Event, 64)
	tracker := stats.NewTracker()
	res := Run(context.Background(), Config{
		Sources: []string{srcRoot},
		Dest:    dest,
		Request: newRequest("", ""),
		DryRun:  true,
	}, Options{Tracker: tracker, Events: events})
	close(events)

	require.NoError(t, res.Err)
	assert.NoDirExists(t, dest)
	assert.Zero(t, res.Summary.BytesTransferred)
	assert.Zero(t, res.Summary.FilesCopied)

	var planned int
	for ev := range events {
		if ev.Type == event.FilePlanned {
			planned++
		}
	}
	assert.Equal(t, len(contents), planned)
	assert.Equal(t, int64(len(contents)), tracker.Snapshot().FilesTotal)
}

func TestRun_EmitsFinished(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	writeRandomFile(t, src, 16)

	events := make(chan event.Event, 32)
	res := Run(context.Background(), Config{
		Sources: []string{src},
		Dest:    filepath.Join(dir, "dst.bin"),
		Request: newRequest("", ""),
	}, Options{Events: events})
	close(events)
	require.NoError(t, res.Err)

	var finished bool
	for ev := range events {
		if ev.Type == event.Finished {
			finished = true
		}
	}
	assert.True(t, finished)
}

func TestResolveTarget(t *testing.T) {
	assert.Equal(t, "/dst/file", resolveTarget("/src/file", "/dst", true))
	assert.Equal(t, "/dst", resolveTarget("/src/file", "/dst", false))
}

func TestRun_AggregatesPerSourceErrors(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.bin")
	writeRandomFile(t, good, 32)
	dest := filepath.Join(dir, "out")

	res := Run(context.Background(), Config{
		Sources: []string{filepath.Join(dir, "missing-1"), good, filepath.Join(dir, "missing-2")},
		Dest:    dest,
		Request: newRequest("", ""),
	}, Options{})

	require.Error(t, res.Err)
	assert.Contains(t, res.Err.Error(), "more error")
	// The good source still copied despite its siblings failing.
	requireSameContent(t, good, filepath.Join(dest, "good.bin"))
}
