package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/ferrylabs/ferry/internal/stats"
)

func TestMove_RenamesFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "moved", "dst.bin")
	want := writeRandomFile(t, src, 512)

	tracker := stats.NewTracker()
	require.NoError(t, Move(context.Background(), newRequest(src, dst), Options{Tracker: tracker}))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoFileExists(t, src)
	assert.Equal(t, int64(1), tracker.Snapshot().FilesCopied)
}

func TestMove_RenamesDirectory(t *testing.T) {
	dir := t.TempDir()
	srcRoot := filepath.Join(dir, "src")
	dstRoot := filepath.Join(dir, "dst")
	contents := buildTree(t, srcRoot)

	tracker := stats.NewTracker()
	require.NoError(t, Move(context.Background(), newRequest(srcRoot, dstRoot), Options{Tracker: tracker}))

	assert.NoDirExists(t, srcRoot)
	for rel, want := range contents {
		got, err := os.ReadFile(filepath.Join(dstRoot, rel))
		require.NoError(t, err)
		assert.Equal(t, want, got, rel)
	}

	// A renamed tree is a relocated directory, not a copied file, and a
	// directory inode's size is not payload.
	snap := tracker.Snapshot()
	assert.Equal(t, int64(1), snap.DirsCreated)
	assert.Zero(t, snap.FilesCopied)
	assert.Zero(t, snap.BytesDone)
}

func TestMove_OverwriteNever(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	writeRandomFile(t, src, 64)
	existing := writeRandomFile(t, dst, 32)

	req := newRequest(src, dst)
	req.Overwrite = OverwriteNever
	err := Move(context.Background(), req, Options{})
	assert.True(t, IsKind(err, KindTargetExists))

	// Neither side is touched.
	assert.FileExists(t, src)
	got, rerr := os.ReadFile(dst)
	require.NoError(t, rerr)
	assert.Equal(t, existing, got)
}

func TestMove_SkipLeavesSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	writeRandomFile(t, src, 64)
	existing := writeRandomFile(t, dst, 32)

	req := newRequest(src, dst)
	req.Overwrite = OverwritePrompt
	tracker := stats.NewTracker()
	opts := Options{
		Tracker: tracker,
		Prompter: OverwritePolicyFunc(func(_ context.Context, _ string, _, _ os.FileInfo) (Decision, error) {
			return Skip, nil
		}),
	}
	require.NoError(t, Move(context.Background(), req, opts))

	assert.FileExists(t, src)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, existing, got)
	assert.Equal(t, int64(1), tracker.Snapshot().FilesSkipped)
}

func TestMove_ReplacesExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	srcRoot := filepath.Join(dir, "src")
	dstRoot := filepath.Join(dir, "dst")
	writeRandomFile(t, filepath.Join(srcRoot, "new.bin"), 40)
	writeRandomFile(t, filepath.Join(dstRoot, "stale.bin"), 40)

	require.NoError(t, Move(context.Background(), newRequest(srcRoot, dstRoot), Options{}))

	assert.FileExists(t, filepath.Join(dstRoot, "new.bin"))
	assert.NoFileExists(t, filepath.Join(dstRoot, "stale.bin"))
	assert.NoDirExists(t, srcRoot)
}

func TestMove_SourceNotFound(t *testing.T) {
	dir := t.TempDir()
	err := Move(context.Background(), newRequest(filepath.Join(dir, "missing"), filepath.Join(dir, "dst")), Options{})
	assert.True(t, IsKind(err, KindSourceNotFound))
}

func TestRenameNeedsCopy(t *testing.T) {
	linkErr := func(err error) error {
		return &os.LinkError{Op: "rename", Old: "a", New: "b", Err: err}
	}

	assert.True(t, renameNeedsCopy(linkErr(unix.EXDEV)))
	assert.True(t, renameNeedsCopy(linkErr(unix.EPERM)))
	assert.True(t, renameNeedsCopy(linkErr(unix.EACCES)))
	assert.False(t, renameNeedsCopy(linkErr(unix.ENOENT)))
	assert.False(t, renameNeedsCopy(errors.New("unrelated")))
}

// copyThenDelete is the cross-device fallback; exercising it directly
// avoids needing two filesystems in the test environment.
func TestCopyThenDelete_File(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	dst := filepath.Join(dir, "dst.bin")
	want := writeRandomFile(t, src, 2*testChunk)

	req := newRequest(src, dst)
	require.NoError(t, copyThenDelete(context.Background(), req, Options{}.withDefaults(), false))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.NoFileExists(t, src)
}

func TestCopyThenDelete_Directory(t *testing.T) {
	dir := t.TempDir()
	srcRoot := filepath.Join(dir, "src")
	dstRoot := filepath.Join(dir, "dst")
	contents := buildTree(t, srcRoot)

	req := newRequest(srcRoot, dstRoot)
	require.NoError(t, copyThenDelete(context.Background(), req, Options{}.withDefaults(), true))

	assert.NoDirExists(t, srcRoot)
	for rel, want := range contents {
		got, err := os.ReadFile(filepath.Join(dstRoot, rel))
		require.NoError(t, err)
		assert.Equal(t, want, got, rel)
	}
}

func TestCopyThenDelete_FailureKeepsSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bin")
	writeRandomFile(t, src, 128)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := newRequest(src, filepath.Join(dir, "dst.bin"))
	err := copyThenDelete(ctx, req, Options{}.withDefaults(), false)
	require.Error(t, err)
	assert.FileExists(t, src)
}
