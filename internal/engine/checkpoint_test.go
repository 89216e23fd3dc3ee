package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCheckpoint(t *testing.T, src, dst string) *CheckpointDB {
	t.Helper()
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())
	cp, err := OpenCheckpoint(src, dst)
	require.NoError(t, err)
	t.Cleanup(func() { cp.Close() })
	return cp
}

func TestCheckpoint_MarkAndLookup(t *testing.T) {
	cp := openTestCheckpoint(t, "/data/src", "/data/dst")

	require.NoError(t, cp.MarkCompleted("a/b.bin", 1024, 777))
	require.NoError(t, cp.Flush())

	assert.True(t, cp.IsCompleted("a/b.bin", 1024, 777))
	assert.False(t, cp.IsCompleted("a/b.bin", 1024, 778), "mtime mismatch must invalidate")
	assert.False(t, cp.IsCompleted("a/b.bin", 1025, 777), "size mismatch must invalidate")
	assert.False(t, cp.IsCompleted("a/other.bin", 1024, 777))
}

func TestCheckpoint_UnflushedEntryNotVisible(t *testing.T) {
	cp := openTestCheckpoint(t, "/data/src", "/data/dst")

	require.NoError(t, cp.MarkCompleted("pending.bin", 10, 1))
	assert.False(t, cp.IsCompleted("pending.bin", 10, 1))

	require.NoError(t, cp.Flush())
	assert.True(t, cp.IsCompleted("pending.bin", 10, 1))
}

func TestCheckpoint_BatchAutoFlushes(t *testing.T) {
	cp := openTestCheckpoint(t, "/data/src", "/data/dst")

	for i := 0; i < 100; i++ {
		require.NoError(t, cp.MarkCompleted(fmt.Sprintf("file-%03d", i), int64(i), int64(i)))
	}
	// The 100th mark crosses the batch threshold and flushes inline.
	assert.True(t, cp.IsCompleted("file-000", 0, 0))
	assert.True(t, cp.IsCompleted("file-099", 99, 99))
}

func TestCheckpoint_SurvivesReopen(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	cp, err := OpenCheckpoint("/data/src", "/data/dst")
	require.NoError(t, err)
	require.NoError(t, cp.MarkCompleted("kept.bin", 42, 9))
	require.NoError(t, cp.Close())

	cp2, err := OpenCheckpoint("/data/src", "/data/dst")
	require.NoError(t, err)
	defer cp2.Close()
	assert.True(t, cp2.IsCompleted("kept.bin", 42, 9))
}

func TestCheckpoint_RootsMismatchRejected(t *testing.T) {
	t.Setenv("XDG_RUNTIME_DIR", t.TempDir())

	cp, err := OpenCheckpoint("/data/src", "/data/dst")
	require.NoError(t, err)
	dbPath := cp.Path()
	require.NoError(t, cp.Close())

	// Forge a collision: same db file, different roots.
	_, err = openCheckpointAt(dbPath, "/other/src", "/other/dst")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "roots mismatch")
}

func TestCheckpoint_Remove(t *testing.T) {
	cp := openTestCheckpoint(t, "/data/src", "/data/dst")
	require.NoError(t, cp.Flush())
	assert.FileExists(t, cp.Path())
	require.NoError(t, cp.Remove())
	assert.NoFileExists(t, cp.Path())
}

func TestCheckpointJobIDDeterministic(t *testing.T) {
	a := checkpointJobID("/src", "/dst")
	assert.Equal(t, a, checkpointJobID("/src", "/dst"))
	assert.NotEqual(t, a, checkpointJobID("/dst", "/src"), "roots are ordered")
	assert.NotEqual(t, a, checkpointJobID("/src", "/dst2"))
	assert.Len(t, a, 16)
}
