package checksum

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0644))

	h1, err := File(path)
	require.NoError(t, err)
	assert.Len(t, h1, 64)

	// Same content should produce the same digest.
	path2 := filepath.Join(dir, "test2.txt")
	require.NoError(t, os.WriteFile(path2, []byte("hello world"), 0644))
	h2, err := File(path2)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	// Different content should produce a different digest.
	path3 := filepath.Join(dir, "test3.txt")
	require.NoError(t, os.WriteFile(path3, []byte("different content"), 0644))
	h3, err := File(path3)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestFileEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.txt")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	h, err := File(path)
	require.NoError(t, err)
	assert.Len(t, h, 64)
}

func TestFileNotExist(t *testing.T) {
	_, err := File("/nonexistent/file")
	assert.Error(t, err)

	_, err = FastFile("/nonexistent/file")
	assert.Error(t, err)
}

func TestFastFile(t *testing.T) {
	dir := t.TempDir()

	data := make([]byte, 256*1024)
	_, err := rand.Read(data)
	require.NoError(t, err)

	path := filepath.Join(dir, "a.bin")
	require.NoError(t, os.WriteFile(path, data, 0644))
	path2 := filepath.Join(dir, "b.bin")
	require.NoError(t, os.WriteFile(path2, data, 0644))

	h1, err := FastFile(path)
	require.NoError(t, err)
	assert.Len(t, h1, 16)

	h2, err := FastFile(path2)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	data[0] ^= 0xff
	require.NoError(t, os.WriteFile(path2, data, 0644))
	h3, err := FastFile(path2)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestFastRange(t *testing.T) {
	dir := t.TempDir()

	data := make([]byte, 64*1024)
	_, err := rand.Read(data)
	require.NoError(t, err)
	path := filepath.Join(dir, "ranged.bin")
	require.NoError(t, os.WriteFile(path, data, 0644))

	// The whole-file range must agree with FastFile.
	whole, err := FastFile(path)
	require.NoError(t, err)
	ranged, err := FastRange(path, 0, int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, whole, ranged)

	// A sub-range digests only its bytes.
	sub, err := FastRange(path, 1024, 4096)
	require.NoError(t, err)
	other, err := FastRange(path, 2048, 4096)
	require.NoError(t, err)
	assert.NotEqual(t, sub, other)
	assert.Len(t, sub, 16)
}
