package engine

import (
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ferrylabs/ferry/internal/platform"
)

const testChunk = 64 * 1024 // small chunks keep multi-chunk tests fast

// newRequest builds a request with deterministic test defaults: small
// chunks, no reflink attempt, sequential unless a test asks otherwise.
func newRequest(source, target string) TransferRequest {
	return TransferRequest{
		Source:    source,
		Target:    target,
		Overwrite: OverwriteAlways,
		ChunkSize: testChunk,
		Workers:   1,
		Reflink:   platform.CloneNever,
	}
}

func writeRandomFile(t *testing.T, path string, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return data
}

func requireSameContent(t *testing.T, wantPath, gotPath string) {
	t.Helper()
	want, err := os.ReadFile(wantPath)
	require.NoError(t, err)
	got, err := os.ReadFile(gotPath)
	require.NoError(t, err)
	require.Equal(t, len(want), len(got), "size mismatch between %s and %s", wantPath, gotPath)
	require.True(t, string(want) == string(got), "content mismatch between %s and %s", wantPath, gotPath)
}
