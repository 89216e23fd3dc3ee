package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

const (
	stagingSuffix = ".ferry-tmp"
	partialSuffix = ".ferry-partial"
)

// stagingPath returns a random same-directory staging name for target.
// Same directory keeps the final rename atomic.
func stagingPath(target string) string {
	name := fmt.Sprintf(".%s.%s%s", filepath.Base(target), uuid.New().String()[:8], stagingSuffix)
	return filepath.Join(filepath.Dir(target), name)
}

// partialPath returns the deterministic staging name used by resumable
// atomic transfers, so a later run can find the partial bytes again.
func partialPath(target string) string {
	return filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+partialSuffix)
}

// stagingRegistry tracks in-progress staging files so an abort can
// remove them. Resumable partials are never registered; their bytes are
// the payload a later resume continues from.
var globalStaging = &stagingRegistry{}

type stagingRegistry struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// RegisterStaging adds a staging file path to the global registry.
func RegisterStaging(path string) {
	globalStaging.mu.Lock()
	defer globalStaging.mu.Unlock()
	if globalStaging.paths == nil {
		globalStaging.paths = make(map[string]struct{})
	}
	globalStaging.paths[path] = struct{}{}
}

// DeregisterStaging removes a staging file path from the global registry.
func DeregisterStaging(path string) {
	globalStaging.mu.Lock()
	defer globalStaging.mu.Unlock()
	delete(globalStaging.paths, path)
}

// CleanupStaging removes all registered staging files.
func CleanupStaging() {
	globalStaging.mu.Lock()
	paths := make([]string, 0, len(globalStaging.paths))
	for p := range globalStaging.paths {
		paths = append(paths, p)
	}
	globalStaging.paths = nil
	globalStaging.mu.Unlock()

	for _, p := range paths {
		_ = os.Remove(p)
	}
}
