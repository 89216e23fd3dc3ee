//go:build !linux && !darwin

package platform

// reflink always reports unsupported; callers fall back to byte copying.
func reflink(_, _ string) error {
	return ErrCloneUnsupported
}
