package ui

import "github.com/ferrylabs/ferry/internal/engine"

// Hint returns a one-line recovery suggestion for a failure, or ""
// when there is nothing actionable to suggest.
func Hint(err error) string {
	if err == nil {
		return ""
	}
	switch engine.KindOf(err) {
	case engine.KindTargetExists:
		return "use --overwrite=always (or smart) to replace existing files"
	case engine.KindPermission:
		return "check file ownership, or retry with elevated privileges"
	case engine.KindInvalidResume:
		return "use --no-resume to discard the partial transfer and restart"
	case engine.KindDiskFull:
		return "free disk space on the destination and retry; completed bytes will resume"
	case engine.KindChecksumMismatch:
		return "source or destination changed mid-transfer; retry with --verify full"
	default:
		return ""
	}
}
