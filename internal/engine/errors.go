package engine

import (
	"context"
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/ferrylabs/ferry/internal/resume"
)

// Kind classifies a transfer failure. The kind is preserved end-to-end
// from the point of failure so presentation layers can attach recovery
// hints without re-parsing messages.
type Kind int

const (
	KindIO Kind = iota
	KindSourceNotFound
	KindTargetExists
	KindPermission
	KindChecksumMismatch
	KindInvalidResume
	KindUserAborted
	KindDiskFull
	KindConfig
)

var kindNames = map[Kind]string{
	KindIO:               "i/o failure",
	KindSourceNotFound:   "source not found",
	KindTargetExists:     "target already exists",
	KindPermission:       "permission denied",
	KindChecksumMismatch: "checksum mismatch",
	KindInvalidResume:    "invalid resume state",
	KindUserAborted:      "aborted",
	KindDiskFull:         "disk full",
	KindConfig:           "configuration error",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown failure"
}

// Error is a classified transfer failure tied to a path.
type Error struct {
	Kind Kind
	Path string
	Err  error
}

// NewError builds a classified error. Collaborators outside this package
// use it to feed decisions (such as user aborts) back into the taxonomy.
func NewError(kind Kind, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// ChecksumError reports a verification failure, carrying both digests.
type ChecksumError struct {
	Path     string
	Algo     string
	Expected string // source digest
	Actual   string // destination digest
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s (%s): source %s, destination %s",
		e.Path, e.Algo, e.Expected, e.Actual)
}

// ErrUserAborted is the cause carried by abort decisions.
var ErrUserAborted = errors.New("aborted by user")

// ErrRenameUnsupported is returned when a prompt selects the declared
// but unimplemented rename choice.
var ErrRenameUnsupported = errors.New("rename is not yet supported")

// KindOf classifies any error, unwrapping as needed. Unclassifiable
// failures report KindIO.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	var ce *ChecksumError
	if errors.As(err, &ce) {
		return KindChecksumMismatch
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, ErrUserAborted):
		return KindUserAborted
	case errors.Is(err, resume.ErrInvalidState):
		return KindInvalidResume
	case errors.Is(err, unix.ENOSPC), errors.Is(err, unix.EDQUOT):
		return KindDiskFull
	case errors.Is(err, os.ErrPermission):
		return KindPermission
	}
	return KindIO
}

// IsKind reports whether err classifies as k.
func IsKind(err error, k Kind) bool {
	return err != nil && KindOf(err) == k
}
