package ui

import "github.com/ferrylabs/ferry/internal/event"

// Event is re-exported so presenters and their callers share one
// spelling.
type Event = event.Event

// Re-export event types for convenience.
const (
	ScanStarted    = event.ScanStarted
	ScanComplete   = event.ScanComplete
	FileStarted    = event.FileStarted
	FilePlanned    = event.FilePlanned
	FileCompleted  = event.FileCompleted
	FileFailed     = event.FileFailed
	FileSkipped    = event.FileSkipped
	DirCreated     = event.DirCreated
	SymlinkCreated = event.SymlinkCreated
	ResumeFound    = event.ResumeFound
	ResumeInvalid  = event.ResumeInvalid
	VerifyStarted  = event.VerifyStarted
	VerifyOK       = event.VerifyOK
	VerifyFailed   = event.VerifyFailed
	Finished       = event.Finished
)
