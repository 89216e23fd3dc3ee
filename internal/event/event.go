// Package event defines the progress events engines publish to
// presenters. Delivery is best-effort: senders never block on a slow
// consumer, and byte-accurate progress always flows through stats, not
// through events.
package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	ScanStarted Type = iota + 1
	ScanComplete
	FileStarted
	FilePlanned
	FileCompleted
	FileFailed
	FileSkipped
	DirCreated
	SymlinkCreated
	ResumeFound
	ResumeInvalid
	VerifyStarted
	VerifyOK
	VerifyFailed
	Finished
)

var typeNames = [...]string{
	ScanStarted:    "ScanStarted",
	ScanComplete:   "ScanComplete",
	FileStarted:    "FileStarted",
	FilePlanned:    "FilePlanned",
	FileCompleted:  "FileCompleted",
	FileFailed:     "FileFailed",
	FileSkipped:    "FileSkipped",
	DirCreated:     "DirCreated",
	SymlinkCreated: "SymlinkCreated",
	ResumeFound:    "ResumeFound",
	ResumeInvalid:  "ResumeInvalid",
	VerifyStarted:  "VerifyStarted",
	VerifyOK:       "VerifyOK",
	VerifyFailed:   "VerifyFailed",
	Finished:       "Finished",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event is a single progress notification from an engine.
type Event struct {
	Type      Type
	Timestamp time.Time
	Path      string // path being transferred, relative where possible
	Size      int64  // file size, or bytes already completed for ResumeFound
	Total     int64  // total files (ScanComplete)
	TotalSize int64  // total bytes (ScanComplete, ResumeFound)
	Error     error
	WorkerID  int
}

// Send delivers ev without blocking; events are dropped when the
// consumer lags.
func Send(ch chan<- Event, ev Event) {
	if ch == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	select {
	case ch <- ev:
	default:
	}
}
