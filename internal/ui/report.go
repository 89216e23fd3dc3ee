package ui

import (
	"encoding/json"
	"io"

	"github.com/ferrylabs/ferry/internal/engine"
)

// OperationReport is the machine-readable result emitted by --json.
// Field names are part of the CLI contract; do not rename them.
type OperationReport struct {
	Success     bool          `json:"success"`
	Operation   string        `json:"operation"`
	Sources     []string      `json:"sources"`
	Destination string        `json:"destination"`
	Summary     ReportSummary `json:"summary"`
	Error       string        `json:"error,omitempty"`
}

// ReportSummary mirrors engine.Summary with stable JSON names.
type ReportSummary struct {
	BytesTransferred   int64   `json:"bytes_transferred"`
	FilesCopied        int64   `json:"files_copied"`
	DirectoriesCreated int64   `json:"directories_created"`
	FilesSkipped       int64   `json:"files_skipped"`
	DurationSeconds    float64 `json:"duration_seconds"`
	SpeedMBps          float64 `json:"speed_mbps"`
	Resumed            bool    `json:"resumed"`
	Verified           bool    `json:"verified"`
}

// NewReport builds an OperationReport from an engine result.
func NewReport(op string, sources []string, dest string, res engine.Result) OperationReport {
	s := res.Summary
	speed := 0.0
	if s.Duration.Seconds() > 0 {
		speed = float64(s.BytesTransferred) / s.Duration.Seconds() / 1e6
	}
	rep := OperationReport{
		Success:     res.Err == nil,
		Operation:   op,
		Sources:     sources,
		Destination: dest,
		Summary: ReportSummary{
			BytesTransferred:   s.BytesTransferred,
			FilesCopied:        s.FilesCopied,
			DirectoriesCreated: s.DirsCreated,
			FilesSkipped:       s.FilesSkipped,
			DurationSeconds:    s.Duration.Seconds(),
			SpeedMBps:          speed,
			Resumed:            s.Resumed,
			Verified:           s.Verified,
		},
	}
	if res.Err != nil {
		rep.Error = res.Err.Error()
	}
	return rep
}

// Write encodes the report as indented JSON.
func (r OperationReport) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
