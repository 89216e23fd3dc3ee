package ui

import "github.com/ferrylabs/ferry/internal/stats"

// quietPresenter consumes events but produces no output.
type quietPresenter struct {
	tracker *stats.Tracker
}

func (p *quietPresenter) Run(events <-chan Event) error {
	for range events {
		// Counters are written by the engines directly; presenters only
		// read, so there is nothing to do here.
	}
	return nil
}

func (p *quietPresenter) Summary() string {
	return ""
}
