// Package prompt provides the interactive terminal collaborators the
// transfer engines consult: overwrite resolution and resume
// confirmation. It is only wired in when stdin is a terminal; the
// engines themselves never prompt.
package prompt

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/manifoldco/promptui"

	"github.com/ferrylabs/ferry/internal/engine"
)

var (
	pathColor = color.New(color.FgCyan)
	warnColor = color.New(color.FgYellow)
)

type overwriteChoice struct {
	Label string
	Value engine.Decision
}

// Overwriter asks what to do with an existing destination. It
// implements engine.OverwritePolicy.
type Overwriter struct{}

func (Overwriter) Resolve(_ context.Context, target string, src, dst os.FileInfo) (engine.Decision, error) {
	label := fmt.Sprintf("%s exists (%s, destination %s)",
		pathColor.Sprint(target),
		humanize.IBytes(uint64(src.Size())),
		humanize.IBytes(uint64(dst.Size())))

	choices := []overwriteChoice{
		{Label: "overwrite", Value: engine.Proceed},
		{Label: "skip", Value: engine.Skip},
		{Label: "rename", Value: engine.Abort},
		{Label: "abort", Value: engine.Abort},
	}

	sel := promptui.Select{
		Label: label,
		Items: choices,
		Templates: &promptui.SelectTemplates{
			Label:    "{{ . }}",
			Active:   "> {{ .Label | cyan }}",
			Inactive: "  {{ .Label }}",
			Selected: "* {{ .Label | green }}",
		},
	}

	i, _, err := sel.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			return engine.Abort, engine.ErrUserAborted
		}
		return engine.Abort, err
	}

	// Rename is offered but not implemented; surface that explicitly
	// rather than silently skipping.
	if choices[i].Label == "rename" {
		return engine.Abort, engine.ErrRenameUnsupported
	}
	return choices[i].Value, nil
}

// Resumer asks whether to continue a partial transfer. It implements
// engine.ResumeDecider.
type Resumer struct{}

func (Resumer) Continue(_ context.Context, _, target string, completed, total int64) (bool, error) {
	pct := 0.0
	if total > 0 {
		pct = float64(completed) / float64(total) * 100
	}
	label := fmt.Sprintf("%s of %s (%.0f%%) of %s already transferred. Continue",
		warnColor.Sprint(humanize.IBytes(uint64(completed))),
		humanize.IBytes(uint64(total)), pct,
		pathColor.Sprint(target))

	p := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Default:   "y",
	}

	_, err := p.Run()
	if err != nil {
		if err == promptui.ErrInterrupt {
			return false, engine.ErrUserAborted
		}
		// promptui reports a plain "n" as ErrAbort: restart, don't fail.
		if err == promptui.ErrAbort {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
