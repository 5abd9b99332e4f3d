package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/fwojciec/relay"
)

// renderer writes a human-readable line per event.
type renderer struct {
	w         io.Writer
	muted     lipgloss.Style
	accent    lipgloss.Style
	toolStyle lipgloss.Style
	errStyle  lipgloss.Style
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{
		w:         w,
		muted:     lipgloss.NewStyle().Faint(true),
		accent:    lipgloss.NewStyle().Bold(true),
		toolStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		errStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
}

func (r *renderer) render(ev relay.ProtocolEvent) error {
	var line string
	switch e := ev.(type) {
	case relay.Init:
		line = r.muted.Render("· session initialized")
	case relay.Thinking:
		line = r.muted.Render("· thinking")
	case relay.Reasoning:
		line = r.muted.Render(e.Text)
	case relay.Response:
		line = e.Text
	case relay.ToolUse:
		line = r.toolStyle.Render(fmt.Sprintf("→ %s %s", e.Name, string(e.Input)))
	case relay.ToolResult:
		status := e.Status
		if status == "" {
			status = "done"
		}
		line = r.toolStyle.Render(fmt.Sprintf("← %s (%s, %d images)", e.ID, status, len(e.Images)))
		if e.Text != "" {
			line += "\n" + r.muted.Render(e.Text)
		}
	case relay.Interrupt:
		line = r.errStyle.Render(fmt.Sprintf("! interrupted (%d items)", len(e.Items)))
	case relay.Complete:
		line = r.accent.Render(e.Text)
		if e.Usage != nil {
			line += "\n" + r.muted.Render(fmt.Sprintf("tokens: %d in / %d out", e.Usage.InputTokens, e.Usage.OutputTokens))
		}
	case relay.Error:
		line = r.errStyle.Render("error: " + e.Message)
	case relay.Metadata:
		line = r.muted.Render(fmt.Sprintf("metadata: %v", e.Data))
	default:
		return nil
	}
	_, err := fmt.Fprintln(r.w, line)
	return err
}
