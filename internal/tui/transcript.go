package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// TranscriptView renders daemon status and transcript text for the terminal.
type TranscriptView struct {
	w        io.Writer
	width    int
	status   lipgloss.Style
	idle     lipgloss.Style
	text     lipgloss.Style
	muted    lipgloss.Style
	errStyle lipgloss.Style
}

// NewTranscriptView writes to w. The colour profile is detected from w
// unless profile is given.
func NewTranscriptView(w io.Writer, width int, profile ...termenv.Profile) *TranscriptView {
	r := lipgloss.NewRenderer(w)
	if len(profile) > 0 {
		r.SetColorProfile(profile[0])
	}
	if width <= 0 {
		width = 80
	}
	return &TranscriptView{
		w:        w,
		width:    width,
		status:   r.NewStyle().Foreground(ColorError).Bold(true),
		idle:     r.NewStyle().Foreground(ColorMuted),
		text:     r.NewStyle().Foreground(ColorText).Width(width),
		muted:    r.NewStyle().Foreground(ColorSubtle).Italic(true),
		errStyle: r.NewStyle().Foreground(ColorError).Bold(true),
	}
}

// Header renders a one-line recording indicator.
func (v *TranscriptView) Header(recording bool, session string) string {
	if recording {
		return v.status.Render("● REC") + " " + v.muted.Render(session)
	}
	return v.idle.Render("○ idle")
}

// Body renders transcript text wrapped to the view width.
func (v *TranscriptView) Body(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return v.muted.Render("(no transcript yet)")
	}
	return v.text.Render(text)
}

// Print writes the transcript once.
func (v *TranscriptView) Print(text string) {
	fmt.Fprintln(v.w, v.Body(text))
}

// Update prints only the part of text not printed before, for follow mode.
// It returns the new printed prefix. Follow mode shows the settled
// transcript, which only grows within a session, so text that no longer
// extends prev belongs to a new session and is printed whole.
func (v *TranscriptView) Update(prev, text string) string {
	switch {
	case text == prev:
	case prev != "" && strings.HasPrefix(text, prev):
		fmt.Fprint(v.w, v.text.UnsetWidth().Render(text[len(prev):]))
	default:
		if prev != "" {
			fmt.Fprintln(v.w)
		}
		fmt.Fprint(v.w, v.text.UnsetWidth().Render(text))
	}
	return text
}

// Error renders a failure line.
func (v *TranscriptView) Error(msg string) {
	fmt.Fprintln(v.w, v.errStyle.Render(msg))
}
