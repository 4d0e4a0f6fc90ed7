package client

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"omaope/internal/api"
)

// TerminalRenderer prints messages as lines tagged with their pane.
type TerminalRenderer struct {
	mu   sync.Mutex
	out  io.Writer
	user *color.Color
	bot  *color.Color
	pane *color.Color
	warn *color.Color
}

// NewTerminalRenderer writes to out. Colours follow color.NoColor, which is
// set when out is not a terminal.
func NewTerminalRenderer(out io.Writer) *TerminalRenderer {
	return &TerminalRenderer{
		out:  out,
		user: color.New(color.FgGreen),
		bot:  color.New(color.FgCyan),
		pane: color.New(color.Faint),
		warn: color.New(color.FgYellow, color.Bold),
	}
}

func (r *TerminalRenderer) AppendMessage(msg api.ChatMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.bot
	if msg.Sender == api.SenderUser {
		c = r.user
	}
	fmt.Fprintf(r.out, "%s %s\n", r.pane.Sprintf("[%s]", paneTitle(msg.Pane)), c.Sprint(msg.Text))
}

func (r *TerminalRenderer) Warn(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.warn.Sprint(text))
}

func paneTitle(p api.Pane) string {
	switch p {
	case api.PaneMainChat:
		return "chat"
	case api.PaneQuizChat:
		return "omaope"
	default:
		return string(p)
	}
}
