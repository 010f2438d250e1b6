package chat

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"secchat/internal/wire"
)

// userStyles maps the server-assigned palette names to terminal styles.
var userStyles = map[wire.Color]lipgloss.Style{
	wire.ColorRed:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	wire.ColorGreen: lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	wire.ColorBlue:  lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
}

var (
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

// renderer prints inbound events.  The typing summary occupies a
// status line that each new message first clears, so the transcript
// itself stays clean.
type renderer struct {
	mu     sync.Mutex
	out    io.Writer
	status bool // a typing status line is currently displayed
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out}
}

func (r *renderer) event(ev wire.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case wire.KindSystem:
		r.clearStatus()
		fmt.Fprintln(r.out, dimStyle.Render(fmt.Sprintf("[%s] %s", ev.Timestamp, ev.Message)))

	case wire.KindTypingStatus:
		r.clearStatus()
		if ev.Message != "" {
			fmt.Fprint(r.out, statusStyle.Render(ev.Message))
			r.status = true
		}

	case wire.KindMessage:
		r.clearStatus()
		name := ev.Username
		if style, ok := userStyles[ev.Color]; ok {
			name = style.Render(ev.Username)
		}
		fmt.Fprintf(r.out, "%s %s: %s\n",
			dimStyle.Render("["+ev.Timestamp+"]"), name, ev.Message)

	default:
		// Servers only send the kinds above; anything else is dropped.
	}
}

// clearStatus erases a pending typing line.  Caller holds the lock.
func (r *renderer) clearStatus() {
	if r.status {
		fmt.Fprint(r.out, "\r\033[K")
		r.status = false
	}
}
