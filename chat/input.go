package chat

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/term"

	"secchat/config"
	"secchat/internal/session"
	"secchat/internal/wire"
)

// inputLoop reads outbound messages.  On a TTY it switches the
// terminal to raw mode so typing notifications fire per keystroke, the
// way the protocol intends; on pipes and redirects it degrades to
// plain line reading with no typing events.
func (c *Client) inputLoop(ctx context.Context, sess *session.Session) error {
	if f, ok := c.stdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return c.rawInputLoop(ctx, sess, f)
	}
	return c.lineInputLoop(ctx, sess)
}

// lineInputLoop sends one message event per input line.
func (c *Client) lineInputLoop(ctx context.Context, sess *session.Session) error {
	scanner := bufio.NewScanner(c.inputReader())
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		text := strings.TrimRight(scanner.Text(), "\r")
		if text == "" {
			continue
		}
		if err := sess.Send(wire.Event{Type: wire.KindMessage, Message: text}); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// rawInputLoop is a minimal line editor over a raw-mode terminal.
// It echoes keystrokes, handles backspace, and drives the typing
// notifier: is_typing=true on the first keystroke of a line (refreshed
// while keys keep coming), is_typing=false when the line is submitted
// or input goes idle.
func (c *Client) rawInputLoop(ctx context.Context, sess *session.Session, tty *os.File) error {
	oldState, err := term.MakeRaw(int(tty.Fd()))
	if err != nil {
		// Raw mode unavailable (e.g. under some test harnesses);
		// line mode still works, just without typing events.
		return c.lineInputLoop(ctx, sess)
	}
	defer term.Restore(int(tty.Fd()), oldState) //nolint:errcheck

	notifier := newTypingNotifier(sess)
	defer notifier.stop()

	var line []byte
	buf := make([]byte, 1)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if _, err := tty.Read(buf); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		switch b := buf[0]; b {
		case 0x03, 0x04: // Ctrl+C / Ctrl+D
			return nil

		case '\r', '\n':
			io.WriteString(c.stdout(), "\r\n") //nolint:errcheck
			notifier.pause()
			text := string(line)
			line = line[:0]
			if text == "" {
				continue
			}
			if err := sess.Send(wire.Event{Type: wire.KindMessage, Message: text}); err != nil {
				return err
			}

		case 0x7f, 0x08: // backspace
			if len(line) > 0 {
				_, size := utf8.DecodeLastRune(line)
				line = line[:len(line)-size]
				io.WriteString(c.stdout(), "\b \b") //nolint:errcheck
			}

		default:
			if b < 0x20 { // other control characters
				continue
			}
			line = append(line, b)
			c.stdout().Write(buf) //nolint:errcheck
			notifier.keystroke()
		}
	}
}

// typingNotifier turns keystroke activity into throttled typing
// events: at most one is_typing=true per interval while keys arrive,
// and an is_typing=false once input pauses.
type typingNotifier struct {
	sess     *session.Session
	activity chan bool // true = keystroke, false = line submitted
	done     chan struct{}
}

func newTypingNotifier(sess *session.Session) *typingNotifier {
	n := &typingNotifier{
		sess:     sess,
		activity: make(chan bool, 8),
		done:     make(chan struct{}),
	}
	go n.run()
	return n
}

func (n *typingNotifier) keystroke() {
	select {
	case n.activity <- true:
	default: // notifier is behind; the pending signal is enough
	}
}

func (n *typingNotifier) pause() {
	select {
	case n.activity <- false:
	default:
	}
}

func (n *typingNotifier) stop() { close(n.done) }

func (n *typingNotifier) run() {
	idle := 2 * config.DefaultTypingInterval
	timer := time.NewTimer(idle)
	defer timer.Stop()

	typing := false
	var lastSent time.Time

	setTyping := func(on bool) {
		typing = on
		lastSent = time.Now()
		// Best-effort: a dead connection surfaces in the main loops.
		n.sess.Send(wire.Event{Type: wire.KindTyping, IsTyping: on}) //nolint:errcheck
	}

	for {
		select {
		case active := <-n.activity:
			if !active {
				if typing {
					setTyping(false)
				}
				continue
			}
			if !typing || time.Since(lastSent) >= config.DefaultTypingInterval {
				setTyping(true)
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(idle)

		case <-timer.C:
			if typing {
				setTyping(false)
			}
			timer.Reset(idle)

		case <-n.done:
			if typing {
				setTyping(false)
			}
			return
		}
	}
}
