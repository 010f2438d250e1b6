package chat

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"secchat/config"
	"secchat/internal/errors"
	"secchat/internal/retry"
	"secchat/internal/session"
	"secchat/internal/transport"
	"secchat/internal/wire"
	"secchat/util"
)

// Client connects to a chat server, registers a username, and bridges
// the terminal to the event stream.
type Client struct {
	Config *config.Config
	Logger *util.Logger

	// Dialer defaults to a TLS dialer honouring Config.Verify.  Tests
	// substitute a plain-pipe dialer.
	Dialer transport.Dialer

	// Stdin/Stdout default to the process's own when nil.
	Stdin  io.Reader
	Stdout io.Writer

	// input buffers stdin; the username prompt and the line input
	// loop share it so bytes buffered past a newline are not lost
	// between the two readers.
	input *bufio.Reader
}

// NewClient returns a client for the given destination.
func NewClient(cfg *config.Config, logger *util.Logger) *Client {
	return &Client{Config: cfg, Logger: logger}
}

func (c *Client) stdin() io.Reader {
	if c.Stdin != nil {
		return c.Stdin
	}
	return os.Stdin
}

func (c *Client) inputReader() *bufio.Reader {
	if c.input == nil {
		c.input = bufio.NewReader(c.stdin())
	}
	return c.input
}

func (c *Client) stdout() io.Writer {
	if c.Stdout != nil {
		return c.Stdout
	}
	return os.Stdout
}

func (c *Client) dialer() transport.Dialer {
	if c.Dialer != nil {
		return c.Dialer
	}
	return &transport.TLSDialer{
		Timeout: config.DefaultDialTimeout,
		Verify:  c.Config.Verify,
	}
}

// Run connects, performs the handshake, and pumps events both ways
// until the server goes away, stdin closes, or ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	addr := util.FormatAddr(c.Config.Host, c.Config.Port)
	c.Logger.Info("connecting to %s", addr)

	conn, err := c.dial(ctx, addr)
	if err != nil {
		return err
	}
	sess := session.New(conn)
	defer sess.Close()

	// The first inbound frame is the raw session key.
	if err := sess.RecvKey(); err != nil {
		return errors.WrapProtocol("handshake", addr, err)
	}
	c.Logger.Verbose("session key received, cipher established")

	username, err := c.username()
	if err != nil {
		return err
	}
	if err := sess.Send(wire.Event{Type: wire.KindUsername, Username: username}); err != nil {
		return errors.Wrap("write", addr, err)
	}

	render := newRenderer(c.stdout())
	fmt.Fprintln(c.stdout(), "Secure chat started! Type your messages (Ctrl+C to exit)")

	recvDone := make(chan error, 1)
	go func() { recvDone <- c.receiveLoop(sess, render) }()

	inputDone := make(chan error, 1)
	go func() { inputDone <- c.inputLoop(ctx, sess) }()

	select {
	case <-ctx.Done():
		c.Logger.Info("disconnecting from server...")
		return nil
	case err := <-recvDone:
		if err != nil {
			return err
		}
		return fmt.Errorf("disconnected from server")
	case err := <-inputDone:
		// Stdin closed: leave quietly.
		return err
	}
}

// dial connects with exponential backoff.  Config.Retry caps the
// attempts; 0 means a single try.
func (c *Client) dial(ctx context.Context, addr string) (net.Conn, error) {
	d := c.dialer()
	b := retry.DefaultBackoff()
	b.MaxAttempts = c.Config.Retry + 1

	var conn net.Conn
	err := b.Do(ctx, func(attempt int) error {
		if attempt > 1 {
			c.Logger.Info("retrying connection (attempt %d)", attempt)
		}
		var err error
		conn, err = d.Dial(ctx, "tcp", addr)
		return err
	})
	if err != nil {
		return nil, errors.Wrap("dial", addr, err)
	}
	c.Logger.Info("secure connection established")
	return conn, nil
}

// username returns the configured name or prompts for one.
func (c *Client) username() (string, error) {
	if c.Config.Username != "" {
		return c.Config.Username, nil
	}
	fmt.Fprint(c.stdout(), "Enter your username: ")
	line, err := c.inputReader().ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read username: %w", err)
	}
	name := strings.TrimSpace(line)
	if name == "" {
		return "", errors.ErrEmptyUsername
	}
	return name, nil
}

// receiveLoop renders inbound events until the connection dies.
// Frame-level decode failures are logged and skipped, matching the
// server's tolerance for malformed peers.
func (c *Client) receiveLoop(sess *session.Session, render *renderer) error {
	for {
		frame, err := sess.RecvFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.Wrap("read", sess.RemoteAddr(), err)
		}
		ev, err := sess.Decode(frame)
		if err != nil {
			c.Logger.Warn("undecodable frame from server: %v", err)
			continue
		}
		render.event(ev)
	}
}
