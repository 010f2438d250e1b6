package chat

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"secchat/internal/cipher"
	"secchat/internal/metrics"
	"secchat/internal/wire"
	"secchat/util"
)

// halfDeadConn is a net.Conn whose first write (the key frame)
// succeeds and is captured; every write after that fails as if the
// peer hung up.  Reads serve one sealed username event built with the
// captured key, then EOF.
type halfDeadConn struct {
	mu     sync.Mutex
	writes int
	key    []byte
	inbox  *bytes.Reader
}

func (c *halfDeadConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	if c.writes == 1 {
		// Frame prefix plus the raw session key.
		c.key = append([]byte(nil), p[4:]...)
		return len(p), nil
	}
	return 0, fmt.Errorf("simulated broken pipe")
}

func (c *halfDeadConn) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inbox == nil {
		aead, err := cipher.New(c.key)
		if err != nil {
			return 0, err
		}
		plain, err := wire.Event{Type: wire.KindUsername, Username: "mallory"}.Encode()
		if err != nil {
			return 0, err
		}
		sealed, err := aead.Seal(plain)
		if err != nil {
			return 0, err
		}
		var buf bytes.Buffer
		if err := wire.WriteFrame(&buf, sealed); err != nil {
			return 0, err
		}
		c.inbox = bytes.NewReader(buf.Bytes())
	}
	return c.inbox.Read(p)
}

func (c *halfDeadConn) Close() error                       { return nil }
func (c *halfDeadConn) LocalAddr() net.Addr                { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }
func (c *halfDeadConn) RemoteAddr() net.Addr               { return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)} }
func (c *halfDeadConn) SetDeadline(t time.Time) error      { return nil }
func (c *halfDeadConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *halfDeadConn) SetWriteDeadline(t time.Time) error { return nil }

// A peer that completes the key exchange and sends its username but
// dies before the welcome goes out must not stay registered: a stale
// entry would skew later color assignment and eventually announce a
// departure for a user nobody saw join.
func TestFailedWelcomeUnregisters(t *testing.T) {
	srv := NewServer(serverConfig(), util.NewLogger(0), metrics.New())

	conn := &halfDeadConn{}
	done := make(chan struct{})
	go func() {
		srv.handleConn(context.Background(), conn)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handleConn did not return")
	}

	if n := srv.Registry.Size(); n != 0 {
		t.Fatalf("registry size %d after a failed handshake, want 0", n)
	}
}
