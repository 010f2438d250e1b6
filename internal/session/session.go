// Package session represents one connected chat participant: the
// secured connection, the identity registered over it, and the cipher
// established at handshake time.
//
// Sessions decouple the handler and relay from raw connections — both
// operate on a Session's Send/RecvFrame surface, which keeps them
// testable against net.Pipe ends and buffers.
package session

import (
	"bufio"
	"io"
	"net"
	"sync"

	"secchat/internal/cipher"
	"secchat/internal/wire"
)

// Session encapsulates the runtime state of a single connection.
//
// The connection is owned by the session's handler goroutine; broadcast
// writers from other goroutines go through Send, which serialises
// frame writes with an internal mutex.  Close is idempotent so the
// handler's cleanup path and the relay's eviction path can race safely.
type Session struct {
	Conn     net.Conn
	Username string        // immutable once registered
	Color    wire.Color    // assigned at registration, join order mod palette
	Cipher   cipher.Cipher // nil until the key handshake completes

	Typing bool // guarded by the registry's lock, not the session's

	reader    *bufio.Reader
	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// New wraps an accepted (or dialled) connection.
func New(conn net.Conn) *Session {
	return &Session{
		Conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// SendKey transmits the raw session key as an unencrypted frame.  This
// is the one plaintext payload of the protocol: it relies entirely on
// the TLS transport for confidentiality.
func (s *Session) SendKey(key []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wire.WriteFrame(s.Conn, key)
}

// RecvKey reads the raw session key frame and installs the cipher.
func (s *Session) RecvKey() error {
	key, err := wire.ReadFrame(s.reader)
	if err != nil {
		return err
	}
	c, err := cipher.New(key)
	if err != nil {
		return err
	}
	s.Cipher = c
	return nil
}

// Send encodes, seals, and writes one event.  Safe for concurrent use;
// each event goes out as exactly one frame.
func (s *Session) Send(ev wire.Event) error {
	plain, err := ev.Encode()
	if err != nil {
		return err
	}
	sealed, err := s.Cipher.Seal(plain)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wire.WriteFrame(s.Conn, sealed)
}

// RecvFrame reads one sealed frame off the connection.  Errors from
// RecvFrame are connection-fatal (EOF, reset, oversized prefix); the
// caller should exit its receive loop.
func (s *Session) RecvFrame() ([]byte, error) {
	return wire.ReadFrame(s.reader)
}

// Decode opens a sealed frame and parses the event inside.  Errors here
// are frame-local: the connection stays usable and the caller should
// skip the frame.
func (s *Session) Decode(sealed []byte) (wire.Event, error) {
	plain, err := s.Cipher.Open(sealed)
	if err != nil {
		return wire.Event{}, err
	}
	return wire.Decode(plain)
}

// Recv reads and decodes the next event.  It conflates the fatal and
// frame-local error classes, so it suits clients (which drop the
// connection on any receive error) but not the server's tolerant loop.
func (s *Session) Recv() (wire.Event, error) {
	sealed, err := s.RecvFrame()
	if err != nil {
		return wire.Event{}, err
	}
	return s.Decode(sealed)
}

// Close shuts the connection down exactly once.  Later calls return
// the first call's result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.Conn.Close()
	})
	return s.closeErr
}

// RemoteAddr names the peer for logging.
func (s *Session) RemoteAddr() string {
	if addr := s.Conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

var _ io.Closer = (*Session)(nil)
