package chat

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"secchat/internal/cipher"
	"secchat/internal/errors"
	"secchat/internal/relay"
	"secchat/internal/session"
	"secchat/internal/wire"
)

// handleConn drives one connection through its whole lifecycle:
// key handshake, identity registration, the active receive loop, and
// cleanup.  Failures never propagate past this goroutine.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.Metrics.ConnectionClosed()

	sess := session.New(conn)

	if err := s.handshake(sess); err != nil {
		// Terminal for this connection only: nothing was registered,
		// so nobody needs to be told.
		s.Logger.Warn("handshake with %s: %v", sess.RemoteAddr(), err)
		s.Metrics.RecordError(err.Error())
		sess.Close() //nolint:errcheck
		return
	}

	s.Logger.Info("client connected: %s from %s", sess.Username, sess.RemoteAddr())
	defer s.teardown(sess)

	s.serveSession(ctx, sess)
}

// handshake establishes the session cipher and identity.
//
// The fresh session key goes out as the first frame of the connection,
// unencrypted.  Its confidentiality rests entirely on the TLS layer
// underneath; see the protocol notes in package wire.  The client's
// first sealed frame must then be a username event.
func (s *Server) handshake(sess *session.Session) error {
	key, err := cipher.NewKey()
	if err != nil {
		return err
	}
	c, err := cipher.New(key)
	if err != nil {
		return err
	}
	if err := sess.SendKey(key); err != nil {
		return errors.WrapProtocol("handshake", sess.RemoteAddr(), err)
	}
	sess.Cipher = c

	ev, err := sess.Recv()
	if err != nil {
		return errors.WrapProtocol("handshake", sess.RemoteAddr(), err)
	}
	if ev.Type != wire.KindUsername {
		return errors.WrapProtocol("handshake", sess.RemoteAddr(),
			fmt.Errorf("%w: expected username event, got %q", errors.ErrBadHandshake, ev.Type))
	}
	if ev.Username == "" {
		return errors.WrapProtocol("handshake", sess.RemoteAddr(), errors.ErrEmptyUsername)
	}

	// Duplicate usernames are permitted and not disambiguated.
	sess.Username = ev.Username
	s.Registry.Register(sess)

	welcome := wire.Event{
		Type:      wire.KindSystem,
		Message:   fmt.Sprintf("Welcome to the secure chat, %s!", sess.Username),
		Timestamp: wire.Now(),
	}
	if err := sess.Send(welcome); err != nil {
		// The peer vanished between registering and the welcome.  Take
		// the registration back out: the join was never announced, so
		// no departure is owed either.
		s.Registry.Remove(sess.Conn)
		return errors.WrapProtocol("handshake", sess.RemoteAddr(), err)
	}

	s.Relay.Broadcast(wire.Event{
		Type:      wire.KindSystem,
		Message:   fmt.Sprintf("%s joined the chat", sess.Username),
		Timestamp: wire.Now(),
	}, sess.Conn)

	return nil
}

// serveSession is the active receive loop.  Connection-level read
// errors end the session; frame-level failures (bad ciphertext,
// malformed JSON) are logged and skipped, the sender gets no feedback.
func (s *Server) serveSession(ctx context.Context, sess *session.Session) {
	for {
		if s.Config.IdleTimeout > 0 {
			sess.Conn.SetReadDeadline(time.Now().Add(s.Config.IdleTimeout)) //nolint:errcheck
		}

		frame, err := sess.RecvFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.Logger.Verbose("client disconnected: %s", sess.Username)
			} else if ctx.Err() == nil {
				s.Logger.Verbose("read from %s: %v", sess.Username, err)
			}
			return
		}

		ev, err := sess.Decode(frame)
		if err != nil {
			// Malformed input is tolerated, not fatal.
			s.Metrics.RejectedFrame()
			s.Logger.Warn("rejected frame from %s: %v", sess.Username, err)
			continue
		}

		s.dispatch(sess, ev)
	}
}

// dispatch handles one decoded event from an active session.
func (s *Server) dispatch(sess *session.Session, ev wire.Event) {
	switch ev.Type {
	case wire.KindTyping:
		s.Registry.SetTyping(sess.Conn, ev.IsTyping)
		s.Relay.Broadcast(wire.Event{
			Type:    wire.KindTypingStatus,
			Message: s.Registry.TypingSummary(),
		}, sess.Conn)

	case wire.KindMessage:
		s.Metrics.MessageRelayed()
		s.Relay.Broadcast(wire.Event{
			Type:      wire.KindMessage,
			Username:  sess.Username,
			Message:   ev.Message,
			Color:     sess.Color,
			Timestamp: wire.Now(),
		}, sess.Conn)

	default:
		// Unrecognized kinds are ignored: no error, no broadcast.
		s.Logger.Debug("ignoring %q event from %s", ev.Type, sess.Username)
	}
}

// teardown deregisters and closes the session.  Only the first of the
// racing close paths (this one or the relay's eviction) sees Remove
// succeed and announces the departure.
func (s *Server) teardown(sess *session.Session) {
	removed, ok := s.Registry.Remove(sess.Conn)
	sess.Close() //nolint:errcheck
	if !ok {
		return
	}

	s.Logger.Info("client removed: %s", removed.Username)
	s.Relay.Broadcast(relay.Departure(removed.Username), nil)

	if removed.Typing {
		// Their typing-set entry died with the registration.
		s.Relay.Broadcast(wire.Event{
			Type:    wire.KindTypingStatus,
			Message: s.Registry.TypingSummary(),
		}, nil)
	}
}
