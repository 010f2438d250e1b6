// Package registry tracks the live connections of the chat server.
//
// The registry is the single source of truth for broadcast fan-out.
// One mutex covers registration, removal, typing-set updates, and the
// iteration the relay performs, so a broadcast can never observe an
// entry mid-removal and color assignment can never race a concurrent
// join.
package registry

import (
	"net"
	"sort"
	"strings"
	"sync"

	"secchat/internal/session"
	"secchat/internal/wire"
)

// Registry maps live connections to their sessions and maintains the
// set of usernames currently typing.
type Registry struct {
	mu       sync.Mutex
	sessions map[net.Conn]*session.Session
	typing   map[string]struct{}
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[net.Conn]*session.Session),
		typing:   make(map[string]struct{}),
	}
}

// Register inserts sess and assigns its color from the join order:
// the Kth occupant gets Palette[(K-1) % len(Palette)].  The size read
// and the insertion happen under one lock so concurrent joins get
// distinct indices.
func (r *Registry) Register(sess *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess.Color = wire.Palette[len(r.sessions)%len(wire.Palette)]
	r.sessions[sess.Conn] = sess
}

// Lookup returns the session registered for conn, if any.
func (r *Registry) Lookup(conn net.Conn) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[conn]
	return sess, ok
}

// Remove deletes conn's entry and purges its username from the typing
// set.  Idempotent: a second call for the same conn reports false, so
// exactly one of the racing cleanup paths (handler exit vs. relay
// eviction) wins the right to announce the departure.
func (r *Registry) Remove(conn net.Conn) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[conn]
	if !ok {
		return nil, false
	}
	delete(r.sessions, conn)
	delete(r.typing, sess.Username)
	return sess, true
}

// Size returns the number of registered sessions.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Visit calls fn for every registered session except the one bound to
// excluding (nil excludes nobody).  The registry lock is held for the
// whole iteration; fn must not call back into the registry.
func (r *Registry) Visit(excluding net.Conn, fn func(*session.Session)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for conn, sess := range r.sessions {
		if conn == excluding {
			continue
		}
		fn(sess)
	}
}

// SetTyping marks username as typing or not.  The flag on the session
// itself is updated too when the session is still registered.
func (r *Registry) SetTyping(conn net.Conn, isTyping bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[conn]
	if !ok {
		return
	}
	sess.Typing = isTyping
	if isTyping {
		r.typing[sess.Username] = struct{}{}
	} else {
		delete(r.typing, sess.Username)
	}
}

// TypingSummary renders the human-readable typing line: "A is
// typing...", "A and B are typing...", "A, B and C are typing...".
// Empty string means nobody is typing.  Names are sorted so the
// summary is deterministic.
func (r *Registry) TypingSummary() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.typing) == 0 {
		return ""
	}
	names := make([]string, 0, len(r.typing))
	for name := range r.typing {
		names = append(names, name)
	}
	sort.Strings(names)

	switch len(names) {
	case 1:
		return names[0] + " is typing..."
	case 2:
		return names[0] + " and " + names[1] + " are typing..."
	default:
		return strings.Join(names[:len(names)-1], ", ") +
			" and " + names[len(names)-1] + " are typing..."
	}
}

// CloseAll closes every registered connection and empties the registry.
// Used on server shutdown; no departure notifications are sent since
// every recipient is going away too.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for conn, sess := range r.sessions {
		sess.Close() //nolint:errcheck
		delete(r.sessions, conn)
	}
	r.typing = make(map[string]struct{})
}
