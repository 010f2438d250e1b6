package relay

import (
	"net"
	"strings"
	"testing"
	"time"

	"secchat/internal/cipher"
	"secchat/internal/metrics"
	"secchat/internal/registry"
	"secchat/internal/session"
	"secchat/internal/wire"
	"secchat/util"
)

// member is one registered participant plus the client end of its pipe,
// drained by a goroutine into events.
type member struct {
	sess   *session.Session
	peer   *session.Session
	events chan wire.Event
}

func newMember(t *testing.T, reg *registry.Registry, username string) *member {
	t.Helper()
	serverEnd, clientEnd := net.Pipe()
	t.Cleanup(func() {
		serverEnd.Close()
		clientEnd.Close()
	})

	key, err := cipher.NewKey()
	if err != nil {
		t.Fatal(err)
	}
	c, err := cipher.New(key)
	if err != nil {
		t.Fatal(err)
	}

	sess := session.New(serverEnd)
	sess.Username = username
	sess.Cipher = c
	reg.Register(sess)

	peer := session.New(clientEnd)
	peer.Cipher = c

	m := &member{sess: sess, peer: peer, events: make(chan wire.Event, 16)}
	go func() {
		for {
			ev, err := peer.Recv()
			if err != nil {
				return
			}
			m.events <- ev
		}
	}()
	return m
}

func (m *member) next(t *testing.T) wire.Event {
	t.Helper()
	select {
	case ev := <-m.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatalf("%s: timed out waiting for event", m.sess.Username)
		return wire.Event{}
	}
}

func (m *member) expectNone(t *testing.T) {
	t.Helper()
	select {
	case ev := <-m.events:
		t.Fatalf("%s: unexpected event %+v", m.sess.Username, ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func newRelay(reg *registry.Registry) *Relay {
	return New(reg, util.NewLogger(0), metrics.New())
}

func TestBroadcastExcludesSender(t *testing.T) {
	reg := registry.New()
	r := newRelay(reg)

	alice := newMember(t, reg, "alice")
	bob := newMember(t, reg, "bob")
	carol := newMember(t, reg, "carol")

	msg := wire.Event{Type: wire.KindMessage, Username: "alice", Message: "hi"}
	r.Broadcast(msg, alice.sess.Conn)

	for _, m := range []*member{bob, carol} {
		got := m.next(t)
		if got.Type != wire.KindMessage || got.Message != "hi" || got.Username != "alice" {
			t.Errorf("%s: got %+v", m.sess.Username, got)
		}
	}
	alice.expectNone(t)
}

func TestBroadcastToAll(t *testing.T) {
	reg := registry.New()
	r := newRelay(reg)

	alice := newMember(t, reg, "alice")
	bob := newMember(t, reg, "bob")

	r.Broadcast(wire.Event{Type: wire.KindSystem, Message: "announcement"}, nil)

	for _, m := range []*member{alice, bob} {
		if got := m.next(t); got.Message != "announcement" {
			t.Errorf("%s: got %+v", m.sess.Username, got)
		}
	}
}

func TestPerRecipientEncryption(t *testing.T) {
	// Each member decrypts with its own key; if the relay sealed with
	// the wrong cipher, Recv would fail and next() would time out.
	reg := registry.New()
	r := newRelay(reg)

	members := []*member{
		newMember(t, reg, "a"),
		newMember(t, reg, "b"),
		newMember(t, reg, "c"),
	}
	r.Broadcast(wire.Event{Type: wire.KindSystem, Message: "keyed"}, nil)
	for _, m := range members {
		if got := m.next(t); got.Message != "keyed" {
			t.Errorf("%s: got %+v", m.sess.Username, got)
		}
	}
}

func TestFailedRecipientIsEvicted(t *testing.T) {
	reg := registry.New()
	m := metrics.New()
	r := New(reg, util.NewLogger(0), m)

	alice := newMember(t, reg, "alice")
	bob := newMember(t, reg, "bob")
	carol := newMember(t, reg, "carol")

	// Kill bob's receive end so the next write to him fails.
	bob.peer.Conn.Close()

	r.Broadcast(wire.Event{Type: wire.KindSystem, Message: "hello"}, nil)

	// Survivors get the original event and then exactly one departure.
	for _, sur := range []*member{alice, carol} {
		if got := sur.next(t); got.Message != "hello" {
			t.Errorf("%s: first event %+v", sur.sess.Username, got)
		}
		got := sur.next(t)
		if got.Type != wire.KindSystem || !strings.Contains(got.Message, "bob left the chat") {
			t.Errorf("%s: second event %+v", sur.sess.Username, got)
		}
		sur.expectNone(t)
	}

	if reg.Size() != 2 {
		t.Errorf("registry size %d, want 2", reg.Size())
	}
	if _, ok := reg.Lookup(bob.sess.Conn); ok {
		t.Error("evicted session still registered")
	}
	if m.Evictions() != 1 {
		t.Errorf("evictions %d, want 1", m.Evictions())
	}
}

func TestEvictionOfTypistRefreshesSummary(t *testing.T) {
	reg := registry.New()
	r := newRelay(reg)

	alice := newMember(t, reg, "alice")
	bob := newMember(t, reg, "bob")

	reg.SetTyping(bob.sess.Conn, true)
	bob.peer.Conn.Close()

	r.Broadcast(wire.Event{Type: wire.KindSystem, Message: "ping"}, nil)

	if got := alice.next(t); got.Message != "ping" {
		t.Fatalf("first event %+v", got)
	}
	if got := alice.next(t); !strings.Contains(got.Message, "bob left the chat") {
		t.Fatalf("second event %+v", got)
	}
	got := alice.next(t)
	if got.Type != wire.KindTypingStatus || got.Message != "" {
		t.Errorf("expected empty typing summary, got %+v", got)
	}
}

func TestCorrelatedFailuresTerminate(t *testing.T) {
	// Every recipient failing at once must drain without recursion:
	// each departure broadcast finds yet another dead peer.
	reg := registry.New()
	r := newRelay(reg)

	members := make([]*member, 5)
	for i := range members {
		members[i] = newMember(t, reg, "user")
	}
	for _, m := range members {
		m.peer.Conn.Close()
	}

	done := make(chan struct{})
	go func() {
		r.Broadcast(wire.Event{Type: wire.KindSystem, Message: "doomed"}, nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("broadcast did not terminate with all recipients failing")
	}
	if reg.Size() != 0 {
		t.Errorf("registry size %d, want 0", reg.Size())
	}
}

func TestEvictionRacingHandlerRemoval(t *testing.T) {
	// If the handler's cleanup removed the session first, the relay
	// must not announce the departure a second time.
	reg := registry.New()
	r := newRelay(reg)

	alice := newMember(t, reg, "alice")
	bob := newMember(t, reg, "bob")

	bob.peer.Conn.Close()
	reg.Remove(bob.sess.Conn) // handler path wins

	r.Broadcast(wire.Event{Type: wire.KindSystem, Message: "after"}, nil)

	if got := alice.next(t); got.Message != "after" {
		t.Fatalf("got %+v", got)
	}
	alice.expectNone(t)
}
