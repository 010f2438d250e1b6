// Package relay implements broadcast fan-out over the connection
// registry.
//
// Each recipient holds its own session key, so an event is sealed
// per-recipient rather than once.  A write failure evicts that
// recipient without aborting delivery to the rest; the resulting
// departure notices are processed on an iterative work queue instead
// of recursing into Broadcast, which bounds the call depth even when
// many clients fail at once.
package relay

import (
	"fmt"
	"net"

	"secchat/internal/metrics"
	"secchat/internal/registry"
	"secchat/internal/session"
	"secchat/internal/wire"
	"secchat/util"
)

// Relay delivers events to every registered connection.
type Relay struct {
	reg     *registry.Registry
	logger  *util.Logger
	metrics *metrics.Collector
}

// New returns a relay bound to the given registry.  metrics may be nil.
func New(reg *registry.Registry, logger *util.Logger, m *metrics.Collector) *Relay {
	return &Relay{reg: reg, logger: logger, metrics: m}
}

type outbound struct {
	ev        wire.Event
	excluding net.Conn
}

// Broadcast sends ev to every registered connection except excluding
// (nil excludes nobody).  Recipients whose write fails are removed
// from the registry, closed, and announced to the survivors; those
// announcements may in turn surface more failures, which are handled
// the same way until the queue drains.  Termination is guaranteed:
// every requeued item corresponds to a permanent registry removal.
func (r *Relay) Broadcast(ev wire.Event, excluding net.Conn) {
	queue := []outbound{{ev: ev, excluding: excluding}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]

		failed := r.deliver(item.ev, item.excluding)

		for _, conn := range failed {
			sess, ok := r.reg.Remove(conn)
			if !ok {
				continue // handler's cleanup path got there first
			}
			sess.Close() //nolint:errcheck
			r.metrics.Eviction()
			r.logger.Verbose("evicted %s (%s) after failed send",
				sess.Username, sess.RemoteAddr())

			queue = append(queue, outbound{ev: Departure(sess.Username)})
			if sess.Typing {
				// Their typing entry is gone; refresh the summary
				// for everyone still connected.
				queue = append(queue, outbound{ev: wire.Event{
					Type:    wire.KindTypingStatus,
					Message: r.reg.TypingSummary(),
				}})
			}
		}
	}
}

// deliver seals and writes ev to each recipient, returning the
// connections whose write failed.  Removal is deferred to the caller
// because the registry lock is held for the whole visit.
func (r *Relay) deliver(ev wire.Event, excluding net.Conn) []net.Conn {
	var failed []net.Conn
	r.reg.Visit(excluding, func(sess *session.Session) {
		if err := sess.Send(ev); err != nil {
			r.metrics.SendFailure()
			r.logger.Debug("send %s event to %s: %v", ev.Type, sess.RemoteAddr(), err)
			failed = append(failed, sess.Conn)
		} else {
			r.metrics.EventDelivered()
		}
	})
	return failed
}

// Departure is the system event announcing that username left, shared
// between the handler's cleanup path and the relay's eviction path so
// both spellings stay identical.
func Departure(username string) wire.Event {
	return wire.Event{
		Type:      wire.KindSystem,
		Message:   fmt.Sprintf("%s left the chat", username),
		Timestamp: wire.Now(),
	}
}
