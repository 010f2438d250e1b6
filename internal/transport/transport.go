// Package transport provides the secured byte streams the chat
// protocol runs over.  The rest of the system sees only net.Conn and
// net.Listener values that already speak TLS; certificate handling
// lives entirely here.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound secured connections.  The concrete
// implementation is a TLS dialer; tests substitute plain pipes.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer.
	// Stateless dialers return nil.
	Close() error
}
