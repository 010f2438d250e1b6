package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and tests.

const (
	// DefaultPort is the chat service port.
	DefaultPort = 5000

	// DefaultHost is the client's destination when none is given.
	DefaultHost = "localhost"

	// DefaultDialTimeout bounds a single TLS connection attempt.
	DefaultDialTimeout = 10 * time.Second

	// DefaultRetryAttempts is how many times the client redials a
	// refused or dropped server before giving up.
	DefaultRetryAttempts = 5

	// DefaultMaxRetryBackoff caps the exponential backoff between
	// redial attempts.
	DefaultMaxRetryBackoff = 30 * time.Second

	// DefaultTypingInterval throttles client typing notifications so a
	// fast typist produces at most one update per interval.
	DefaultTypingInterval = 500 * time.Millisecond
)
