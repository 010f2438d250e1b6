// Package config defines the runtime configuration for secchat and
// provides helpers for parsing chat server addresses.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config holds every tuneable for a single secchat session.
type Config struct {
	// ── Connection ───────────────────────────────────────────────────
	Host   string
	Port   int  // destination port (client) or bind port (server)
	Listen bool // true → run the server

	// ── TLS ──────────────────────────────────────────────────────────
	CertFile string // PEM certificate (server; empty → self-signed)
	KeyFile  string // PEM private key (server)
	Verify   bool   // client: verify the server certificate chain

	// ── Session ──────────────────────────────────────────────────────
	Username    string        // client: skip the interactive prompt
	Retry       int           // client: dial attempts (0 = no retry)
	IdleTimeout time.Duration // server: per-connection read deadline (0 = none)

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
}

// ParseHostArg splits a positional "host[:port]" argument, stripping a
// leading "tcp://" scheme. A missing host or port falls back to the
// defaults.
func ParseHostArg(arg string) (host string, port int, err error) {
	host = strings.TrimPrefix(arg, "tcp://")
	port = DefaultPort

	if host == "" {
		return DefaultHost, port, nil
	}

	if i := strings.LastIndex(host, ":"); i >= 0 {
		portStr := host[i+1:]
		host = host[:i]
		port, err = strconv.Atoi(portStr)
		if err != nil {
			return "", 0, fmt.Errorf("invalid port %q", portStr)
		}
	}
	if host == "" {
		host = DefaultHost
	}
	if port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return host, port, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range 1-65535", c.Port)
	}

	if c.Listen {
		if (c.CertFile == "") != (c.KeyFile == "") {
			return fmt.Errorf("--cert and --key must be given together")
		}
		if c.Username != "" {
			return fmt.Errorf("--name applies to client mode only")
		}
	} else {
		if c.Host == "" {
			return fmt.Errorf("hostname is required (use --help for usage)")
		}
		if c.CertFile != "" || c.KeyFile != "" {
			return fmt.Errorf("--cert/--key apply to listen mode only")
		}
		if c.IdleTimeout != 0 {
			return fmt.Errorf("--idle-timeout applies to listen mode only")
		}
	}

	if c.Retry < 0 {
		return fmt.Errorf("--retry must be non-negative")
	}

	return nil
}
