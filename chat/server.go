// Package chat implements the chat service core: the server's accept
// loop and per-connection protocol driver, and the interactive client.
package chat

import (
	"context"
	"fmt"
	"net"

	"secchat/config"
	"secchat/internal/errors"
	"secchat/internal/metrics"
	"secchat/internal/registry"
	"secchat/internal/relay"
	"secchat/internal/transport"
	"secchat/util"
)

// Server accepts TLS connections and relays chat events between them.
type Server struct {
	Config   *config.Config
	Logger   *util.Logger
	Metrics  *metrics.Collector
	Registry *registry.Registry
	Relay    *relay.Relay
}

// NewServer wires a server around a fresh registry and relay.
// m may be nil to disable metrics.
func NewServer(cfg *config.Config, logger *util.Logger, m *metrics.Collector) *Server {
	reg := registry.New()
	return &Server{
		Config:   cfg,
		Logger:   logger,
		Metrics:  m,
		Registry: reg,
		Relay:    relay.New(reg, logger, m),
	}
}

// Run opens the TLS listener and serves until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.Config.Port)
	ln, err := transport.Listen(addr, s.Config.CertFile, s.Config.KeyFile)
	if err != nil {
		return err
	}
	if s.Config.CertFile == "" {
		s.Logger.Warn("no certificate given, using an ephemeral self-signed one")
	}
	if err := s.Serve(ctx, ln); !errors.Is(err, errors.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve runs the accept loop on an existing listener.  One goroutine
// per connection; the accept loop never blocks on a session and no
// session failure terminates it.  Context cancellation closes the
// listener and every registered connection; Serve then returns
// errors.ErrServerClosed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()

	s.Logger.Info("secure server started on %s", ln.Addr())

	// Shut everything down when the context expires.
	go func() {
		<-ctx.Done()
		ln.Close()
		s.Registry.CloseAll()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				if s.Logger.Level() >= util.LogVerbose && s.Metrics != nil {
					s.Logger.Verbose("final metrics:\n%s", s.Metrics.JSON())
				}
				return errors.ErrServerClosed
			default:
				return fmt.Errorf("accept: %w", err)
			}
		}

		s.Logger.Verbose("connection from %s", conn.RemoteAddr())
		s.Metrics.ConnectionOpened()

		go s.handleConn(ctx, conn)
	}
}
