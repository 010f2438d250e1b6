// Package cmd wires up the CLI flags and dispatches to the chat core.
package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"secchat/chat"
	"secchat/config"
	"secchat/internal/metrics"
	"secchat/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X secchat/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the server or the client.
func Execute(ctx context.Context, args []string) error {
	cfg := &config.Config{Port: config.DefaultPort}
	fs := flag.NewFlagSet("secchat", flag.ContinueOnError)

	// ── connection ───────────────────────────────────────────────
	fs.BoolVarP(&cfg.Listen, "listen", "l", false, "Listen mode (run the server)")
	fs.IntVarP(&cfg.Port, "port", "p", config.DefaultPort, "Port to listen on (with -l)")

	// ── TLS ──────────────────────────────────────────────────────
	fs.StringVar(&cfg.CertFile, "cert", "", "PEM certificate file (with -l; self-signed if omitted)")
	fs.StringVar(&cfg.KeyFile, "key", "", "PEM private key file (with -l)")
	fs.BoolVar(&cfg.Verify, "verify", false, "Verify the server certificate chain")

	// ── session ──────────────────────────────────────────────────
	fs.StringVar(&cfg.Username, "name", "", "Username (skips the interactive prompt)")
	fs.IntVar(&cfg.Retry, "retry", config.DefaultRetryAttempts, "Redial attempts before giving up")

	var idleSec int
	fs.IntVar(&idleSec, "idle-timeout", 0, "Drop connections idle for this many seconds (0 = never)")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("secchat %s\n", version)
		return nil
	}

	if idleSec > 0 {
		cfg.IdleTimeout = time.Duration(idleSec) * time.Second
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(cfg, fs.Args()); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	// ── build components ─────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)

	if cfg.Listen {
		srv := chat.NewServer(cfg, logger, metrics.New())
		return srv.Run(ctx)
	}
	return chat.NewClient(cfg, logger).Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

func parsePositional(cfg *config.Config, remaining []string) error {
	if cfg.Listen {
		if len(remaining) > 0 {
			return fmt.Errorf("listen mode takes no positional arguments")
		}
		return nil
	}

	// Connect mode: [host[:port]], defaulting to localhost:5000.
	switch len(remaining) {
	case 0:
		cfg.Host = config.DefaultHost
	case 1:
		host, port, err := config.ParseHostArg(remaining[0])
		if err != nil {
			return err
		}
		cfg.Host = host
		cfg.Port = port
	default:
		return fmt.Errorf("too many arguments (expected host[:port])")
	}
	return nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `secchat – Encrypted Chat v%s

A TLS chat service with per-session application-layer encryption.

Usage:
  secchat [options] [host[:port]]             Connect (default localhost:%d)
  secchat -l [-p <port>] [options]            Serve

Options:
`, version, config.DefaultPort)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Examples:
  secchat -l                                  Serve on port %d
  secchat -l -p 6000 --cert s.crt --key s.key Serve with a real certificate
  secchat chat.example.com:6000 --name alice  Connect as alice
  secchat tcp://0.tcp.ngrok.io:12345          Connect through a forwarded URL
`, config.DefaultPort)
}
