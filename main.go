// secchat - An encrypted multi-user chat over TLS with per-session keys.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"secchat/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "secchat: %v\n", err)
		os.Exit(1)
	}
}
