// Command roster manages the course catalog from the command line.
//
// Usage:
//
//	roster [-metrics] student|teacher|instructor|category add NAME
//	roster [-metrics] course add offline|interactive|record NAME
//	roster [-metrics] student|teacher|category|course list
//	roster [-metrics] student|teacher|category|course show ID
//	roster [-metrics] student|teacher|category|course rename ID NAME
//	roster [-metrics] student|teacher|category|course remove ID
//
// Storage, logging and tracing are configured through ROSTER_* environment
// variables.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jacentio/roster/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		exitf("Error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		stop()
		exitf("Error: %v", err)
	}
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
