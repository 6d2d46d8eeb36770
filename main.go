package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/Imetomi/bugninja-cli/cmd"
)

// main is the entry point for the bugninja CLI.
func main() {
	// Ctrl+C cancels the run context so the browser shuts down cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd.Execute(ctx)
}
