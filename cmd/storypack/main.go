package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"storypack/internal/faults"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	cmd := newRootCommand()
	err := cmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(faults.ExitCode(err))
	}
}
