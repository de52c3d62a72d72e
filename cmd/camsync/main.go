package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"camsync/internal/services"
)

const (
	exitFailure       = 1
	exitConfiguration = 2
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		msg, code := exitStatus(err)
		fmt.Fprintln(os.Stderr, msg)
		os.Exit(code)
	}
}

// exitStatus maps a command error to the message printed on stderr and the
// process exit code. Configuration errors exit 2 so scripts can tell them
// apart from failures a rerun may fix.
func exitStatus(err error) (string, int) {
	switch {
	case errors.Is(err, context.Canceled):
		return "interrupted; progress was checkpointed and the next run resumes it", exitFailure
	case services.IsFatal(err):
		return fmt.Sprintf("%v\nfix the configuration and rerun; 'camsync config validate' checks it", err), exitConfiguration
	default:
		return err.Error(), exitFailure
	}
}
