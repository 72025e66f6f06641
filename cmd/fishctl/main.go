// Command fishctl is the operator CLI: one-shot ingestion, cooldown
// maintenance and load runs against a live server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/fishy/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
