package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"podsync/cmd/podsync/subcmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := subcmd.NewRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
