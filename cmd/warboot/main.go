package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/warboot/internal/launcher"
	"github.com/danmuck/warboot/internal/logging"
)

func main() {
	logging.ConfigureRuntime()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	result := launcher.Run(ctx, launcher.Options{Args: os.Args[1:]})
	stop()

	launcher.Report(os.Stderr, result)
	if result.SkipExit {
		return
	}
	os.Exit(result.ExitCode)
}
