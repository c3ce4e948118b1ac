package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/RoqueChristian/backup-inteligencia/cmd/inteligencia/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := cli.Run(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
