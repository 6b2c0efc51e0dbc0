package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopdesk/shopdesk/internal/cli/shopdeskctl"
)

func main() {
	options, err := shopdeskctl.OptionsFromEnv(os.LookupEnv)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	options.Stdout = os.Stdout
	options.Stderr = os.Stderr

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := shopdeskctl.Run(ctx, os.Args[1:], options)
	stop()
	os.Exit(code)
}
