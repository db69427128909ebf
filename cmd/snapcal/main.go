package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		slog.Warn("Interrupt signal")
		cancel()
	}()

	if err := run(ctx, os.Getenv, os.Getwd, os.Args[1:]); err != nil {
		slog.Error("Server stopped with error", "error", err.Error())
		os.Exit(1)
	}
}

// run loads config, wires the app and serves until ctx is cancelled
// Dependencies are passed in so tests may run the whole thing
func run(ctx context.Context, getenv func(string) string, getwd func() (string, error), args []string) error {
	c := NewConfig()

	if err := c.LoadDotEnv(getwd); err != nil {
		return fmt.Errorf("error while loading .env file. Err: %w", err)
	}
	c.LoadEnv(getenv)
	if err := c.ParseFlags(args); err != nil {
		return fmt.Errorf("error while parsing flags. Err: %w", err)
	}

	srv, err := NewServerApp(ctx, c)
	if err != nil {
		return err
	}

	if err := srv.Run(ctx); err != http.ErrServerClosed {
		return err
	}

	return nil
}
