package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/oaknational/oak-ai-lesson-assistant/internal/app"
)

func main() {
	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to init app: %v\n", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			a.Log.Error("server failed", "error", err.Error())
			os.Exit(1)
		}
	case sig := <-stop:
		a.Log.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := a.Shutdown(ctx); err != nil {
			a.Log.Error("shutdown failed", "error", err.Error())
			os.Exit(1)
		}
	}
}
