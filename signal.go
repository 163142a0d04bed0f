package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// shutdownContext derives a context that is canceled by the first SIGINT or
// SIGTERM. A second signal exits the process. The returned stop func releases
// the signal handler and must be called once the guarded work is done.
//
// Login waits on the browser for as long as the user takes; the first Ctrl-C
// abandons the wait so the loopback server shuts down cleanly.
func shutdownContext(parent context.Context, logger *slog.Logger) (context.Context, func()) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			cancel()
		})
	}

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, canceling", slog.String("signal", sig.String()))
			cancel()
		case <-done:
			return
		case <-parent.Done():
			return
		}

		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit", slog.String("signal", sig.String()))
			os.Exit(exitError)
		case <-done:
		case <-parent.Done():
		}
	}()

	return ctx, stop
}
