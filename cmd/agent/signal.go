package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext returns a context that cancels on the first SIGINT/SIGTERM
// and force-exits on the second. This gives the engine time to drain in-flight
// actions on first signal, while allowing the user to force-quit if something
// hangs.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		select {
		case sig := <-sigCh:
			logger.Info("received signal, initiating graceful shutdown",
				slog.String("signal", sig.String()),
			)
			cancel()
		case <-ctx.Done():
			return
		}

		// Wait for second signal — force exit.
		select {
		case sig := <-sigCh:
			logger.Warn("received second signal, forcing exit",
				slog.String("signal", sig.String()),
			)
			os.Exit(1)
		case <-parent.Done():
			return
		}
	}()

	return ctx
}

// sighupChannel returns a channel that receives SIGHUP. Separate from
// shutdownContext's SIGINT/SIGTERM handling since SIGHUP triggers a reload,
// not a shutdown — callers are expected to keep reading from it for the
// life of the process and signal.Stop it on the way out.
func sighupChannel() chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	return ch
}

// watchReload reads sighupChannel until ctx is done, invoking reload on
// every SIGHUP and logging its outcome. reload is expected to return
// quickly; a slow reload blocks delivery of the next SIGHUP.
func watchReload(ctx context.Context, logger *slog.Logger, reload func(context.Context) error) {
	ch := sighupChannel()
	defer signal.Stop(ch)

	for {
		select {
		case <-ch:
			logger.Info("received SIGHUP, reloading event stream")
			if err := reload(ctx); err != nil {
				logger.Error("reload failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}
