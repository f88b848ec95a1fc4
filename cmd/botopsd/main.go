// Command botopsd runs the bot operations gateway: it serves tool calls over
// HTTP and owns the chat-platform sessions of every configured tenant.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonwraymond/botops/config"
	"github.com/jonwraymond/botops/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "botopsd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	obs, err := observe.NewObserver(ctx, cfg.ObserveConfig(version))
	if err != nil {
		return fmt.Errorf("observer: %w", err)
	}
	log := obs.Logger().With(observe.F("service", "botopsd"), observe.F("version", version))

	platform, err := newPlatform(cfg, log)
	if err != nil {
		return err
	}

	d, err := newDaemon(ctx, cfg, obs, platform)
	if err != nil {
		_ = obs.Shutdown(context.Background())
		return err
	}
	d.bootTenants(ctx)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           d.routes(),
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting http server", observe.F("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err = <-serveErr:
		if err != nil {
			log.Error(ctx, "http server", observe.Err(err))
		}
	}
	log.Info(context.Background(), "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if serr := server.Shutdown(shutdownCtx); serr != nil {
		log.Error(shutdownCtx, "graceful shutdown", observe.Err(serr))
	}
	d.close(shutdownCtx)
	if oerr := obs.Shutdown(shutdownCtx); oerr != nil {
		log.Warn(shutdownCtx, "observer shutdown", observe.Err(oerr))
	}
	return err
}
