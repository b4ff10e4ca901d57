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

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"claimexport/internal/config"
	"claimexport/internal/logging"
	"claimexport/internal/proxy"
)

func main() {
	cfg, err := config.Load()
	must(err)

	logger, err := logging.New(cfg.LogLevel)
	must(err)
	defer func() { _ = logger.Sync() }()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	fetcher := proxy.NewFetcher(cfg.ProxyTimeout,
		proxy.WithMaxBytes(cfg.ProxyMaxBytes),
		proxy.WithRateLimit(cfg.ProxyRateLimitRPS),
		proxy.WithLogger(logger),
	)
	srv := &http.Server{
		Addr: cfg.ProxyAddr,
		Handler: proxy.NewRouter(fetcher, proxy.ServerOptions{
			AllowedOrigins: cfg.ProxyAllowedOrigins,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("image proxy listening", zap.String("addr", cfg.ProxyAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		must(err)
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	must(srv.Shutdown(shutdownCtx))
	logger.Info("image proxy stopped")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
