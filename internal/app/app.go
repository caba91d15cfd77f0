// Package app encapsulates server components and lifecycle: store,
// services, HTTP surface, retention scheduler, graceful shutdown.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"fitdb/internal/retention"
	"fitdb/pkg/api"
	"fitdb/pkg/auth"
	"fitdb/pkg/chat"
	"fitdb/pkg/config"
	"fitdb/pkg/logger"
	"fitdb/pkg/ratelimit"
	"fitdb/pkg/store"
)

// App owns the process-wide resources.
type App struct {
	cfg  *config.Config
	addr string

	store *store.Store
	srv   *http.Server
}

// New opens the store and wires the services. It does not start the
// HTTP server or the retention scheduler; call Run for that.
func New(cfg *config.Config, dbPath, addr string) (*App, error) {
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", dbPath, err)
	}

	authSvc := auth.New(st, cfg.SessionTTL())
	chatSvc := chat.New(st)
	limiter := ratelimit.New(st, cfg.RateLimit.Limit, cfg.RateWindow())

	srv := &http.Server{
		Addr: addr,
		Handler: api.NewServer(authSvc, chatSvc, limiter,
			cfg.RateLimit.IngressRPS, cfg.RateLimit.IngressBurst).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &App{cfg: cfg, addr: addr, store: st, srv: srv}, nil
}

// Store exposes the opened store (used by admin tooling and tests).
func (a *App) Store() *store.Store { return a.store }

// Run starts the retention scheduler (when enabled) and the HTTP
// server, blocking until ctx is canceled or the server fails.
func (a *App) Run(ctx context.Context) error {
	retCancel, err := retention.Start(ctx, a.store, a.cfg)
	if err != nil {
		return err
	}
	defer retCancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("http_listening", zap.String("addr", a.addr))
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(shCtx); err != nil {
			logger.Log.Warn("http_shutdown_failed", zap.Error(err))
		}
	case err = <-errCh:
		logger.Log.Error("http_server_failed", zap.Error(err))
	}

	if cerr := a.store.Close(); cerr != nil {
		logger.Log.Error("store_close_failed", zap.Error(cerr))
		if err == nil {
			err = cerr
		}
	}
	return err
}
