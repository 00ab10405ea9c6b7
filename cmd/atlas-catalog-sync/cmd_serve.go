package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajitpratap0/atlas-catalog-sync/internal/api"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP status server with on-demand sync",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger()
			ctx := cmd.Context()

			if cfg.API.ListenAddr == "" {
				return fmt.Errorf("serve: api.listen_addr must be set")
			}

			cat, err := newCatalog(ctx, logger)
			if err != nil {
				return fmt.Errorf("serve: connecting to catalog: %w", err)
			}
			defer func() { _ = cat.Close(context.WithoutCancel(ctx)) }()

			s := newSynchronizer(newSource(logger), cat, logger)
			return runHTTP(ctx, newHTTPServer(api.NewServer(s, cat, logger, cfg.API.AuthToken), logger), logger)
		},
	}
	return cmd
}

func newHTTPServer(srv *api.Server, logger *slog.Logger) *http.Server {
	if cfg.API.AuthToken == "" {
		logger.Warn("HTTP API: auth is DISABLED; set ATLAS_CATALOG_SYNC_API_AUTH_TOKEN or api.auth_token for production use")
	}
	return &http.Server{
		Addr:              cfg.API.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// A full sync triggered over HTTP can take a while.
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
}

// runHTTP serves until ctx is done, then shuts the server down gracefully.
func runHTTP(ctx context.Context, httpSrv *http.Server, logger *slog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API server starting", "addr", httpSrv.Addr)
		if listenErr := httpSrv.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", listenErr)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
	case startErr := <-errCh:
		return startErr
	}

	const shutdownTimeout = 10 * time.Second
	if shutdownErr := api.Shutdown(httpSrv, shutdownTimeout); shutdownErr != nil {
		return fmt.Errorf("graceful shutdown: %w", shutdownErr)
	}

	// Drain the errCh in case ListenAndServe returned after Shutdown.
	return <-errCh
}
