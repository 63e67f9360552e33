package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/phrazzld/scry-hook/internal/platform/sqlstore"
	"github.com/phrazzld/scry-hook/internal/platform/tracing"
	"github.com/spf13/cobra"
)

// readHeaderTimeout bounds how long a client may take to send headers.
const readHeaderTimeout = 10 * time.Second

func newServeCmd(flags *globalFlags) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := flags.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := tracing.Setup(cfg.Tracing, os.Stdout, log)
			if err != nil {
				return err
			}
			defer func() {
				tctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := shutdownTracing(tctx); err != nil {
					log.Error("failed to flush spans", slog.String("error", err.Error()))
				}
			}()

			db, dialect, err := openDatabase(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					log.Error("error closing database connection", slog.String("error", err.Error()))
				}
			}()

			if migrate {
				if err := sqlstore.Migrate(ctx, db, dialect, log); err != nil {
					return err
				}
			}

			app, err := newApplication(ctx, cfg, log, db, dialect, overrides{})
			if err != nil {
				return err
			}
			defer app.cleanup()

			return app.serve(ctx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "apply pending migrations before serving")
	return cmd
}

// serve runs the task runner and the HTTP server until ctx is done, then
// shuts both down within the configured timeout.
func (app *application) serve(ctx context.Context) error {
	if err := app.runner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task runner: %w", err)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.router(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return context.WithoutCancel(ctx)
		},
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("starting server", slog.Int("port", app.config.Server.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		app.logger.Info("shutting down server")
	case serveErr = <-errCh:
		app.logger.Error("server failed", slog.String("error", serveErr.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, fmt.Errorf("server shutdown failed: %w", err))
	}
	if err := app.runner.Stop(shutdownCtx); err != nil {
		serveErr = errors.Join(serveErr, err)
	}

	app.logger.Info("server shutdown completed")
	return serveErr
}
