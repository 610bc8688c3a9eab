package cmd

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"Friday_1.0/internal/api"
	httpserver "Friday_1.0/pkg/http"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only operator API",
	Long: `Starts the HTTP endpoints that expose execution metrics, history,
cache statistics and the security audit log. All endpoints are read-only.`,
	Run: func(cmd *cobra.Command, args []string) {
		serve()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides the configured one)")
}

func serve() {
	app, err := newApp()
	if err != nil {
		log.Fatalf("Error initializing: %v", err)
	}
	defer app.close()

	addr := app.cfg.Operator.Address
	if serveAddr != "" {
		addr = serveAddr
	}
	srv, err := buildOperatorServer(app, addr)
	if err != nil {
		log.Fatalf("Error creating server: %v", err)
	}

	// Start server
	go func() {
		app.log.Info("Operator API listening on " + addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log.WithError(err).Fatal("HTTP server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	app.log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.log.WithError(err).Error("Server forced to shutdown")
	}
	app.log.Info("Server gracefully stopped")
}

// buildOperatorServer wires the operator endpoints onto a middleware-aware server.
func buildOperatorServer(app *app, addr string) (*httpserver.Server, error) {
	srv, err := httpserver.NewServer(app.cfg.Operator.Middleware, httpserver.WithAddress(addr))
	if err != nil {
		return nil, err
	}
	api.RegisterRoutes(srv, api.NewAPI(app.cfg.App, app.coord, app.cache, app.history, app.gate))
	return srv, nil
}

// startOperatorIfEnabled exposes the operator API in the background while a
// long command runs, so progress can be watched over HTTP. The returned stop
// function is always safe to call.
func startOperatorIfEnabled(app *app) func() {
	if !app.cfg.Operator.Enabled {
		return func() {}
	}
	srv, err := buildOperatorServer(app, app.cfg.Operator.Address)
	if err != nil {
		app.log.WithError(err).Warn("Operator API not started")
		return func() {}
	}
	go func() {
		app.log.Info("Operator API listening on " + app.cfg.Operator.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.log.WithError(err).Warn("Operator API stopped unexpectedly")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
