package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"diagnostics/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		if port, _ := cmd.Flags().GetString("port"); port != "" {
			cfg.HTTPPort = port
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		a, err := app.New(ctx, cfg, log)
		if err != nil {
			log.Error("failed to start", "error", err)
			return err
		}

		srv := &http.Server{
			Addr:              ":" + cfg.HTTPPort,
			Handler:           a.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		serveErr := make(chan error, 1)
		go func() {
			log.Info("server starting", "port", cfg.HTTPPort)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
			close(serveErr)
		}()

		// Wait for interrupt
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			log.Info("shutting down server")
		case err := <-serveErr:
			if err != nil {
				log.Error("server failed", "error", err)
				a.Close(context.Background())
				return err
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server forced to shutdown", "error", err)
		}
		a.Close(shutdownCtx)

		log.Info("server exited")
		return nil
	},
}

func init() {
	serveCmd.Flags().String("port", "", "HTTP port (overrides HTTP_PORT)")
}
