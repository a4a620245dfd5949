package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lenstracker-reminders/internal/api"
	"lenstracker-reminders/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

// NewServeCommand runs the HTTP API and, when enabled, the sweep scheduler.
func NewServeCommand(root *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduled sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()

			var sched *scheduler.SweepScheduler
			if cfg.Sweep.Enabled {
				sched = scheduler.New(a.engine, cfg.Sweep.Cron, log)
				if err := sched.Start(); err != nil {
					return err
				}
			} else {
				log.Info("Scheduled sweeps disabled; use POST /admin/sweep")
			}
			if cfg.Admin.Secret == "" {
				log.Warn("ADMIN_SECRET is not set; the manual sweep endpoint rejects every request")
			}

			handler := api.NewHandler(a.store, a.engine, a.push, cfg.Push.PublicKey, cfg.Push.ClickURL, log.WithField("component", "api"))
			server := &http.Server{
				Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
				Handler:           api.NewRouter(handler, cfg.Server, cfg.Admin.Secret),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				log.Infof("HTTP server starting on port %d", cfg.Server.Port)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
				close(serverErr)
			}()

			select {
			case err := <-serverErr:
				if err != nil {
					return fmt.Errorf("HTTP server: %w", err)
				}
			case <-ctx.Done():
				log.Info("Shutdown signal received, stopping services...")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if sched != nil {
				sched.Stop(shutdownCtx)
			}
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("HTTP server shutdown: %w", err)
			}
			log.Info("Server gracefully stopped")
			return nil
		},
	}
}
