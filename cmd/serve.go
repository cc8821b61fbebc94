package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/metisreader/metis/internal/api"
	"github.com/metisreader/metis/internal/app"
	"github.com/metisreader/metis/internal/engine"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app.App) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				srv := &http.Server{
					Addr:              fmt.Sprintf(":%d", a.Cfg.Server.Port),
					Handler:           api.NewServer(a.Engine, a.Logger).Handler(),
					ReadHeaderTimeout: 10 * time.Second,
				}

				errCh := make(chan error, 1)
				go func() {
					a.Logger.Info("http server listening", zap.String("addr", srv.Addr))
					if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
						errCh <- err
					}
				}()

				select {
				case err := <-errCh:
					return err
				case <-ctx.Done():
				}

				a.Logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("shutdown: %w", err)
				}
				return nil
			})
		},
	}
}

func newScheduleCmd() *cobra.Command {
	var (
		intervalMinutes int
		maxRuns         int
		watch           bool
	)

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run sync passes on an interval or on inbox changes.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(func(a *app.App) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer stop()

				if watch {
					return a.Engine.WatchInbox(ctx)
				}
				interval := a.Cfg.SyncInterval()
				if intervalMinutes > 0 {
					interval = time.Duration(intervalMinutes) * time.Minute
				}
				return a.Engine.RunScheduled(ctx, engine.ScheduleConfig{
					Interval: interval,
					MaxRuns:  maxRuns,
				})
			})
		},
	}
	cmd.Flags().IntVar(&intervalMinutes, "interval", 0, "minutes between passes (default from config)")
	cmd.Flags().IntVar(&maxRuns, "max-runs", 0, "stop after N passes (0 = run until interrupted)")
	cmd.Flags().BoolVar(&watch, "watch", false, "watch the inbox file instead of polling")
	return cmd
}
