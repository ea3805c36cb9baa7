package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run the auto-scaling manager loop until interrupted",
	RunE:  runMonitor,
}

var allInOneCmd = &cobra.Command{
	Use:   "run",
	Short: "Register, start, and monitor the runner pool in one command",
	RunE:  runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(allInOneCmd)
}

// runMonitor bootstraps the Manager and blocks processing events until
// SIGINT/SIGTERM, at which point it runs the shutdown sequence (§5
// cancellation) before returning.
func runMonitor(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	mgr, err := buildManager(cfg, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mgr.Bootstrap(ctx); err != nil {
		return err
	}

	if cfg.EnableMetrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(mgr.Registry(), promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn("metrics server stopped", zap.Error(err))
			}
		}()
		go func() {
			<-ctx.Done()
			srv.Close()
		}()
	}

	log.Info("runner manager starting", zap.String("mode", string(cfg.Mode)))
	if err := mgr.Run(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return errInterrupted
	}
	return nil
}
