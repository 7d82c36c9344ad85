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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/quern-dev/quern/pkg/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start a worker process",
	Long: `Starts a worker pool that claims due jobs from Redis and executes
registered task handlers. Prometheus metrics and a liveness endpoint are
exposed on the metrics port.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		app, err := newApp(cfg)
		if err != nil {
			return err
		}
		if err := registerBuiltinTasks(app); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := app.Connect(ctx); err != nil {
			return err
		}
		defer app.Disconnect()

		workerCfg := worker.Config{
			Concurrency:       cfg.Worker.Concurrency,
			PollInterval:      cfg.Worker.PollInterval,
			Queues:            cfg.Worker.Queues,
			MaxTries:          cfg.Worker.MaxTries,
			RetryBackoff:      cfg.Worker.RetryBackoff,
			HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		}
		if queues, _ := cmd.Flags().GetStringSlice("queue"); len(queues) > 0 {
			workerCfg.Queues = queues
		}
		if concurrency, _ := cmd.Flags().GetInt("concurrency"); concurrency > 0 {
			workerCfg.Concurrency = concurrency
		}

		registry := prometheus.NewRegistry()
		pool, err := app.NewWorker(workerCfg, worker.WithMetrics(worker.NewMetrics(registry)))
		if err != nil {
			return err
		}

		metricsPort, _ := cmd.Flags().GetInt("metrics-port")
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, `{"status":"ok"}`)
		})
		metricsSrv := &http.Server{
			Addr:    fmt.Sprintf(":%d", metricsPort),
			Handler: mux,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			err := pool.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			err := metricsSrv.ListenAndServe()
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
	workerCmd.Flags().StringSliceP("queue", "Q", nil, "Queue(s) to consume (default from config)")
	workerCmd.Flags().IntP("concurrency", "c", 0, "Number of concurrent jobs (default from config)")
	workerCmd.Flags().Int("metrics-port", 9090, "Port for Prometheus metrics and liveness")
}
