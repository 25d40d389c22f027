package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/api"
	"github.com/sells-group/datafixer/internal/config"
	"github.com/sells-group/datafixer/internal/jobflow"
	"github.com/sells-group/datafixer/internal/metrics"
	"github.com/sells-group/datafixer/internal/model"
)

var (
	servePort     int
	serveTemporal bool
)

// temporalRunner runs API-triggered jobs as workflows.
type temporalRunner struct {
	client    client.Client
	taskQueue string
	batch     config.BatchConfig
}

func (r temporalRunner) RunJob(ctx context.Context, jobID string) (model.BatchResult, error) {
	run, err := jobflow.Submit(ctx, r.client, r.taskQueue, jobflow.JobInput{
		JobID:         jobID,
		BatchSize:     r.batch.Size,
		MaxConcurrent: r.batch.MaxConcurrent,
	})
	if err != nil {
		return model.BatchResult{}, err
	}
	return jobflow.Wait(ctx, run)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx, config.ModeServe)
		if err != nil {
			return err
		}
		defer env.Close()

		var runner api.JobRunner = env.Runner
		if serveTemporal {
			if err := cfg.Validate(config.ModeWorker); err != nil {
				return err
			}
			c, err := jobflow.Dial(ctx, cfg.Temporal, 30*time.Second)
			if err != nil {
				return err
			}
			defer c.Close()
			runner = temporalRunner{client: c, taskQueue: cfg.Temporal.TaskQueue, batch: cfg.Batch}
			zap.L().Info("job runs delegated to temporal", zap.String("task_queue", cfg.Temporal.TaskQueue))
		}

		srvAPI := api.New(ctx, env.Store, runner,
			api.WithAllowedOrigins(cfg.Server.AllowedOrigins),
			api.WithMetricsHandler(metrics.Handler()),
		)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           srvAPI.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		// Runs were started on ctx and stop with it; wait for them to record
		// their final status.
		srvAPI.Wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveTemporal, "temporal", false, "run jobs through the Temporal worker")
	rootCmd.AddCommand(serveCmd)
}
