package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	hearthErrors "github.com/firefly-engineering/hearth/internal/errors"
	"github.com/firefly-engineering/hearth/internal/logging"
	"github.com/firefly-engineering/hearth/internal/monitor"
	"github.com/firefly-engineering/hearth/internal/worker"
)

var (
	workerOnce        bool
	workerConcurrency int
	workerName        string
	workerMonitor     time.Duration
	workerRepair      bool
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the job worker pool",
	Long: `Consumes the lifecycle queue and executes jobs until interrupted.

Jobs for different servers run concurrently up to --concurrency; jobs for
the same server run one at a time in the order they were queued. On
SIGINT or SIGTERM the pool stops claiming and waits for running jobs.

With --monitor, the pool also compares recorded server state with the
runtime at that interval and logs drift; --repair additionally queues a
START for servers recorded RUNNING whose container has stopped.

With --once, ready jobs are processed sequentially and the command exits
when none are left.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().BoolVar(&workerOnce, "once", false, "Process ready jobs and exit")
	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0, "Jobs run at once (default from config)")
	workerCmd.Flags().StringVar(&workerName, "name", "", "Consumer name recorded on claims (default host-pid)")
	workerCmd.Flags().DurationVar(&workerMonitor, "monitor", 0, "Drift check interval, e.g. 1m (0 disables)")
	workerCmd.Flags().BoolVar(&workerRepair, "repair", false, "Queue START jobs for servers whose container stopped unexpectedly")
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var opts []worker.Option
	if workerConcurrency > 0 {
		opts = append(opts, worker.WithConcurrency(workerConcurrency))
	}
	if workerName != "" {
		opts = append(opts, worker.WithConsumerName(workerName))
	}
	pool := a.NewPool(opts...)

	if workerOnce {
		start := time.Now()
		n, err := pool.Drain(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		logSuccess("Processed %d job(s) in %s", n, time.Since(start).Round(time.Millisecond))
		return nil
	}

	if workerRepair && workerMonitor <= 0 {
		return hearthErrors.ValidationError("--repair requires --monitor")
	}

	logging.Debug("worker starting", "config", configPath)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return pool.Run(gctx)
	})
	if workerMonitor > 0 {
		mopts := []monitor.Option{monitor.WithAuditLogger(a.Audit)}
		if workerRepair {
			mopts = append(mopts, monitor.WithRepair(a.Jobs))
		}
		m := monitor.New(workerMonitor, a.Store, a.Runtime, mopts...)
		g.Go(func() error {
			return m.Run(gctx)
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logInfo("Worker stopped")
	return nil
}
