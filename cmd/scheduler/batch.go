package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/defense-scheduler/internal/scheduler"
)

func newBatchCommand() *cobra.Command {
	opts := &inputOptions{}
	var (
		trials   int
		parallel int
	)
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "run seeded trials in parallel and keep the best schedule",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if trials < 1 {
				return fmt.Errorf("trials must be >= 1")
			}
			return runBatch(opts, trials, parallel)
		},
	}
	opts.register(cmd)
	cmd.Flags().IntVarP(&trials, "trials", "n", 4, "number of independent trials")
	cmd.Flags().IntVar(&parallel, "parallel", 0, "trials run at once, 0 runs all of them together")
	return cmd
}

func runBatch(opts *inputOptions, trials, parallel int) error {
	cfg, logr, ctx, stop, err := setup(opts.logLevel)
	if err != nil {
		return err
	}
	defer stop()
	defer logr.Sync() //nolint:errcheck

	engineCfg, err := opts.engineConfig(cfg.Scheduler)
	if err != nil {
		return err
	}
	ds, inst, err := opts.load()
	if err != nil {
		return err
	}

	batch, err := scheduler.RunBatch(ctx, inst, scheduler.SeededConfigs(engineCfg, trials), parallel, scheduler.WithLogger(logr.Named("trial")))
	if err != nil {
		return err
	}
	for _, trial := range batch.Trials {
		if trial.Err != nil {
			logr.Warn("trial failed", zap.Int("trial", trial.Index), zap.Int64("seed", trial.Seed), zap.Error(trial.Err))
			continue
		}
		logMetrics(logr.With(zap.Int("trial", trial.Index), zap.Int64("seed", trial.Seed)), "trial finished", trial.Result.Metrics)
	}

	best := batch.Best
	logr.Info("best trial", zap.Int("trial", best.Index), zap.Int64("seed", best.Seed))
	return opts.writeSchedule(&ds, best.Result, fmt.Sprintf("Defense schedule (seed %d)", best.Seed))
}
