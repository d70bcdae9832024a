package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/defense-scheduler/internal/scheduler"
)

func newOptimizeCommand() *cobra.Command {
	opts := &inputOptions{}
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "run the optimizer once and write the schedule",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return runOptimize(opts)
		},
	}
	opts.register(cmd)
	return cmd
}

func runOptimize(opts *inputOptions) error {
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
	logr.Info("dataset loaded",
		zap.Int("projects", inst.NumProjects()),
		zap.Int("instructors", len(ds.Instructors)),
		zap.Int("classrooms", len(ds.Classrooms)),
		zap.Int("timeslots", len(ds.Timeslots)),
	)

	res, err := scheduler.Optimize(ctx, inst, engineCfg, scheduler.WithLogger(logr))
	if err != nil {
		return err
	}
	logMetrics(logr, "optimization finished", res.Metrics)
	for _, warning := range res.Warnings {
		logr.Warn(warning)
	}
	for _, conflict := range res.Resolution.Unresolved {
		logr.Warn("unresolved conflict",
			zap.String("kind", string(conflict.Kind)),
			zap.String("timeslot", conflict.TimeslotID),
			zap.String("instructor", conflict.InstructorID),
			zap.Strings("projects", conflict.ProjectIDs),
		)
	}

	return opts.writeSchedule(&ds, res, "Defense schedule")
}
