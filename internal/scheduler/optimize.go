package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/defense-scheduler/internal/models"
	appErrors "github.com/noah-isme/defense-scheduler/pkg/errors"
)

// Result is a deliverable schedule with its metrics and resolution report.
type Result struct {
	Assignments []models.AssignmentRecord
	Metrics     models.ScheduleMetrics
	Resolution  models.ResolutionSummary
	Warnings    []string
	Schedule    *Candidate
	Run         *RunResult
}

// Optimize runs the engine, repairs its best candidate and reports metrics.
// Low coverage and cancellation surface as warnings; only invalid input and
// an empty outcome are errors.
func Optimize(ctx context.Context, inst *Instance, cfg Config, opts ...Option) (*Result, error) {
	started := time.Now()
	engine, err := NewEngine(inst, cfg, opts...)
	if err != nil {
		return nil, err
	}
	run, err := engine.Run(ctx)
	if err != nil {
		return nil, err
	}

	resolver := NewResolver(inst, cfg, engine.logger)
	final, resolution := resolver.Resolve(run.Best)
	if final.Coverage() == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoSolution, "optimizer produced no assignments")
	}

	metrics := ComputeMetrics(inst, final, run.Weights, time.Since(started))
	metrics.BestScore = run.BestScore
	metrics.Generations = run.Generations
	metrics.Restarts = run.Restarts
	metrics.Injections = run.Injections
	metrics.Convergence = string(run.Trend)
	metrics.Canceled = run.Canceled
	metrics.UnresolvedCount = len(resolution.Unresolved) + len(resolution.JuryFailures)

	result := &Result{
		Assignments: Records(inst, final),
		Metrics:     metrics,
		Resolution:  summarize(inst, resolution),
		Schedule:    final,
		Run:         run,
	}
	if metrics.Coverage < cfg.CoverageWarningThreshold {
		result.Warnings = append(result.Warnings, fmt.Sprintf("coverage %.1f%% is below the %.1f%% threshold (%d of %d projects assigned)",
			metrics.Coverage*100, cfg.CoverageWarningThreshold*100, metrics.AssignedProjects, metrics.TotalProjects))
	}
	if run.Canceled {
		result.Warnings = append(result.Warnings, fmt.Sprintf("optimization stopped after %d of %d generations", run.Generations, cfg.Generations))
	}
	if n := metrics.UnresolvedCount; n > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d conflicts could not be resolved", n))
	}

	engine.logger.Info("optimization finished",
		zap.Int("generations", run.Generations),
		zap.Float64("best_score", run.BestScore),
		zap.Float64("coverage", metrics.Coverage),
		zap.Int("restarts", run.Restarts),
		zap.Int("injections", run.Injections),
		zap.Int("unresolved", metrics.UnresolvedCount),
		zap.Duration("elapsed", metrics.Elapsed),
	)
	return result, nil
}

func summarize(inst *Instance, res Resolution) models.ResolutionSummary {
	summary := models.ResolutionSummary{
		Detected:   len(res.Conflicts),
		Conflicts:  ConflictRecords(inst, res.Conflicts),
		Unresolved: ConflictRecords(inst, append(append([]Conflict(nil), res.Unresolved...), res.JuryFailures...)),
		GapMoves:   res.GapMoves,
		EarlyMoves: res.EarlyMoves,
		RolledBack: res.RolledBack,
	}
	summary.Resolved = summary.Detected - len(res.Unresolved)
	return summary
}
