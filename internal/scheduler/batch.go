package scheduler

import (
	"context"

	"github.com/alitto/pond"
)

// Trial is the outcome of one run in a batch.
type Trial struct {
	Index  int
	Seed   int64
	Result *Result
	Err    error
}

// BatchResult holds every trial and the best successful one.
type BatchResult struct {
	Trials []Trial
	Best   *Trial
}

// RunBatch executes independent runs on a worker pool. Each trial gets its
// own engine, population, RNG and learning state; only the immutable
// instance is shared. Every opt is applied to every trial, and
// WithLearningState copies its state per engine.
func RunBatch(ctx context.Context, inst *Instance, cfgs []Config, workers int, opts ...Option) (*BatchResult, error) {
	if len(cfgs) == 0 {
		return &BatchResult{}, nil
	}
	if workers <= 0 {
		workers = len(cfgs)
	}
	workerPool := pond.New(workers, len(cfgs))
	defer workerPool.StopAndWait()

	trials := make([]Trial, len(cfgs))
	group := workerPool.Group()
	for idx, cfg := range cfgs {
		group.Submit(func() {
			result, err := Optimize(ctx, inst, cfg, opts...)
			trials[idx] = Trial{Index: idx, Seed: cfg.Seed, Result: result, Err: err}
		})
	}
	group.Wait()

	out := &BatchResult{Trials: trials}
	var firstErr error
	for idx := range trials {
		trial := &trials[idx]
		if trial.Err != nil {
			if firstErr == nil {
				firstErr = trial.Err
			}
			continue
		}
		if out.Best == nil || betterTrial(trial.Result, out.Best.Result) {
			out.Best = trial
		}
	}
	if out.Best == nil {
		return out, firstErr
	}
	return out, nil
}

// betterTrial prefers coverage, then fewer unresolved conflicts, then score.
func betterTrial(a, b *Result) bool {
	if a.Metrics.AssignedProjects != b.Metrics.AssignedProjects {
		return a.Metrics.AssignedProjects > b.Metrics.AssignedProjects
	}
	if a.Metrics.UnresolvedCount != b.Metrics.UnresolvedCount {
		return a.Metrics.UnresolvedCount < b.Metrics.UnresolvedCount
	}
	return a.Metrics.BestScore > b.Metrics.BestScore
}

// SeededConfigs returns n copies of cfg with consecutive seeds.
func SeededConfigs(cfg Config, n int) []Config {
	base := cfg.Seed
	if base == 0 {
		base = 1
	}
	out := make([]Config, n)
	for idx := range out {
		out[idx] = cfg
		out[idx].Seed = base + int64(idx)
	}
	return out
}
