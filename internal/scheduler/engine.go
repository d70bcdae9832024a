package scheduler

import (
	"context"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"github.com/mroth/weightedrand/v2"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	appErrors "github.com/noah-isme/defense-scheduler/pkg/errors"
)

// RunResult captures the outcome of one evolutionary run.
type RunResult struct {
	Best                    *Candidate
	BestScore               float64
	BestHistory             []float64
	DiversityHistory        []float64
	InitialDiversity        float64
	FinalDiversity          float64
	Generations             int
	Injections              int
	Restarts                int
	LocalSearchImprovements int
	Trend                   Trend
	Canceled                bool
	TerminatedEarly         bool
	MutationRate            float64
	CrossoverRate           float64
	Weights                 Weights
}

// Engine runs the generational search over one instance. An engine owns its
// population, RNG and learning state; independent engines share nothing
// mutable and may run in parallel.
type Engine struct {
	inst      *Instance
	cfg       Config
	gen       *Generator
	eval      *Evaluator
	learning  *LearningState
	selection SelectionStrategy
	crossover CrossoverStrategy
	mutations *weightedrand.Chooser[MutationStrategy, int]
	rng       *rand.Rand
	workers   int
	logger    *zap.Logger
	seed      []*Candidate
}

// Option customises an engine.
type Option func(*Engine)

// WithLogger routes engine logs to l.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithInitialPopulation seeds the first generation instead of generating it.
// The candidates are copied; missing slots are filled by the generator.
func WithInitialPopulation(pop []*Candidate) Option {
	return func(e *Engine) { e.seed = pop }
}

// WithLearningState starts from a copy of an existing learning state. The
// engine never mutates s, so one state may seed several parallel runs.
func WithLearningState(s *LearningState) Option {
	return func(e *Engine) {
		if s != nil {
			e.learning = s.Clone()
		}
	}
}

// WithSelection overrides the configured selection strategy.
func WithSelection(s SelectionStrategy) Option {
	return func(e *Engine) {
		if s != nil {
			e.selection = s
		}
	}
}

// WithCrossover overrides the configured crossover strategy.
func WithCrossover(c CrossoverStrategy) Option {
	return func(e *Engine) {
		if c != nil {
			e.crossover = c
		}
	}
}

// WithMutations replaces the mutation operators and their pick weights.
func WithMutations(choices ...weightedrand.Choice[MutationStrategy, int]) Option {
	return func(e *Engine) {
		if chooser, err := weightedrand.NewChooser(choices...); err == nil {
			e.mutations = chooser
		}
	}
}

// NewEngine validates the configuration and wires the strategies.
func NewEngine(inst *Instance, cfg Config, opts ...Option) (*Engine, error) {
	if inst == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "optimization instance is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	generator, err := NewGenerator(inst, cfg.Mix, cfg.CoveragePolicy)
	if err != nil {
		return nil, err
	}
	selection, err := selectionByName(cfg.Selection)
	if err != nil {
		return nil, err
	}
	crossover, err := crossoverByName(cfg.Crossover)
	if err != nil {
		return nil, err
	}
	mutations, err := weightedrand.NewChooser(DefaultMutations()...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build mutation operators")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	e := &Engine{
		inst:      inst,
		cfg:       cfg,
		gen:       generator,
		eval:      NewEvaluator(inst),
		learning:  NewLearningState(DefaultWeights()),
		selection: selection,
		crossover: crossover,
		mutations: mutations,
		rng:       rand.New(rand.NewSource(seed)),
		workers:   workers,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Learning exposes the engine's learning state.
func (e *Engine) Learning() *LearningState { return e.learning }

// Evaluator exposes the engine's fitness evaluator.
func (e *Engine) Evaluator() *Evaluator { return e.eval }

// Run executes the generational loop until the budget is spent, the run
// converges for good, or ctx is done. The deadline is checked once per
// generation; a canceled run still returns its best candidate.
func (e *Engine) Run(ctx context.Context) (*RunResult, error) {
	if e.cfg.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.MaxDuration)
		defer cancel()
	}

	pop := e.initialPopulation()
	res := &RunResult{
		BestScore:        FloorScore,
		InitialDiversity: e.diversity(pop),
	}
	mutation, crossover := e.cfg.MutationRate, e.cfg.CrossoverRate
	lastImprove := 0
	monitor := &convergenceMonitor{}

generations:
	for gen := 0; gen < e.cfg.Generations; gen++ {
		if ctx.Err() != nil {
			res.Canceled = true
			e.logger.Info("optimization canceled", zap.Int("generation", gen))
			break
		}

		e.evaluate(pop)
		improved := e.track(res, pop)
		res.BestHistory = append(res.BestHistory, res.BestScore)
		res.Generations = gen + 1

		if improved {
			lastImprove = gen
		}
		mutation, crossover = e.adaptRates(mutation, crossover, gen-lastImprove, gen)

		div := e.diversity(pop)
		if div < e.cfg.DiversityThreshold || degenerate(pop) {
			e.inject(pop)
			res.Injections++
			e.evaluate(pop)
			improved = e.track(res, pop) || improved
			div = e.diversity(pop)
			e.logger.Debug("diversity injection", zap.Int("generation", gen), zap.Float64("diversity", div))
		}
		res.DiversityHistory = append(res.DiversityHistory, div)

		monitor.observe(pop[0].Score, div)
		res.Trend = monitor.classify(gen, e.cfg.Generations, gen-lastImprove, e.cfg)
		var restarted bool
		mutation, restarted = e.handleTrend(res, pop, mutation)
		if res.TerminatedEarly {
			e.logger.Debug("converged, stopping early", zap.Int("generation", gen))
			break generations
		}
		if restarted {
			lastImprove = gen
			monitor.reset()
			e.evaluate(pop)
			improved = e.track(res, pop) || improved
			e.logger.Debug("population restart", zap.Int("generation", gen), zap.String("trend", string(res.Trend)))
		}

		if e.cfg.EnableLocalSearch && (gen+1)%e.cfg.LocalSearchInterval == 0 {
			res.LocalSearchImprovements += e.localSearch(pop)
			sortByScore(pop)
			if e.track(res, pop) {
				improved = true
				lastImprove = gen
			}
		}

		// weights move at most once per generation and stay fixed while it runs
		if improved {
			e.learn(res.Best)
		}
		pop = e.reproduce(pop, mutation, crossover, div)
	}

	e.evaluate(pop)
	e.track(res, pop)
	if len(res.BestHistory) == 0 || res.BestHistory[len(res.BestHistory)-1] != res.BestScore {
		res.BestHistory = append(res.BestHistory, res.BestScore)
	}
	res.FinalDiversity = e.diversity(pop)
	res.MutationRate, res.CrossoverRate = mutation, crossover
	res.Weights = e.learning.Weights
	return res, nil
}

// initialPopulation copies the seed population, topping it up with fresh
// candidates, or generates one from scratch.
func (e *Engine) initialPopulation() []*Candidate {
	pop := make([]*Candidate, 0, e.cfg.PopulationSize)
	for _, c := range e.seed {
		if c == nil || len(pop) == e.cfg.PopulationSize {
			continue
		}
		clone := c.Clone()
		clone.invalidate()
		pop = append(pop, clone)
	}
	for len(pop) < e.cfg.PopulationSize {
		pop = append(pop, e.gen.Generate(e.rng))
	}
	return pop
}

// evaluate scores stale candidates in parallel and sorts the population,
// best first. Only the learning state is shared and it is read-only here.
func (e *Engine) evaluate(pop []*Candidate) {
	version := e.learning.Version()
	p := pool.New().WithMaxGoroutines(e.workers)
	for _, c := range pop {
		if c.scored && c.version == version {
			continue
		}
		p.Go(func() {
			c.Score = e.eval.Score(c, e.learning)
			c.scored, c.version = true, version
		})
	}
	p.Wait()
	sortByScore(pop)
}

func (e *Engine) score(c *Candidate) {
	c.Score = e.eval.Score(c, e.learning)
	c.scored, c.version = true, e.learning.Version()
}

// track promotes the population's best to best-ever when it beats it. The
// best-ever score never decreases.
func (e *Engine) track(res *RunResult, pop []*Candidate) bool {
	if len(pop) == 0 || (res.Best != nil && pop[0].Score <= res.BestScore) {
		return false
	}
	res.Best = pop[0].Clone()
	res.BestScore = pop[0].Score
	return true
}

// learn feeds a new best candidate to the learning state.
func (e *Engine) learn(best *Candidate) {
	if best == nil {
		return
	}
	e.learning.Learn(e.eval.Breakdown(best, e.learning))
	e.learning.Remember(best)
}

// handleTrend restarts a premature or converged population while restarts
// remain and boosts mutation. A converged run with no restarts left is
// marked as terminated early.
func (e *Engine) handleTrend(res *RunResult, pop []*Candidate, mutation float64) (float64, bool) {
	if res.Trend != TrendPremature && res.Trend != TrendConverged {
		return mutation, false
	}
	if res.Restarts < e.cfg.MaxRestarts {
		e.restart(pop)
		res.Restarts++
		return min(e.cfg.MaxMutationRate, mutation*1.5), true
	}
	if res.Trend == TrendConverged {
		res.TerminatedEarly = true
	}
	return mutation, false
}

// adaptRates explores when stuck and exploits after recent gains, then
// cools mutation during the last part of the run.
func (e *Engine) adaptRates(mutation, crossover float64, stagnation, gen int) (float64, float64) {
	switch {
	case stagnation > e.cfg.StagnationThreshold:
		mutation *= 1.2
		crossover *= 0.95
	case stagnation <= 1:
		mutation *= 0.9
		crossover *= 1.02
	}
	if float64(gen) >= e.cfg.CoolingStart*float64(e.cfg.Generations) {
		mutation *= e.cfg.CoolingFactor
	}
	mutation = clamp(mutation, e.cfg.MinMutationRate, e.cfg.MaxMutationRate)
	crossover = clamp(crossover, e.cfg.MinCrossoverRate, e.cfg.MaxCrossoverRate)
	return mutation, crossover
}

func (e *Engine) diversity(pop []*Candidate) float64 {
	return Diversity(pop, e.inst.NumProjects(), e.rng)
}

// inject replaces the worst fraction of a sorted population with fresh candidates.
func (e *Engine) inject(pop []*Candidate) {
	count := max(1, int(float64(len(pop))*e.cfg.InjectionFraction+0.5))
	count = min(count, len(pop)-min(e.cfg.EliteCount, len(pop)-1))
	for idx := len(pop) - count; idx < len(pop); idx++ {
		pop[idx] = e.gen.Generate(e.rng)
	}
}

// restart keeps the top fraction and regenerates everything else.
func (e *Engine) restart(pop []*Candidate) {
	keep := max(1, int(float64(len(pop))*e.cfg.RestartKeepFraction))
	for idx := keep; idx < len(pop); idx++ {
		pop[idx] = e.gen.Generate(e.rng)
	}
}

// reproduce builds the next generation from a sorted population: elites
// carry over unchanged, the rest are bred from cloned parents.
func (e *Engine) reproduce(pop []*Candidate, mutation, crossover, div float64) []*Candidate {
	next := make([]*Candidate, 0, len(pop))
	next = append(next, pop[:min(e.cfg.EliteCount, len(pop))]...)

	pressure := e.cfg.TournamentSize
	if div < 2*e.cfg.DiversityThreshold {
		pressure = max(2, pressure-1)
	}
	for len(next) < len(pop) {
		a := e.selection.Select(pop, pressure, e.rng)
		var child *Candidate
		if e.rng.Float64() < crossover {
			b := e.selection.Select(pop, pressure, e.rng)
			child = e.crossover.Cross(a, b, e.inst, e.rng)
		} else {
			child = a.Clone()
			child.Origin = "clone"
		}
		if e.rng.Float64() < mutation {
			e.mutations.PickSource(e.rng).Mutate(child, e.inst, e.rng)
		}
		child.invalidate()
		next = append(next, child)
	}
	return next
}

func sortByScore(pop []*Candidate) {
	sort.SliceStable(pop, func(i, j int) bool { return pop[i].Score > pop[j].Score })
}

// degenerate reports whether every candidate sits at the floor score.
func degenerate(pop []*Candidate) bool {
	for _, c := range pop {
		if c.Score > FloorScore {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}
