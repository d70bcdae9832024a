package scheduler

import (
	"context"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/defense-scheduler/internal/models"
	appErrors "github.com/noah-isme/defense-scheduler/pkg/errors"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "defaults", mutate: func(*Config) {}, ok: true},
		{name: "tiny population", mutate: func(c *Config) { c.PopulationSize = 1 }},
		{name: "elites fill population", mutate: func(c *Config) { c.EliteCount = c.PopulationSize }},
		{name: "mutation outside bounds", mutate: func(c *Config) { c.MutationRate = 0.9 }},
		{name: "crossover outside bounds", mutate: func(c *Config) { c.CrossoverRate = 0.1 }},
		{name: "empty mix", mutate: func(c *Config) { c.Mix = StrategyMix{} }},
		{name: "unknown selection", mutate: func(c *Config) { c.Selection = "rank" }},
		{name: "unknown policy", mutate: func(c *Config) { c.CoveragePolicy = "maybe" }},
		{name: "roulette single point", mutate: func(c *Config) {
			c.Selection = SelectionRoulette
			c.Crossover = CrossoverSinglePoint
		}, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
		})
	}
}

func TestNewEngineRejectsMissingInstance(t *testing.T) {
	_, err := NewEngine(nil, DefaultConfig())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidInput))
}

func TestEngineBestScoreNeverDecreases(t *testing.T) {
	inst := mustInstance(t, scenarioDataset())
	engine, err := NewEngine(inst, testConfig(7))
	require.NoError(t, err)

	res, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Best)
	require.NotEmpty(t, res.BestHistory)
	for idx := 1; idx < len(res.BestHistory); idx++ {
		assert.GreaterOrEqual(t, res.BestHistory[idx], res.BestHistory[idx-1], "generation %d", idx)
	}
	assert.Equal(t, res.BestScore, res.BestHistory[len(res.BestHistory)-1])
	assert.LessOrEqual(t, res.Generations, 40)
	assert.GreaterOrEqual(t, res.MutationRate, engine.cfg.MinMutationRate)
	assert.LessOrEqual(t, res.MutationRate, engine.cfg.MaxMutationRate)
	assertCandidateInvariants(t, inst, res.Best)
}

func TestEngineInjectsDiversityIntoIdenticalPopulation(t *testing.T) {
	inst := mustInstance(t, scenarioDataset())
	gen, err := NewGenerator(inst, DefaultConfig().Mix, CoverageFirst)
	require.NoError(t, err)
	seed := gen.Generate(rand.New(rand.NewSource(1)))
	pop := make([]*Candidate, 20)
	for idx := range pop {
		pop[idx] = seed.Clone()
	}

	cfg := testConfig(3)
	cfg.PopulationSize = 20
	cfg.Generations = 5
	engine, err := NewEngine(inst, cfg, WithInitialPopulation(pop))
	require.NoError(t, err)

	res, err := engine.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.InitialDiversity)
	assert.GreaterOrEqual(t, res.Injections, 1)
	assert.Greater(t, res.FinalDiversity, res.InitialDiversity)
}

func TestEngineCanceledRunStillReturnsBest(t *testing.T) {
	inst := mustInstance(t, scenarioDataset())
	engine, err := NewEngine(inst, testConfig(5))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := engine.Run(ctx)
	require.NoError(t, err)
	assert.True(t, res.Canceled)
	assert.Zero(t, res.Generations)
	require.NotNil(t, res.Best)
	assert.Positive(t, res.Best.Coverage())
}

func TestOptimizeScenario(t *testing.T) {
	ds := scenarioDataset()
	inst := mustInstance(t, ds)

	result, err := Optimize(context.Background(), inst, testConfig(11))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.GreaterOrEqual(t, result.Metrics.AssignedProjects, 9)
	assert.Equal(t, 10, result.Metrics.TotalProjects)
	assert.Len(t, result.Assignments, result.Metrics.AssignedProjects)
	for _, cf := range result.Resolution.Unresolved {
		assert.NotEqual(t, models.SeverityCritical, cf.Severity, "critical conflict left: %+v", cf)
	}
	assertCandidateInvariants(t, inst, result.Schedule)

	incomplete := make(map[string]bool)
	for _, cf := range result.Resolution.Unresolved {
		if cf.Kind == models.ConflictJuryIncomplete {
			for _, id := range cf.ProjectIDs {
				incomplete[id] = true
			}
		}
	}
	finals := make(map[string]bool)
	for _, p := range ds.Projects {
		finals[p.ID] = p.IsFinal()
	}
	for _, record := range result.Assignments {
		if finals[record.ProjectID] && !incomplete[record.ProjectID] {
			assert.GreaterOrEqual(t, len(record.JuryIDs), 2, "final project %s", record.ProjectID)
		}
		assert.Equal(t, record.ResponsibleID, record.JuryIDs[0])
	}
	for i := range result.Assignments {
		for j := i + 1; j < len(result.Assignments); j++ {
			a, b := result.Assignments[i], result.Assignments[j]
			if a.TimeslotID == b.TimeslotID && len(result.Resolution.Unresolved) == 0 {
				assert.NotEqual(t, a.ClassroomID, b.ClassroomID)
			}
		}
	}
}

func TestOptimizeIsReproducibleForFixedSeed(t *testing.T) {
	inst := mustInstance(t, scenarioDataset())
	cfg := testConfig(21)
	cfg.Generations = 15

	first, err := Optimize(context.Background(), inst, cfg)
	require.NoError(t, err)
	second, err := Optimize(context.Background(), inst, cfg)
	require.NoError(t, err)
	assert.Equal(t, first.Assignments, second.Assignments)
	assert.Equal(t, first.Metrics.BestScore, second.Metrics.BestScore)
}

func TestOptimizeWarnsOnLowCoverage(t *testing.T) {
	// four projects but only two cells
	inst := mustInstance(t, buildDataset(4, 0, 4, 1, 2))
	cfg := testConfig(2)
	cfg.Generations = 10

	result, err := Optimize(context.Background(), inst, cfg)
	require.NoError(t, err)
	assert.Less(t, result.Metrics.Coverage, cfg.CoverageWarningThreshold)
	require.NotEmpty(t, result.Warnings)
	assert.True(t, strings.HasPrefix(result.Warnings[0], "coverage"))
}

func TestOptimizeWarnsWhenCanceled(t *testing.T) {
	inst := mustInstance(t, scenarioDataset())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := Optimize(ctx, inst, testConfig(4))
	require.NoError(t, err)
	assert.True(t, result.Metrics.Canceled)
	found := false
	for _, w := range result.Warnings {
		found = found || strings.Contains(w, "stopped after 0")
	}
	assert.True(t, found, "warnings: %v", result.Warnings)
}

func TestRunBatchPicksBestTrial(t *testing.T) {
	inst := mustInstance(t, scenarioDataset())
	cfg := testConfig(5)
	cfg.Generations = 10

	batch, err := RunBatch(context.Background(), inst, SeededConfigs(cfg, 3), 2)
	require.NoError(t, err)
	require.Len(t, batch.Trials, 3)
	require.NotNil(t, batch.Best)
	for idx, trial := range batch.Trials {
		require.NoError(t, trial.Err)
		assert.Equal(t, int64(5+idx), trial.Seed)
		assert.LessOrEqual(t, trial.Result.Metrics.AssignedProjects, batch.Best.Result.Metrics.AssignedProjects)
	}
}

func TestRunBatchReportsInvalidConfig(t *testing.T) {
	inst := mustInstance(t, scenarioDataset())
	cfg := testConfig(1)
	cfg.PopulationSize = 1

	batch, err := RunBatch(context.Background(), inst, []Config{cfg}, 1)
	require.Error(t, err)
	assert.Nil(t, batch.Best)
}

func TestDiversityOfIdenticalAndDistinctCandidates(t *testing.T) {
	a := candidateOf(assignment(0, 0, 0, 0), assignment(1, 1, 0, 1))
	b := candidateOf(assignment(0, 0, 0, 2), assignment(1, 1, 0, 3))

	assert.Zero(t, Diversity([]*Candidate{a, a.Clone()}, 2, nil))
	assert.InDelta(t, 1.0, Diversity([]*Candidate{a, b}, 2, nil), 1e-9)
	assert.InDelta(t, 0.5, Diversity([]*Candidate{a, candidateOf(assignment(0, 0, 0, 0))}, 2, nil), 1e-9)
}

func TestConvergenceMonitorClassifies(t *testing.T) {
	cfg := DefaultConfig()
	m := &convergenceMonitor{}
	for i := 0; i < convergenceWindow; i++ {
		m.observe(10, 0.01)
	}
	assert.Equal(t, TrendPremature, m.classify(10, 120, 2*cfg.StagnationThreshold, cfg))
	assert.Equal(t, TrendConverged, m.classify(100, 120, 2*cfg.StagnationThreshold, cfg))
	assert.Equal(t, TrendPlateau, m.classify(100, 120, 1, cfg))

	m.reset()
	assert.Equal(t, TrendExploring, m.classify(100, 120, 0, cfg))
	for i := 0; i < convergenceWindow; i++ {
		m.observe(float64(i), 0.9)
	}
	assert.Equal(t, TrendExploring, m.classify(100, 120, 0, cfg))
}

func TestEngineLearnsAtMostOncePerGeneration(t *testing.T) {
	inst := mustInstance(t, scenarioDataset())
	cfg := testConfig(7)
	cfg.Generations = 10
	engine, err := NewEngine(inst, cfg)
	require.NoError(t, err)

	res, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 10, res.Generations)
	updates := engine.Learning().Updates()
	assert.GreaterOrEqual(t, updates, 1, "the first generation always finds a best")
	assert.LessOrEqual(t, updates, res.Generations)
	assert.LessOrEqual(t, engine.Learning().Version(), 2*res.Generations)
}

func TestAdaptRates(t *testing.T) {
	engine, err := NewEngine(mustInstance(t, scenarioDataset()), testConfig(1))
	require.NoError(t, err)
	cfg := engine.cfg
	stuck := cfg.StagnationThreshold + 1
	late := int(cfg.CoolingStart*float64(cfg.Generations)) + 1

	tests := []struct {
		name          string
		mutation      float64
		crossover     float64
		stagnation    int
		gen           int
		wantMutation  float64
		wantCrossover float64
	}{
		{name: "stagnation explores", mutation: 0.2, crossover: 0.8, stagnation: stuck, gen: 5, wantMutation: 0.24, wantCrossover: 0.76},
		{name: "recent gain exploits", mutation: 0.2, crossover: 0.8, stagnation: 0, gen: 5, wantMutation: 0.18, wantCrossover: 0.816},
		{name: "steady keeps rates", mutation: 0.2, crossover: 0.8, stagnation: 3, gen: 5, wantMutation: 0.2, wantCrossover: 0.8},
		{name: "cooling late in run", mutation: 0.2, crossover: 0.8, stagnation: 3, gen: late, wantMutation: 0.2 * cfg.CoolingFactor, wantCrossover: 0.8},
		{name: "clamped at upper mutation bound", mutation: cfg.MaxMutationRate, crossover: cfg.MinCrossoverRate, stagnation: stuck, gen: 5, wantMutation: cfg.MaxMutationRate, wantCrossover: cfg.MinCrossoverRate},
		{name: "clamped at lower mutation bound", mutation: cfg.MinMutationRate, crossover: cfg.MaxCrossoverRate, stagnation: 0, gen: late, wantMutation: cfg.MinMutationRate, wantCrossover: cfg.MaxCrossoverRate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mutation, crossover := engine.adaptRates(tt.mutation, tt.crossover, tt.stagnation, tt.gen)
			assert.InDelta(t, tt.wantMutation, mutation, 1e-9)
			assert.InDelta(t, tt.wantCrossover, crossover, 1e-9)
		})
	}
}

func TestLocalSearchNeverLowersTopScores(t *testing.T) {
	inst := mustInstance(t, scenarioDataset())
	engine, err := NewEngine(inst, testConfig(7))
	require.NoError(t, err)

	pop := engine.initialPopulation()
	engine.evaluate(pop)
	// new weights after evaluation leave every stored score stale
	engine.learn(pop[0])

	top := max(1, len(pop)/10)
	fresh := make([]float64, top)
	for idx := 0; idx < top; idx++ {
		fresh[idx] = engine.eval.Score(pop[idx], engine.learning)
	}

	improved := engine.localSearch(pop)
	assert.GreaterOrEqual(t, improved, 0)
	for idx := 0; idx < top; idx++ {
		c := pop[idx]
		assert.GreaterOrEqual(t, c.Score, fresh[idx]-1e-9, "candidate %d", idx)
		assert.InDelta(t, engine.eval.Score(c, engine.learning), c.Score, 1e-9, "candidate %d", idx)
		assert.Equal(t, engine.learning.Version(), c.version)
		assertCandidateInvariants(t, inst, c)
	}
}

func TestHandleTrendRestartsWithinBudget(t *testing.T) {
	cfg := testConfig(5)
	cfg.MaxRestarts = 1
	engine, err := NewEngine(mustInstance(t, scenarioDataset()), cfg)
	require.NoError(t, err)

	pop := engine.initialPopulation()
	engine.evaluate(pop)
	original := make(map[*Candidate]bool, len(pop))
	for _, c := range pop {
		original[c] = true
	}
	keep := max(1, int(float64(len(pop))*cfg.RestartKeepFraction))
	kept := append([]*Candidate(nil), pop[:keep]...)

	res := &RunResult{Trend: TrendPlateau}
	mutation, restarted := engine.handleTrend(res, pop, 0.2)
	assert.False(t, restarted)
	assert.InDelta(t, 0.2, mutation, 1e-9)

	res.Trend = TrendPremature
	mutation, restarted = engine.handleTrend(res, pop, 0.2)
	require.True(t, restarted)
	assert.Equal(t, 1, res.Restarts)
	assert.InDelta(t, 0.3, mutation, 1e-9)
	for idx, c := range kept {
		assert.Same(t, c, pop[idx], "top fraction survives a restart")
	}
	for idx := keep; idx < len(pop); idx++ {
		assert.False(t, original[pop[idx]], "candidate %d should be regenerated", idx)
	}

	mutation, restarted = engine.handleTrend(res, pop, 0.3)
	assert.False(t, restarted, "restart budget is spent")
	assert.Equal(t, 1, res.Restarts)
	assert.InDelta(t, 0.3, mutation, 1e-9)
	assert.False(t, res.TerminatedEarly, "a premature run keeps searching")

	res.Trend = TrendConverged
	_, restarted = engine.handleTrend(res, pop, 0.3)
	assert.False(t, restarted)
	assert.True(t, res.TerminatedEarly)
}

func TestEngineRestartsStayWithinBudget(t *testing.T) {
	for _, restarts := range []int{0, 1, 2} {
		cfg := testConfig(13)
		cfg.StagnationThreshold = 1
		cfg.DiversityThreshold = 1
		cfg.MaxRestarts = restarts
		engine, err := NewEngine(mustInstance(t, scenarioDataset()), cfg)
		require.NoError(t, err)

		res, err := engine.Run(context.Background())
		require.NoError(t, err)
		assert.LessOrEqual(t, res.Restarts, restarts)
		if res.TerminatedEarly {
			assert.Equal(t, restarts, res.Restarts, "early stop only after every restart is used")
			assert.Equal(t, TrendConverged, res.Trend)
		}
		require.NotNil(t, res.Best)
	}
}

func TestWithLearningStateCopiesState(t *testing.T) {
	inst := mustInstance(t, scenarioDataset())
	shared := NewLearningState(DefaultWeights())
	cfg := testConfig(9)
	cfg.Generations = 4

	engine, err := NewEngine(inst, cfg, WithLearningState(shared))
	require.NoError(t, err)
	assert.NotSame(t, shared, engine.Learning())
	_, err = engine.Run(context.Background())
	require.NoError(t, err)
	assert.Positive(t, engine.Learning().Updates())

	batch, err := RunBatch(context.Background(), inst, SeededConfigs(cfg, 3), 3, WithLearningState(shared))
	require.NoError(t, err)
	require.NotNil(t, batch.Best)
	assert.Zero(t, shared.Updates(), "seed state is never mutated")
	assert.Zero(t, shared.Version())
	assert.Equal(t, DefaultWeights(), shared.Weights)
}
