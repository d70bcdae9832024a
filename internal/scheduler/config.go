package scheduler

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/defense-scheduler/pkg/config"
	appErrors "github.com/noah-isme/defense-scheduler/pkg/errors"
)

// CoveragePolicy decides what happens to projects that no construction
// strategy could place without double-booking an instructor.
type CoveragePolicy string

const (
	// CoverageFirst force-places leftovers into the first free cell and
	// leaves the instructor conflict to the resolver.
	CoverageFirst CoveragePolicy = "coverage_first"
	// ConflictFree leaves leftovers unassigned.
	ConflictFree CoveragePolicy = "conflict_free"
)

// Selection and crossover strategy names.
const (
	SelectionTournament  = "tournament"
	SelectionRoulette    = "roulette"
	CrossoverUniform     = "uniform"
	CrossoverSinglePoint = "single_point"
)

// StrategyMix holds the relative share of each construction strategy.
type StrategyMix struct {
	Paired float64 `json:"paired" validate:"gte=0"`
	Greedy float64 `json:"greedy" validate:"gte=0"`
	Random float64 `json:"random" validate:"gte=0"`
}

// Config enumerates every option recognised by the engine.
type Config struct {
	PopulationSize           int            `json:"population_size" validate:"gte=2"`
	Generations              int            `json:"generations" validate:"gte=1"`
	MutationRate             float64        `json:"mutation_rate" validate:"gte=0,lte=1"`
	CrossoverRate            float64        `json:"crossover_rate" validate:"gte=0,lte=1"`
	MinMutationRate          float64        `json:"min_mutation_rate" validate:"gte=0,lte=1"`
	MaxMutationRate          float64        `json:"max_mutation_rate" validate:"gte=0,lte=1"`
	MinCrossoverRate         float64        `json:"min_crossover_rate" validate:"gte=0,lte=1"`
	MaxCrossoverRate         float64        `json:"max_crossover_rate" validate:"gte=0,lte=1"`
	EliteCount               int            `json:"elite_count" validate:"gte=0"`
	TournamentSize           int            `json:"tournament_size" validate:"gte=2"`
	DiversityThreshold       float64        `json:"diversity_threshold" validate:"gte=0,lte=1"`
	InjectionFraction        float64        `json:"injection_fraction" validate:"gt=0,lte=1"`
	StagnationThreshold      int            `json:"stagnation_threshold" validate:"gte=1"`
	MaxRestarts              int            `json:"max_restarts" validate:"gte=0"`
	RestartKeepFraction      float64        `json:"restart_keep_fraction" validate:"gt=0,lt=1"`
	CoolingStart             float64        `json:"cooling_start" validate:"gte=0,lte=1"`
	CoolingFactor            float64        `json:"cooling_factor" validate:"gt=0,lte=1"`
	LocalSearchInterval      int            `json:"local_search_interval" validate:"gte=1"`
	LocalSearchTries         int            `json:"local_search_tries" validate:"gte=1"`
	Mix                      StrategyMix    `json:"mix"`
	Selection                string         `json:"selection" validate:"oneof=tournament roulette"`
	Crossover                string         `json:"crossover" validate:"oneof=uniform single_point"`
	CoveragePolicy           CoveragePolicy `json:"coverage_policy" validate:"oneof=coverage_first conflict_free"`
	EnableLocalSearch        bool           `json:"enable_local_search"`
	EnableGapFilling         bool           `json:"enable_gap_filling"`
	EnableEarlyShift         bool           `json:"enable_early_shift"`
	MaxCompactionIterations  int            `json:"max_compaction_iterations" validate:"gte=0"`
	CoverageWarningThreshold float64        `json:"coverage_warning_threshold" validate:"gte=0,lte=1"`
	Workers                  int            `json:"workers" validate:"gte=0"`
	MaxDuration              time.Duration  `json:"max_duration" validate:"gte=0"`
	Seed                     int64          `json:"seed"`
}

var configValidator = validator.New()

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		PopulationSize:           60,
		Generations:              120,
		MutationRate:             0.2,
		CrossoverRate:            0.8,
		MinMutationRate:          0.05,
		MaxMutationRate:          0.6,
		MinCrossoverRate:         0.4,
		MaxCrossoverRate:         0.95,
		EliteCount:               4,
		TournamentSize:           4,
		DiversityThreshold:       0.15,
		InjectionFraction:        0.3,
		StagnationThreshold:      8,
		MaxRestarts:              2,
		RestartKeepFraction:      0.2,
		CoolingStart:             0.8,
		CoolingFactor:            0.95,
		LocalSearchInterval:      5,
		LocalSearchTries:         12,
		Mix:                      StrategyMix{Paired: 0.4, Greedy: 0.3, Random: 0.3},
		Selection:                SelectionTournament,
		Crossover:                CrossoverUniform,
		CoveragePolicy:           CoverageFirst,
		EnableLocalSearch:        true,
		EnableGapFilling:         true,
		EnableEarlyShift:         true,
		MaxCompactionIterations:  20,
		CoverageWarningThreshold: 0.95,
	}
}

// Validate checks the configuration once before a run starts.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid optimizer configuration")
	}
	if c.EliteCount >= c.PopulationSize {
		return appErrors.Clone(appErrors.ErrValidation, "elite_count must be smaller than population_size")
	}
	if c.MinMutationRate > c.MaxMutationRate || c.MutationRate < c.MinMutationRate || c.MutationRate > c.MaxMutationRate {
		return appErrors.Clone(appErrors.ErrValidation, "mutation_rate must lie within [min_mutation_rate, max_mutation_rate]")
	}
	if c.MinCrossoverRate > c.MaxCrossoverRate || c.CrossoverRate < c.MinCrossoverRate || c.CrossoverRate > c.MaxCrossoverRate {
		return appErrors.Clone(appErrors.ErrValidation, "crossover_rate must lie within [min_crossover_rate, max_crossover_rate]")
	}
	if mixWeight(c.Mix.Paired)+mixWeight(c.Mix.Greedy)+mixWeight(c.Mix.Random) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("strategy mix %+v selects no strategy", c.Mix))
	}
	return nil
}

// FromSettings maps the environment-driven scheduler settings onto an engine
// configuration, keeping defaults for anything left unset.
func FromSettings(s config.SchedulerConfig) Config {
	cfg := DefaultConfig()
	if s.PopulationSize > 0 {
		cfg.PopulationSize = s.PopulationSize
	}
	if s.Generations > 0 {
		cfg.Generations = s.Generations
	}
	if s.MutationRate > 0 {
		cfg.MutationRate = s.MutationRate
	}
	if s.CrossoverRate > 0 {
		cfg.CrossoverRate = s.CrossoverRate
	}
	if s.EliteCount > 0 {
		cfg.EliteCount = s.EliteCount
	}
	if s.TournamentSize > 0 {
		cfg.TournamentSize = s.TournamentSize
	}
	if s.DiversityThreshold > 0 {
		cfg.DiversityThreshold = s.DiversityThreshold
	}
	if s.StagnationThreshold > 0 {
		cfg.StagnationThreshold = s.StagnationThreshold
	}
	if s.MaxRestarts >= 0 {
		cfg.MaxRestarts = s.MaxRestarts
	}
	if s.MixPaired+s.MixGreedy+s.MixRandom > 0 {
		cfg.Mix = StrategyMix{Paired: s.MixPaired, Greedy: s.MixGreedy, Random: s.MixRandom}
	}
	if s.Selection != "" {
		cfg.Selection = s.Selection
	}
	if s.Crossover != "" {
		cfg.Crossover = s.Crossover
	}
	if s.CoveragePolicy != "" {
		cfg.CoveragePolicy = CoveragePolicy(s.CoveragePolicy)
	}
	if s.CoverageWarningThreshold > 0 {
		cfg.CoverageWarningThreshold = s.CoverageWarningThreshold
	}
	cfg.EnableLocalSearch = s.EnableLocalSearch
	cfg.EnableGapFilling = s.EnableGapFilling
	cfg.EnableEarlyShift = s.EnableEarlyShift
	cfg.Workers = s.Workers
	cfg.MaxDuration = s.MaxDuration
	return cfg
}

func mixWeight(ratio float64) int {
	if ratio <= 0 {
		return 0
	}
	return int(ratio*1000 + 0.5)
}
