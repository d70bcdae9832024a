package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/defense-scheduler/internal/csvio"
	"github.com/noah-isme/defense-scheduler/internal/models"
	"github.com/noah-isme/defense-scheduler/internal/scheduler"
	"github.com/noah-isme/defense-scheduler/pkg/config"
	"github.com/noah-isme/defense-scheduler/pkg/export"
	"github.com/noah-isme/defense-scheduler/pkg/logger"
)

// inputOptions are the flags shared by every command that runs the engine.
type inputOptions struct {
	paths     csvio.Paths
	delimiter string
	out       string
	pdf       string
	logLevel  string

	seed        int64
	generations int
	population  int
	policy      string
	maxDuration time.Duration
	workers     int
}

func main() {
	root := &cobra.Command{
		Use:           "scheduler",
		Short:         "Thesis defense schedule optimizer",
		Long:          "Builds defense schedules from CSV inputs with the same engine the API uses.\nEngine defaults come from the SCHEDULER_* environment.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newOptimizeCommand(), newBatchCommand(), newTokenCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func (o *inputOptions) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&o.paths.Projects, "projects", "projects.csv", "projects CSV file")
	flags.StringVar(&o.paths.Instructors, "instructors", "instructors.csv", "instructors CSV file")
	flags.StringVar(&o.paths.Classrooms, "classrooms", "classrooms.csv", "classrooms CSV file")
	flags.StringVar(&o.paths.Timeslots, "timeslots", "timeslots.csv", "timeslots CSV file")
	flags.StringVar(&o.delimiter, "delimiter", ",", "CSV field delimiter")
	flags.StringVarP(&o.out, "out", "o", "-", "schedule CSV output file, - for stdout")
	flags.StringVar(&o.pdf, "pdf", "", "also render the schedule as PDF to this file")
	flags.StringVar(&o.logLevel, "log-level", "info", "log level")
	flags.Int64Var(&o.seed, "seed", 0, "random seed, 0 picks one from the clock")
	flags.IntVar(&o.generations, "generations", 0, "override the number of generations")
	flags.IntVar(&o.population, "population", 0, "override the population size")
	flags.StringVar(&o.policy, "policy", "", "coverage policy: coverage_first or conflict_free")
	flags.DurationVar(&o.maxDuration, "max-duration", 0, "stop the search after this long")
	flags.IntVar(&o.workers, "workers", 0, "fitness evaluation workers, 0 for GOMAXPROCS")
}

// engineConfig layers the command line overrides on top of the environment
// settings and validates the result.
func (o *inputOptions) engineConfig(settings config.SchedulerConfig) (scheduler.Config, error) {
	cfg := scheduler.FromSettings(settings)
	if o.seed != 0 {
		cfg.Seed = o.seed
	}
	if o.generations > 0 {
		cfg.Generations = o.generations
	}
	if o.population > 0 {
		cfg.PopulationSize = o.population
	}
	if o.policy != "" {
		cfg.CoveragePolicy = scheduler.CoveragePolicy(o.policy)
	}
	if o.maxDuration > 0 {
		cfg.MaxDuration = o.maxDuration
	}
	if o.workers > 0 {
		cfg.Workers = o.workers
	}
	return cfg, cfg.Validate()
}

// load reads the CSV inputs and builds the engine instance.
func (o *inputOptions) load() (models.DefenseDataset, *scheduler.Instance, error) {
	delim, err := parseDelimiter(o.delimiter)
	if err != nil {
		return models.DefenseDataset{}, nil, err
	}
	ds, err := csvio.LoadDataset(o.paths, delim)
	if err != nil {
		return ds, nil, err
	}
	inst, err := scheduler.NewInstance(ds)
	if err != nil {
		return ds, nil, err
	}
	return ds, inst, nil
}

func parseDelimiter(raw string) (rune, error) {
	if raw == `\t` || raw == "tab" {
		return '\t', nil
	}
	if utf8.RuneCountInString(raw) != 1 {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", raw)
	}
	r, _ := utf8.DecodeRuneInString(raw)
	return r, nil
}

// setup loads configuration, builds the console logger and returns a context
// canceled on SIGINT/SIGTERM so an interrupted run still writes its best
// schedule.
func setup(level string) (*config.Config, *zap.Logger, context.Context, context.CancelFunc, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.NewConsole(level)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return cfg, logr, ctx, stop, nil
}

// writeSchedule renders the result as CSV to o.out and, when requested, as
// PDF to o.pdf.
func (o *inputOptions) writeSchedule(ds *models.DefenseDataset, res *scheduler.Result, title string) error {
	doc := export.Document{
		Title:   title,
		Summary: export.Summary(&res.Metrics, &res.Resolution, res.Warnings),
		Rows:    export.BuildRows(res.Assignments, ds),
	}

	data, err := export.NewCSVExporter().Render(doc)
	if err != nil {
		return fmt.Errorf("render csv: %w", err)
	}
	if err := writeOutput(o.out, data); err != nil {
		return err
	}

	if o.pdf == "" {
		return nil
	}
	pdf, err := export.NewPDFExporter().Render(doc)
	if err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return writeOutput(o.pdf, pdf)
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func logMetrics(logr *zap.Logger, msg string, m models.ScheduleMetrics) {
	logr.Info(msg,
		zap.Int("assigned", m.AssignedProjects),
		zap.Int("total", m.TotalProjects),
		zap.Float64("coverage", m.Coverage),
		zap.Float64("score", m.BestScore),
		zap.Int("generations", m.Generations),
		zap.Int("restarts", m.Restarts),
		zap.Int("unresolved", m.UnresolvedCount),
		zap.String("convergence", m.Convergence),
		zap.Duration("elapsed", m.Elapsed),
	)
}
