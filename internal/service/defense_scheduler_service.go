package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/noah-isme/defense-scheduler/internal/dto"
	"github.com/noah-isme/defense-scheduler/internal/models"
	"github.com/noah-isme/defense-scheduler/internal/scheduler"
	appErrors "github.com/noah-isme/defense-scheduler/pkg/errors"
	"github.com/noah-isme/defense-scheduler/pkg/export"
	"github.com/noah-isme/defense-scheduler/pkg/jobs"
	"github.com/noah-isme/defense-scheduler/pkg/middleware/requestid"
)

// JobTypeOptimize tags asynchronous optimization jobs on the queue.
const JobTypeOptimize = "defense_optimize"

type defenseDataLoader interface {
	LoadDataset(ctx context.Context) (*models.DefenseDataset, error)
}

type defenseScheduleRepository interface {
	CreateVersioned(ctx context.Context, exec sqlx.ExtContext, schedule *models.DefenseSchedule) error
	List(ctx context.Context, filter models.DefenseScheduleFilter) ([]models.DefenseSchedule, error)
	FindByID(ctx context.Context, id string) (*models.DefenseSchedule, error)
	Delete(ctx context.Context, id string) error
}

type defenseScheduleSlotRepository interface {
	InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.DefenseScheduleSlot) error
	ListBySchedule(ctx context.Context, scheduleID string) ([]models.DefenseScheduleSlot, error)
}

// ProposalStore persists unsaved proposals. Missing entries return
// appErrors.ErrCacheMiss.
type ProposalStore interface {
	Save(ctx context.Context, proposal *models.DefenseProposal) error
	Get(ctx context.Context, id string) (*models.DefenseProposal, error)
	Delete(ctx context.Context, id string) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
}

type optimizationRecorder interface {
	ObserveOptimization(metrics *models.ScheduleMetrics, duration time.Duration)
	RecordCacheOperation(hit bool, duration time.Duration)
}

type pdfRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

type csvRenderer interface {
	Render(doc export.Document) ([]byte, error)
}

// DefenseSchedulerConfig governs optimizer defaults and proposal handling.
type DefenseSchedulerConfig struct {
	Engine      scheduler.Config
	ProposalTTL time.Duration
	MaxRetries  int
}

// ExportFile is a rendered schedule ready to be streamed to a client.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// DefenseSchedulerService runs the optimizer, keeps proposals and persists
// saved defense schedules.
type DefenseSchedulerService struct {
	data      defenseDataLoader
	schedules defenseScheduleRepository
	slots     defenseScheduleSlotRepository
	proposals ProposalStore
	tx        txProvider
	queue     jobDispatcher
	metrics   optimizationRecorder
	csv       csvRenderer
	pdf       pdfRenderer
	validator *validator.Validate
	logger    *zap.Logger
	cfg       DefenseSchedulerConfig
}

// NewDefenseSchedulerService wires scheduler dependencies. A nil proposal
// store falls back to an in-memory store with the configured TTL.
func NewDefenseSchedulerService(
	data defenseDataLoader,
	schedules defenseScheduleRepository,
	slots defenseScheduleSlotRepository,
	proposals ProposalStore,
	tx txProvider,
	metrics optimizationRecorder,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg DefenseSchedulerConfig,
) *DefenseSchedulerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ProposalTTL <= 0 {
		cfg.ProposalTTL = 30 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.Engine.PopulationSize == 0 {
		cfg.Engine = scheduler.DefaultConfig()
	}
	if proposals == nil {
		proposals = newMemoryProposalStore(cfg.ProposalTTL)
	}
	return &DefenseSchedulerService{
		data:      data,
		schedules: schedules,
		slots:     slots,
		proposals: proposals,
		tx:        tx,
		metrics:   metrics,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// UseQueue attaches the dispatcher used by Enqueue.
func (s *DefenseSchedulerService) UseQueue(queue jobDispatcher) {
	s.queue = queue
}

// Optimize runs the optimizer synchronously and stores the result as a proposal.
func (s *DefenseSchedulerService) Optimize(ctx context.Context, req dto.OptimizeRequest) (*dto.ProposalResponse, error) {
	dataset, cfg, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	inst, err := scheduler.NewInstance(*dataset)
	if err != nil {
		return nil, err
	}

	proposal := s.newProposal(req.Label, dataset)
	result, err := s.run(ctx, inst, cfg)
	if err != nil {
		return nil, err
	}
	applyResult(proposal, result)

	if err := s.proposals.Save(ctx, proposal); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store proposal")
	}
	return dto.NewProposalResponse(proposal), nil
}

// Enqueue validates the request and schedules the run on the job queue. The
// returned job id doubles as the proposal id.
func (s *DefenseSchedulerService) Enqueue(ctx context.Context, req dto.OptimizeRequest) (*dto.OptimizeJobResponse, error) {
	if s.queue == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "optimization queue unavailable")
	}
	dataset, cfg, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	if _, err := scheduler.NewInstance(*dataset); err != nil {
		return nil, err
	}

	proposal := s.newProposal(req.Label, dataset)
	if err := s.proposals.Save(ctx, proposal); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store proposal")
	}
	if err := s.queue.Enqueue(jobs.Job{ID: proposal.ID, Type: JobTypeOptimize, Payload: cfg}); err != nil {
		proposal.Status = models.ProposalStatusFailed
		proposal.Error = "failed to enqueue job"
		proposal.UpdatedAt = time.Now().UTC()
		_ = s.proposals.Save(ctx, proposal)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enqueue optimization job")
	}
	return &dto.OptimizeJobResponse{JobID: proposal.ID, Status: proposal.Status}, nil
}

// HandleJob processes a queued optimization. Failures are retried by the
// queue until MaxRetries, after which the proposal is marked FAILED.
func (s *DefenseSchedulerService) HandleJob(ctx context.Context, job jobs.Job) error {
	proposal, err := s.proposals.Get(ctx, job.ID)
	if err != nil {
		if appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("optimization job without proposal", zap.String("job_id", job.ID))
			return nil
		}
		return err
	}
	cfg, ok := job.Payload.(scheduler.Config)
	if !ok {
		cfg = s.cfg.Engine
	}
	if proposal.Dataset == nil {
		return s.fail(ctx, proposal, "proposal has no dataset")
	}
	inst, err := scheduler.NewInstance(*proposal.Dataset)
	if err != nil {
		return s.fail(ctx, proposal, err.Error())
	}

	proposal.Status = models.ProposalStatusRunning
	proposal.UpdatedAt = time.Now().UTC()
	if err := s.proposals.Save(ctx, proposal); err != nil {
		return err
	}

	result, err := s.run(ctx, inst, cfg)
	if err != nil {
		if job.Attempt >= s.cfg.MaxRetries || appErrors.Is(err, appErrors.ErrValidation) {
			return s.fail(ctx, proposal, err.Error())
		}
		proposal.Status = models.ProposalStatusPending
		proposal.Error = err.Error()
		proposal.UpdatedAt = time.Now().UTC()
		if saveErr := s.proposals.Save(ctx, proposal); saveErr != nil {
			s.logger.Warn("failed to mark proposal pending", zap.String("job_id", job.ID), zap.Error(saveErr))
		}
		return err
	}
	applyResult(proposal, result)
	if err := s.proposals.Save(ctx, proposal); err != nil {
		s.logger.Warn("failed to store finished proposal", zap.String("job_id", job.ID), zap.Error(err))
		return err
	}
	return nil
}

func (s *DefenseSchedulerService) fail(ctx context.Context, proposal *models.DefenseProposal, msg string) error {
	proposal.Status = models.ProposalStatusFailed
	proposal.Error = msg
	proposal.UpdatedAt = time.Now().UTC()
	if err := s.proposals.Save(ctx, proposal); err != nil {
		s.logger.Warn("failed to mark proposal failed", zap.String("proposal_id", proposal.ID), zap.Error(err))
	}
	return nil
}

// GetProposal returns a stored proposal.
func (s *DefenseSchedulerService) GetProposal(ctx context.Context, id string) (*dto.ProposalResponse, error) {
	proposal, err := s.loadProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	return dto.NewProposalResponse(proposal), nil
}

// Save persists a ready proposal as a new draft version of its label.
func (s *DefenseSchedulerService) Save(ctx context.Context, req dto.SaveDefenseScheduleRequest) (*models.DefenseSchedule, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid save schedule payload")
	}
	proposal, err := s.loadProposal(ctx, req.ProposalID)
	if err != nil {
		return nil, err
	}
	if !proposal.Ready() {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("proposal is %s", strings.ToLower(string(proposal.Status))))
	}
	if proposal.Resolution != nil && proposal.Resolution.HasCritical() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "proposal contains unresolved critical conflicts")
	}
	label := lo.Ternary(req.Label != "", req.Label, proposal.Label)
	if label == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "label is required")
	}
	if s.tx == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "transaction provider missing")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	metaPayload := map[string]any{
		"proposal_id": proposal.ID,
		"generated":   proposal.CreatedAt,
		"metrics":     proposal.Metrics,
		"resolution":  proposal.Resolution,
		"warnings":    proposal.Warnings,
		"algorithm":   "evolutionary_v1",
	}
	metaBytes, marshalErr := json.Marshal(metaPayload)
	if marshalErr != nil {
		err = appErrors.Wrap(marshalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode schedule metadata")
		return nil, err
	}

	record := &models.DefenseSchedule{
		Label:  label,
		Status: models.DefenseScheduleStatusDraft,
		Meta:   types.JSONText(metaBytes),
	}
	if proposal.Metrics != nil {
		record.Score = proposal.Metrics.BestScore
		record.Coverage = proposal.Metrics.Coverage
	}
	if err = s.schedules.CreateVersioned(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create defense schedule")
		return nil, err
	}

	slotModels := make([]models.DefenseScheduleSlot, 0, len(proposal.Assignments))
	for _, assignment := range proposal.Assignments {
		jury, marshalErr := json.Marshal(assignment.JuryIDs)
		if marshalErr != nil {
			err = appErrors.Wrap(marshalErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode jury")
			return nil, err
		}
		slotModels = append(slotModels, models.DefenseScheduleSlot{
			DefenseScheduleID: record.ID,
			ProjectID:         assignment.ProjectID,
			ClassroomID:       assignment.ClassroomID,
			TimeslotID:        assignment.TimeslotID,
			ResponsibleID:     assignment.ResponsibleID,
			Jury:              types.JSONText(jury),
			Makeup:            assignment.Makeup,
		})
	}
	if err = s.slots.InsertBatch(ctx, tx, slotModels); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist defense schedule slots")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit schedule transaction")
		return nil, err
	}

	if deleteErr := s.proposals.Delete(ctx, proposal.ID); deleteErr != nil {
		s.logger.Warn("failed to drop saved proposal", zap.String("proposal_id", proposal.ID), zap.Error(deleteErr))
	}
	return record, nil
}

// List returns stored schedules, newest first.
func (s *DefenseSchedulerService) List(ctx context.Context, query dto.DefenseScheduleQuery) ([]models.DefenseSchedule, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule query")
	}
	list, err := s.schedules.List(ctx, models.DefenseScheduleFilter{
		Label:  query.Label,
		Status: models.DefenseScheduleStatus(query.Status),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list defense schedules")
	}
	return list, nil
}

// GetSlots returns slot detail for a stored schedule.
func (s *DefenseSchedulerService) GetSlots(ctx context.Context, scheduleID string) ([]models.DefenseScheduleSlot, error) {
	if scheduleID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "schedule id is required")
	}
	if _, err := s.findSchedule(ctx, scheduleID); err != nil {
		return nil, err
	}
	slots, err := s.slots.ListBySchedule(ctx, scheduleID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list defense schedule slots")
	}
	return slots, nil
}

// Delete removes a draft schedule version.
func (s *DefenseSchedulerService) Delete(ctx context.Context, scheduleID string) error {
	record, err := s.findSchedule(ctx, scheduleID)
	if err != nil {
		return err
	}
	if record.Status != models.DefenseScheduleStatusDraft {
		return appErrors.Clone(appErrors.ErrConflict, "only draft schedules can be deleted")
	}
	if err := s.schedules.Delete(ctx, scheduleID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "defense schedule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete defense schedule")
	}
	return nil
}

// ExportProposal renders a ready proposal as CSV or PDF.
func (s *DefenseSchedulerService) ExportProposal(ctx context.Context, id string, query dto.ExportQuery) (*ExportFile, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export format")
	}
	proposal, err := s.loadProposal(ctx, id)
	if err != nil {
		return nil, err
	}
	if !proposal.Ready() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "proposal has no schedule to export")
	}

	title := lo.Ternary(proposal.Label != "", "Defense schedule "+proposal.Label, "Defense schedule")
	doc := export.Document{
		Title:   title,
		Summary: export.Summary(proposal.Metrics, proposal.Resolution, proposal.Warnings),
		Rows:    export.BuildRows(proposal.Assignments, proposal.Dataset),
	}
	return s.render(doc, "defense-schedule-"+shortID(proposal.ID), query.Format)
}

func (s *DefenseSchedulerService) render(doc export.Document, basename, format string) (*ExportFile, error) {
	var (
		data        []byte
		err         error
		contentType string
		ext         string
	)
	switch format {
	case "pdf":
		data, err = s.pdf.Render(doc)
		contentType, ext = "application/pdf", "pdf"
	default:
		data, err = s.csv.Render(doc)
		contentType, ext = "text/csv", "csv"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render schedule")
	}
	return &ExportFile{Filename: basename + "." + ext, ContentType: contentType, Data: data}, nil
}

func (s *DefenseSchedulerService) prepare(ctx context.Context, req dto.OptimizeRequest) (*models.DefenseDataset, scheduler.Config, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, scheduler.Config{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid optimization payload")
	}
	cfg, err := s.buildConfig(req.Options)
	if err != nil {
		return nil, scheduler.Config{}, err
	}
	if req.Dataset != nil {
		return req.Dataset, cfg, nil
	}
	if s.data == nil {
		return nil, scheduler.Config{}, appErrors.Clone(appErrors.ErrInvalidInput, "dataset is required")
	}
	dataset, err := s.data.LoadDataset(ctx)
	if err != nil {
		return nil, scheduler.Config{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load defense data")
	}
	return dataset, cfg, nil
}

// buildConfig applies request overrides on top of the configured defaults.
func (s *DefenseSchedulerService) buildConfig(opts dto.OptimizeOptions) (scheduler.Config, error) {
	cfg := s.cfg.Engine
	if opts.PopulationSize != nil {
		cfg.PopulationSize = *opts.PopulationSize
	}
	if opts.Generations != nil {
		cfg.Generations = *opts.Generations
	}
	if opts.MutationRate != nil {
		cfg.MutationRate = *opts.MutationRate
	}
	if opts.CrossoverRate != nil {
		cfg.CrossoverRate = *opts.CrossoverRate
	}
	if opts.EliteCount != nil {
		cfg.EliteCount = *opts.EliteCount
	}
	if opts.Selection != nil {
		cfg.Selection = *opts.Selection
	}
	if opts.Crossover != nil {
		cfg.Crossover = *opts.Crossover
	}
	if opts.CoveragePolicy != nil {
		cfg.CoveragePolicy = scheduler.CoveragePolicy(*opts.CoveragePolicy)
	}
	if opts.EnableLocalSearch != nil {
		cfg.EnableLocalSearch = *opts.EnableLocalSearch
	}
	if opts.EnableGapFilling != nil {
		cfg.EnableGapFilling = *opts.EnableGapFilling
	}
	if opts.EnableEarlyShift != nil {
		cfg.EnableEarlyShift = *opts.EnableEarlyShift
	}
	if opts.MaxDurationSeconds != nil {
		cfg.MaxDuration = time.Duration(*opts.MaxDurationSeconds) * time.Second
	}
	if opts.Seed != nil {
		cfg.Seed = *opts.Seed
	}
	if err := cfg.Validate(); err != nil {
		return scheduler.Config{}, err
	}
	return cfg, nil
}

func (s *DefenseSchedulerService) run(ctx context.Context, inst *scheduler.Instance, cfg scheduler.Config) (*scheduler.Result, error) {
	logger := s.logger
	if reqID := requestid.FromContext(ctx); reqID != "" {
		logger = logger.With(zap.String("request_id", reqID))
	}
	started := time.Now()
	result, err := scheduler.Optimize(ctx, inst, cfg, scheduler.WithLogger(logger))
	if s.metrics != nil {
		if err != nil {
			s.metrics.ObserveOptimization(nil, time.Since(started))
		} else {
			s.metrics.ObserveOptimization(&result.Metrics, time.Since(started))
		}
	}
	if err != nil {
		logger.Warn("optimization failed", zap.Error(err))
		return nil, err
	}
	return result, nil
}

func (s *DefenseSchedulerService) loadProposal(ctx context.Context, id string) (*models.DefenseProposal, error) {
	if id == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "proposal id is required")
	}
	started := time.Now()
	proposal, err := s.proposals.Get(ctx, id)
	if s.metrics != nil {
		s.metrics.RecordCacheOperation(err == nil, time.Since(started))
	}
	if err != nil {
		if appErrors.Is(err, appErrors.ErrCacheMiss) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "proposal not found or expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load proposal")
	}
	return proposal, nil
}

func (s *DefenseSchedulerService) findSchedule(ctx context.Context, id string) (*models.DefenseSchedule, error) {
	record, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "defense schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load defense schedule")
	}
	return record, nil
}

func (s *DefenseSchedulerService) newProposal(label string, dataset *models.DefenseDataset) *models.DefenseProposal {
	now := time.Now().UTC()
	return &models.DefenseProposal{
		ID:        uuid.NewString(),
		Label:     label,
		Status:    models.ProposalStatusPending,
		Dataset:   dataset,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func applyResult(proposal *models.DefenseProposal, result *scheduler.Result) {
	metrics := result.Metrics
	resolution := result.Resolution
	proposal.Status = models.ProposalStatusReady
	proposal.Assignments = result.Assignments
	proposal.Metrics = &metrics
	proposal.Resolution = &resolution
	proposal.Warnings = result.Warnings
	proposal.Error = ""
	proposal.UpdatedAt = time.Now().UTC()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
