package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/defense-scheduler/internal/dto"
	"github.com/noah-isme/defense-scheduler/internal/models"
	"github.com/noah-isme/defense-scheduler/internal/scheduler"
	appErrors "github.com/noah-isme/defense-scheduler/pkg/errors"
	"github.com/noah-isme/defense-scheduler/pkg/jobs"
)

func TestDefenseSchedulerServiceOptimizeInlineDataset(t *testing.T) {
	recorder := &recorderStub{}
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{metrics: recorder})

	resp, err := svc.Optimize(context.Background(), dto.OptimizeRequest{
		Label:   "2026-odd",
		Dataset: sampleDefenseDataset(),
		Options: smallRunOptions(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusReady, resp.Status)
	assert.NotEmpty(t, resp.ProposalID)
	assert.NotEmpty(t, resp.Assignments)
	require.NotNil(t, resp.Metrics)
	assert.Equal(t, 4, resp.Metrics.TotalProjects)
	assert.Equal(t, 1, recorder.runs)
	assert.Equal(t, 0, recorder.failures)

	stored, err := svc.GetProposal(context.Background(), resp.ProposalID)
	require.NoError(t, err)
	assert.Equal(t, "2026-odd", stored.Label)
	assert.Equal(t, len(resp.Assignments), len(stored.Assignments))
	assert.Equal(t, 1, recorder.hits)
}

func TestDefenseSchedulerServiceOptimizeLoadsDatasetFromRepository(t *testing.T) {
	loader := &dataLoaderStub{dataset: sampleDefenseDataset()}
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{data: loader})

	resp, err := svc.Optimize(context.Background(), dto.OptimizeRequest{Options: smallRunOptions()})
	require.NoError(t, err)
	assert.Equal(t, 1, loader.calls)
	assert.Equal(t, models.ProposalStatusReady, resp.Status)
}

func TestDefenseSchedulerServiceOptimizeDataLoadFailure(t *testing.T) {
	loader := &dataLoaderStub{err: errors.New("db down")}
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{data: loader})

	_, err := svc.Optimize(context.Background(), dto.OptimizeRequest{Options: smallRunOptions()})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}

func TestDefenseSchedulerServiceOptimizeRejectsInvalidOptions(t *testing.T) {
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{})
	population := 1

	_, err := svc.Optimize(context.Background(), dto.OptimizeRequest{
		Dataset: sampleDefenseDataset(),
		Options: dto.OptimizeOptions{PopulationSize: &population},
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestDefenseSchedulerServiceOptimizeRejectsEliteOverPopulation(t *testing.T) {
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{})
	population, elite := 4, 4

	_, err := svc.Optimize(context.Background(), dto.OptimizeRequest{
		Dataset: sampleDefenseDataset(),
		Options: dto.OptimizeOptions{PopulationSize: &population, EliteCount: &elite},
	})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestDefenseSchedulerServiceOptimizeRejectsUnknownResponsible(t *testing.T) {
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{})
	dataset := sampleDefenseDataset()
	dataset.Projects[0].ResponsibleID = "ghost"

	_, err := svc.Optimize(context.Background(), dto.OptimizeRequest{Dataset: dataset, Options: smallRunOptions()})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInvalidInput))
}

func TestDefenseSchedulerServiceEnqueueAndHandleJob(t *testing.T) {
	queue := &queueStub{}
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{})
	svc.UseQueue(queue)

	resp, err := svc.Enqueue(context.Background(), dto.OptimizeRequest{
		Label:   "async",
		Dataset: sampleDefenseDataset(),
		Options: smallRunOptions(),
	})
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusPending, resp.Status)
	require.Len(t, queue.jobs, 1)
	assert.Equal(t, resp.JobID, queue.jobs[0].ID)
	assert.Equal(t, JobTypeOptimize, queue.jobs[0].Type)

	pending, err := svc.GetProposal(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusPending, pending.Status)

	require.NoError(t, svc.HandleJob(context.Background(), queue.jobs[0]))

	done, err := svc.GetProposal(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusReady, done.Status)
	assert.NotEmpty(t, done.Assignments)
}

func TestDefenseSchedulerServiceEnqueueWithoutQueue(t *testing.T) {
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{})

	_, err := svc.Enqueue(context.Background(), dto.OptimizeRequest{Dataset: sampleDefenseDataset()})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
}

func TestDefenseSchedulerServiceEnqueueFailureMarksProposalFailed(t *testing.T) {
	queue := &queueStub{err: errors.New("queue stopped")}
	store := newMemoryProposalStore(time.Minute)
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{store: store})
	svc.UseQueue(queue)

	_, err := svc.Enqueue(context.Background(), dto.OptimizeRequest{Dataset: sampleDefenseDataset()})
	require.Error(t, err)
	require.Len(t, store.items, 1)
	for _, item := range store.items {
		assert.Equal(t, models.ProposalStatusFailed, item.Status)
	}
}

func TestDefenseSchedulerServiceHandleJobMarksInvalidDatasetFailed(t *testing.T) {
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{})
	proposal := &models.DefenseProposal{
		ID:        "job-1",
		Status:    models.ProposalStatusPending,
		Dataset:   &models.DefenseDataset{},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, svc.proposals.Save(context.Background(), proposal))

	require.NoError(t, svc.HandleJob(context.Background(), jobs.Job{ID: "job-1", Type: JobTypeOptimize}))

	stored, err := svc.GetProposal(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.ProposalStatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "no projects")
}

func TestDefenseSchedulerServiceHandleJobIgnoresExpiredProposal(t *testing.T) {
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{})
	assert.NoError(t, svc.HandleJob(context.Background(), jobs.Job{ID: "missing"}))
}

func TestDefenseSchedulerServiceSaveDraft(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	schedules := &defenseScheduleRepoStub{}
	slots := &defenseSlotRepoStub{}
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{tx: txProvider, schedules: schedules, slots: slots})
	storeProposal(t, svc, readyProposal("prop-1"))

	mock.ExpectBegin()
	mock.ExpectCommit()

	record, err := svc.Save(context.Background(), dto.SaveDefenseScheduleRequest{ProposalID: "prop-1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, "sched-1", record.ID)
	assert.Equal(t, "2026-odd", record.Label)
	assert.Equal(t, models.DefenseScheduleStatusDraft, record.Status)
	assert.Equal(t, 0.5, record.Coverage)
	assert.Equal(t, 42.0, record.Score)

	var meta map[string]any
	require.NoError(t, json.Unmarshal(record.Meta, &meta))
	assert.Equal(t, "prop-1", meta["proposal_id"])

	require.Len(t, slots.inserted, 2)
	assert.Equal(t, "sched-1", slots.inserted[0].DefenseScheduleID)
	var jury []string
	require.NoError(t, json.Unmarshal(slots.inserted[0].Jury, &jury))
	assert.Equal(t, []string{"i0", "i1"}, jury)

	_, err = svc.GetProposal(context.Background(), "prop-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestDefenseSchedulerServiceSaveUsesRequestLabel(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{tx: txProvider})
	proposal := readyProposal("prop-1")
	proposal.Label = ""
	storeProposal(t, svc, proposal)

	_, err := svc.Save(context.Background(), dto.SaveDefenseScheduleRequest{ProposalID: "prop-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))

	mock.ExpectBegin()
	mock.ExpectCommit()
	record, err := svc.Save(context.Background(), dto.SaveDefenseScheduleRequest{ProposalID: "prop-1", Label: "final-week"})
	require.NoError(t, err)
	assert.Equal(t, "final-week", record.Label)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDefenseSchedulerServiceSaveRejectsCriticalConflicts(t *testing.T) {
	txProvider, _ := newTxProviderMock(t)
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{tx: txProvider})
	proposal := readyProposal("prop-1")
	proposal.Resolution.Unresolved = []models.ConflictRecord{{
		Kind:     models.ConflictInstructorDoubleAssignment,
		Severity: models.SeverityCritical,
	}}
	storeProposal(t, svc, proposal)

	_, err := svc.Save(context.Background(), dto.SaveDefenseScheduleRequest{ProposalID: "prop-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestDefenseSchedulerServiceSaveRejectsPendingProposal(t *testing.T) {
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{})
	proposal := readyProposal("prop-1")
	proposal.Status = models.ProposalStatusRunning
	storeProposal(t, svc, proposal)

	_, err := svc.Save(context.Background(), dto.SaveDefenseScheduleRequest{ProposalID: "prop-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))
	assert.Contains(t, err.Error(), "running")
}

func TestDefenseSchedulerServiceSaveUnknownProposal(t *testing.T) {
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{})

	_, err := svc.Save(context.Background(), dto.SaveDefenseScheduleRequest{ProposalID: "nope"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestDefenseSchedulerServiceSaveRollsBackOnSlotFailure(t *testing.T) {
	txProvider, mock := newTxProviderMock(t)
	slots := &defenseSlotRepoStub{err: errors.New("insert failed")}
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{tx: txProvider, slots: slots})
	storeProposal(t, svc, readyProposal("prop-1"))

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.Save(context.Background(), dto.SaveDefenseScheduleRequest{ProposalID: "prop-1"})
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInternal))
	require.NoError(t, mock.ExpectationsWereMet())

	_, err = svc.GetProposal(context.Background(), "prop-1")
	assert.NoError(t, err)
}

func TestDefenseSchedulerServiceList(t *testing.T) {
	schedules := &defenseScheduleRepoStub{list: []models.DefenseSchedule{{ID: "sched-1", Label: "odd"}}}
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{schedules: schedules})

	list, err := svc.List(context.Background(), dto.DefenseScheduleQuery{Label: "odd", Status: "DRAFT"})
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, models.DefenseScheduleFilter{Label: "odd", Status: models.DefenseScheduleStatusDraft}, schedules.lastFilter)

	_, err = svc.List(context.Background(), dto.DefenseScheduleQuery{Status: "LOST"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestDefenseSchedulerServiceGetSlots(t *testing.T) {
	schedules := &defenseScheduleRepoStub{records: map[string]*models.DefenseSchedule{
		"sched-1": {ID: "sched-1", Status: models.DefenseScheduleStatusDraft},
	}}
	slots := &defenseSlotRepoStub{list: []models.DefenseScheduleSlot{{ID: "slot-1", DefenseScheduleID: "sched-1"}}}
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{schedules: schedules, slots: slots})

	items, err := svc.GetSlots(context.Background(), "sched-1")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = svc.GetSlots(context.Background(), "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestDefenseSchedulerServiceDelete(t *testing.T) {
	schedules := &defenseScheduleRepoStub{records: map[string]*models.DefenseSchedule{
		"draft":     {ID: "draft", Status: models.DefenseScheduleStatusDraft},
		"published": {ID: "published", Status: models.DefenseScheduleStatusPublished},
	}}
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{schedules: schedules})

	require.NoError(t, svc.Delete(context.Background(), "draft"))
	assert.Equal(t, []string{"draft"}, schedules.deleted)

	err := svc.Delete(context.Background(), "published")
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	err = svc.Delete(context.Background(), "missing")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestDefenseSchedulerServiceExportProposal(t *testing.T) {
	svc := newDefenseServiceFixture(t, defenseFixtureConfig{})
	storeProposal(t, svc, readyProposal("prop-12345678-abc"))

	file, err := svc.ExportProposal(context.Background(), "prop-12345678-abc", dto.ExportQuery{Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, "text/csv", file.ContentType)
	assert.Equal(t, "defense-schedule-prop-123.csv", file.Filename)
	assert.True(t, strings.HasPrefix(string(file.Data), "start,"))
	assert.Contains(t, string(file.Data), "Thesis A")

	pdf, err := svc.ExportProposal(context.Background(), "prop-12345678-abc", dto.ExportQuery{Format: "pdf"})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", pdf.ContentType)
	assert.True(t, strings.HasPrefix(string(pdf.Data), "%PDF"))

	_, err = svc.ExportProposal(context.Background(), "prop-12345678-abc", dto.ExportQuery{Format: "xlsx"})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestMemoryProposalStoreExpires(t *testing.T) {
	store := newMemoryProposalStore(time.Minute)
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	require.NoError(t, store.Save(context.Background(), &models.DefenseProposal{ID: "p", UpdatedAt: now}))

	_, err := store.Get(context.Background(), "p")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = store.Get(context.Background(), "p")
	assert.True(t, appErrors.Is(err, appErrors.ErrCacheMiss))
	assert.Empty(t, store.items)

	assert.Error(t, store.Save(context.Background(), &models.DefenseProposal{}))
}

// --- fixtures ---

type defenseFixtureConfig struct {
	data      defenseDataLoader
	schedules *defenseScheduleRepoStub
	slots     *defenseSlotRepoStub
	store     ProposalStore
	tx        txProvider
	metrics   optimizationRecorder
}

func newDefenseServiceFixture(t *testing.T, cfg defenseFixtureConfig) *DefenseSchedulerService {
	t.Helper()
	if cfg.schedules == nil {
		cfg.schedules = &defenseScheduleRepoStub{}
	}
	if cfg.slots == nil {
		cfg.slots = &defenseSlotRepoStub{}
	}
	engine := scheduler.DefaultConfig()
	engine.PopulationSize = 12
	engine.Generations = 6
	engine.Seed = 7
	return NewDefenseSchedulerService(
		cfg.data,
		cfg.schedules,
		cfg.slots,
		cfg.store,
		cfg.tx,
		cfg.metrics,
		nil,
		zap.NewNop(),
		DefenseSchedulerConfig{Engine: engine, ProposalTTL: time.Minute},
	)
}

func smallRunOptions() dto.OptimizeOptions {
	population, generations := 10, 5
	seed := int64(3)
	return dto.OptimizeOptions{PopulationSize: &population, Generations: &generations, Seed: &seed}
}

func sampleDefenseDataset() *models.DefenseDataset {
	base := time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)
	ds := &models.DefenseDataset{
		Projects: []models.Project{
			{ID: "p0", Title: "Thesis A", Type: models.ProjectTypeFinal, ResponsibleID: "i0"},
			{ID: "p1", Title: "Thesis B", Type: models.ProjectTypeFinal, ResponsibleID: "i1"},
			{ID: "p2", Title: "Design C", Type: models.ProjectTypeMidterm, ResponsibleID: "i0"},
			{ID: "p3", Title: "Design D", Type: models.ProjectTypeMidterm, ResponsibleID: "i2", Makeup: true},
		},
		Instructors: []models.Instructor{
			{ID: "i0", Name: "Ayu", Category: models.InstructorCategoryFaculty},
			{ID: "i1", Name: "Budi", Category: models.InstructorCategoryFaculty},
			{ID: "i2", Name: "Citra", Category: models.InstructorCategoryAssistant},
		},
		Classrooms: []models.Classroom{{ID: "r0", Name: "D-101"}, {ID: "r1", Name: "D-102"}},
	}
	for idx := 0; idx < 3; idx++ {
		start := base.Add(time.Duration(idx) * time.Hour)
		ds.Timeslots = append(ds.Timeslots, models.Timeslot{ID: fmt.Sprintf("t%d", idx), StartTime: start, EndTime: start.Add(50 * time.Minute)})
	}
	return ds
}

func readyProposal(id string) *models.DefenseProposal {
	now := time.Now().UTC()
	return &models.DefenseProposal{
		ID:     id,
		Label:  "2026-odd",
		Status: models.ProposalStatusReady,
		Assignments: []models.AssignmentRecord{
			{ProjectID: "p0", ClassroomID: "r0", TimeslotID: "t0", ResponsibleID: "i0", JuryIDs: []string{"i0", "i1"}},
			{ProjectID: "p2", ClassroomID: "r0", TimeslotID: "t1", ResponsibleID: "i0", JuryIDs: []string{"i0"}},
		},
		Metrics:    &models.ScheduleMetrics{Coverage: 0.5, AssignedProjects: 2, TotalProjects: 4, BestScore: 42},
		Resolution: &models.ResolutionSummary{},
		Dataset:    sampleDefenseDataset(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func storeProposal(t *testing.T, svc *DefenseSchedulerService, proposal *models.DefenseProposal) {
	t.Helper()
	require.NoError(t, svc.proposals.Save(context.Background(), proposal))
}

type dataLoaderStub struct {
	dataset *models.DefenseDataset
	err     error
	calls   int
}

func (s *dataLoaderStub) LoadDataset(context.Context) (*models.DefenseDataset, error) {
	s.calls++
	return s.dataset, s.err
}

type defenseScheduleRepoStub struct {
	records    map[string]*models.DefenseSchedule
	list       []models.DefenseSchedule
	lastFilter models.DefenseScheduleFilter
	deleted    []string
	created    int
}

func (s *defenseScheduleRepoStub) CreateVersioned(_ context.Context, _ sqlx.ExtContext, schedule *models.DefenseSchedule) error {
	s.created++
	schedule.ID = fmt.Sprintf("sched-%d", s.created)
	schedule.Version = s.created
	return nil
}

func (s *defenseScheduleRepoStub) List(_ context.Context, filter models.DefenseScheduleFilter) ([]models.DefenseSchedule, error) {
	s.lastFilter = filter
	return s.list, nil
}

func (s *defenseScheduleRepoStub) FindByID(_ context.Context, id string) (*models.DefenseSchedule, error) {
	if record, ok := s.records[id]; ok {
		return record, nil
	}
	return nil, sql.ErrNoRows
}

func (s *defenseScheduleRepoStub) Delete(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

type defenseSlotRepoStub struct {
	inserted []models.DefenseScheduleSlot
	list     []models.DefenseScheduleSlot
	err      error
}

func (s *defenseSlotRepoStub) InsertBatch(_ context.Context, _ sqlx.ExtContext, slots []models.DefenseScheduleSlot) error {
	if s.err != nil {
		return s.err
	}
	s.inserted = append(s.inserted, slots...)
	return nil
}

func (s *defenseSlotRepoStub) ListBySchedule(context.Context, string) ([]models.DefenseScheduleSlot, error) {
	return s.list, nil
}

type queueStub struct {
	jobs []jobs.Job
	err  error
}

func (q *queueStub) Enqueue(job jobs.Job) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

type recorderStub struct {
	runs     int
	failures int
	hits     int
	misses   int
}

func (r *recorderStub) ObserveOptimization(metrics *models.ScheduleMetrics, _ time.Duration) {
	r.runs++
	if metrics == nil {
		r.failures++
	}
}

func (r *recorderStub) RecordCacheOperation(hit bool, _ time.Duration) {
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}
