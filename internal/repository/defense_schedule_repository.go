package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/defense-scheduler/internal/models"
)

const defenseScheduleColumns = "id, label, version, status, score, coverage, meta, created_at, updated_at"

// DefenseScheduleRepository persists versioned defense schedules.
type DefenseScheduleRepository struct {
	db *sqlx.DB
}

// NewDefenseScheduleRepository constructs repository.
func NewDefenseScheduleRepository(db *sqlx.DB) *DefenseScheduleRepository {
	return &DefenseScheduleRepository{db: db}
}

func (r *DefenseScheduleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// CreateVersioned inserts a schedule assigning the next version for its label.
func (r *DefenseScheduleRepository) CreateVersioned(ctx context.Context, exec sqlx.ExtContext, schedule *models.DefenseSchedule) error {
	if schedule == nil {
		return fmt.Errorf("schedule payload is nil")
	}
	if schedule.Label == "" {
		return fmt.Errorf("label is required")
	}
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	if schedule.Status == "" {
		schedule.Status = models.DefenseScheduleStatusDraft
	}
	if len(schedule.Meta) == 0 {
		schedule.Meta = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if schedule.CreatedAt.IsZero() {
		schedule.CreatedAt = now
	}
	schedule.UpdatedAt = now

	target := r.exec(exec)

	const nextVersionQuery = `SELECT COALESCE(MAX(version), 0) + 1 FROM defense_schedules WHERE label = $1`
	if err := sqlx.GetContext(ctx, target, &schedule.Version, nextVersionQuery, schedule.Label); err != nil {
		return fmt.Errorf("compute next defense schedule version: %w", err)
	}

	const insertQuery = `
INSERT INTO defense_schedules (id, label, version, status, score, coverage, meta, created_at, updated_at)
VALUES (:id, :label, :version, :status, :score, :coverage, :meta, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, target, insertQuery, schedule); err != nil {
		return fmt.Errorf("insert defense schedule: %w", err)
	}
	return nil
}

// List returns stored schedules, newest first.
func (r *DefenseScheduleRepository) List(ctx context.Context, filter models.DefenseScheduleFilter) ([]models.DefenseSchedule, error) {
	var conditions []string
	var args []interface{}
	if filter.Label != "" {
		args = append(args, filter.Label)
		conditions = append(conditions, fmt.Sprintf("label = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	query := "SELECT " + defenseScheduleColumns + " FROM defense_schedules"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC, version DESC"

	var schedules []models.DefenseSchedule
	if err := r.db.SelectContext(ctx, &schedules, query, args...); err != nil {
		return nil, fmt.Errorf("list defense schedules: %w", err)
	}
	return schedules, nil
}

// FindByID loads a schedule by its identifier.
func (r *DefenseScheduleRepository) FindByID(ctx context.Context, id string) (*models.DefenseSchedule, error) {
	query := "SELECT " + defenseScheduleColumns + " FROM defense_schedules WHERE id = $1"
	var schedule models.DefenseSchedule
	if err := r.db.GetContext(ctx, &schedule, query, id); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// Delete removes a stored schedule version. Slots go with it through the
// foreign key cascade.
func (r *DefenseScheduleRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM defense_schedules WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete defense schedule: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("defense schedule rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
