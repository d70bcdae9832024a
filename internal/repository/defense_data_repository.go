package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/defense-scheduler/internal/models"
)

// DefenseDataRepository reads the optimization inputs from the defense tables.
type DefenseDataRepository struct {
	db *sqlx.DB
}

// NewDefenseDataRepository constructs the repository.
func NewDefenseDataRepository(db *sqlx.DB) *DefenseDataRepository {
	return &DefenseDataRepository{db: db}
}

// LoadDataset returns every project, instructor, classroom and timeslot.
func (r *DefenseDataRepository) LoadDataset(ctx context.Context) (*models.DefenseDataset, error) {
	ds := &models.DefenseDataset{}

	const projectsQuery = `SELECT id, title, type, responsible_id, is_makeup FROM defense_projects ORDER BY id`
	if err := r.db.SelectContext(ctx, &ds.Projects, projectsQuery); err != nil {
		return nil, fmt.Errorf("list defense projects: %w", err)
	}

	const instructorsQuery = `SELECT id, name, category FROM instructors ORDER BY id`
	if err := r.db.SelectContext(ctx, &ds.Instructors, instructorsQuery); err != nil {
		return nil, fmt.Errorf("list instructors: %w", err)
	}

	const classroomsQuery = `SELECT id, name, capacity FROM classrooms ORDER BY id`
	if err := r.db.SelectContext(ctx, &ds.Classrooms, classroomsQuery); err != nil {
		return nil, fmt.Errorf("list classrooms: %w", err)
	}

	const timeslotsQuery = `SELECT id, start_time, end_time, capacity FROM defense_timeslots ORDER BY start_time, id`
	if err := r.db.SelectContext(ctx, &ds.Timeslots, timeslotsQuery); err != nil {
		return nil, fmt.Errorf("list defense timeslots: %w", err)
	}

	return ds, nil
}
