package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/defense-scheduler/internal/models"
)

func newDefenseRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestDefenseDataRepositoryLoadDataset(t *testing.T) {
	db, mock, cleanup := newDefenseRepoMock(t)
	defer cleanup()
	repo := NewDefenseDataRepository(db)
	start := time.Date(2024, time.June, 3, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, title, type, responsible_id, is_makeup FROM defense_projects ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "type", "responsible_id", "is_makeup"}).
			AddRow("p1", "Graph Coloring", "final", "i1", false))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, category FROM instructors ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "category"}).AddRow("i1", "Ada", "faculty"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, capacity FROM classrooms ORDER BY id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "capacity"}).AddRow("r1", "Lab A", 30))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, start_time, end_time, capacity FROM defense_timeslots ORDER BY start_time, id")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "start_time", "end_time", "capacity"}).
			AddRow("t1", start, start.Add(50*time.Minute), 0))

	ds, err := repo.LoadDataset(context.Background())
	require.NoError(t, err)
	require.Len(t, ds.Projects, 1)
	assert.Equal(t, models.ProjectTypeFinal, ds.Projects[0].Type)
	assert.Equal(t, "Ada", ds.Instructors[0].Name)
	assert.Equal(t, 30, ds.Classrooms[0].Capacity)
	assert.Equal(t, start, ds.Timeslots[0].StartTime)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDefenseDataRepositoryLoadDatasetError(t *testing.T) {
	db, mock, cleanup := newDefenseRepoMock(t)
	defer cleanup()
	repo := NewDefenseDataRepository(db)

	mock.ExpectQuery("FROM defense_projects").WillReturnError(errors.New("boom"))

	_, err := repo.LoadDataset(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list defense projects")
}
