package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/defense-scheduler/internal/models"
)

// DefenseScheduleSlotRepository manages the assignments of saved schedules.
type DefenseScheduleSlotRepository struct {
	db *sqlx.DB
}

// NewDefenseScheduleSlotRepository builds repository.
func NewDefenseScheduleSlotRepository(db *sqlx.DB) *DefenseScheduleSlotRepository {
	return &DefenseScheduleSlotRepository{db: db}
}

func (r *DefenseScheduleSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertBatch stores every slot of a schedule.
func (r *DefenseScheduleSlotRepository) InsertBatch(ctx context.Context, exec sqlx.ExtContext, slots []models.DefenseScheduleSlot) error {
	if len(slots) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `
INSERT INTO defense_schedule_slots (id, defense_schedule_id, project_id, classroom_id, timeslot_id, responsible_id, jury, is_makeup, created_at)
VALUES (:id, :defense_schedule_id, :project_id, :classroom_id, :timeslot_id, :responsible_id, :jury, :is_makeup, :created_at)`

	for i := range slots {
		slot := &slots[i]
		if slot.ID == "" {
			slot.ID = uuid.NewString()
		}
		if slot.CreatedAt.IsZero() {
			slot.CreatedAt = now
		}
		if len(slot.Jury) == 0 {
			slot.Jury = types.JSONText(`[]`)
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, slot); err != nil {
			return fmt.Errorf("insert defense schedule slot: %w", err)
		}
	}
	return nil
}

// ListBySchedule returns slots of a schedule in timeslot order.
func (r *DefenseScheduleSlotRepository) ListBySchedule(ctx context.Context, scheduleID string) ([]models.DefenseScheduleSlot, error) {
	const query = `SELECT s.id, s.defense_schedule_id, s.project_id, s.classroom_id, s.timeslot_id, s.responsible_id, s.jury, s.is_makeup, s.created_at
FROM defense_schedule_slots s
LEFT JOIN defense_timeslots t ON t.id = s.timeslot_id
WHERE s.defense_schedule_id = $1 ORDER BY t.start_time ASC, s.classroom_id ASC`
	var slots []models.DefenseScheduleSlot
	if err := r.db.SelectContext(ctx, &slots, query, scheduleID); err != nil {
		return nil, fmt.Errorf("list defense schedule slots: %w", err)
	}
	return slots, nil
}
