package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// DefenseScheduleStatus represents lifecycle phases for saved schedules.
type DefenseScheduleStatus string

const (
	DefenseScheduleStatusDraft     DefenseScheduleStatus = "DRAFT"
	DefenseScheduleStatusPublished DefenseScheduleStatus = "PUBLISHED"
	DefenseScheduleStatusArchived  DefenseScheduleStatus = "ARCHIVED"
)

// DefenseSchedule is a versioned, persisted optimization result.
type DefenseSchedule struct {
	ID        string                `db:"id" json:"id"`
	Label     string                `db:"label" json:"label"`
	Version   int                   `db:"version" json:"version"`
	Status    DefenseScheduleStatus `db:"status" json:"status"`
	Score     float64               `db:"score" json:"score"`
	Coverage  float64               `db:"coverage" json:"coverage"`
	Meta      types.JSONText        `db:"meta" json:"meta"`
	CreatedAt time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt time.Time             `db:"updated_at" json:"updated_at"`
}

// DefenseScheduleSlot is one persisted assignment of a saved schedule.
type DefenseScheduleSlot struct {
	ID                string         `db:"id" json:"id"`
	DefenseScheduleID string         `db:"defense_schedule_id" json:"defense_schedule_id"`
	ProjectID         string         `db:"project_id" json:"project_id"`
	ClassroomID       string         `db:"classroom_id" json:"classroom_id"`
	TimeslotID        string         `db:"timeslot_id" json:"timeslot_id"`
	ResponsibleID     string         `db:"responsible_id" json:"responsible_id"`
	Jury              types.JSONText `db:"jury" json:"jury"`
	Makeup            bool           `db:"is_makeup" json:"is_makeup"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
}

// AssignmentRecord is the exported form of one scheduled defense. JuryIDs
// starts with the responsible instructor; Placeholders counts jury seats
// that could not be filled.
type AssignmentRecord struct {
	ProjectID     string   `json:"project_id"`
	ClassroomID   string   `json:"classroom_id"`
	TimeslotID    string   `json:"timeslot_id"`
	ResponsibleID string   `json:"responsible_id"`
	JuryIDs       []string `json:"jury_ids"`
	Placeholders  int      `json:"placeholders,omitempty"`
	Makeup        bool     `json:"is_makeup"`
}

// LoadStats summarises per-instructor load (responsible + jury seats).
type LoadStats struct {
	Min    int     `json:"min"`
	Max    int     `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
}

// ScheduleMetrics accompanies every optimization result.
type ScheduleMetrics struct {
	Coverage         float64            `json:"coverage"`
	AssignedProjects int                `json:"assigned_projects"`
	TotalProjects    int                `json:"total_projects"`
	Consecutiveness  float64            `json:"consecutiveness"`
	Load             LoadStats          `json:"load"`
	ClassroomChanges int                `json:"classroom_changes"`
	JuryAssignments  int                `json:"jury_assignments"`
	Weights          map[string]float64 `json:"weights"`
	BestScore        float64            `json:"best_score"`
	Generations      int                `json:"generations"`
	Restarts         int                `json:"restarts"`
	Injections       int                `json:"injections"`
	Convergence      string             `json:"convergence"`
	Canceled         bool               `json:"canceled"`
	UnresolvedCount  int                `json:"unresolved_conflicts"`
	ElapsedMillis    int64              `json:"elapsed_ms"`
	Elapsed          time.Duration      `json:"-"`
}

// ConflictKind enumerates schedule violations.
type ConflictKind string

const (
	ConflictInstructorDoubleAssignment ConflictKind = "instructor_double_assignment"
	ConflictClassroomDoubleBooking     ConflictKind = "classroom_double_booking"
	ConflictTimeslotOverCapacity       ConflictKind = "timeslot_over_capacity"
	ConflictJuryIncomplete             ConflictKind = "jury_incomplete"
)

// ConflictSeverity ranks conflicts for resolution order.
type ConflictSeverity string

const (
	SeverityCritical ConflictSeverity = "critical"
	SeverityHigh     ConflictSeverity = "high"
	SeverityMedium   ConflictSeverity = "medium"
)

// RepairStrategy names the fix applied to a conflict.
type RepairStrategy string

const (
	RepairReschedule     RepairStrategy = "reschedule"
	RepairSubstituteJury RepairStrategy = "substitute_jury"
	RepairRelocate       RepairStrategy = "relocate_classroom"
	RepairRedistribute   RepairStrategy = "redistribute"
	RepairFillJury       RepairStrategy = "fill_jury"
)

// ConflictRecord is the exported outcome of one detected violation.
type ConflictRecord struct {
	Kind         ConflictKind     `json:"kind"`
	Severity     ConflictSeverity `json:"severity"`
	TimeslotID   string           `json:"timeslot_id,omitempty"`
	InstructorID string           `json:"instructor_id,omitempty"`
	ClassroomID  string           `json:"classroom_id,omitempty"`
	ProjectIDs   []string         `json:"project_ids"`
	Strategy     RepairStrategy   `json:"strategy"`
	Resolved     bool             `json:"resolved"`
}

// ResolutionSummary reports what the conflict resolver and compaction passes did.
type ResolutionSummary struct {
	Detected   int              `json:"detected"`
	Resolved   int              `json:"resolved"`
	Unresolved []ConflictRecord `json:"unresolved,omitempty"`
	Conflicts  []ConflictRecord `json:"conflicts,omitempty"`
	GapMoves   int              `json:"gap_moves"`
	EarlyMoves int              `json:"early_moves"`
	RolledBack bool             `json:"rolled_back"`
}

// HasCritical reports whether an unresolved critical conflict remains.
func (r ResolutionSummary) HasCritical() bool {
	for _, c := range r.Unresolved {
		if c.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// DefenseScheduleFilter narrows stored schedule listings.
type DefenseScheduleFilter struct {
	Label  string
	Status DefenseScheduleStatus
}
