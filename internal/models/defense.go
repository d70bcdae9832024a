package models

import "time"

// ProjectType distinguishes midterm and final defenses.
type ProjectType string

const (
	ProjectTypeMidterm ProjectType = "midterm"
	ProjectTypeFinal   ProjectType = "final"
)

// InstructorCategory describes the academic rank of an instructor.
type InstructorCategory string

const (
	InstructorCategoryFaculty   InstructorCategory = "faculty"
	InstructorCategoryAssistant InstructorCategory = "assistant"
)

// Project is a thesis or project defense that needs a slot and a jury.
type Project struct {
	ID            string      `db:"id" json:"id" csv:"id" validate:"required"`
	Title         string      `db:"title" json:"title" csv:"title"`
	Type          ProjectType `db:"type" json:"type" csv:"type" validate:"required,oneof=midterm final"`
	ResponsibleID string      `db:"responsible_id" json:"responsible_id" csv:"responsible_id" validate:"required"`
	Makeup        bool        `db:"is_makeup" json:"is_makeup" csv:"is_makeup"`
}

// IsFinal reports whether the project needs a jury beyond its supervisor.
func (p Project) IsFinal() bool {
	return p.Type == ProjectTypeFinal
}

// Instructor supervises projects and sits on juries.
type Instructor struct {
	ID       string             `db:"id" json:"id" csv:"id" validate:"required"`
	Name     string             `db:"name" json:"name" csv:"name"`
	Category InstructorCategory `db:"category" json:"category" csv:"category" validate:"omitempty,oneof=faculty assistant"`
}

// Classroom hosts defenses.
type Classroom struct {
	ID       string `db:"id" json:"id" csv:"id" validate:"required"`
	Name     string `db:"name" json:"name" csv:"name"`
	Capacity int    `db:"capacity" json:"capacity" csv:"capacity" validate:"gte=0"`
}

// Timeslot is a bookable defense window. Capacity limits how many defenses
// may run in parallel; zero means one per classroom.
type Timeslot struct {
	ID        string    `db:"id" json:"id" csv:"id" validate:"required"`
	StartTime time.Time `db:"start_time" json:"start_time" csv:"start_time"`
	EndTime   time.Time `db:"end_time" json:"end_time" csv:"end_time"`
	Capacity  int       `db:"capacity" json:"capacity" csv:"capacity" validate:"gte=0"`
}

// DefenseDataset bundles the four input collections of an optimization run.
type DefenseDataset struct {
	Projects    []Project    `json:"projects" validate:"required,min=1,dive"`
	Instructors []Instructor `json:"instructors" validate:"required,min=1,dive"`
	Classrooms  []Classroom  `json:"classrooms" validate:"required,min=1,dive"`
	Timeslots   []Timeslot   `json:"timeslots" validate:"required,min=1,dive"`
}
