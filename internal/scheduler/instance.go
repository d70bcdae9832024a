package scheduler

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/noah-isme/defense-scheduler/internal/models"
	appErrors "github.com/noah-isme/defense-scheduler/pkg/errors"
)

// Instance is the immutable, indexed view of one optimization input. All
// engine structures refer to entities by their position in these slices;
// timeslot positions follow chronological order.
type Instance struct {
	Projects    []models.Project
	Instructors []models.Instructor
	Classrooms  []models.Classroom
	Timeslots   []models.Timeslot

	responsible []int
	final       []bool
	load        []int
	capacity    []int
	byInstr     [][]int
}

// NewInstance validates and indexes a dataset. Empty collections, duplicate
// identifiers and unknown responsible instructors are rejected as invalid input.
func NewInstance(ds models.DefenseDataset) (*Instance, error) {
	switch {
	case len(ds.Projects) == 0:
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "no projects to schedule")
	case len(ds.Instructors) == 0:
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "no instructors available")
	case len(ds.Classrooms) == 0:
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "no classrooms available")
	case len(ds.Timeslots) == 0:
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, "no timeslots available")
	}

	if dup := lo.FindDuplicatesBy(ds.Projects, func(p models.Project) string { return p.ID }); len(dup) > 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("duplicate project id %q", dup[0].ID))
	}
	if dup := lo.FindDuplicatesBy(ds.Instructors, func(i models.Instructor) string { return i.ID }); len(dup) > 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("duplicate instructor id %q", dup[0].ID))
	}
	if dup := lo.FindDuplicatesBy(ds.Classrooms, func(c models.Classroom) string { return c.ID }); len(dup) > 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("duplicate classroom id %q", dup[0].ID))
	}
	if dup := lo.FindDuplicatesBy(ds.Timeslots, func(t models.Timeslot) string { return t.ID }); len(dup) > 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("duplicate timeslot id %q", dup[0].ID))
	}

	inst := &Instance{
		Projects:    append([]models.Project(nil), ds.Projects...),
		Instructors: append([]models.Instructor(nil), ds.Instructors...),
		Classrooms:  append([]models.Classroom(nil), ds.Classrooms...),
		Timeslots:   append([]models.Timeslot(nil), ds.Timeslots...),
	}
	sort.SliceStable(inst.Timeslots, func(i, j int) bool {
		a, b := inst.Timeslots[i], inst.Timeslots[j]
		if !a.StartTime.Equal(b.StartTime) {
			return a.StartTime.Before(b.StartTime)
		}
		return a.ID < b.ID
	})

	instructorIdx := make(map[string]int, len(inst.Instructors))
	for idx, item := range inst.Instructors {
		instructorIdx[item.ID] = idx
	}

	inst.responsible = make([]int, len(inst.Projects))
	inst.final = make([]bool, len(inst.Projects))
	inst.load = make([]int, len(inst.Instructors))
	inst.byInstr = make([][]int, len(inst.Instructors))
	for idx, project := range inst.Projects {
		owner, ok := instructorIdx[project.ResponsibleID]
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrInvalidInput, fmt.Sprintf("project %q references unknown instructor %q", project.ID, project.ResponsibleID))
		}
		inst.responsible[idx] = owner
		inst.final[idx] = project.IsFinal()
		inst.load[owner]++
		inst.byInstr[owner] = append(inst.byInstr[owner], idx)
	}

	inst.capacity = make([]int, len(inst.Timeslots))
	for idx, slot := range inst.Timeslots {
		capacity := slot.Capacity
		if capacity <= 0 || capacity > len(inst.Classrooms) {
			capacity = len(inst.Classrooms)
		}
		inst.capacity[idx] = capacity
	}
	return inst, nil
}

func (i *Instance) NumProjects() int    { return len(i.Projects) }
func (i *Instance) NumInstructors() int { return len(i.Instructors) }
func (i *Instance) NumClassrooms() int  { return len(i.Classrooms) }
func (i *Instance) NumTimeslots() int   { return len(i.Timeslots) }

// Responsible returns the supervising instructor of a project.
func (i *Instance) Responsible(project int) int { return i.responsible[project] }

// IsFinal reports whether a project requires a jury member beyond its supervisor.
func (i *Instance) IsFinal(project int) bool { return i.final[project] }

// ResponsibleLoad is the number of projects an instructor supervises.
func (i *Instance) ResponsibleLoad(instructor int) int { return i.load[instructor] }

// ProjectsOf lists the projects supervised by an instructor.
func (i *Instance) ProjectsOf(instructor int) []int { return i.byInstr[instructor] }

// Capacity is the number of defenses a timeslot can hold in parallel.
func (i *Instance) Capacity(slot int) int { return i.capacity[slot] }

// EarlySlots is the number of timeslots that form the chronologically earlier half.
func (i *Instance) EarlySlots() int { return (len(i.Timeslots) + 1) / 2 }

// IsEarly reports whether a timeslot belongs to the earlier half.
func (i *Instance) IsEarly(slot int) bool { return slot < i.EarlySlots() }

func (i *Instance) validAssignment(a *Assignment) bool {
	return a.Project >= 0 && a.Project < len(i.Projects) &&
		a.Classroom >= 0 && a.Classroom < len(i.Classrooms) &&
		a.Timeslot >= 0 && a.Timeslot < len(i.Timeslots) &&
		a.Responsible >= 0 && a.Responsible < len(i.Instructors)
}
