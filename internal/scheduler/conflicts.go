package scheduler

import (
	"sort"

	"github.com/noah-isme/defense-scheduler/internal/models"
)

// Conflict describes one violation found in a candidate. Positions refer to
// the instance; Instructor and Classroom are -1 when not relevant.
type Conflict struct {
	Kind       models.ConflictKind
	Severity   models.ConflictSeverity
	Timeslot   int
	Instructor int
	Classroom  int
	Projects   []int
	Strategy   models.RepairStrategy
	Resolved   bool
}

func (c Conflict) key() conflictKey {
	return conflictKey{kind: c.Kind, slot: c.Timeslot, instructor: c.Instructor, room: c.Classroom}
}

type conflictKey struct {
	kind       models.ConflictKind
	slot       int
	instructor int
	room       int
}

// Detector enumerates instructor, classroom and timeslot-capacity violations.
type Detector struct {
	inst *Instance
}

// NewDetector returns a detector bound to an instance.
func NewDetector(inst *Instance) *Detector {
	return &Detector{inst: inst}
}

// severityFor maps the number of colliding assignments to a severity.
func severityFor(colliding int) models.ConflictSeverity {
	switch {
	case colliding >= 3:
		return models.SeverityCritical
	case colliding == 2:
		return models.SeverityHigh
	default:
		return models.SeverityMedium
	}
}

var severityRank = map[models.ConflictSeverity]int{
	models.SeverityCritical: 0,
	models.SeverityHigh:     1,
	models.SeverityMedium:   2,
}

// Detect lists every conflict, most severe first.
func (d *Detector) Detect(c *Candidate) []Conflict {
	if c == nil || len(c.Assignments) == 0 {
		return nil
	}
	inst := d.inst
	byInstructor := make(map[[2]int][]int)
	byRoom := make(map[cell][]int)
	bySlot := make(map[int][]int)
	for _, a := range c.Assignments {
		if !inst.validAssignment(&a) {
			continue
		}
		for _, id := range a.Members() {
			if id < 0 || id >= inst.NumInstructors() {
				continue
			}
			key := [2]int{id, a.Timeslot}
			byInstructor[key] = append(byInstructor[key], a.Project)
		}
		byRoom[a.cell()] = append(byRoom[a.cell()], a.Project)
		bySlot[a.Timeslot] = append(bySlot[a.Timeslot], a.Project)
	}

	var out []Conflict
	for key, projects := range byInstructor {
		if len(projects) < 2 {
			continue
		}
		out = append(out, Conflict{
			Kind:       models.ConflictInstructorDoubleAssignment,
			Severity:   severityFor(len(projects)),
			Timeslot:   key[1],
			Instructor: key[0],
			Classroom:  -1,
			Projects:   sortedCopy(projects),
		})
	}
	for at, projects := range byRoom {
		if len(projects) < 2 {
			continue
		}
		out = append(out, Conflict{
			Kind:       models.ConflictClassroomDoubleBooking,
			Severity:   severityFor(len(projects)),
			Timeslot:   at.slot,
			Instructor: -1,
			Classroom:  at.room,
			Projects:   sortedCopy(projects),
		})
	}
	for slot, projects := range bySlot {
		excess := len(projects) - inst.Capacity(slot)
		if excess <= 0 {
			continue
		}
		out = append(out, Conflict{
			Kind:       models.ConflictTimeslotOverCapacity,
			Severity:   severityFor(excess),
			Timeslot:   slot,
			Instructor: -1,
			Classroom:  -1,
			Projects:   sortedCopy(projects),
		})
	}
	sortConflicts(out)
	return out
}

// Count returns the number of conflicts Detect would report without
// building the reports.
func (d *Detector) Count(c *Candidate) int {
	if c == nil || len(c.Assignments) == 0 {
		return 0
	}
	occ := occupancyOf(d.inst, c)
	count := 0
	for slot := 0; slot < d.inst.NumTimeslots(); slot++ {
		for id := range occ.busy {
			if occ.busy[id][slot] > 1 {
				count++
			}
		}
		for room := range occ.rooms {
			if occ.rooms[room][slot] > 1 {
				count++
			}
		}
		if occ.perSlot[slot] > d.inst.Capacity(slot) {
			count++
		}
	}
	return count
}

func sortConflicts(items []Conflict) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if severityRank[a.Severity] != severityRank[b.Severity] {
			return severityRank[a.Severity] < severityRank[b.Severity]
		}
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.Timeslot != b.Timeslot {
			return a.Timeslot < b.Timeslot
		}
		if a.Instructor != b.Instructor {
			return a.Instructor < b.Instructor
		}
		return a.Classroom < b.Classroom
	})
}

func sortedCopy(items []int) []int {
	out := append([]int(nil), items...)
	sort.Ints(out)
	return out
}
