package scheduler

import "sort"

// JuryMember is either a named instructor or an unfilled seat.
type JuryMember struct {
	instructor  int
	placeholder bool
}

// Named returns a jury seat held by an instructor.
func Named(instructor int) JuryMember {
	return JuryMember{instructor: instructor}
}

// Placeholder returns a jury seat nobody could fill.
func Placeholder() JuryMember {
	return JuryMember{instructor: -1, placeholder: true}
}

// Instructor returns the seated instructor, if any.
func (m JuryMember) Instructor() (int, bool) {
	if m.placeholder {
		return -1, false
	}
	return m.instructor, true
}

// IsPlaceholder reports whether the seat is unfilled.
func (m JuryMember) IsPlaceholder() bool { return m.placeholder }

// Assignment places one project into a (classroom, timeslot) cell. Jury[0]
// is always the responsible instructor.
type Assignment struct {
	Project     int
	Classroom   int
	Timeslot    int
	Responsible int
	Jury        []JuryMember
}

func newAssignment(project, responsible int, at cell) Assignment {
	return Assignment{
		Project:     project,
		Classroom:   at.room,
		Timeslot:    at.slot,
		Responsible: responsible,
		Jury:        []JuryMember{Named(responsible)},
	}
}

func (a Assignment) clone() Assignment {
	a.Jury = append([]JuryMember(nil), a.Jury...)
	return a
}

func (a *Assignment) cell() cell { return cell{room: a.Classroom, slot: a.Timeslot} }

// Members returns the named instructors, responsible first.
func (a *Assignment) Members() []int {
	members := make([]int, 0, len(a.Jury))
	for _, m := range a.Jury {
		if id, ok := m.Instructor(); ok {
			members = append(members, id)
		}
	}
	return members
}

// Panel returns the named jury members other than the responsible instructor.
func (a *Assignment) Panel() []int {
	panel := make([]int, 0, len(a.Jury))
	for _, m := range a.Jury {
		if id, ok := m.Instructor(); ok && id != a.Responsible {
			panel = append(panel, id)
		}
	}
	return panel
}

// HasMember reports whether an instructor already sits on the jury.
func (a *Assignment) HasMember(instructor int) bool {
	for _, m := range a.Jury {
		if id, ok := m.Instructor(); ok && id == instructor {
			return true
		}
	}
	return false
}

// NamedCount counts named jury seats including the responsible instructor.
func (a *Assignment) NamedCount() int {
	count := 0
	for _, m := range a.Jury {
		if !m.IsPlaceholder() {
			count++
		}
	}
	return count
}

// AddJury seats an instructor, filling the first placeholder when present.
func (a *Assignment) AddJury(instructor int) bool {
	if instructor < 0 || a.HasMember(instructor) {
		return false
	}
	for idx, m := range a.Jury {
		if m.IsPlaceholder() {
			a.Jury[idx] = Named(instructor)
			return true
		}
	}
	a.Jury = append(a.Jury, Named(instructor))
	return true
}

// ReplaceJury swaps a non-responsible member for another instructor.
func (a *Assignment) ReplaceJury(old, replacement int) bool {
	if old == a.Responsible || a.HasMember(replacement) {
		return false
	}
	for idx, m := range a.Jury {
		if id, ok := m.Instructor(); ok && id == old {
			a.Jury[idx] = Named(replacement)
			return true
		}
	}
	return false
}

// RemoveJury drops a non-responsible member.
func (a *Assignment) RemoveJury(instructor int) bool {
	if instructor == a.Responsible {
		return false
	}
	for idx, m := range a.Jury {
		if id, ok := m.Instructor(); ok && id == instructor {
			a.Jury = append(a.Jury[:idx], a.Jury[idx+1:]...)
			return true
		}
	}
	return false
}

func (a *Assignment) dropPlaceholders() {
	kept := a.Jury[:0]
	for _, m := range a.Jury {
		if !m.IsPlaceholder() {
			kept = append(kept, m)
		}
	}
	a.Jury = kept
}

// Candidate is one trial schedule: at most one assignment per project.
type Candidate struct {
	Assignments []Assignment
	Score       float64
	Origin      string

	scored  bool
	version int
}

// NewCandidate returns an empty candidate.
func NewCandidate(origin string) *Candidate {
	return &Candidate{Origin: origin}
}

// Clone deep-copies the candidate so offspring never alias their parents.
func (c *Candidate) Clone() *Candidate {
	out := &Candidate{
		Assignments: make([]Assignment, len(c.Assignments)),
		Score:       c.Score,
		Origin:      c.Origin,
		scored:      c.scored,
		version:     c.version,
	}
	for idx, a := range c.Assignments {
		out.Assignments[idx] = a.clone()
	}
	return out
}

// Coverage is the number of assigned projects.
func (c *Candidate) Coverage() int {
	if c == nil {
		return 0
	}
	return len(c.Assignments)
}

// Find returns the position of a project's assignment.
func (c *Candidate) Find(project int) (int, bool) {
	for idx := range c.Assignments {
		if c.Assignments[idx].Project == project {
			return idx, true
		}
	}
	return -1, false
}

func (c *Candidate) invalidate() { c.scored = false }

// dedupe keeps the first assignment of every project and orders by project.
func (c *Candidate) dedupe() {
	seen := make(map[int]struct{}, len(c.Assignments))
	kept := c.Assignments[:0]
	for _, a := range c.Assignments {
		if _, ok := seen[a.Project]; ok {
			continue
		}
		seen[a.Project] = struct{}{}
		kept = append(kept, a)
	}
	c.Assignments = kept
	sort.Slice(c.Assignments, func(i, j int) bool { return c.Assignments[i].Project < c.Assignments[j].Project })
}

// slotVector maps every project to its timeslot, -1 when unassigned.
func (c *Candidate) slotVector(projects int) []int {
	vec := make([]int, projects)
	for idx := range vec {
		vec[idx] = -1
	}
	for _, a := range c.Assignments {
		if a.Project >= 0 && a.Project < projects {
			vec[a.Project] = a.Timeslot
		}
	}
	return vec
}
