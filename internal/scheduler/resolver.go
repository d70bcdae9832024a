package scheduler

import (
	"math/rand"
	"sort"

	"go.uber.org/zap"

	"github.com/noah-isme/defense-scheduler/internal/models"
)

const maxResolutionRounds = 4

// Resolution reports what the resolver did to a candidate.
type Resolution struct {
	Conflicts    []Conflict
	Unresolved   []Conflict
	JuryFailures []Conflict
	GapMoves     int
	EarlyMoves   int
	RolledBack   bool
}

// Resolver repairs conflicts and compacts the engine's best candidate.
type Resolver struct {
	inst          *Instance
	detector      *Detector
	gapFilling    bool
	earlyShift    bool
	maxIterations int
	rng           *rand.Rand
	logger        *zap.Logger
}

// NewResolver configures the resolver from the run configuration.
func NewResolver(inst *Instance, cfg Config, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		inst:          inst,
		detector:      NewDetector(inst),
		gapFilling:    cfg.EnableGapFilling,
		earlyShift:    cfg.EnableEarlyShift,
		maxIterations: cfg.MaxCompactionIterations,
		rng:           rand.New(rand.NewSource(cfg.Seed + 1)),
		logger:        logger,
	}
}

// Resolve returns a repaired copy of c with no more conflicts and no fewer
// assignments than c. Conflicts without a repair target stay in the report.
func (r *Resolver) Resolve(c *Candidate) (*Candidate, Resolution) {
	var res Resolution
	if c == nil {
		return NewCandidate("resolved"), res
	}
	work := c.Clone()
	work.dedupe()
	beforeConflicts := r.detector.Count(work)
	beforeCoverage := work.Coverage()

	detected := r.detector.Detect(work)
	strategies := make(map[conflictKey]models.RepairStrategy, len(detected))
	for round := 0; round < maxResolutionRounds; round++ {
		current := r.detector.Detect(work)
		if len(current) == 0 {
			break
		}
		progress := false
		for _, cf := range current {
			strategy, ok := r.repair(work, cf)
			if _, seen := strategies[cf.key()]; !seen || ok {
				strategies[cf.key()] = strategy
			}
			progress = progress || ok
		}
		if !progress {
			break
		}
	}

	remaining := make(map[conflictKey]struct{})
	for _, cf := range r.detector.Detect(work) {
		remaining[cf.key()] = struct{}{}
	}
	for _, cf := range detected {
		cf.Strategy = strategies[cf.key()]
		_, open := remaining[cf.key()]
		cf.Resolved = !open
		res.Conflicts = append(res.Conflicts, cf)
		if open {
			res.Unresolved = append(res.Unresolved, cf)
		}
	}

	res.JuryFailures = r.completeJuries(work)
	if r.gapFilling {
		res.GapMoves = r.fillGaps(work)
	}
	if r.earlyShift {
		res.EarlyMoves = r.shiftEarly(work)
	}

	if r.detector.Count(work) > beforeConflicts || work.Coverage() < beforeCoverage {
		r.logger.Warn("conflict resolution regressed, keeping input schedule",
			zap.Int("conflicts_before", beforeConflicts),
			zap.Int("coverage_before", beforeCoverage),
		)
		return r.rollback(c, detected)
	}
	work.invalidate()
	return work, res
}

// rollback keeps the input schedule with every detected conflict open. Juries
// are still completed so final projects never leave with an unreported gap.
func (r *Resolver) rollback(c *Candidate, detected []Conflict) (*Candidate, Resolution) {
	fallback := c.Clone()
	fallback.dedupe()
	failures := r.completeJuries(fallback)
	fallback.invalidate()
	return fallback, Resolution{
		Conflicts:    detected,
		Unresolved:   detected,
		JuryFailures: failures,
		RolledBack:   true,
	}
}

// repair applies the fixed strategy for a conflict kind.
func (r *Resolver) repair(work *Candidate, cf Conflict) (models.RepairStrategy, bool) {
	occ := occupancyOf(r.inst, work)
	positions := r.positions(work, cf.Projects)
	if len(positions) < 2 && cf.Kind != models.ConflictTimeslotOverCapacity {
		return "", false
	}
	switch cf.Kind {
	case models.ConflictInstructorDoubleAssignment:
		// keep the assignment the instructor supervises, move the others
		sort.SliceStable(positions, func(i, j int) bool {
			return work.Assignments[positions[i]].Responsible == cf.Instructor &&
				work.Assignments[positions[j]].Responsible != cf.Instructor
		})
		strategy, fixed := models.RepairReschedule, 0
		for _, pos := range positions[1:] {
			a := &work.Assignments[pos]
			if a.Responsible != cf.Instructor {
				if r.substituteJury(occ, a, cf.Instructor) {
					strategy = models.RepairSubstituteJury
					fixed++
					continue
				}
			}
			if r.reschedule(occ, a, a.Classroom) {
				fixed++
			}
		}
		return strategy, fixed == len(positions)-1
	case models.ConflictClassroomDoubleBooking:
		strategy, fixed := models.RepairRelocate, 0
		for _, pos := range positions[1:] {
			a := &work.Assignments[pos]
			if r.relocate(occ, a) {
				fixed++
				continue
			}
			if r.reschedule(occ, a, -1) {
				strategy = models.RepairReschedule
				fixed++
			}
		}
		return strategy, fixed == len(positions)-1
	case models.ConflictTimeslotOverCapacity:
		excess := len(positions) - r.inst.Capacity(cf.Timeslot)
		fixed := 0
		for idx := len(positions) - 1; idx >= 0 && fixed < excess; idx-- {
			if r.reschedule(occ, &work.Assignments[positions[idx]], -1) {
				fixed++
			}
		}
		return models.RepairRedistribute, fixed == excess
	}
	return "", false
}

func (r *Resolver) positions(work *Candidate, projects []int) []int {
	out := make([]int, 0, len(projects))
	for _, project := range projects {
		if pos, ok := work.Find(project); ok {
			out = append(out, pos)
		}
	}
	return out
}

// substituteJury hands a busy jury seat to an instructor free at that timeslot.
func (r *Resolver) substituteJury(occ *occupancy, a *Assignment, busy int) bool {
	replacement, ok := occ.freeInstructor(a.Timeslot, a.HasMember, r.rng)
	if !ok {
		return false
	}
	occ.remove(a)
	a.ReplaceJury(busy, replacement)
	occ.add(a)
	return true
}

// reschedule moves an assignment to another timeslot where its room is
// free and its whole jury is available.
func (r *Resolver) reschedule(occ *occupancy, a *Assignment, preferRoom int) bool {
	occ.remove(a)
	members := a.Members()
	for slot := 0; slot < r.inst.NumTimeslots(); slot++ {
		if slot == a.Timeslot || !occ.membersFree(members, slot) {
			continue
		}
		if at, ok := occ.findCellIn(members, preferRoom, slot, slot+1); ok {
			a.Classroom, a.Timeslot = at.room, at.slot
			occ.add(a)
			return true
		}
	}
	occ.add(a)
	return false
}

// relocate moves an assignment to a free classroom at the same timeslot.
func (r *Resolver) relocate(occ *occupancy, a *Assignment) bool {
	occ.remove(a)
	for room := 0; room < r.inst.NumClassrooms(); room++ {
		if room == a.Classroom {
			continue
		}
		if occ.rooms[room][a.Timeslot] == 0 {
			a.Classroom = room
			occ.add(a)
			return true
		}
	}
	occ.add(a)
	return false
}

// completeJuries fills placeholder seats and gives every final project a
// second jury member. Projects that cannot be completed are reported.
func (r *Resolver) completeJuries(work *Candidate) []Conflict {
	occ := occupancyOf(r.inst, work)
	var failures []Conflict
	for idx := range work.Assignments {
		a := &work.Assignments[idx]
		a.dropPlaceholders()
		if !r.inst.IsFinal(a.Project) || a.NamedCount() >= 2 {
			continue
		}
		id, ok := occ.freeInstructor(a.Timeslot, a.HasMember, r.rng)
		if !ok {
			a.Jury = append(a.Jury, Placeholder())
			failures = append(failures, Conflict{
				Kind:       models.ConflictJuryIncomplete,
				Severity:   models.SeverityHigh,
				Timeslot:   a.Timeslot,
				Instructor: -1,
				Classroom:  a.Classroom,
				Projects:   []int{a.Project},
				Strategy:   models.RepairFillJury,
			})
			continue
		}
		occ.remove(a)
		a.AddJury(id)
		occ.add(a)
	}
	return failures
}

// fillGaps pulls assignments back into empty cells earlier in the same
// classroom when the whole jury is free there.
func (r *Resolver) fillGaps(work *Candidate) int {
	occ := occupancyOf(r.inst, work)
	moves := 0
	for iter := 0; iter < r.maxIterations; iter++ {
		moved := false
		for room := 0; room < r.inst.NumClassrooms(); room++ {
			for slot := 0; slot < r.inst.NumTimeslots(); slot++ {
				target := cell{room: room, slot: slot}
				if !occ.roomFree(target) {
					continue
				}
				pos := r.nextInRoom(work, room, slot)
				if pos < 0 {
					break
				}
				if r.moveTo(occ, &work.Assignments[pos], target) {
					moved = true
					moves++
				}
			}
		}
		if !moved {
			break
		}
	}
	return moves
}

// nextInRoom finds the earliest assignment in a classroom after slot.
func (r *Resolver) nextInRoom(work *Candidate, room, slot int) int {
	best := -1
	for idx, a := range work.Assignments {
		if a.Classroom != room || a.Timeslot <= slot {
			continue
		}
		if best < 0 || a.Timeslot < work.Assignments[best].Timeslot {
			best = idx
		}
	}
	return best
}

// shiftEarly moves late assignments into the earlier half, latest first.
func (r *Resolver) shiftEarly(work *Candidate) int {
	occ := occupancyOf(r.inst, work)
	boundary := r.inst.EarlySlots()
	moves := 0
	for iter := 0; iter < r.maxIterations; iter++ {
		late := make([]int, 0)
		for idx, a := range work.Assignments {
			if a.Timeslot >= boundary {
				late = append(late, idx)
			}
		}
		sort.SliceStable(late, func(i, j int) bool {
			return work.Assignments[late[i]].Timeslot > work.Assignments[late[j]].Timeslot
		})
		moved := false
		for _, pos := range late {
			a := &work.Assignments[pos]
			occ.remove(a)
			at, ok := occ.findCellIn(a.Members(), a.Classroom, 0, boundary)
			occ.add(a)
			if ok && r.moveTo(occ, a, at) {
				moved = true
				moves++
			}
		}
		if !moved {
			break
		}
	}
	return moves
}

// moveTo relocates an assignment when the target cell is free and its whole
// jury is available there; otherwise nothing changes.
func (r *Resolver) moveTo(occ *occupancy, a *Assignment, target cell) bool {
	occ.remove(a)
	if occ.roomFree(target) && occ.membersFree(a.Members(), target.slot) {
		a.Classroom, a.Timeslot = target.room, target.slot
		occ.add(a)
		return true
	}
	occ.add(a)
	return false
}
