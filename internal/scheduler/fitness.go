package scheduler

import (
	"math"
	"sort"
)

// Component identifies one soft-constraint score term.
type Component int

const (
	ComponentCoverage Component = iota
	ComponentConsecutive
	ComponentBalance
	ComponentStability
	ComponentJury
	ComponentCompaction
	ComponentEarly
	componentCount
)

var componentNames = [componentCount]string{
	"coverage",
	"consecutiveness",
	"balance",
	"classroom_stability",
	"jury_completeness",
	"compaction",
	"early_slot",
}

func (c Component) String() string {
	if c < 0 || c >= componentCount {
		return "unknown"
	}
	return componentNames[c]
}

const (
	// FloorScore is what an empty candidate scores.
	FloorScore = -1e9
	// ConflictPenalty is subtracted per detected conflict; it is not learned.
	ConflictPenalty = 25.0
	componentScale  = 100.0
	consecutiveStep = 1.0
	sameRoomBonus   = 0.5
)

// Breakdown is a candidate's score split into its terms.
type Breakdown struct {
	Values    [componentCount]float64
	Pattern   float64
	Conflicts int
	Total     float64
}

// Value returns one component's unweighted value.
func (b Breakdown) Value(c Component) float64 { return b.Values[c] }

// Evaluator scores candidates. It holds only the immutable instance, so one
// evaluator can score a whole population concurrently.
type Evaluator struct {
	inst     *Instance
	detector *Detector
}

// NewEvaluator returns an evaluator bound to an instance.
func NewEvaluator(inst *Instance) *Evaluator {
	return &Evaluator{inst: inst, detector: NewDetector(inst)}
}

// Score returns the weighted fitness of a candidate, higher is better.
func (e *Evaluator) Score(c *Candidate, state *LearningState) float64 {
	return e.Breakdown(c, state).Total
}

// Breakdown computes every component and the weighted total.
func (e *Evaluator) Breakdown(c *Candidate, state *LearningState) Breakdown {
	var out Breakdown
	if c == nil || len(c.Assignments) == 0 {
		out.Total = FloorScore
		return out
	}
	assignments := make([]*Assignment, 0, len(c.Assignments))
	seen := make(map[int]struct{}, len(c.Assignments))
	for idx := range c.Assignments {
		a := &c.Assignments[idx]
		if !e.inst.validAssignment(a) {
			continue
		}
		if _, dup := seen[a.Project]; dup {
			continue
		}
		seen[a.Project] = struct{}{}
		assignments = append(assignments, a)
	}
	if len(assignments) == 0 {
		out.Total = FloorScore
		return out
	}

	placements := e.instructorPlacements(assignments)
	out.Values[ComponentCoverage] = componentScale * float64(len(assignments)) / float64(e.inst.NumProjects())
	out.Values[ComponentConsecutive] = consecutiveness(placements)
	out.Values[ComponentBalance] = e.balance(placements)
	out.Values[ComponentStability] = stability(placements)
	out.Values[ComponentJury] = e.juryCompleteness(assignments)
	out.Values[ComponentCompaction] = e.compaction(assignments)
	out.Values[ComponentEarly] = e.earlyUsage(assignments)
	out.Conflicts = e.detector.Count(c)

	weights := DefaultWeights()
	if state != nil {
		weights = state.Weights
		out.Pattern = state.PatternBonus(c)
	}
	total := out.Pattern - ConflictPenalty*float64(out.Conflicts)
	for comp := Component(0); comp < componentCount; comp++ {
		total += weights[comp] * out.Values[comp]
	}
	out.Total = total
	return out
}

type placement struct {
	slot int
	room int
}

func (e *Evaluator) instructorPlacements(assignments []*Assignment) [][]placement {
	out := make([][]placement, e.inst.NumInstructors())
	for _, a := range assignments {
		for _, m := range a.Jury {
			if id, ok := m.Instructor(); ok && id < len(out) {
				out[id] = append(out[id], placement{slot: a.Timeslot, room: a.Classroom})
			}
		}
	}
	for _, list := range out {
		sort.Slice(list, func(i, j int) bool { return list[i].slot < list[j].slot })
	}
	return out
}

func consecutiveness(placements [][]placement) float64 {
	var earned, possible float64
	for _, list := range placements {
		if len(list) < 2 {
			continue
		}
		possible += float64(len(list)-1) * (consecutiveStep + sameRoomBonus)
		for idx := 1; idx < len(list); idx++ {
			if list[idx].slot-list[idx-1].slot != 1 {
				continue
			}
			earned += consecutiveStep
			if list[idx].room == list[idx-1].room {
				earned += sameRoomBonus
			}
		}
	}
	if possible == 0 {
		return 0
	}
	return componentScale * earned / possible
}

func (e *Evaluator) balance(placements [][]placement) float64 {
	loads := make([]float64, len(placements))
	for idx, list := range placements {
		loads[idx] = float64(len(list))
	}
	_, std := meanStdDev(loads)
	return componentScale / (1 + std)
}

func stability(placements [][]placement) float64 {
	var sum float64
	active := 0
	for _, list := range placements {
		if len(list) == 0 {
			continue
		}
		rooms := make(map[int]struct{}, len(list))
		for _, p := range list {
			rooms[p.room] = struct{}{}
		}
		sum += 1 / float64(len(rooms))
		active++
	}
	if active == 0 {
		return 0
	}
	return componentScale * sum / float64(active)
}

func (e *Evaluator) juryCompleteness(assignments []*Assignment) float64 {
	finals, complete := 0, 0
	for _, a := range assignments {
		if !e.inst.IsFinal(a.Project) {
			continue
		}
		finals++
		if a.NamedCount() >= 2 {
			complete++
		}
	}
	if finals == 0 {
		return componentScale
	}
	return componentScale * float64(complete) / float64(finals)
}

// compaction rewards dense use of few classrooms and penalises gaps inside
// each classroom's used span.
func (e *Evaluator) compaction(assignments []*Assignment) float64 {
	first := make(map[int]int)
	last := make(map[int]int)
	used := make(map[int]int)
	for _, a := range assignments {
		if f, ok := first[a.Classroom]; !ok || a.Timeslot < f {
			first[a.Classroom] = a.Timeslot
		}
		if l, ok := last[a.Classroom]; !ok || a.Timeslot > l {
			last[a.Classroom] = a.Timeslot
		}
		used[a.Classroom]++
	}
	span, gaps := 0, 0
	for room, count := range used {
		width := last[room] - first[room] + 1
		span += width
		if width > count {
			gaps += width - count
		}
	}
	density := float64(len(assignments)) / float64(len(used)*e.inst.NumTimeslots())
	gapRatio := 0.0
	if span > 0 {
		gapRatio = float64(gaps) / float64(span)
	}
	return componentScale * (0.5*math.Min(1, density) + 0.5*(1-gapRatio))
}

// earlyUsage rewards the earlier half and penalises late assignments while
// early cells stay empty.
func (e *Evaluator) earlyUsage(assignments []*Assignment) float64 {
	early, late := 0, 0
	usedEarly := make(map[cell]struct{})
	for _, a := range assignments {
		if e.inst.IsEarly(a.Timeslot) {
			early++
			usedEarly[a.cell()] = struct{}{}
		} else {
			late++
		}
	}
	freeEarly := 0
	for slot := 0; slot < e.inst.EarlySlots(); slot++ {
		taken := 0
		for room := 0; room < e.inst.NumClassrooms(); room++ {
			if _, ok := usedEarly[cell{room: room, slot: slot}]; ok {
				taken++
			}
		}
		if spare := e.inst.Capacity(slot) - taken; spare > 0 {
			freeEarly += spare
		}
	}
	total := float64(len(assignments))
	penalty := 0.5 * componentScale * float64(min(late, freeEarly)) / total
	return math.Max(0, componentScale*float64(early)/total-penalty)
}

func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(variance / float64(len(values)))
}
