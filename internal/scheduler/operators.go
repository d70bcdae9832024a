package scheduler

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/mroth/weightedrand/v2"

	appErrors "github.com/noah-isme/defense-scheduler/pkg/errors"
)

// SelectionStrategy picks a parent from a scored population.
type SelectionStrategy interface {
	Name() string
	Select(pop []*Candidate, pressure int, rng *rand.Rand) *Candidate
}

// CrossoverStrategy combines two parents into a new child. Parents are
// never modified.
type CrossoverStrategy interface {
	Name() string
	Cross(a, b *Candidate, inst *Instance, rng *rand.Rand) *Candidate
}

// MutationStrategy changes a candidate in place and reports whether it did.
type MutationStrategy interface {
	Name() string
	Mutate(c *Candidate, inst *Instance, rng *rand.Rand) bool
}

func selectionByName(name string) (SelectionStrategy, error) {
	switch name {
	case "", SelectionTournament:
		return tournamentSelection{}, nil
	case SelectionRoulette:
		return rouletteSelection{}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown selection strategy %q", name))
}

func crossoverByName(name string) (CrossoverStrategy, error) {
	switch name {
	case "", CrossoverUniform:
		return uniformCrossover{}, nil
	case CrossoverSinglePoint:
		return singlePointCrossover{}, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown crossover strategy %q", name))
}

// DefaultMutations returns the built-in operators with their pick weights.
func DefaultMutations() []weightedrand.Choice[MutationStrategy, int] {
	return []weightedrand.Choice[MutationStrategy, int]{
		weightedrand.NewChoice[MutationStrategy, int](swapTimeslots{}, 3),
		weightedrand.NewChoice[MutationStrategy, int](reassignCell{}, 3),
		weightedrand.NewChoice[MutationStrategy, int](toggleJury{}, 2),
		weightedrand.NewChoice[MutationStrategy, int](shiftEarlier{}, 2),
	}
}

// --- Selection ---

type tournamentSelection struct{}

func (tournamentSelection) Name() string { return SelectionTournament }

func (tournamentSelection) Select(pop []*Candidate, pressure int, rng *rand.Rand) *Candidate {
	var best *Candidate
	for i := 0; i < max(1, pressure); i++ {
		contender := pop[rng.Intn(len(pop))]
		if best == nil || contender.Score > best.Score {
			best = contender
		}
	}
	return best
}

type rouletteSelection struct{}

func (rouletteSelection) Name() string { return SelectionRoulette }

// Select shifts scores so the weakest candidate still has a small chance.
func (rouletteSelection) Select(pop []*Candidate, _ int, rng *rand.Rand) *Candidate {
	lowest := pop[0].Score
	for _, c := range pop {
		if c.Score < lowest {
			lowest = c.Score
		}
	}
	var total float64
	for _, c := range pop {
		total += c.Score - lowest + 1
	}
	pick := rng.Float64() * total
	for _, c := range pop {
		pick -= c.Score - lowest + 1
		if pick <= 0 {
			return c
		}
	}
	return pop[len(pop)-1]
}

// --- Crossover ---

type uniformCrossover struct{}

func (uniformCrossover) Name() string { return CrossoverUniform }

// Cross takes each project's assignment from either parent with equal odds.
func (uniformCrossover) Cross(a, b *Candidate, inst *Instance, rng *rand.Rand) *Candidate {
	return combine(a, b, inst, func(int) bool { return rng.Intn(2) == 0 })
}

type singlePointCrossover struct{}

func (singlePointCrossover) Name() string { return CrossoverSinglePoint }

// Cross takes projects before a random cut from a and the rest from b.
func (singlePointCrossover) Cross(a, b *Candidate, inst *Instance, rng *rand.Rand) *Candidate {
	cut := rng.Intn(inst.NumProjects() + 1)
	return combine(a, b, inst, func(project int) bool { return project < cut })
}

// combine builds a child keyed by project so no project appears twice.
func combine(a, b *Candidate, inst *Instance, fromA func(project int) bool) *Candidate {
	byA := indexByProject(a, inst.NumProjects())
	byB := indexByProject(b, inst.NumProjects())
	child := NewCandidate("crossover")
	child.Assignments = make([]Assignment, 0, max(len(a.Assignments), len(b.Assignments)))
	for project := 0; project < inst.NumProjects(); project++ {
		pa, pb := byA[project], byB[project]
		switch {
		case pa >= 0 && (pb < 0 || fromA(project)):
			child.Assignments = append(child.Assignments, a.Assignments[pa].clone())
		case pb >= 0:
			child.Assignments = append(child.Assignments, b.Assignments[pb].clone())
		}
	}
	return child
}

func indexByProject(c *Candidate, projects int) []int {
	idx := make([]int, projects)
	for i := range idx {
		idx[i] = -1
	}
	for pos, a := range c.Assignments {
		if a.Project >= 0 && a.Project < projects && idx[a.Project] < 0 {
			idx[a.Project] = pos
		}
	}
	return idx
}

// --- Mutation ---

type swapTimeslots struct{}

func (swapTimeslots) Name() string { return "swap_timeslots" }

func (swapTimeslots) Mutate(c *Candidate, _ *Instance, rng *rand.Rand) bool {
	if len(c.Assignments) < 2 {
		return false
	}
	i := rng.Intn(len(c.Assignments))
	j := rng.Intn(len(c.Assignments) - 1)
	if j >= i {
		j++
	}
	a, b := &c.Assignments[i], &c.Assignments[j]
	if a.Timeslot == b.Timeslot {
		return false
	}
	a.Timeslot, b.Timeslot = b.Timeslot, a.Timeslot
	c.invalidate()
	return true
}

type reassignCell struct{}

func (reassignCell) Name() string { return "reassign_cell" }

// Mutate places a missing project if there is one, otherwise moves a random
// assignment to a cell where its room and whole jury are free.
func (reassignCell) Mutate(c *Candidate, inst *Instance, rng *rand.Rand) bool {
	occ := occupancyOf(inst, c)
	if len(c.Assignments) < inst.NumProjects() {
		present := indexByProject(c, inst.NumProjects())
		for project, pos := range present {
			if pos >= 0 {
				continue
			}
			owner := inst.Responsible(project)
			at, ok := occ.randomCell([]int{owner}, rng)
			if !ok {
				at, ok = occ.anyFreeCell()
			}
			if !ok {
				return false
			}
			a := newAssignment(project, owner, at)
			if inst.IsFinal(project) {
				if id, found := occ.freeInstructor(at.slot, a.HasMember, rng); found {
					a.AddJury(id)
				}
			}
			c.Assignments = append(c.Assignments, a)
			c.invalidate()
			return true
		}
	}
	if len(c.Assignments) == 0 {
		return false
	}
	a := &c.Assignments[rng.Intn(len(c.Assignments))]
	occ.remove(a)
	at, ok := occ.randomCell(a.Members(), rng)
	if !ok || at == a.cell() {
		return false
	}
	a.Classroom, a.Timeslot = at.room, at.slot
	c.invalidate()
	return true
}

type toggleJury struct{}

func (toggleJury) Name() string { return "toggle_jury" }

// Mutate swaps a jury member on finals and adds or drops the extra member
// on midterms.
func (toggleJury) Mutate(c *Candidate, inst *Instance, rng *rand.Rand) bool {
	if len(c.Assignments) == 0 {
		return false
	}
	occ := occupancyOf(inst, c)
	a := &c.Assignments[rng.Intn(len(c.Assignments))]
	panel := a.Panel()
	if !inst.IsFinal(a.Project) && len(panel) > 0 {
		a.RemoveJury(panel[len(panel)-1])
		c.invalidate()
		return true
	}
	replacement, ok := occ.freeInstructor(a.Timeslot, a.HasMember, rng)
	if !ok {
		return false
	}
	if inst.IsFinal(a.Project) && len(panel) > 0 {
		a.ReplaceJury(panel[rng.Intn(len(panel))], replacement)
	} else {
		a.AddJury(replacement)
	}
	c.invalidate()
	return true
}

type shiftEarlier struct{}

func (shiftEarlier) Name() string { return "shift_earlier" }

// Mutate moves one of the latest assignments into the earliest cell its
// jury can take, closing gaps and favouring the early half.
func (shiftEarlier) Mutate(c *Candidate, inst *Instance, rng *rand.Rand) bool {
	if len(c.Assignments) == 0 {
		return false
	}
	order := make([]int, len(c.Assignments))
	for idx := range order {
		order[idx] = idx
	}
	sort.SliceStable(order, func(i, j int) bool {
		return c.Assignments[order[i]].Timeslot > c.Assignments[order[j]].Timeslot
	})
	window := max(1, len(order)/4)
	a := &c.Assignments[order[rng.Intn(window)]]
	occ := occupancyOf(inst, c)
	occ.remove(a)
	at, ok := occ.findCellIn(a.Members(), a.Classroom, 0, a.Timeslot)
	if !ok {
		return false
	}
	a.Classroom, a.Timeslot = at.room, at.slot
	c.invalidate()
	return true
}
