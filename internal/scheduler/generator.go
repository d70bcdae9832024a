package scheduler

import (
	"math/rand"
	"sort"

	"github.com/mroth/weightedrand/v2"

	appErrors "github.com/noah-isme/defense-scheduler/pkg/errors"
)

// Construction strategy names.
const (
	StrategyPaired = "paired_consecutive"
	StrategyGreedy = "greedy_earliest"
	StrategyRandom = "uniform_random"
)

// InitStrategy builds one candidate from scratch. Projects it cannot place
// are left for the generator's coverage policy.
type InitStrategy interface {
	Name() string
	Build(b *builder)
}

// Generator produces fresh candidates using a weighted mix of strategies.
type Generator struct {
	inst    *Instance
	policy  CoveragePolicy
	chooser *weightedrand.Chooser[InitStrategy, int]
}

// NewGenerator wires the three construction strategies at the given ratios.
func NewGenerator(inst *Instance, mix StrategyMix, policy CoveragePolicy) (*Generator, error) {
	choices := make([]weightedrand.Choice[InitStrategy, int], 0, 3)
	for _, item := range []struct {
		strategy InitStrategy
		ratio    float64
	}{
		{pairedConsecutive{}, mix.Paired},
		{greedyEarliest{}, mix.Greedy},
		{uniformRandom{}, mix.Random},
	} {
		if w := mixWeight(item.ratio); w > 0 {
			choices = append(choices, weightedrand.NewChoice(item.strategy, w))
		}
	}
	chooser, err := weightedrand.NewChooser(choices...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid strategy mix")
	}
	if policy == "" {
		policy = CoverageFirst
	}
	return &Generator{inst: inst, policy: policy, chooser: chooser}, nil
}

// Generate builds one candidate with a strategy picked by the configured mix.
func (g *Generator) Generate(rng *rand.Rand) *Candidate {
	return g.GenerateWith(g.chooser.PickSource(rng), rng)
}

// GenerateWith builds one candidate with an explicit strategy.
func (g *Generator) GenerateWith(strategy InitStrategy, rng *rand.Rand) *Candidate {
	b := newBuilder(g.inst, strategy.Name(), rng)
	strategy.Build(b)
	b.applyCoveragePolicy(g.policy)
	b.cand.dedupe()
	return b.cand
}

// Population builds size fresh candidates.
func (g *Generator) Population(size int, rng *rand.Rand) []*Candidate {
	pop := make([]*Candidate, size)
	for idx := range pop {
		pop[idx] = g.Generate(rng)
	}
	return pop
}

// --- Builder ---

type builder struct {
	inst   *Instance
	rng    *rand.Rand
	occ    *occupancy
	cand   *Candidate
	placed []bool
}

func newBuilder(inst *Instance, origin string, rng *rand.Rand) *builder {
	return &builder{
		inst:   inst,
		rng:    rng,
		occ:    newOccupancy(inst),
		cand:   NewCandidate(origin),
		placed: make([]bool, inst.NumProjects()),
	}
}

// place records an assignment with an optional jury partner and completes
// the jury of final projects.
func (b *builder) place(project int, at cell, partner int) {
	a := newAssignment(project, b.inst.Responsible(project), at)
	if b.inst.IsFinal(project) && partner >= 0 && partner != a.Responsible && b.occ.instructorFree(partner, at.slot) {
		a.AddJury(partner)
	}
	b.completeJury(&a)
	b.occ.add(&a)
	b.cand.Assignments = append(b.cand.Assignments, a)
	b.placed[project] = true
}

func (b *builder) completeJury(a *Assignment) {
	if !b.inst.IsFinal(a.Project) || a.NamedCount() >= 2 {
		return
	}
	id, ok := b.occ.freeInstructor(a.Timeslot, a.HasMember, b.rng)
	if ok {
		a.AddJury(id)
		return
	}
	a.Jury = append(a.Jury, Placeholder())
}

func (b *builder) unplaced() []int {
	var out []int
	for project, done := range b.placed {
		if !done {
			out = append(out, project)
		}
	}
	return out
}

// applyCoveragePolicy handles projects the strategy left behind. Under
// CoverageFirst they take the first free cell even if the supervisor is busy.
func (b *builder) applyCoveragePolicy(policy CoveragePolicy) {
	for _, project := range b.unplaced() {
		owner := b.inst.Responsible(project)
		if at, ok := b.occ.findCell([]int{owner}, -1); ok {
			b.place(project, at, -1)
			continue
		}
		if policy != CoverageFirst {
			continue
		}
		if at, ok := b.occ.anyFreeCell(); ok {
			b.place(project, at, -1)
		}
	}
}

func (b *builder) shuffled(items []int) []int {
	out := append([]int(nil), items...)
	b.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// --- Strategies ---

type pairedConsecutive struct{}

func (pairedConsecutive) Name() string { return StrategyPaired }

// Build pairs heavy supervisors with light ones and lays each pair's
// projects out back to back in a single classroom.
func (pairedConsecutive) Build(b *builder) {
	inst := b.inst
	order := make([]int, inst.NumInstructors())
	for idx := range order {
		order[idx] = idx
	}
	order = b.shuffled(order)
	sort.SliceStable(order, func(i, j int) bool {
		return inst.ResponsibleLoad(order[i]) > inst.ResponsibleLoad(order[j])
	})

	mid := (len(order) + 1) / 2
	upper, lower := order[:mid], order[mid:]
	room := b.rng.Intn(inst.NumClassrooms())
	for idx, first := range upper {
		second := -1
		if idx < len(lower) {
			second = lower[idx]
		}
		if len(inst.ProjectsOf(first)) == 0 && (second < 0 || len(inst.ProjectsOf(second)) == 0) {
			continue
		}

		room = b.roomWithSpace(room)
		next := 0
		for _, owner := range []int{first, second} {
			if owner < 0 {
				continue
			}
			partner := second
			if owner == second {
				partner = first
			}
			for _, project := range inst.ProjectsOf(owner) {
				members := []int{owner}
				if inst.IsFinal(project) && partner >= 0 {
					members = append(members, partner)
				}
				at, ok := b.occ.nextInRoom(room, next, members)
				if !ok {
					at, ok = b.occ.nextInRoom(room, next, members[:1])
				}
				if !ok {
					at, ok = b.occ.findCell(members[:1], room)
				}
				if !ok {
					continue
				}
				b.place(project, at, partner)
				if at.room == room {
					next = at.slot + 1
				}
			}
		}
		room = (room + 1) % inst.NumClassrooms()
	}
}

// roomWithSpace starts at the given classroom and returns the first one that
// still has a free cell, falling back to the start.
func (b *builder) roomWithSpace(start int) int {
	rooms := b.inst.NumClassrooms()
	for offset := 0; offset < rooms; offset++ {
		room := (start + offset) % rooms
		if b.occ.roomFreeCount(room) > 0 {
			return room
		}
	}
	return start
}

type greedyEarliest struct{}

func (greedyEarliest) Name() string { return StrategyGreedy }

// Build places finals first, each into the earliest cell its supervisor can take.
func (greedyEarliest) Build(b *builder) {
	projects := make([]int, b.inst.NumProjects())
	for idx := range projects {
		projects[idx] = idx
	}
	projects = b.shuffled(projects)
	sort.SliceStable(projects, func(i, j int) bool {
		return b.inst.IsFinal(projects[i]) && !b.inst.IsFinal(projects[j])
	})
	for _, project := range projects {
		if at, ok := b.occ.findCell([]int{b.inst.Responsible(project)}, -1); ok {
			b.place(project, at, -1)
		}
	}
}

type uniformRandom struct{}

func (uniformRandom) Name() string { return StrategyRandom }

// Build walks a shuffled list of cells, skipping those that would double-book.
func (uniformRandom) Build(b *builder) {
	inst := b.inst
	cells := make([]cell, 0, inst.NumClassrooms()*inst.NumTimeslots())
	for room := 0; room < inst.NumClassrooms(); room++ {
		for slot := 0; slot < inst.NumTimeslots(); slot++ {
			cells = append(cells, cell{room: room, slot: slot})
		}
	}
	b.rng.Shuffle(len(cells), func(i, j int) { cells[i], cells[j] = cells[j], cells[i] })

	projects := make([]int, inst.NumProjects())
	for idx := range projects {
		projects[idx] = idx
	}
	for _, project := range b.shuffled(projects) {
		owner := inst.Responsible(project)
		for _, at := range cells {
			if b.occ.roomFree(at) && b.occ.instructorFree(owner, at.slot) {
				b.place(project, at, -1)
				break
			}
		}
	}
}
