package scheduler

// Weights maps every score component to its current weight.
type Weights [componentCount]float64

// DefaultWeights is where every run starts learning from.
func DefaultWeights() Weights {
	return Weights{
		ComponentCoverage:    3.0,
		ComponentConsecutive: 1.0,
		ComponentBalance:     1.0,
		ComponentStability:   1.0,
		ComponentJury:        2.0,
		ComponentCompaction:  0.5,
		ComponentEarly:       0.5,
	}
}

// Map returns the weights keyed by component name.
func (w Weights) Map() map[string]float64 {
	out := make(map[string]float64, componentCount)
	for comp := Component(0); comp < componentCount; comp++ {
		out[comp.String()] = w[comp]
	}
	return out
}

const (
	MinWeight       = 0.05
	MaxWeight       = 10.0
	LearningRate    = 0.1
	PatternBonusMax = 5.0
)

type instructorPair struct{ a, b int }

type instructorRoom struct{ instructor, room int }

// LearningState is the per-run memory of the fitness function: its weights
// and the instructor pairs and classrooms seen in earlier best candidates.
// It is mutated only between generations; evaluation only reads it.
type LearningState struct {
	Weights Weights
	Rate    float64

	pairs   map[instructorPair]int
	rooms   map[instructorRoom]int
	updates int
	version int
}

// NewLearningState starts learning from the given weights.
func NewLearningState(weights Weights) *LearningState {
	for comp := range weights {
		weights[comp] = clampWeight(weights[comp])
	}
	return &LearningState{
		Weights: weights,
		Rate:    LearningRate,
		pairs:   make(map[instructorPair]int),
		rooms:   make(map[instructorRoom]int),
	}
}

// Clone returns an independent copy of the weights and pattern memory.
func (s *LearningState) Clone() *LearningState {
	out := &LearningState{
		Weights: s.Weights,
		Rate:    s.Rate,
		pairs:   make(map[instructorPair]int, len(s.pairs)),
		rooms:   make(map[instructorRoom]int, len(s.rooms)),
		updates: s.updates,
		version: s.version,
	}
	for k, v := range s.pairs {
		out.pairs[k] = v
	}
	for k, v := range s.rooms {
		out.rooms[k] = v
	}
	return out
}

// Updates counts the best candidates remembered so far.
func (s *LearningState) Updates() int { return s.updates }

// Version changes every time weights or pattern memory change.
func (s *LearningState) Version() int { return s.version }

// Learn moves each weight toward its component's share of the new best
// score using a bounded moving average.
func (s *LearningState) Learn(b Breakdown) {
	var total, scale float64
	var contrib Weights
	for comp := Component(0); comp < componentCount; comp++ {
		if v := s.Weights[comp] * b.Values[comp]; v > 0 {
			contrib[comp] = v
			total += v
		}
		scale += s.Weights[comp]
	}
	if total <= 0 {
		return
	}
	for comp := Component(0); comp < componentCount; comp++ {
		target := contrib[comp] / total * scale
		s.Weights[comp] = clampWeight((1-s.Rate)*s.Weights[comp] + s.Rate*target)
	}
	s.version++
}

// Remember records the jury pairings and supervisor classrooms of a best candidate.
func (s *LearningState) Remember(c *Candidate) {
	if c == nil {
		return
	}
	for _, a := range c.Assignments {
		s.rooms[instructorRoom{instructor: a.Responsible, room: a.Classroom}]++
		for _, id := range a.Panel() {
			s.pairs[orderedPair(a.Responsible, id)]++
		}
	}
	s.updates++
	s.version++
}

// PatternBonus rewards pairings and classrooms that appeared in earlier best
// candidates, bounded by PatternBonusMax.
func (s *LearningState) PatternBonus(c *Candidate) float64 {
	if s == nil || s.updates == 0 || c == nil || len(c.Assignments) == 0 {
		return 0
	}
	hits := 0
	for _, a := range c.Assignments {
		if s.rooms[instructorRoom{instructor: a.Responsible, room: a.Classroom}] > 0 {
			hits++
		}
		for _, id := range a.Panel() {
			if s.pairs[orderedPair(a.Responsible, id)] > 0 {
				hits++
				break
			}
		}
	}
	return PatternBonusMax * float64(hits) / float64(2*len(c.Assignments))
}

func orderedPair(a, b int) instructorPair {
	if a > b {
		a, b = b, a
	}
	return instructorPair{a: a, b: b}
}

func clampWeight(w float64) float64 {
	switch {
	case w != w || w < MinWeight:
		return MinWeight
	case w > MaxWeight:
		return MaxWeight
	default:
		return w
	}
}
