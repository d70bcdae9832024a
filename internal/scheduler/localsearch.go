package scheduler

import "math/rand"

// localSearch hill-climbs the top decile of a sorted population and returns
// the number of accepted moves.
func (e *Engine) localSearch(pop []*Candidate) int {
	top := max(1, len(pop)/10)
	improved := 0
	for idx := 0; idx < top; idx++ {
		current := pop[idx]
		if !current.scored || current.version != e.learning.Version() {
			e.score(current)
		}
		for try := 0; try < e.cfg.LocalSearchTries; try++ {
			neighbor := current.Clone()
			if !neighborMove(neighbor, e.inst, e.rng) {
				continue
			}
			e.score(neighbor)
			if neighbor.Score > current.Score {
				current = neighbor
				improved++
			}
		}
		pop[idx] = current
	}
	return improved
}

// neighborMove applies a swap or a one-step shift within the same classroom.
func neighborMove(c *Candidate, inst *Instance, rng *rand.Rand) bool {
	if len(c.Assignments) == 0 {
		return false
	}
	if rng.Intn(2) == 0 {
		return swapTimeslots{}.Mutate(c, inst, rng)
	}
	a := &c.Assignments[rng.Intn(len(c.Assignments))]
	step := 1
	if rng.Intn(2) == 0 {
		step = -1
	}
	target := cell{room: a.Classroom, slot: a.Timeslot + step}
	if target.slot < 0 || target.slot >= inst.NumTimeslots() {
		return false
	}
	occ := occupancyOf(inst, c)
	occ.remove(a)
	if !occ.roomFree(target) || !occ.membersFree(a.Members(), target.slot) {
		return false
	}
	a.Timeslot = target.slot
	c.invalidate()
	return true
}
