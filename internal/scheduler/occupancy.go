package scheduler

import "math/rand"

// cell is a (classroom, timeslot) pair.
type cell struct {
	room int
	slot int
}

// occupancy tracks who and what is busy when. Placement lookups return
// (cell, bool); a missing slot is an ordinary branch.
type occupancy struct {
	inst    *Instance
	rooms   [][]int
	busy    [][]int
	perSlot []int
	seats   []int
}

func newOccupancy(inst *Instance) *occupancy {
	o := &occupancy{
		inst:    inst,
		rooms:   make([][]int, inst.NumClassrooms()),
		busy:    make([][]int, inst.NumInstructors()),
		perSlot: make([]int, inst.NumTimeslots()),
		seats:   make([]int, inst.NumInstructors()),
	}
	for idx := range o.rooms {
		o.rooms[idx] = make([]int, inst.NumTimeslots())
	}
	for idx := range o.busy {
		o.busy[idx] = make([]int, inst.NumTimeslots())
	}
	return o
}

func occupancyOf(inst *Instance, c *Candidate) *occupancy {
	o := newOccupancy(inst)
	for idx := range c.Assignments {
		o.add(&c.Assignments[idx])
	}
	return o
}

func (o *occupancy) add(a *Assignment) { o.apply(a, 1) }

func (o *occupancy) remove(a *Assignment) { o.apply(a, -1) }

func (o *occupancy) apply(a *Assignment, delta int) {
	if !o.inst.validAssignment(a) {
		return
	}
	o.rooms[a.Classroom][a.Timeslot] += delta
	o.perSlot[a.Timeslot] += delta
	for _, m := range a.Jury {
		if id, ok := m.Instructor(); ok && id < len(o.busy) {
			o.busy[id][a.Timeslot] += delta
			o.seats[id] += delta
		}
	}
}

// roomFree reports whether a cell is empty and its timeslot has spare capacity.
func (o *occupancy) roomFree(at cell) bool {
	return o.rooms[at.room][at.slot] == 0 && o.perSlot[at.slot] < o.inst.Capacity(at.slot)
}

func (o *occupancy) instructorFree(instructor, slot int) bool {
	return o.busy[instructor][slot] == 0
}

func (o *occupancy) membersFree(members []int, slot int) bool {
	for _, id := range members {
		if !o.instructorFree(id, slot) {
			return false
		}
	}
	return true
}

// findCell returns the chronologically first free cell where every member is
// free, trying the preferred classroom first at each timeslot.
func (o *occupancy) findCell(members []int, preferRoom int) (cell, bool) {
	return o.findCellIn(members, preferRoom, 0, o.inst.NumTimeslots())
}

func (o *occupancy) findCellIn(members []int, preferRoom, fromSlot, toSlot int) (cell, bool) {
	for slot := fromSlot; slot < toSlot; slot++ {
		if !o.membersFree(members, slot) {
			continue
		}
		if preferRoom >= 0 && o.roomFree(cell{room: preferRoom, slot: slot}) {
			return cell{room: preferRoom, slot: slot}, true
		}
		for room := 0; room < o.inst.NumClassrooms(); room++ {
			if room != preferRoom && o.roomFree(cell{room: room, slot: slot}) {
				return cell{room: room, slot: slot}, true
			}
		}
	}
	return cell{}, false
}

// nextInRoom finds the first free timeslot at or after fromSlot in one classroom.
func (o *occupancy) nextInRoom(room, fromSlot int, members []int) (cell, bool) {
	for slot := fromSlot; slot < o.inst.NumTimeslots(); slot++ {
		at := cell{room: room, slot: slot}
		if o.roomFree(at) && o.membersFree(members, slot) {
			return at, true
		}
	}
	return cell{}, false
}

// randomCell picks uniformly among the free cells where every member is free.
func (o *occupancy) randomCell(members []int, rng *rand.Rand) (cell, bool) {
	var options []cell
	for slot := 0; slot < o.inst.NumTimeslots(); slot++ {
		if !o.membersFree(members, slot) {
			continue
		}
		for room := 0; room < o.inst.NumClassrooms(); room++ {
			if at := (cell{room: room, slot: slot}); o.roomFree(at) {
				options = append(options, at)
			}
		}
	}
	if len(options) == 0 {
		return cell{}, false
	}
	return options[rng.Intn(len(options))], true
}

// anyFreeCell ignores instructors entirely.
func (o *occupancy) anyFreeCell() (cell, bool) {
	return o.findCell(nil, -1)
}

// freeInstructor returns the least loaded instructor free at slot that is
// not excluded. Ties break randomly when rng is set.
func (o *occupancy) freeInstructor(slot int, exclude func(int) bool, rng *rand.Rand) (int, bool) {
	best, bestSeats, ties := -1, 0, 0
	for id := 0; id < o.inst.NumInstructors(); id++ {
		if exclude != nil && exclude(id) {
			continue
		}
		if !o.instructorFree(id, slot) {
			continue
		}
		seats := o.seats[id]
		switch {
		case best < 0 || seats < bestSeats:
			best, bestSeats, ties = id, seats, 1
		case seats == bestSeats:
			ties++
			if rng != nil && rng.Intn(ties) == 0 {
				best = id
			}
		}
	}
	return best, best >= 0
}

// roomFreeCount counts empty cells in a classroom.
func (o *occupancy) roomFreeCount(room int) int {
	count := 0
	for slot := 0; slot < o.inst.NumTimeslots(); slot++ {
		if o.roomFree(cell{room: room, slot: slot}) {
			count++
		}
	}
	return count
}
