package scheduler

import (
	"math"
	"sort"
	"time"

	"github.com/samber/lo"

	"github.com/noah-isme/defense-scheduler/internal/models"
)

// Records converts a candidate into exported assignment records ordered by
// timeslot, then classroom.
func Records(inst *Instance, c *Candidate) []models.AssignmentRecord {
	if c == nil {
		return nil
	}
	sorted := append([]Assignment(nil), c.Assignments...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Timeslot != sorted[j].Timeslot {
			return sorted[i].Timeslot < sorted[j].Timeslot
		}
		return sorted[i].Classroom < sorted[j].Classroom
	})
	records := make([]models.AssignmentRecord, 0, len(sorted))
	for _, a := range sorted {
		if !inst.validAssignment(&a) {
			continue
		}
		record := models.AssignmentRecord{
			ProjectID:     inst.Projects[a.Project].ID,
			ClassroomID:   inst.Classrooms[a.Classroom].ID,
			TimeslotID:    inst.Timeslots[a.Timeslot].ID,
			ResponsibleID: inst.Instructors[a.Responsible].ID,
			Makeup:        inst.Projects[a.Project].Makeup,
		}
		for _, m := range a.Jury {
			id, ok := m.Instructor()
			if !ok {
				record.Placeholders++
				continue
			}
			record.JuryIDs = append(record.JuryIDs, inst.Instructors[id].ID)
		}
		records = append(records, record)
	}
	return records
}

// ConflictRecords exports conflicts with entity identifiers.
func ConflictRecords(inst *Instance, conflicts []Conflict) []models.ConflictRecord {
	return lo.Map(conflicts, func(cf Conflict, _ int) models.ConflictRecord {
		record := models.ConflictRecord{
			Kind:     cf.Kind,
			Severity: cf.Severity,
			Strategy: cf.Strategy,
			Resolved: cf.Resolved,
			ProjectIDs: lo.Map(cf.Projects, func(p int, _ int) string {
				return inst.Projects[p].ID
			}),
		}
		if cf.Timeslot >= 0 && cf.Timeslot < inst.NumTimeslots() {
			record.TimeslotID = inst.Timeslots[cf.Timeslot].ID
		}
		if cf.Instructor >= 0 && cf.Instructor < inst.NumInstructors() {
			record.InstructorID = inst.Instructors[cf.Instructor].ID
		}
		if cf.Classroom >= 0 && cf.Classroom < inst.NumClassrooms() {
			record.ClassroomID = inst.Classrooms[cf.Classroom].ID
		}
		return record
	})
}

// ComputeMetrics summarises a final schedule.
func ComputeMetrics(inst *Instance, c *Candidate, weights Weights, elapsed time.Duration) models.ScheduleMetrics {
	metrics := models.ScheduleMetrics{
		TotalProjects: inst.NumProjects(),
		Weights:       weights.Map(),
		Elapsed:       elapsed,
		ElapsedMillis: elapsed.Milliseconds(),
	}
	if c == nil || len(c.Assignments) == 0 {
		return metrics
	}
	metrics.AssignedProjects = c.Coverage()
	metrics.Coverage = float64(metrics.AssignedProjects) / float64(inst.NumProjects())

	eval := NewEvaluator(inst)
	assignments := lo.Map(c.Assignments, func(_ Assignment, idx int) *Assignment { return &c.Assignments[idx] })
	placements := eval.instructorPlacements(lo.Filter(assignments, func(a *Assignment, _ int) bool {
		return inst.validAssignment(a)
	}))
	metrics.Consecutiveness = consecutiveness(placements)

	loads := lo.Map(placements, func(list []placement, _ int) float64 { return float64(len(list)) })
	mean, std := meanStdDev(loads)
	metrics.Load = models.LoadStats{
		Min:    int(lo.Min(loads)),
		Max:    int(lo.Max(loads)),
		Mean:   round2(mean),
		StdDev: round2(std),
	}
	for _, list := range placements {
		for idx := 1; idx < len(list); idx++ {
			if list[idx].room != list[idx-1].room {
				metrics.ClassroomChanges++
			}
		}
	}
	metrics.JuryAssignments = lo.SumBy(c.Assignments, func(a Assignment) int { return len(a.Panel()) })
	return metrics
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
