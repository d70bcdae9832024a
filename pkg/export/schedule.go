package export

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/defense-scheduler/internal/models"
)

// ScheduleRow is one line of an exported defense schedule.
type ScheduleRow struct {
	Start       string `csv:"start"`
	Timeslot    string `csv:"timeslot_id"`
	Classroom   string `csv:"classroom"`
	ProjectID   string `csv:"project_id"`
	Title       string `csv:"title"`
	Responsible string `csv:"responsible"`
	Jury        string `csv:"jury"`
	Missing     int    `csv:"missing_jury"`
	Makeup      bool   `csv:"makeup"`
}

// Document is a rendered schedule with a title and optional summary lines.
type Document struct {
	Title   string
	Summary []string
	Rows    []ScheduleRow
}

// BuildRows resolves identifiers against the dataset when one is given and
// orders rows chronologically, then by classroom.
func BuildRows(records []models.AssignmentRecord, ds *models.DefenseDataset) []ScheduleRow {
	names := newLookup(ds)
	rows := make([]ScheduleRow, 0, len(records))
	for _, record := range records {
		jury := make([]string, 0, len(record.JuryIDs))
		for _, id := range record.JuryIDs {
			if id == record.ResponsibleID {
				continue
			}
			jury = append(jury, names.instructor(id))
		}
		rows = append(rows, ScheduleRow{
			Start:       names.start(record.TimeslotID),
			Timeslot:    record.TimeslotID,
			Classroom:   names.classroom(record.ClassroomID),
			ProjectID:   record.ProjectID,
			Title:       names.titles[record.ProjectID],
			Responsible: names.instructor(record.ResponsibleID),
			Jury:        strings.Join(jury, "; "),
			Missing:     record.Placeholders,
			Makeup:      record.Makeup,
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if names.order[rows[i].Timeslot] != names.order[rows[j].Timeslot] {
			return names.order[rows[i].Timeslot] < names.order[rows[j].Timeslot]
		}
		return rows[i].Classroom < rows[j].Classroom
	})
	return rows
}

type lookup struct {
	instructors map[string]string
	classrooms  map[string]string
	titles      map[string]string
	starts      map[string]time.Time
	order       map[string]int
}

func newLookup(ds *models.DefenseDataset) lookup {
	l := lookup{
		instructors: map[string]string{},
		classrooms:  map[string]string{},
		titles:      map[string]string{},
		starts:      map[string]time.Time{},
		order:       map[string]int{},
	}
	if ds == nil {
		return l
	}
	for _, item := range ds.Instructors {
		l.instructors[item.ID] = item.Name
	}
	for _, item := range ds.Classrooms {
		l.classrooms[item.ID] = item.Name
	}
	for _, item := range ds.Projects {
		l.titles[item.ID] = item.Title
	}
	slots := append([]models.Timeslot(nil), ds.Timeslots...)
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].StartTime.Before(slots[j].StartTime) })
	for idx, item := range slots {
		l.starts[item.ID] = item.StartTime
		l.order[item.ID] = idx
	}
	return l
}

func (l lookup) instructor(id string) string {
	if name := l.instructors[id]; name != "" {
		return name
	}
	return id
}

func (l lookup) classroom(id string) string {
	if name := l.classrooms[id]; name != "" {
		return name
	}
	return id
}

func (l lookup) start(id string) string {
	if start, ok := l.starts[id]; ok && !start.IsZero() {
		return start.Format("2006-01-02 15:04")
	}
	return ""
}

// Summary renders the header lines printed above an exported schedule.
func Summary(metrics *models.ScheduleMetrics, resolution *models.ResolutionSummary, warnings []string) []string {
	var lines []string
	if metrics != nil {
		lines = append(lines,
			fmt.Sprintf("Coverage: %d of %d projects (%.1f%%)", metrics.AssignedProjects, metrics.TotalProjects, metrics.Coverage*100),
			fmt.Sprintf("Score: %.2f after %d generations", metrics.BestScore, metrics.Generations),
		)
	}
	if resolution != nil {
		lines = append(lines, fmt.Sprintf("Conflicts: %d detected, %d resolved", resolution.Detected, resolution.Resolved))
	}
	return append(lines, warnings...)
}
