package csvio

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gocarina/gocsv"

	"github.com/noah-isme/defense-scheduler/internal/models"
)

// Paths locates the four input files of an optimization run.
type Paths struct {
	Projects    string
	Instructors string
	Classrooms  string
	Timeslots   string
}

// LoadDataset reads every input file with the given delimiter.
func LoadDataset(paths Paths, delim rune) (models.DefenseDataset, error) {
	var ds models.DefenseDataset
	if err := loadFile(paths.Projects, delim, &ds.Projects); err != nil {
		return ds, err
	}
	if err := loadFile(paths.Instructors, delim, &ds.Instructors); err != nil {
		return ds, err
	}
	if err := loadFile(paths.Classrooms, delim, &ds.Classrooms); err != nil {
		return ds, err
	}
	if err := loadFile(paths.Timeslots, delim, &ds.Timeslots); err != nil {
		return ds, err
	}
	normalize(&ds)
	return ds, nil
}

// Read decodes one collection from r. out must point to a slice of models.
func Read(r io.Reader, delim rune, out interface{}) error {
	reader := csv.NewReader(r)
	reader.Comma = delim
	reader.TrimLeadingSpace = true
	if err := gocsv.UnmarshalCSV(reader, out); err != nil {
		return err
	}
	return nil
}

func loadFile(path string, delim rune, out interface{}) error {
	if path == "" {
		return fmt.Errorf("input path is empty")
	}
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()
	if err := Read(file, delim, out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// normalize lower-cases enum columns so "Final" and "final" both load.
func normalize(ds *models.DefenseDataset) {
	for idx := range ds.Projects {
		p := &ds.Projects[idx]
		p.Type = models.ProjectType(strings.ToLower(strings.TrimSpace(string(p.Type))))
	}
	for idx := range ds.Instructors {
		i := &ds.Instructors[idx]
		i.Category = models.InstructorCategory(strings.ToLower(strings.TrimSpace(string(i.Category))))
	}
}
