package dto

import (
	"time"

	"github.com/noah-isme/defense-scheduler/internal/models"
)

// OptimizeOptions overrides the configured optimizer settings for one run.
// Nil fields keep the server defaults.
type OptimizeOptions struct {
	PopulationSize     *int     `json:"population_size" validate:"omitempty,min=2,max=1000"`
	Generations        *int     `json:"generations" validate:"omitempty,min=1,max=5000"`
	MutationRate       *float64 `json:"mutation_rate" validate:"omitempty,gte=0,lte=1"`
	CrossoverRate      *float64 `json:"crossover_rate" validate:"omitempty,gte=0,lte=1"`
	EliteCount         *int     `json:"elite_count" validate:"omitempty,min=0"`
	Selection          *string  `json:"selection" validate:"omitempty,oneof=tournament roulette"`
	Crossover          *string  `json:"crossover" validate:"omitempty,oneof=uniform single_point"`
	CoveragePolicy     *string  `json:"coverage_policy" validate:"omitempty,oneof=coverage_first conflict_free"`
	EnableLocalSearch  *bool    `json:"enable_local_search"`
	EnableGapFilling   *bool    `json:"enable_gap_filling"`
	EnableEarlyShift   *bool    `json:"enable_early_shift"`
	MaxDurationSeconds *int     `json:"max_duration_seconds" validate:"omitempty,min=1,max=3600"`
	Seed               *int64   `json:"seed"`
}

// OptimizeRequest starts an optimization run. Without a dataset the inputs
// are loaded from the defense tables.
type OptimizeRequest struct {
	Label   string                 `json:"label" validate:"omitempty,max=120"`
	Dataset *models.DefenseDataset `json:"dataset" validate:"omitempty"`
	Options OptimizeOptions        `json:"options"`
}

// OptimizeJobResponse acknowledges an asynchronous run.
type OptimizeJobResponse struct {
	JobID  string                `json:"job_id"`
	Status models.ProposalStatus `json:"status"`
}

// ProposalResponse is the public view of a proposal.
type ProposalResponse struct {
	ProposalID  string                    `json:"proposal_id"`
	Label       string                    `json:"label,omitempty"`
	Status      models.ProposalStatus     `json:"status"`
	Assignments []models.AssignmentRecord `json:"assignments"`
	Metrics     *models.ScheduleMetrics   `json:"metrics,omitempty"`
	Resolution  *models.ResolutionSummary `json:"resolution,omitempty"`
	Warnings    []string                  `json:"warnings,omitempty"`
	Error       string                    `json:"error,omitempty"`
	CreatedAt   time.Time                 `json:"created_at"`
}

// NewProposalResponse strips internal fields from a proposal.
func NewProposalResponse(p *models.DefenseProposal) *ProposalResponse {
	if p == nil {
		return nil
	}
	assignments := p.Assignments
	if assignments == nil {
		assignments = []models.AssignmentRecord{}
	}
	return &ProposalResponse{
		ProposalID:  p.ID,
		Label:       p.Label,
		Status:      p.Status,
		Assignments: assignments,
		Metrics:     p.Metrics,
		Resolution:  p.Resolution,
		Warnings:    p.Warnings,
		Error:       p.Error,
		CreatedAt:   p.CreatedAt,
	}
}

// SaveDefenseScheduleRequest persists a proposal as a schedule version.
type SaveDefenseScheduleRequest struct {
	ProposalID string `json:"proposal_id" validate:"required"`
	Label      string `json:"label" validate:"omitempty,max=120"`
}

// DefenseScheduleQuery filters stored schedules.
type DefenseScheduleQuery struct {
	Label  string `form:"label" json:"label"`
	Status string `form:"status" json:"status" validate:"omitempty,oneof=DRAFT PUBLISHED ARCHIVED"`
}

// ExportQuery selects the export encoding.
type ExportQuery struct {
	Format string `form:"format" json:"format" validate:"omitempty,oneof=csv pdf"`
}
