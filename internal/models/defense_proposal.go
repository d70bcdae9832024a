package models

import "time"

// ProposalStatus tracks an optimization run from enqueue to result.
type ProposalStatus string

const (
	ProposalStatusPending ProposalStatus = "PENDING"
	ProposalStatusRunning ProposalStatus = "RUNNING"
	ProposalStatusReady   ProposalStatus = "READY"
	ProposalStatusFailed  ProposalStatus = "FAILED"
)

// DefenseProposal is an unsaved optimization result kept in the proposal
// cache until it is saved or expires. Dataset is retained so the proposal
// can be exported and persisted without reloading inputs.
type DefenseProposal struct {
	ID          string             `json:"id"`
	Label       string             `json:"label,omitempty"`
	Status      ProposalStatus     `json:"status"`
	Assignments []AssignmentRecord `json:"assignments,omitempty"`
	Metrics     *ScheduleMetrics   `json:"metrics,omitempty"`
	Resolution  *ResolutionSummary `json:"resolution,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
	Error       string             `json:"error,omitempty"`
	Dataset     *DefenseDataset    `json:"dataset,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Ready reports whether the proposal carries a finished schedule.
func (p *DefenseProposal) Ready() bool {
	return p != nil && p.Status == ProposalStatusReady
}
