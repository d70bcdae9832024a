package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/noah-isme/defense-scheduler/internal/models"
)

const proposalKeyPrefix = "defense:proposal:"

// ProposalRepository keeps unsaved optimization proposals in Redis until
// they expire.
type ProposalRepository struct {
	cache *CacheRepository
	ttl   time.Duration
}

// NewProposalRepository builds the repository. Non-positive TTLs fall back
// to thirty minutes.
func NewProposalRepository(cache *CacheRepository, ttl time.Duration) *ProposalRepository {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &ProposalRepository{cache: cache, ttl: ttl}
}

func proposalKey(id string) string { return proposalKeyPrefix + id }

// Save stores or refreshes a proposal, resetting its TTL.
func (r *ProposalRepository) Save(ctx context.Context, proposal *models.DefenseProposal) error {
	if proposal == nil || proposal.ID == "" {
		return fmt.Errorf("proposal id is required")
	}
	return r.cache.Set(ctx, proposalKey(proposal.ID), proposal, r.ttl)
}

// Get loads a proposal. Unknown or expired ids return ErrCacheMiss.
func (r *ProposalRepository) Get(ctx context.Context, id string) (*models.DefenseProposal, error) {
	var proposal models.DefenseProposal
	if err := r.cache.Get(ctx, proposalKey(id), &proposal); err != nil {
		return nil, err
	}
	return &proposal, nil
}

// Delete drops a proposal once it has been saved.
func (r *ProposalRepository) Delete(ctx context.Context, id string) error {
	return r.cache.Delete(ctx, proposalKey(id))
}
