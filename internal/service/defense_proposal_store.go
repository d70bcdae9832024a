package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/noah-isme/defense-scheduler/internal/models"
	appErrors "github.com/noah-isme/defense-scheduler/pkg/errors"
)

// memoryProposalStore keeps proposals in process when Redis is disabled.
// Entries expire ttl after their last update.
type memoryProposalStore struct {
	ttl   time.Duration
	now   func() time.Time
	mu    sync.RWMutex
	items map[string]models.DefenseProposal
}

func newMemoryProposalStore(ttl time.Duration) *memoryProposalStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &memoryProposalStore{
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]models.DefenseProposal),
	}
}

func (s *memoryProposalStore) Save(_ context.Context, proposal *models.DefenseProposal) error {
	if proposal == nil || proposal.ID == "" {
		return fmt.Errorf("proposal id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[proposal.ID] = *proposal
	return nil
}

func (s *memoryProposalStore) Get(ctx context.Context, id string) (*models.DefenseProposal, error) {
	s.mu.RLock()
	proposal, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return nil, appErrors.ErrCacheMiss
	}
	if s.now().Sub(proposal.UpdatedAt) > s.ttl {
		_ = s.Delete(ctx, id)
		return nil, appErrors.ErrCacheMiss
	}
	return &proposal, nil
}

func (s *memoryProposalStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
	return nil
}
