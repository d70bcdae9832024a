package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/defense-scheduler/internal/models"
	appErrors "github.com/noah-isme/defense-scheduler/pkg/errors"
)

func TestProposalRepositoryWithoutRedis(t *testing.T) {
	cache := NewCacheRepository(nil, nil)
	repo := NewProposalRepository(cache, 0)
	ctx := context.Background()

	assert.False(t, cache.Enabled())
	require.NoError(t, repo.Save(ctx, &models.DefenseProposal{ID: "prop-1"}))
	_, err := repo.Get(ctx, "prop-1")
	assert.True(t, appErrors.Is(err, appErrors.ErrCacheMiss))
	assert.NoError(t, repo.Delete(ctx, "prop-1"))
	assert.NoError(t, cache.Close())
}

func TestProposalRepositoryRequiresID(t *testing.T) {
	repo := NewProposalRepository(NewCacheRepository(nil, nil), 0)
	assert.Error(t, repo.Save(context.Background(), &models.DefenseProposal{}))
	assert.Equal(t, "defense:proposal:abc", proposalKey("abc"))
}
