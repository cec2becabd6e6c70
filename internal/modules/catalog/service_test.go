package catalog

import (
	"context"
	"testing"

	"github.com/aristath/atelier/internal/domain"
	"github.com/aristath/atelier/internal/querycache"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_ReadsThroughCache(t *testing.T) {
	repo := newTestRepository(t)
	log := zerolog.New(nil).Level(zerolog.Disabled)
	cache := querycache.New(0, log)
	service := NewService(repo, cache, log)
	ctx := context.Background()

	authors, err := service.Authors(ctx)
	require.NoError(t, err)
	require.Len(t, authors, 2)

	// a write behind the cache's back is not visible until invalidation
	_, err = repo.db.Exec("INSERT INTO authors (name) VALUES ('Choi')")
	require.NoError(t, err)

	authors, err = service.Authors(ctx)
	require.NoError(t, err)
	assert.Len(t, authors, 2)

	cache.Invalidate(querycache.KeyAuthors)
	authors, err = service.Authors(ctx)
	require.NoError(t, err)
	assert.Len(t, authors, 3)
}

func TestService_FormForEvent(t *testing.T) {
	repo := newTestRepository(t)
	log := zerolog.New(nil).Level(zerolog.Disabled)
	service := NewService(repo, querycache.New(0, log), log)
	ctx := context.Background()

	form, err := service.FormForEvent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), form.ID)
	require.Len(t, form.Repairs, 4)
	require.NotNil(t, form.Repairs[0].Standards)

	// second read comes from the cache and decodes identically
	again, err := service.FormForEvent(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, form.Repairs, again.Repairs)
	require.Len(t, again.Categories, 2)
	assert.Equal(t, "Bride Hanbok", again.Categories[0].Products[0].Name)
	assert.Empty(t, again.Categories[1].Products[0].Attributes)

	_, err = service.FormForEvent(ctx, 3)
	var verr *domain.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestService_WithoutCache(t *testing.T) {
	repo := newTestRepository(t)
	service := NewService(repo, nil, zerolog.Nop())

	categories, err := service.Categories(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, categories, 3)
}
