package catalog

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aristath/atelier/internal/domain"
	"github.com/aristath/atelier/internal/querycache"
	"github.com/rs/zerolog"
)

// Service serves catalog reads through the shared query cache
type Service struct {
	repo  *Repository
	cache *querycache.Cache
	log   zerolog.Logger
}

// NewService creates a catalog service. cache may be nil to always read
// through.
func NewService(repo *Repository, cache *querycache.Cache, log zerolog.Logger) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
		log:   log.With().Str("service", "catalog").Logger(),
	}
}

func fetch[T any](ctx context.Context, s *Service, key string, load func(context.Context) (T, error)) (T, error) {
	if s.cache == nil {
		return load(ctx)
	}
	return querycache.Fetch(ctx, s.cache, key, load)
}

// Authors returns every author
func (s *Service) Authors(ctx context.Context) ([]Author, error) {
	return fetch(ctx, s, querycache.KeyAuthors, s.repo.Authors)
}

// Affiliations returns every affiliation
func (s *Service) Affiliations(ctx context.Context) ([]Affiliation, error) {
	return fetch(ctx, s, querycache.KeyAffiliations, s.repo.Affiliations)
}

// Categories returns categories with products, optionally only those a
// form offers
func (s *Service) Categories(ctx context.Context, formID *int64) ([]Category, error) {
	key := querycache.KeyCategories
	if formID != nil {
		key += "?form_id=" + strconv.FormatInt(*formID, 10)
	}
	return fetch(ctx, s, key, func(ctx context.Context) ([]Category, error) {
		return s.repo.Categories(ctx, formID)
	})
}

// Events returns events, newest first
func (s *Service) Events(ctx context.Context, inProgressOnly bool) ([]Event, error) {
	key := querycache.KeyEvents
	if inProgressOnly {
		key += "?in_progress=1"
	}
	return fetch(ctx, s, key, func(ctx context.Context) ([]Event, error) {
		return s.repo.Events(ctx, inProgressOnly)
	})
}

// Event returns one event
func (s *Service) Event(ctx context.Context, id int64) (*Event, error) {
	return fetch(ctx, s, fmt.Sprintf("%s/%d", querycache.KeyEvents, id), func(ctx context.Context) (*Event, error) {
		return s.repo.Event(ctx, id)
	})
}

// Form returns one form with its baselines and categories
func (s *Service) Form(ctx context.Context, id int64) (*Form, error) {
	return fetch(ctx, s, fmt.Sprintf("%s/%d", querycache.KeyForms, id), func(ctx context.Context) (*Form, error) {
		return s.repo.Form(ctx, id)
	})
}

// FormForEvent returns the form attached to an event
func (s *Service) FormForEvent(ctx context.Context, eventID int64) (*Form, error) {
	event, err := s.Event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.FormID == nil {
		return nil, domain.NewValidationError("event_id", fmt.Sprintf("event %d has no form", eventID))
	}
	return s.Form(ctx, *event.FormID)
}
