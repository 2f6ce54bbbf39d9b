package template

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/notify-api/internal/model"
	"github.com/jwalitptl/notify-api/internal/repository"
	"github.com/jwalitptl/notify-api/pkg/logger"
)

// ErrTemplateNotFound means no active template exists for the given key.
var ErrTemplateNotFound = errors.New("template not found")

const (
	cacheTTL     = time.Hour
	cacheCleanup = 10 * time.Minute
)

// Store resolves template keys to active templates and owns the operator
// CRUD surface. Resolution is backed by an in-process cache; every write
// through the store invalidates the cached entry for that key.
type Store struct {
	repo   repository.TemplateRepository
	cache  *cache.Cache
	logger *logger.Logger
}

func NewStore(repo repository.TemplateRepository, logger *logger.Logger) *Store {
	return &Store{
		repo:   repo,
		cache:  cache.New(cacheTTL, cacheCleanup),
		logger: logger,
	}
}

// Resolve returns the active template for key. Lookup is exact and
// case-sensitive; inactive and absent keys both fail with
// ErrTemplateNotFound.
func (s *Store) Resolve(ctx context.Context, key string) (*model.EmailTemplate, error) {
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*model.EmailTemplate), nil
	}

	tmpl, err := s.repo.GetActiveByKey(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve template: %w", err)
	}

	s.cache.Set(key, tmpl, cache.DefaultExpiration)
	return tmpl, nil
}

func (s *Store) Create(ctx context.Context, tmpl *model.EmailTemplate) error {
	if tmpl.Key == "" {
		return fmt.Errorf("template key is required")
	}
	if tmpl.Language == "" {
		tmpl.Language = "en"
	}
	if tmpl.Category == "" {
		tmpl.Category = "general"
	}

	if err := s.repo.Create(ctx, tmpl); err != nil {
		return err
	}
	s.cache.Delete(tmpl.Key)
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (*model.EmailTemplate, error) {
	tmpl, err := s.repo.GetByKey(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, key)
	}
	return tmpl, err
}

func (s *Store) List(ctx context.Context) ([]*model.EmailTemplate, error) {
	return s.repo.List(ctx)
}

func (s *Store) Update(ctx context.Context, tmpl *model.EmailTemplate) error {
	err := s.repo.Update(ctx, tmpl)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, tmpl.Key)
	}
	if err != nil {
		return err
	}

	s.cache.Delete(tmpl.Key)
	s.logger.Info("template updated", "key", tmpl.Key, "active", tmpl.Active)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.repo.Delete(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, key)
	}
	if err != nil {
		return err
	}

	s.cache.Delete(key)
	return nil
}
