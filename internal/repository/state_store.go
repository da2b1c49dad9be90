package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ParityBot/internal/domain/models"
	domrepo "ParityBot/internal/domain/repository"
	"ParityBot/pkg/cache"
)

// StateStore keeps the live position and the latest decision per symbol in
// a cache backend (Redis in production, memory otherwise).
type StateStore struct {
	cache cache.Service
	ttl   time.Duration
}

var _ domrepo.PositionStore = (*StateStore)(nil)

// NewStateStore stores decisions for ttl; positions never expire.
func NewStateStore(c cache.Service, ttl time.Duration) *StateStore {
	return &StateStore{cache: c, ttl: ttl}
}

func positionKey(symbol string) string { return cache.Key("position", symbol) }

func decisionKey(symbol string) string { return cache.Key("decision", symbol) }

// Load returns models.ErrNoPosition when nothing was saved for symbol.
func (s *StateStore) Load(ctx context.Context, symbol string) (models.PositionState, error) {
	var p models.PositionState
	if err := s.cache.Get(ctx, positionKey(symbol), &p); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return models.NewFlatPosition(symbol), models.ErrNoPosition
		}
		return models.NewFlatPosition(symbol), fmt.Errorf("load position: %w", err)
	}
	return p, nil
}

func (s *StateStore) Save(ctx context.Context, p models.PositionState) error {
	if err := s.cache.Set(ctx, positionKey(p.Symbol), p, 0); err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

func (s *StateStore) SaveDecision(ctx context.Context, d models.Decision) error {
	return s.cache.Set(ctx, decisionKey(d.Symbol), d, s.ttl)
}

// LatestDecision returns cache.ErrCacheMiss before the first evaluation.
func (s *StateStore) LatestDecision(ctx context.Context, symbol string) (models.Decision, error) {
	var d models.Decision
	err := s.cache.Get(ctx, decisionKey(symbol), &d)
	return d, err
}

// Lock takes the per-symbol evaluation lock for owner.
func (s *StateStore) Lock(ctx context.Context, symbol, owner string, ttl time.Duration) (bool, error) {
	return s.cache.TryLock(ctx, cache.Key("lock", symbol), owner, ttl)
}

func (s *StateStore) Unlock(ctx context.Context, symbol, owner string) error {
	return s.cache.Unlock(ctx, cache.Key("lock", symbol), owner)
}
