package handlers

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/civic-complaints-backend/internal/domain"
	"github.com/tbourn/civic-complaints-backend/internal/repo"
)

// IdempotencyStore remembers which complaint a (client, key) pair created.
type IdempotencyStore interface {
	// Lookup returns the live record, or (nil, nil) when there is none.
	Lookup(ctx context.Context, clientID, key string, now time.Time) (*domain.Idempotency, error)
	Remember(ctx context.Context, clientID, key, trackingID string, status int) error
}

// DBIdempotency is the GORM-backed IdempotencyStore.
type DBIdempotency struct {
	DB  *gorm.DB
	TTL time.Duration
}

// Lookup implements IdempotencyStore.
func (s DBIdempotency) Lookup(ctx context.Context, clientID, key string, now time.Time) (*domain.Idempotency, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, clientID, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// Remember implements IdempotencyStore. A concurrent duplicate is not an
// error: the first writer wins.
func (s DBIdempotency) Remember(ctx context.Context, clientID, key, trackingID string, status int) error {
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	_, err := repo.CreateIdempotency(ctx, s.DB, clientID, key, trackingID, status, ttl)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// Exists adapts the store to the middleware's lookup signature.
func (s DBIdempotency) Exists(ctx context.Context, clientID, key string, now time.Time) (bool, error) {
	rec, err := s.Lookup(ctx, clientID, key, now)
	return rec != nil, err
}
