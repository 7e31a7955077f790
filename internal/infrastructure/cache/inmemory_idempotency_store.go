package cache

import (
	"context"
	"time"

	"github.com/marketplace/backend/internal/domain/shared"
)

// InMemoryIdempotencyStore remembers processed webhook event ids in process memory.
// Suitable for a single replica and for tests.
type InMemoryIdempotencyStore struct {
	seen *ttlMap[struct{}]
}

// NewInMemoryIdempotencyStore creates a new in-memory idempotency store
func NewInMemoryIdempotencyStore() *InMemoryIdempotencyStore {
	return &InMemoryIdempotencyStore{seen: newTTLMap[struct{}](5 * time.Minute)}
}

// MarkProcessed records the event id. Returns false if it was already recorded and not expired.
func (s *InMemoryIdempotencyStore) MarkProcessed(_ context.Context, eventID string, ttl time.Duration) (bool, error) {
	return s.seen.setIfAbsent(eventID, struct{}{}, ttl), nil
}

// IsProcessed checks if an event has already been processed
func (s *InMemoryIdempotencyStore) IsProcessed(_ context.Context, eventID string) (bool, error) {
	_, ok := s.seen.get(eventID)
	return ok, nil
}

// Close stops the sweep goroutine. Safe to call multiple times.
func (s *InMemoryIdempotencyStore) Close() error {
	s.seen.close()
	return nil
}

// Size returns the number of entries, expired ones included until the next sweep
func (s *InMemoryIdempotencyStore) Size() int {
	return s.seen.len()
}

var _ shared.IdempotencyStore = (*InMemoryIdempotencyStore)(nil)
