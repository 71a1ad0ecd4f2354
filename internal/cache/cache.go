package cache

import (
	"context"
	"time"

	"inventorypro/backend/internal/domain"
)

// InventoryViewCache holds precomputed, ordered inventory views such as the
// popularity ranking.
type InventoryViewCache interface {
	Get(ctx context.Context, key string) ([]domain.InventoryItem, bool, error)
	Set(ctx context.Context, key string, items []domain.InventoryItem, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type NoopInventoryViewCache struct{}

func (NoopInventoryViewCache) Get(_ context.Context, _ string) ([]domain.InventoryItem, bool, error) {
	return nil, false, nil
}

func (NoopInventoryViewCache) Set(_ context.Context, _ string, _ []domain.InventoryItem, _ time.Duration) error {
	return nil
}

func (NoopInventoryViewCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}
