package activity

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"inventorypro/backend/internal/domain"
	"inventorypro/backend/internal/store"
	"inventorypro/backend/internal/xid"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

// Log is the append-only audit trail. Entries are loaded once on Open, kept in
// memory, and the whole collection is flushed on every Record.
type Log struct {
	repo    *store.Repository
	now     func() time.Time
	mu      sync.RWMutex
	entries []domain.ActivityLogEntry
}

func Open(ctx context.Context, repo *store.Repository) (*Log, error) {
	unlock := repo.Lock(store.ActivityLogs)
	defer unlock()

	entries, err := repo.ActivityLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load activity log: %w", err)
	}
	return &Log{
		repo:    repo,
		now:     func() time.Time { return time.Now().UTC() },
		entries: entries,
	}, nil
}

// SetClock replaces the timestamp source.
func (l *Log) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Record appends an entry and flushes it. On a failed flush the entry is
// dropped from memory too, so memory never runs ahead of the stored log.
func (l *Log) Record(ctx context.Context, entry domain.ActivityLogEntry) (domain.ActivityLogEntry, error) {
	unlock := l.repo.Lock(store.ActivityLogs)
	defer unlock()

	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.ID == "" {
		entry.ID = xid.New("act")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}

	next := append(l.entries[:len(l.entries):len(l.entries)], entry)
	if err := l.repo.SaveActivityLogs(ctx, next); err != nil {
		log.Error().Err(err).Str("component", "activity").Str("action", entry.Action).Msg("flush failed")
		return domain.ActivityLogEntry{}, err
	}
	l.entries = next
	return entry, nil
}

// List returns matching entries, newest first.
func (l *Log) List(filter domain.ActivityFilter) []domain.ActivityLogEntry {
	limit := filter.Limit
	if limit < 1 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]domain.ActivityLogEntry, 0, min(limit, len(l.entries)))
	for i := len(l.entries) - 1; i >= 0 && len(result) < limit; i-- {
		entry := l.entries[i]
		if filter.Category != "" && entry.Category != filter.Category {
			continue
		}
		if filter.UserID != 0 && entry.UserID != filter.UserID {
			continue
		}
		result = append(result, entry)
	}
	return result
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
