package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"

	"inventorypro/backend/internal/domain"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
)

// Collection names one persisted document.
type Collection string

const (
	Users        Collection = "users"
	Inventory    Collection = "inventory"
	Sales        Collection = "sales"
	Losses       Collection = "losses"
	Stats        Collection = "stats"
	Settings     Collection = "settings"
	Popularity   Collection = "popularity"
	ActivityLogs Collection = "activity_logs"
)

var allCollections = []Collection{Users, Inventory, Sales, Losses, Stats, Settings, Popularity, ActivityLogs}

// Key is the top-level key the collection's records live under.
func (c Collection) Key() string {
	switch c {
	case Inventory:
		return "items"
	case ActivityLogs:
		return "logs"
	default:
		return string(c)
	}
}

// Documents is a whole-document backend. Read returns the raw JSON value held
// for the collection, or nil when nothing has been written yet. Write replaces
// the value in full.
type Documents interface {
	Read(ctx context.Context, c Collection) ([]byte, error)
	Write(ctx context.Context, c Collection, payload []byte) error
}

// Repository gives typed access to the collections of a Documents backend and
// owns one mutex per collection.
type Repository struct {
	docs  Documents
	mu    sync.Mutex
	locks map[Collection]*sync.Mutex
}

func NewRepository(docs Documents) *Repository {
	locks := make(map[Collection]*sync.Mutex, len(allCollections))
	for _, c := range allCollections {
		locks[c] = &sync.Mutex{}
	}
	return &Repository{docs: docs, locks: locks}
}

// Lock acquires the mutexes of the given collections in sorted order and
// returns a func releasing them. Callers holding any lock must only call Lock
// again after releasing it.
func (r *Repository) Lock(collections ...Collection) func() {
	names := slices.Clone(collections)
	slices.Sort(names)
	names = slices.Compact(names)

	held := make([]*sync.Mutex, 0, len(names))
	for _, name := range names {
		m := r.lockFor(name)
		m.Lock()
		held = append(held, m)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}

func (r *Repository) lockFor(c Collection) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.locks[c]
	if !ok {
		m = &sync.Mutex{}
		r.locks[c] = m
	}
	return m
}

func (r *Repository) Items(ctx context.Context) ([]domain.InventoryItem, error) {
	return readList[domain.InventoryItem](ctx, r.docs, Inventory)
}

func (r *Repository) SaveItems(ctx context.Context, items []domain.InventoryItem) error {
	return writeValue(ctx, r.docs, Inventory, items)
}

func (r *Repository) Sales(ctx context.Context) ([]domain.Sale, error) {
	return readList[domain.Sale](ctx, r.docs, Sales)
}

func (r *Repository) SaveSales(ctx context.Context, sales []domain.Sale) error {
	return writeValue(ctx, r.docs, Sales, sales)
}

func (r *Repository) Losses(ctx context.Context) ([]domain.Loss, error) {
	return readList[domain.Loss](ctx, r.docs, Losses)
}

func (r *Repository) SaveLosses(ctx context.Context, losses []domain.Loss) error {
	return writeValue(ctx, r.docs, Losses, losses)
}

func (r *Repository) Users(ctx context.Context) ([]domain.User, error) {
	return readList[domain.User](ctx, r.docs, Users)
}

func (r *Repository) SaveUsers(ctx context.Context, users []domain.User) error {
	return writeValue(ctx, r.docs, Users, users)
}

func (r *Repository) Popularity(ctx context.Context) ([]domain.PopularityEntry, error) {
	return readList[domain.PopularityEntry](ctx, r.docs, Popularity)
}

func (r *Repository) SavePopularity(ctx context.Context, entries []domain.PopularityEntry) error {
	return writeValue(ctx, r.docs, Popularity, entries)
}

func (r *Repository) ActivityLogs(ctx context.Context) ([]domain.ActivityLogEntry, error) {
	return readList[domain.ActivityLogEntry](ctx, r.docs, ActivityLogs)
}

func (r *Repository) SaveActivityLogs(ctx context.Context, entries []domain.ActivityLogEntry) error {
	return writeValue(ctx, r.docs, ActivityLogs, entries)
}

// Settings returns the singleton settings record, ok=false when none is stored.
func (r *Repository) Settings(ctx context.Context) (domain.StoreSettings, bool, error) {
	records, err := readList[domain.StoreSettings](ctx, r.docs, Settings)
	if err != nil || len(records) == 0 {
		return domain.StoreSettings{}, false, err
	}
	return records[0], true, nil
}

func (r *Repository) SaveSettings(ctx context.Context, settings domain.StoreSettings) error {
	return writeValue(ctx, r.docs, Settings, []domain.StoreSettings{settings})
}

// Counters reads the persisted stats counters. Derived fields that older files
// may still carry are ignored.
func (r *Repository) Counters(ctx context.Context) (domain.PersistedCounters, error) {
	raw, err := r.docs.Read(ctx, Stats)
	if err != nil {
		log.Error().Err(err).Str("component", "store").Str("collection", string(Stats)).Msg("read failed")
		return domain.PersistedCounters{}, fmt.Errorf("read %s: %w", Stats, err)
	}
	var counters domain.PersistedCounters
	if len(bytes.TrimSpace(raw)) == 0 {
		return counters, nil
	}
	if err := json.Unmarshal(raw, &counters); err != nil {
		log.Warn().Err(err).Str("component", "store").Str("collection", string(Stats)).Msg("corrupt document, using empty counters")
		return domain.PersistedCounters{}, nil
	}
	return counters, nil
}

func (r *Repository) SaveCounters(ctx context.Context, counters domain.PersistedCounters) error {
	return writeValue(ctx, r.docs, Stats, counters)
}

// readList never fails on a missing or corrupt document: both read as an
// empty collection. Backend I/O errors are returned so read-modify-write
// callers do not overwrite data they could not see.
func readList[T any](ctx context.Context, docs Documents, c Collection) ([]T, error) {
	raw, err := docs.Read(ctx, c)
	if err != nil {
		log.Error().Err(err).Str("component", "store").Str("collection", string(c)).Msg("read failed")
		return []T{}, fmt.Errorf("read %s: %w", c, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return []T{}, nil
	}

	var records []T
	if err := json.Unmarshal(raw, &records); err != nil {
		log.Warn().Err(err).Str("component", "store").Str("collection", string(c)).Msg("corrupt document, using empty collection")
		return []T{}, nil
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

func writeValue(ctx context.Context, docs Documents, c Collection, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", c, err)
	}
	if err := docs.Write(ctx, c, payload); err != nil {
		log.Error().Err(err).Str("component", "store").Str("collection", string(c)).Msg("write failed")
		return fmt.Errorf("write %s: %w", c, err)
	}
	return nil
}
