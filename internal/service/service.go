package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"inventorypro/backend/internal/activity"
	"inventorypro/backend/internal/cache"
	"inventorypro/backend/internal/domain"
	"inventorypro/backend/internal/store"
)

var ErrAlreadyRefunded = errors.New("sale already refunded")

// Realtime event types.
const (
	EventSaleRecorded     = "sale_recorded"
	EventSaleRefunded     = "sale_refunded"
	EventLossRecorded     = "loss_recorded"
	EventStockLow         = "stock_low"
	EventInventoryChanged = "inventory_changed"
)

const popularViewKey = "inventory:popular"

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Notifier receives business events for live dashboards.
type Notifier interface {
	Publish(eventType string, data any)
}

type noopNotifier struct{}

func (noopNotifier) Publish(string, any) {}

type Service struct {
	repo     *store.Repository
	activity *activity.Log
	views    cache.InventoryViewCache
	viewTTL  time.Duration
	notifier Notifier
	loc      *time.Location
	now      func() time.Time
}

type Option func(*Service)

// WithClock fixes the time source, used for ids and calendar-day checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the calendar that "today" and transaction ids follow.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

func WithViewCache(c cache.InventoryViewCache, ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil {
			s.views = c
		}
		if ttl > 0 {
			s.viewTTL = ttl
		}
	}
}

func New(repo *store.Repository, activityLog *activity.Log, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		activity: activityLog,
		views:    cache.NoopInventoryViewCache{},
		viewTTL:  30 * time.Second,
		notifier: noopNotifier{},
		loc:      time.UTC,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().In(s.loc)
}

func (s *Service) today() string {
	return s.clock().Format("2006-01-02")
}

func (s *Service) sameDay(a time.Time, b time.Time) bool {
	return a.In(s.loc).Format("2006-01-02") == b.In(s.loc).Format("2006-01-02")
}

func actorOrSystem(ctx context.Context) domain.Actor {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{Username: "system", Role: "system"}
	}
	return actor
}

func requireRole(ctx context.Context, roles ...string) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Actor{}, fmt.Errorf("%w: authentication required", store.ErrForbidden)
	}
	for _, role := range roles {
		if actor.Role == role {
			return actor, nil
		}
	}
	return domain.Actor{}, fmt.Errorf("%w: role %s not permitted", store.ErrForbidden, actor.Role)
}

// logActivity records an audit entry. A failed flush is logged and never
// fails the business operation that triggered it.
func (s *Service) logActivity(ctx context.Context, category string, action string, details string) {
	if s.activity == nil {
		return
	}
	actor := actorOrSystem(ctx)
	if _, err := s.activity.Record(ctx, domain.ActivityLogEntry{
		UserID:   actor.UserID,
		Username: actor.Username,
		Action:   action,
		Category: category,
		Details:  details,
	}); err != nil {
		log.Warn().Err(err).Str("component", "service").Str("action", action).Msg("activity log write failed")
	}
}

func (s *Service) ListActivity(ctx context.Context, filter domain.ActivityFilter) ([]domain.ActivityLogEntry, error) {
	if _, err := requireRole(ctx, domain.RoleAdministrator, domain.RoleManager); err != nil {
		return nil, err
	}
	if s.activity == nil {
		return []domain.ActivityLogEntry{}, nil
	}
	return s.activity.List(filter), nil
}

func (s *Service) invalidateViews(ctx context.Context) {
	if err := s.views.Invalidate(ctx, popularViewKey); err != nil {
		log.Warn().Err(err).Str("component", "service").Msg("view cache invalidation failed")
	}
}
