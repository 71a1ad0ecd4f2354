package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"inventorypro/backend/internal/domain"
	"inventorypro/backend/internal/store"
)

// currentCounters returns the persisted counters for today. Counters stamped
// with an earlier day read as zero; undated counters are adopted as today's.
func (s *Service) currentCounters(ctx context.Context) (domain.PersistedCounters, error) {
	counters, err := s.repo.Counters(ctx)
	if err != nil {
		return domain.PersistedCounters{}, err
	}
	today := s.today()
	if counters.Date != "" && counters.Date != today {
		return domain.PersistedCounters{Date: today}, nil
	}
	counters.Date = today
	return counters, nil
}

// adjustCounters adds the deltas to today's counters. Callers hold the
// stats lock.
func (s *Service) adjustCounters(ctx context.Context, salesDelta decimal.Decimal, refundsDelta decimal.Decimal) error {
	counters, err := s.currentCounters(ctx)
	if err != nil {
		return err
	}
	counters.TodaySales = counters.TodaySales.Add(salesDelta)
	counters.TodayRefunds = counters.TodayRefunds.Add(refundsDelta)
	return s.repo.SaveCounters(ctx, counters)
}

func (s *Service) GetStats(ctx context.Context) (domain.Stats, error) {
	var (
		counters domain.PersistedCounters
		items    []domain.InventoryItem
		users    []domain.User
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counters, err = s.currentCounters(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		items, err = s.repo.Items(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		users, err = s.repo.Users(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Stats{}, err
	}

	return domain.Stats{
		PersistedCounters: counters,
		DerivedMetrics:    deriveMetrics(counters, items, users),
	}, nil
}

func deriveMetrics(counters domain.PersistedCounters, items []domain.InventoryItem, users []domain.User) domain.DerivedMetrics {
	metrics := domain.DerivedMetrics{
		TotalInventoryItems: len(items),
		TotalInventoryValue: decimal.Zero,
	}
	for _, item := range items {
		metrics.TotalInventoryValue = metrics.TotalInventoryValue.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Stock))))
		if domain.AtOrBelowThreshold(item.Stock, item.Threshold) {
			metrics.LowStockItems++
		}
	}
	for _, user := range users {
		if user.Status == domain.UserStatusActive {
			metrics.ActiveUsers++
		}
	}
	metrics.NetSales = decimal.Max(decimal.Zero, counters.TodaySales.Sub(counters.TodayRefunds))
	return metrics
}

// UpdateStats overwrites today's counters. Derived metrics are never stored.
func (s *Service) UpdateStats(ctx context.Context, update domain.StatsUpdate) (domain.Stats, error) {
	if _, err := requireRole(ctx, domain.RoleAdministrator, domain.RoleManager); err != nil {
		return domain.Stats{}, err
	}
	if (update.TodaySales != nil && update.TodaySales.IsNegative()) ||
		(update.TodayRefunds != nil && update.TodayRefunds.IsNegative()) {
		return domain.Stats{}, fmt.Errorf("%w: counters must be non-negative", store.ErrInvalidInput)
	}

	unlock := s.repo.Lock(store.Stats)
	counters, err := s.currentCounters(ctx)
	if err == nil {
		if update.TodaySales != nil {
			counters.TodaySales = *update.TodaySales
		}
		if update.TodayRefunds != nil {
			counters.TodayRefunds = *update.TodayRefunds
		}
		err = s.repo.SaveCounters(ctx, counters)
	}
	unlock()
	if err != nil {
		return domain.Stats{}, err
	}

	s.logActivity(ctx, domain.CategorySales, "stats_updated",
		"todaySales "+counters.TodaySales.StringFixed(2)+", todayRefunds "+counters.TodayRefunds.StringFixed(2))
	return s.GetStats(ctx)
}
