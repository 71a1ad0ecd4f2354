package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"inventorypro/backend/internal/domain"
	"inventorypro/backend/internal/store"
)

// nextTransactionID scans the ids issued on day and returns the next one in
// the TRX-YYYYMMDD-n sequence.
func nextTransactionID(sales []domain.Sale, day time.Time) string {
	prefix := "TRX-" + day.Format("20060102") + "-"
	last := 0
	for _, sale := range sales {
		suffix, ok := strings.CutPrefix(sale.ID, prefix)
		if !ok {
			continue
		}
		seq, err := strconv.Atoi(suffix)
		if err != nil || seq <= 0 {
			continue
		}
		last = max(last, seq)
	}
	return prefix + strconv.Itoa(last+1)
}

func validateSale(req domain.SaleRequest, cashier string) error {
	if cashier == "" {
		return fmt.Errorf("%w: cashier is required", store.ErrInvalidInput)
	}
	if req.Amount == nil {
		return fmt.Errorf("%w: amount is required", store.ErrInvalidInput)
	}
	if req.Amount.IsNegative() {
		return fmt.Errorf("%w: amount must be non-negative", store.ErrInvalidInput)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: at least one item is required", store.ErrInvalidInput)
	}
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: quantity for product %d must be positive", store.ErrInvalidInput, item.ProductID)
		}
		if item.Price.IsNegative() {
			return fmt.Errorf("%w: price for product %d must be non-negative", store.ErrInvalidInput, item.ProductID)
		}
	}
	return nil
}

// RecordSale persists a completed sale and applies its side effects: product
// popularity, stock levels and today's sales counter. Once the sale record is
// written, later side-effect failures are logged and the sale is returned.
func (s *Service) RecordSale(ctx context.Context, req domain.SaleRequest) (domain.Sale, error) {
	cashier := strings.TrimSpace(req.Cashier)
	if cashier == "" {
		if actor, ok := ActorFromContext(ctx); ok {
			cashier = actor.Username
		}
	}
	if err := validateSale(req, cashier); err != nil {
		return domain.Sale{}, err
	}

	unlock := s.repo.Lock(store.Sales, store.Popularity, store.Inventory, store.Stats)
	sale, changes, err := s.recordSaleLocked(ctx, req, cashier)
	unlock()
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateViews(ctx)
	s.logActivity(ctx, domain.CategorySales, "sale_recorded",
		fmt.Sprintf("%s recorded %s for %s with %d items", cashier, sale.ID, sale.TotalAmount.StringFixed(2), len(sale.Items)))
	s.reportCrossings(ctx, changes)
	s.notifier.Publish(EventSaleRecorded, sale)
	return sale, nil
}

func (s *Service) recordSaleLocked(ctx context.Context, req domain.SaleRequest, cashier string) (domain.Sale, []stockChange, error) {
	now := s.clock()

	sales, err := s.repo.Sales(ctx)
	if err != nil {
		return domain.Sale{}, nil, err
	}
	items, err := s.repo.Items(ctx)
	if err != nil {
		return domain.Sale{}, nil, err
	}

	sale := domain.Sale{
		ID:          nextTransactionID(sales, now),
		Cashier:     cashier,
		Date:        now,
		Items:       make([]domain.SaleItem, 0, len(req.Items)),
		TotalAmount: *req.Amount,
		Status:      domain.SaleStatusCompleted,
	}
	for _, line := range req.Items {
		if line.Name == "" {
			if idx, ok := findItem(items, line.ProductID); ok {
				line.Name = items[idx].Name
			}
		}
		if line.Subtotal.IsZero() {
			line.Subtotal = line.Price.Mul(decimal.NewFromInt(int64(line.Quantity)))
		}
		sale.Items = append(sale.Items, line)
	}

	if err := s.repo.SaveSales(ctx, append(sales, sale)); err != nil {
		return domain.Sale{}, nil, err
	}

	entries, err := s.repo.Popularity(ctx)
	if err == nil {
		err = s.repo.SavePopularity(ctx, applyPopularity(entries, sale.Items, now))
	}
	if err != nil {
		log.Error().Err(err).Str("component", "service").Str("sale_id", sale.ID).Msg("popularity update failed")
	}

	changes := make([]stockChange, 0, len(sale.Items))
	for _, line := range sale.Items {
		if change, ok := s.adjustStock(items, line.ProductID, -line.Quantity); ok {
			changes = append(changes, change)
		}
	}
	if len(changes) > 0 {
		if err := s.repo.SaveItems(ctx, items); err != nil {
			log.Error().Err(err).Str("component", "service").Str("sale_id", sale.ID).Msg("stock update failed")
			changes = nil
		}
	}

	if err := s.adjustCounters(ctx, sale.TotalAmount, decimal.Zero); err != nil {
		log.Error().Err(err).Str("component", "service").Str("sale_id", sale.ID).Msg("sales counter update failed")
	}

	return sale, changes, nil
}

// applyPopularity adds sold quantities to the ranking and keeps it sorted by
// sales count, highest first.
func applyPopularity(entries []domain.PopularityEntry, lines []domain.SaleItem, at time.Time) []domain.PopularityEntry {
	index := make(map[int]int, len(entries))
	for i, entry := range entries {
		index[entry.ProductID] = i
	}
	for _, line := range lines {
		if i, ok := index[line.ProductID]; ok {
			entries[i].SalesCount += line.Quantity
			entries[i].LastUpdated = at
			continue
		}
		index[line.ProductID] = len(entries)
		entries = append(entries, domain.PopularityEntry{
			ProductID:   line.ProductID,
			SalesCount:  line.Quantity,
			LastUpdated: at,
		})
	}
	slices.SortStableFunc(entries, func(a, b domain.PopularityEntry) int {
		return cmp.Compare(b.SalesCount, a.SalesCount)
	})
	return entries
}

// ListSales returns sales newest first.
func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	sales, err := s.repo.Sales(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(sales, func(a, b domain.Sale) int {
		return b.Date.Compare(a.Date)
	})
	return sales, nil
}

func (s *Service) GetSale(ctx context.Context, id string) (domain.Sale, error) {
	sales, err := s.repo.Sales(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	for _, sale := range sales {
		if sale.ID == id {
			return sale, nil
		}
	}
	return domain.Sale{}, fmt.Errorf("%w: sale %s", store.ErrNotFound, id)
}
