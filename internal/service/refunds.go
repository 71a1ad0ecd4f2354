package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"inventorypro/backend/internal/domain"
	"inventorypro/backend/internal/store"
)

// RefundSale reverses a completed sale: stock is restored per line and, for a
// sale made today, the refund counter grows by the sale total. A sale is
// refunded at most once; a second call returns ErrAlreadyRefunded and changes
// nothing.
func (s *Service) RefundSale(ctx context.Context, saleID string, refundedBy string) (domain.Sale, error) {
	saleID = strings.TrimSpace(saleID)
	if saleID == "" {
		return domain.Sale{}, fmt.Errorf("%w: sale id is required", store.ErrInvalidInput)
	}
	refundedBy = strings.TrimSpace(refundedBy)
	if refundedBy == "" {
		refundedBy = actorOrSystem(ctx).Username
	}

	unlock := s.repo.Lock(store.Sales, store.Inventory, store.Stats)
	sale, changes, err := s.refundSaleLocked(ctx, saleID, refundedBy)
	unlock()
	if err != nil {
		return domain.Sale{}, err
	}

	s.invalidateViews(ctx)
	s.logActivity(ctx, domain.CategorySales, "sale_refunded",
		fmt.Sprintf("%s refunded %s for %s", refundedBy, sale.ID, sale.TotalAmount.StringFixed(2)))
	s.reportCrossings(ctx, changes)
	s.notifier.Publish(EventSaleRefunded, sale)
	return sale, nil
}

func (s *Service) refundSaleLocked(ctx context.Context, saleID string, refundedBy string) (domain.Sale, []stockChange, error) {
	sales, err := s.repo.Sales(ctx)
	if err != nil {
		return domain.Sale{}, nil, err
	}
	idx := -1
	for i := range sales {
		if sales[i].ID == saleID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Sale{}, nil, fmt.Errorf("%w: sale %s", store.ErrNotFound, saleID)
	}
	if sales[idx].Status == domain.SaleStatusRefunded {
		return domain.Sale{}, nil, fmt.Errorf("%w: %s", ErrAlreadyRefunded, saleID)
	}

	items, err := s.repo.Items(ctx)
	if err != nil {
		return domain.Sale{}, nil, err
	}

	// Status is persisted before stock; stock is restored at most once.
	now := s.clock()
	sale := sales[idx]
	sale.Status = domain.SaleStatusRefunded
	sale.RefundedBy = refundedBy
	sale.RefundDate = &now
	sales[idx] = sale
	if err := s.repo.SaveSales(ctx, sales); err != nil {
		return domain.Sale{}, nil, err
	}

	changes := make([]stockChange, 0, len(sale.Items))
	for _, line := range sale.Items {
		if change, ok := s.adjustStock(items, line.ProductID, line.Quantity); ok {
			changes = append(changes, change)
		}
	}
	if len(changes) > 0 {
		if err := s.repo.SaveItems(ctx, items); err != nil {
			return sale, nil, err
		}
	}

	if s.sameDay(sale.Date, now) {
		if err := s.adjustCounters(ctx, decimal.Zero, sale.TotalAmount); err != nil {
			return sale, changes, err
		}
	}
	return sale, changes, nil
}
