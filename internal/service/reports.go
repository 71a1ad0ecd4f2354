package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"inventorypro/backend/internal/domain"
	"inventorypro/backend/internal/store"
)

const topProductLimit = 10

// SalesReport summarises sales and losses between two calendar days,
// both inclusive. Empty bounds default to today.
func (s *Service) SalesReport(ctx context.Context, from string, to string) (domain.SalesReport, error) {
	if _, err := requireRole(ctx, domain.RoleAdministrator, domain.RoleManager); err != nil {
		return domain.SalesReport{}, err
	}
	start, end, err := s.reportRange(from, to)
	if err != nil {
		return domain.SalesReport{}, err
	}

	var (
		sales  []domain.Sale
		losses []domain.Loss
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		sales, err = s.repo.Sales(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		losses, err = s.repo.Losses(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.SalesReport{}, err
	}

	report := domain.SalesReport{
		From:           start.Format("2006-01-02"),
		To:             end.AddDate(0, 0, -1).Format("2006-01-02"),
		GrossSales:     decimal.Zero,
		RefundedAmount: decimal.Zero,
		LossValue:      decimal.Zero,
		TopProducts:    []domain.ProductSalesSummary{},
	}
	inRange := func(t time.Time) bool {
		t = t.In(s.loc)
		return !t.Before(start) && t.Before(end)
	}

	products := make(map[int]*domain.ProductSalesSummary)
	for _, sale := range sales {
		if !inRange(sale.Date) {
			continue
		}
		report.SaleCount++
		report.GrossSales = report.GrossSales.Add(sale.TotalAmount)
		if sale.Status == domain.SaleStatusRefunded {
			report.RefundedCount++
			report.RefundedAmount = report.RefundedAmount.Add(sale.TotalAmount)
			continue
		}
		for _, line := range sale.Items {
			summary, ok := products[line.ProductID]
			if !ok {
				summary = &domain.ProductSalesSummary{ProductID: line.ProductID, Name: line.Name, Revenue: decimal.Zero}
				products[line.ProductID] = summary
			}
			summary.Quantity += line.Quantity
			summary.Revenue = summary.Revenue.Add(line.Subtotal)
		}
	}
	report.NetSales = report.GrossSales.Sub(report.RefundedAmount)

	for _, loss := range losses {
		if !inRange(loss.CreatedAt) {
			continue
		}
		report.LossCount++
		report.LossValue = report.LossValue.Add(loss.Value)
	}

	for _, summary := range products {
		report.TopProducts = append(report.TopProducts, *summary)
	}
	slices.SortFunc(report.TopProducts, func(a, b domain.ProductSalesSummary) int {
		if c := cmp.Compare(b.Quantity, a.Quantity); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	if len(report.TopProducts) > topProductLimit {
		report.TopProducts = report.TopProducts[:topProductLimit]
	}
	return report, nil
}

// reportRange returns [start of from, start of the day after to).
func (s *Service) reportRange(from string, to string) (time.Time, time.Time, error) {
	today := s.clock()
	parse := func(raw string) (time.Time, error) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, s.loc), nil
		}
		day, err := time.ParseInLocation("2006-01-02", raw, s.loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", store.ErrInvalidInput, raw)
		}
		return day, nil
	}
	start, err := parse(from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parse(to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: from must not be after to", store.ErrInvalidInput)
	}
	return start, end.AddDate(0, 0, 1), nil
}
