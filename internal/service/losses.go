package service

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"inventorypro/backend/internal/domain"
	"inventorypro/backend/internal/store"
)

// nextLossID numbers losses by running count, not per day.
func nextLossID(losses []domain.Loss, day time.Time) string {
	taken := make(map[string]struct{}, len(losses))
	for _, loss := range losses {
		taken[loss.ID] = struct{}{}
	}
	for n := len(losses) + 1; ; n++ {
		id := fmt.Sprintf("LOSS-%s-%03d", day.Format("2006-01-02"), n)
		if _, exists := taken[id]; !exists {
			return id
		}
	}
}

func findLoss(losses []domain.Loss, id string) (int, bool) {
	for i := range losses {
		if losses[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func (s *Service) RecordLoss(ctx context.Context, req domain.LossRequest) (domain.Loss, error) {
	if req.InventoryItemID <= 0 {
		return domain.Loss{}, fmt.Errorf("%w: inventoryItemId is required", store.ErrInvalidInput)
	}
	if req.Quantity <= 0 {
		return domain.Loss{}, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}
	if req.Value != nil && req.Value.IsNegative() {
		return domain.Loss{}, fmt.Errorf("%w: value must be non-negative", store.ErrInvalidInput)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "unspecified"
	}

	unlock := s.repo.Lock(store.Losses, store.Inventory)
	loss, change, err := s.recordLossLocked(ctx, req, reason)
	unlock()
	if err != nil {
		return domain.Loss{}, err
	}

	s.invalidateViews(ctx)
	s.logActivity(ctx, domain.CategoryLosses, "loss_recorded",
		fmt.Sprintf("%d x %s written off (%s), value %s", loss.Quantity, loss.ItemName, loss.Reason, loss.Value.StringFixed(2)))
	s.reportCrossings(ctx, []stockChange{change})
	s.notifier.Publish(EventLossRecorded, loss)
	return loss, nil
}

func (s *Service) recordLossLocked(ctx context.Context, req domain.LossRequest, reason string) (domain.Loss, stockChange, error) {
	items, err := s.repo.Items(ctx)
	if err != nil {
		return domain.Loss{}, stockChange{}, err
	}
	losses, err := s.repo.Losses(ctx)
	if err != nil {
		return domain.Loss{}, stockChange{}, err
	}

	change, ok := s.adjustStock(items, req.InventoryItemID, -req.Quantity)
	if !ok {
		return domain.Loss{}, stockChange{}, fmt.Errorf("%w: inventory item %d", store.ErrNotFound, req.InventoryItemID)
	}
	if err := s.repo.SaveItems(ctx, items); err != nil {
		return domain.Loss{}, stockChange{}, err
	}

	now := s.clock()
	loss := domain.Loss{
		ID:              nextLossID(losses, now),
		InventoryItemID: req.InventoryItemID,
		ItemName:        strings.TrimSpace(req.ItemName),
		Quantity:        req.Quantity,
		Reason:          reason,
		RecordedBy:      actorOrSystem(ctx).Username,
		Value:           change.Item.Price.Mul(decimal.NewFromInt(int64(req.Quantity))),
		CreatedAt:       now,
	}
	if loss.ItemName == "" {
		loss.ItemName = change.Item.Name
	}
	if req.Value != nil {
		loss.Value = *req.Value
	}
	if err := s.repo.SaveLosses(ctx, append(losses, loss)); err != nil {
		return domain.Loss{}, stockChange{}, err
	}
	return loss, change, nil
}

// UpdateLoss corrects a recorded loss. A quantity change moves stock by the
// difference; the value follows the new quantity at the item's current price
// unless given explicitly.
func (s *Service) UpdateLoss(ctx context.Context, id string, update domain.LossUpdate) (domain.Loss, error) {
	if update.Quantity != nil && *update.Quantity <= 0 {
		return domain.Loss{}, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}
	if update.Value != nil && update.Value.IsNegative() {
		return domain.Loss{}, fmt.Errorf("%w: value must be non-negative", store.ErrInvalidInput)
	}

	unlock := s.repo.Lock(store.Losses, store.Inventory)
	loss, changes, err := s.updateLossLocked(ctx, id, update)
	unlock()
	if err != nil {
		return domain.Loss{}, err
	}

	if len(changes) > 0 {
		s.invalidateViews(ctx)
	}
	s.logActivity(ctx, domain.CategoryLosses, "loss_updated",
		fmt.Sprintf("%s now %d x %s, value %s", loss.ID, loss.Quantity, loss.ItemName, loss.Value.StringFixed(2)))
	s.reportCrossings(ctx, changes)
	return loss, nil
}

func (s *Service) updateLossLocked(ctx context.Context, id string, update domain.LossUpdate) (domain.Loss, []stockChange, error) {
	losses, err := s.repo.Losses(ctx)
	if err != nil {
		return domain.Loss{}, nil, err
	}
	idx, ok := findLoss(losses, id)
	if !ok {
		return domain.Loss{}, nil, fmt.Errorf("%w: loss %s", store.ErrNotFound, id)
	}
	loss := losses[idx]

	var changes []stockChange
	if update.Quantity != nil && *update.Quantity != loss.Quantity {
		delta := *update.Quantity - loss.Quantity
		items, err := s.repo.Items(ctx)
		if err != nil {
			return domain.Loss{}, nil, err
		}
		change, found := s.adjustStock(items, loss.InventoryItemID, -delta)
		if found {
			if err := s.repo.SaveItems(ctx, items); err != nil {
				return domain.Loss{}, nil, err
			}
			changes = append(changes, change)
			loss.Value = change.Item.Price.Mul(decimal.NewFromInt(int64(*update.Quantity)))
		} else {
			log.Warn().Str("component", "service").Str("loss_id", loss.ID).Int("item_id", loss.InventoryItemID).Msg("loss references a missing item, stock unchanged")
			if loss.Quantity > 0 {
				unit := loss.Value.Div(decimal.NewFromInt(int64(loss.Quantity)))
				loss.Value = unit.Mul(decimal.NewFromInt(int64(*update.Quantity))).Round(2)
			}
		}
		loss.Quantity = *update.Quantity
	}
	if update.Reason != nil {
		loss.Reason = strings.TrimSpace(*update.Reason)
	}
	if update.Value != nil {
		loss.Value = *update.Value
	}
	now := s.clock()
	loss.UpdatedAt = &now
	losses[idx] = loss

	if err := s.repo.SaveLosses(ctx, losses); err != nil {
		return domain.Loss{}, nil, err
	}
	return loss, changes, nil
}

// ListLosses returns losses newest first.
func (s *Service) ListLosses(ctx context.Context) ([]domain.Loss, error) {
	losses, err := s.repo.Losses(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(losses, func(a, b domain.Loss) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return losses, nil
}

func (s *Service) GetLoss(ctx context.Context, id string) (domain.Loss, error) {
	losses, err := s.repo.Losses(ctx)
	if err != nil {
		return domain.Loss{}, err
	}
	idx, ok := findLoss(losses, id)
	if !ok {
		return domain.Loss{}, fmt.Errorf("%w: loss %s", store.ErrNotFound, id)
	}
	return losses[idx], nil
}
