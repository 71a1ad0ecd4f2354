package service

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"inventorypro/backend/internal/domain"
	"inventorypro/backend/internal/store"
)

var hundred = decimal.NewFromInt(100)

// stockChange describes one stock movement applied to an inventory item.
type stockChange struct {
	Item domain.InventoryItem
	Prev int
}

func (c stockChange) crossedBelow() bool {
	return domain.CrossedBelow(c.Prev, c.Item.Stock, c.Item.Threshold)
}

func (c stockChange) crossedAbove() bool {
	return domain.CrossedAbove(c.Prev, c.Item.Stock, c.Item.Threshold)
}

// adjustStock applies delta to the item with the given id, floored at zero.
func (s *Service) adjustStock(items []domain.InventoryItem, id int, delta int) (stockChange, bool) {
	for i := range items {
		if items[i].ID != id {
			continue
		}
		prev := items[i].Stock
		items[i].Stock = max(0, prev+delta)
		items[i].RefreshStatus()
		items[i].UpdatedAt = s.clock()
		return stockChange{Item: items[i], Prev: prev}, true
	}
	return stockChange{}, false
}

// reportCrossings writes activity entries and events for items that moved
// across their low-stock threshold.
func (s *Service) reportCrossings(ctx context.Context, changes []stockChange) {
	for _, change := range changes {
		switch {
		case change.crossedBelow():
			s.logActivity(ctx, domain.CategoryInventory, "low_stock",
				fmt.Sprintf("%s stock %d at or below threshold %d", change.Item.Name, change.Item.Stock, change.Item.Threshold))
			s.notifier.Publish(EventStockLow, change.Item)
		case change.crossedAbove():
			s.logActivity(ctx, domain.CategoryInventory, "stock_restored",
				fmt.Sprintf("%s stock %d above threshold %d", change.Item.Name, change.Item.Stock, change.Item.Threshold))
			s.notifier.Publish(EventInventoryChanged, change.Item)
		}
	}
}

func findItem(items []domain.InventoryItem, id int) (int, bool) {
	for i := range items {
		if items[i].ID == id {
			return i, true
		}
	}
	return -1, false
}

func (s *Service) ListInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	items, err := s.repo.Items(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(items, func(a, b domain.InventoryItem) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return items, nil
}

func (s *Service) GetInventoryItem(ctx context.Context, id int) (domain.InventoryItem, error) {
	items, err := s.repo.Items(ctx)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	idx, ok := findItem(items, id)
	if !ok {
		return domain.InventoryItem{}, fmt.Errorf("%w: inventory item %d", store.ErrNotFound, id)
	}
	return items[idx], nil
}

func (s *Service) FindInventoryByBarcode(ctx context.Context, barcode string) (domain.InventoryItem, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.InventoryItem{}, fmt.Errorf("%w: barcode is required", store.ErrInvalidInput)
	}
	items, err := s.repo.Items(ctx)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	for _, item := range items {
		if item.Barcode == barcode {
			return item, nil
		}
	}
	return domain.InventoryItem{}, fmt.Errorf("%w: barcode %s", store.ErrNotFound, barcode)
}

// derivePrice computes a selling price from cost and profit settings.
func derivePrice(cost decimal.Decimal, margin decimal.Decimal, profitType string) (decimal.Decimal, bool) {
	if !cost.IsPositive() {
		return decimal.Zero, false
	}
	switch profitType {
	case domain.ProfitTypePercentage:
		return cost.Mul(decimal.NewFromInt(1).Add(margin.Div(hundred))).Round(2), true
	case domain.ProfitTypeFixed:
		return cost.Add(margin).Round(2), true
	default:
		return decimal.Zero, false
	}
}

func validateItem(item domain.InventoryItem) error {
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("%w: name is required", store.ErrInvalidInput)
	}
	if strings.TrimSpace(item.SKU) == "" {
		return fmt.Errorf("%w: sku is required", store.ErrInvalidInput)
	}
	if item.Stock < 0 || item.Threshold < 0 {
		return fmt.Errorf("%w: stock and threshold must be non-negative", store.ErrInvalidInput)
	}
	if item.Price.IsNegative() || item.CostPrice.IsNegative() || item.ProfitMargin.IsNegative() {
		return fmt.Errorf("%w: price fields must be non-negative", store.ErrInvalidInput)
	}
	switch item.ProfitType {
	case "", domain.ProfitTypePercentage, domain.ProfitTypeFixed:
	default:
		return fmt.Errorf("%w: profitType must be percentage or fixed", store.ErrInvalidInput)
	}
	return nil
}

func checkUnique(items []domain.InventoryItem, candidate domain.InventoryItem) error {
	for _, item := range items {
		if item.ID == candidate.ID {
			continue
		}
		if strings.EqualFold(item.SKU, candidate.SKU) {
			return fmt.Errorf("%w: sku %s already exists", store.ErrConflict, candidate.SKU)
		}
		if candidate.Barcode != "" && item.Barcode == candidate.Barcode {
			return fmt.Errorf("%w: barcode %s already exists", store.ErrConflict, candidate.Barcode)
		}
	}
	return nil
}

func (s *Service) CreateInventoryItem(ctx context.Context, req domain.InventoryCreateRequest) (domain.InventoryItem, error) {
	actor, err := requireRole(ctx, domain.RoleAdministrator, domain.RoleManager, domain.RoleStocker)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	if actor.Role == domain.RoleStocker && (req.CostPrice != nil || req.ProfitMargin != nil || req.ProfitType != "") {
		return domain.InventoryItem{}, fmt.Errorf("%w: stockers may not set cost or profit fields", store.ErrForbidden)
	}

	now := s.clock()
	item := domain.InventoryItem{
		SKU:        strings.TrimSpace(req.SKU),
		Barcode:    strings.TrimSpace(req.Barcode),
		Name:       strings.TrimSpace(req.Name),
		Category:   strings.TrimSpace(req.Category),
		Unit:       strings.TrimSpace(req.Unit),
		PriceUnit:  strings.TrimSpace(req.PriceUnit),
		ProfitType: req.ProfitType,
		Stock:      req.Stock,
		Threshold:  req.Threshold,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if req.CostPrice != nil {
		item.CostPrice = *req.CostPrice
	}
	if req.ProfitMargin != nil {
		item.ProfitMargin = *req.ProfitMargin
	}
	if req.Price != nil {
		item.Price = *req.Price
	} else if derived, ok := derivePrice(item.CostPrice, item.ProfitMargin, item.ProfitType); ok {
		item.Price = derived
	}
	if err := validateItem(item); err != nil {
		return domain.InventoryItem{}, err
	}
	item.RefreshStatus()

	unlock := s.repo.Lock(store.Inventory)
	items, err := s.repo.Items(ctx)
	if err != nil {
		unlock()
		return domain.InventoryItem{}, err
	}
	if err := checkUnique(items, item); err != nil {
		unlock()
		return domain.InventoryItem{}, err
	}
	for _, existing := range items {
		item.ID = max(item.ID, existing.ID)
	}
	item.ID++
	items = append(items, item)
	err = s.repo.SaveItems(ctx, items)
	unlock()
	if err != nil {
		return domain.InventoryItem{}, err
	}

	s.invalidateViews(ctx)
	s.logActivity(ctx, domain.CategoryInventory, "item_created", fmt.Sprintf("created %s (%s) with stock %d", item.Name, item.SKU, item.Stock))
	s.notifier.Publish(EventInventoryChanged, item)
	return item, nil
}

func (s *Service) UpdateInventoryItem(ctx context.Context, id int, req domain.InventoryUpdateRequest) (domain.InventoryItem, error) {
	actor, err := requireRole(ctx, domain.RoleAdministrator, domain.RoleManager, domain.RoleStocker)
	if err != nil {
		return domain.InventoryItem{}, err
	}
	if actor.Role == domain.RoleStocker && req.TouchesPricing() {
		return domain.InventoryItem{}, fmt.Errorf("%w: stockers may not change price or profit fields", store.ErrForbidden)
	}

	unlock := s.repo.Lock(store.Inventory)
	items, err := s.repo.Items(ctx)
	if err != nil {
		unlock()
		return domain.InventoryItem{}, err
	}
	idx, ok := findItem(items, id)
	if !ok {
		unlock()
		return domain.InventoryItem{}, fmt.Errorf("%w: inventory item %d", store.ErrNotFound, id)
	}

	item := items[idx]
	prevStock := item.Stock
	applyItemUpdate(&item, req)
	if req.Price == nil && req.TouchesCost() {
		if derived, ok := derivePrice(item.CostPrice, item.ProfitMargin, item.ProfitType); ok {
			item.Price = derived
		}
	}
	if err := validateItem(item); err != nil {
		unlock()
		return domain.InventoryItem{}, err
	}
	if err := checkUnique(items, item); err != nil {
		unlock()
		return domain.InventoryItem{}, err
	}
	item.RefreshStatus()
	item.UpdatedAt = s.clock()
	items[idx] = item
	err = s.repo.SaveItems(ctx, items)
	unlock()
	if err != nil {
		return domain.InventoryItem{}, err
	}

	s.invalidateViews(ctx)
	s.logActivity(ctx, domain.CategoryInventory, "item_updated", fmt.Sprintf("updated %s (%s)", item.Name, item.SKU))
	s.reportCrossings(ctx, []stockChange{{Item: item, Prev: prevStock}})
	s.notifier.Publish(EventInventoryChanged, item)
	return item, nil
}

func applyItemUpdate(item *domain.InventoryItem, req domain.InventoryUpdateRequest) {
	if req.SKU != nil {
		item.SKU = strings.TrimSpace(*req.SKU)
	}
	if req.Barcode != nil {
		item.Barcode = strings.TrimSpace(*req.Barcode)
	}
	if req.Name != nil {
		item.Name = strings.TrimSpace(*req.Name)
	}
	if req.Category != nil {
		item.Category = strings.TrimSpace(*req.Category)
	}
	if req.Unit != nil {
		item.Unit = strings.TrimSpace(*req.Unit)
	}
	if req.Price != nil {
		item.Price = *req.Price
	}
	if req.PriceUnit != nil {
		item.PriceUnit = strings.TrimSpace(*req.PriceUnit)
	}
	if req.CostPrice != nil {
		item.CostPrice = *req.CostPrice
	}
	if req.ProfitMargin != nil {
		item.ProfitMargin = *req.ProfitMargin
	}
	if req.ProfitType != nil {
		item.ProfitType = *req.ProfitType
	}
	if req.Stock != nil {
		item.Stock = *req.Stock
	}
	if req.Threshold != nil {
		item.Threshold = *req.Threshold
	}
}

func (s *Service) DeleteInventoryItem(ctx context.Context, id int) error {
	if _, err := requireRole(ctx, domain.RoleAdministrator, domain.RoleManager); err != nil {
		return err
	}

	unlock := s.repo.Lock(store.Inventory)
	items, err := s.repo.Items(ctx)
	if err != nil {
		unlock()
		return err
	}
	idx, ok := findItem(items, id)
	if !ok {
		unlock()
		return fmt.Errorf("%w: inventory item %d", store.ErrNotFound, id)
	}
	removed := items[idx]
	items = slices.Delete(items, idx, idx+1)
	err = s.repo.SaveItems(ctx, items)
	unlock()
	if err != nil {
		return err
	}

	s.invalidateViews(ctx)
	s.logActivity(ctx, domain.CategoryInventory, "item_deleted", fmt.Sprintf("deleted %s (%s)", removed.Name, removed.SKU))
	s.notifier.Publish(EventInventoryChanged, map[string]int{"deletedId": id})
	return nil
}

// PopularInventory returns inventory ordered by units sold, most popular first,
// ties broken by name.
func (s *Service) PopularInventory(ctx context.Context) ([]domain.InventoryItem, error) {
	if cached, ok, err := s.views.Get(ctx, popularViewKey); err != nil {
		log.Warn().Err(err).Str("component", "service").Msg("view cache read failed")
	} else if ok {
		return cached, nil
	}

	items, err := s.repo.Items(ctx)
	if err != nil {
		return nil, err
	}
	entries, err := s.repo.Popularity(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[int]int, len(entries))
	for _, entry := range entries {
		counts[entry.ProductID] = entry.SalesCount
	}
	slices.SortStableFunc(items, func(a, b domain.InventoryItem) int {
		if c := cmp.Compare(counts[b.ID], counts[a.ID]); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})

	if err := s.views.Set(ctx, popularViewKey, items, s.viewTTL); err != nil {
		log.Warn().Err(err).Str("component", "service").Msg("view cache write failed")
	}
	return items, nil
}
