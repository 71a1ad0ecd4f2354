package memory

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"inventorypro/backend/internal/domain"
	"inventorypro/backend/internal/store"
)

// Store holds every collection as raw JSON in memory.
type Store struct {
	mu   sync.RWMutex
	docs map[store.Collection][]byte
}

func New() *Store {
	return &Store{docs: make(map[store.Collection][]byte)}
}

// NewSeeded returns a store preloaded with a small demo catalog and default
// store settings.
func NewSeeded() *Store {
	now := time.Now().UTC()
	items := []domain.InventoryItem{
		{ID: 1, SKU: "BEV-COLA-330", Barcode: "4006381333931", Name: "Cola 330ml", Category: "Beverages", Unit: "can", Price: decimal.RequireFromString("1.25"), CostPrice: decimal.RequireFromString("0.80"), ProfitMargin: decimal.NewFromInt(56), ProfitType: domain.ProfitTypePercentage, Stock: 120, Threshold: 24},
		{ID: 2, SKU: "BEV-WATER-500", Barcode: "5449000000996", Name: "Mineral Water 500ml", Category: "Beverages", Unit: "bottle", Price: decimal.RequireFromString("0.90"), CostPrice: decimal.RequireFromString("0.40"), ProfitMargin: decimal.RequireFromString("0.50"), ProfitType: domain.ProfitTypeFixed, Stock: 200, Threshold: 40},
		{ID: 3, SKU: "SNK-CHIPS-150", Barcode: "8710398500411", Name: "Potato Chips 150g", Category: "Snacks", Unit: "bag", Price: decimal.RequireFromString("2.49"), CostPrice: decimal.RequireFromString("1.50"), ProfitMargin: decimal.NewFromInt(66), ProfitType: domain.ProfitTypePercentage, Stock: 60, Threshold: 15},
		{ID: 4, SKU: "DRY-RICE-1KG", Barcode: "8901058851830", Name: "Rice 1kg", Category: "Groceries", Unit: "kg", Price: decimal.RequireFromString("3.20"), CostPrice: decimal.RequireFromString("2.40"), ProfitMargin: decimal.RequireFromString("0.80"), ProfitType: domain.ProfitTypeFixed, Stock: 45, Threshold: 10},
		{ID: 5, SKU: "HOU-SOAP-100", Barcode: "8712561446470", Name: "Hand Soap 100g", Category: "Household", Unit: "bar", Price: decimal.RequireFromString("1.10"), CostPrice: decimal.RequireFromString("0.60"), ProfitMargin: decimal.NewFromInt(83), ProfitType: domain.ProfitTypePercentage, Stock: 8, Threshold: 12},
	}
	for i := range items {
		items[i].CreatedAt = now
		items[i].UpdatedAt = now
		items[i].RefreshStatus()
	}

	s := New()
	s.put(store.Inventory, items)
	s.put(store.Settings, []domain.StoreSettings{{
		StoreName:         "Inventory Pro Demo Store",
		Address:           "1 Market Street",
		Phone:             "555-0100",
		ThankYouMessage:   "Thank you for shopping with us!",
		NextTransactionID: 1,
	}})
	return s
}

func (s *Store) put(c store.Collection, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		log.Fatal().Err(err).Str("component", "memory-store").Str("collection", string(c)).Msg("encode seed")
	}
	s.docs[c] = payload
}

func (s *Store) Read(_ context.Context, c store.Collection) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.docs[c]), nil
}

func (s *Store) Write(_ context.Context, c store.Collection, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[c] = slices.Clone(payload)
	return nil
}
