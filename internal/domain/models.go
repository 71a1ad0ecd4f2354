package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleAdministrator = "Administrator"
	RoleManager       = "Manager"
	RoleStocker       = "Stocker"
	RoleCashier       = "Cashier"

	UserStatusActive   = "Active"
	UserStatusInactive = "Inactive"
)

const (
	StatusInStock  = "In Stock"
	StatusLowStock = "Low Stock"
	StatusWarning  = "Warning"

	ProfitTypePercentage = "percentage"
	ProfitTypeFixed      = "fixed"
)

const (
	SaleStatusCompleted = "Completed"
	SaleStatusRefunded  = "Refunded"
)

// Activity log categories.
const (
	CategorySales     = "sales"
	CategoryInventory = "inventory"
	CategoryLosses    = "losses"
	CategoryUsers     = "users"
	CategorySettings  = "settings"
	CategoryAuth      = "auth"
)

type InventoryItem struct {
	ID           int             `json:"id"`
	SKU          string          `json:"sku"`
	Barcode      string          `json:"barcode,omitempty"`
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Unit         string          `json:"unit,omitempty"`
	Price        decimal.Decimal `json:"price"`
	PriceUnit    string          `json:"priceUnit,omitempty"`
	CostPrice    decimal.Decimal `json:"costPrice"`
	ProfitMargin decimal.Decimal `json:"profitMargin"`
	ProfitType   string          `json:"profitType,omitempty"`
	Stock        int             `json:"stock"`
	Threshold    int             `json:"threshold"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// StockStatus derives the item status. Low Stock holds exactly when stock is
// below the threshold; sitting on the threshold is reported as Warning.
func StockStatus(stock int, threshold int) string {
	switch {
	case stock < threshold:
		return StatusLowStock
	case stock == threshold:
		return StatusWarning
	default:
		return StatusInStock
	}
}

func (i *InventoryItem) RefreshStatus() {
	i.Status = StockStatus(i.Stock, i.Threshold)
}

// AtOrBelowThreshold is the predicate the low-stock count is built on.
func AtOrBelowThreshold(stock int, threshold int) bool {
	return stock <= threshold
}

// CrossedBelow reports a transition from above the threshold to at-or-below it.
func CrossedBelow(prev int, next int, threshold int) bool {
	return prev > threshold && next <= threshold
}

// CrossedAbove reports a transition from at-or-below the threshold to above it.
func CrossedAbove(prev int, next int, threshold int) bool {
	return prev <= threshold && next > threshold
}

type InventoryCreateRequest struct {
	SKU          string           `json:"sku"`
	Barcode      string           `json:"barcode"`
	Name         string           `json:"name"`
	Category     string           `json:"category"`
	Unit         string           `json:"unit"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	PriceUnit    string           `json:"priceUnit"`
	CostPrice    *decimal.Decimal `json:"costPrice,omitempty"`
	ProfitMargin *decimal.Decimal `json:"profitMargin,omitempty"`
	ProfitType   string           `json:"profitType"`
	Stock        int              `json:"stock"`
	Threshold    int              `json:"threshold"`
}

type InventoryUpdateRequest struct {
	SKU          *string          `json:"sku,omitempty"`
	Barcode      *string          `json:"barcode,omitempty"`
	Name         *string          `json:"name,omitempty"`
	Category     *string          `json:"category,omitempty"`
	Unit         *string          `json:"unit,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
	PriceUnit    *string          `json:"priceUnit,omitempty"`
	CostPrice    *decimal.Decimal `json:"costPrice,omitempty"`
	ProfitMargin *decimal.Decimal `json:"profitMargin,omitempty"`
	ProfitType   *string          `json:"profitType,omitempty"`
	Stock        *int             `json:"stock,omitempty"`
	Threshold    *int             `json:"threshold,omitempty"`
}

// TouchesPricing reports whether the update changes any price or profit field.
func (r InventoryUpdateRequest) TouchesPricing() bool {
	return r.Price != nil || r.PriceUnit != nil || r.TouchesCost()
}

// TouchesCost reports whether the update changes cost or profit settings.
func (r InventoryUpdateRequest) TouchesCost() bool {
	return r.CostPrice != nil || r.ProfitMargin != nil || r.ProfitType != nil
}

type SaleItem struct {
	ProductID int             `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type Sale struct {
	ID          string          `json:"id"`
	Cashier     string          `json:"cashier"`
	Date        time.Time       `json:"date"`
	Items       []SaleItem      `json:"items"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Status      string          `json:"status"`
	RefundedBy  string          `json:"refundedBy,omitempty"`
	RefundDate  *time.Time      `json:"refundDate,omitempty"`
}

type SaleRequest struct {
	Cashier string           `json:"cashier"`
	Items   []SaleItem       `json:"items"`
	Amount  *decimal.Decimal `json:"amount"`
}

type Loss struct {
	ID              string          `json:"id"`
	InventoryItemID int             `json:"inventoryItemId"`
	ItemName        string          `json:"itemName"`
	Quantity        int             `json:"quantity"`
	Reason          string          `json:"reason"`
	RecordedBy      string          `json:"recordedBy"`
	Value           decimal.Decimal `json:"value"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       *time.Time      `json:"updatedAt,omitempty"`
}

type LossRequest struct {
	InventoryItemID int              `json:"inventoryItemId"`
	ItemName        string           `json:"itemName"`
	Quantity        int              `json:"quantity"`
	Reason          string           `json:"reason"`
	Value           *decimal.Decimal `json:"value,omitempty"`
}

type LossUpdate struct {
	Quantity *int             `json:"quantity,omitempty"`
	Reason   *string          `json:"reason,omitempty"`
	Value    *decimal.Decimal `json:"value,omitempty"`
}

// StoreSettings is persisted as a one-element array. NextTransactionID is kept
// for file compatibility only; sale ids never read it.
type StoreSettings struct {
	StoreName         string `json:"storeName"`
	Address           string `json:"address"`
	Phone             string `json:"phone"`
	ThankYouMessage   string `json:"thankYouMessage"`
	Logo              string `json:"logo,omitempty"`
	NextTransactionID int    `json:"nextTransactionId"`
}

type SettingsUpdate struct {
	StoreName       *string `json:"storeName,omitempty"`
	Address         *string `json:"address,omitempty"`
	Phone           *string `json:"phone,omitempty"`
	ThankYouMessage *string `json:"thankYouMessage,omitempty"`
	Logo            *string `json:"logo,omitempty"`
}

// PersistedCounters are the only stats fields written to disk. Date is the
// calendar day (YYYY-MM-DD) the counters accumulate for.
type PersistedCounters struct {
	Date         string          `json:"date"`
	TodaySales   decimal.Decimal `json:"todaySales"`
	TodayRefunds decimal.Decimal `json:"todayRefunds"`
}

// DerivedMetrics are recomputed on every read and never persisted.
type DerivedMetrics struct {
	TotalInventoryItems int             `json:"totalInventoryItems"`
	TotalInventoryValue decimal.Decimal `json:"totalInventoryValue"`
	LowStockItems       int             `json:"lowStockItems"`
	ActiveUsers         int             `json:"activeUsers"`
	NetSales            decimal.Decimal `json:"netSales"`
}

type Stats struct {
	PersistedCounters
	DerivedMetrics
}

type StatsUpdate struct {
	TodaySales   *decimal.Decimal `json:"todaySales,omitempty"`
	TodayRefunds *decimal.Decimal `json:"todayRefunds,omitempty"`
}

type PopularityEntry struct {
	ProductID   int       `json:"productId"`
	SalesCount  int       `json:"salesCount"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type ActivityLogEntry struct {
	ID        string    `json:"id"`
	UserID    int       `json:"userId"`
	Username  string    `json:"username"`
	Action    string    `json:"action"`
	Category  string    `json:"category"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

type ActivityFilter struct {
	Category string
	UserID   int
	Limit    int
}

type User struct {
	ID           int       `json:"id"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"passwordHash"`
	Role         string    `json:"role"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserView is the user shape returned over the API.
type UserView struct {
	ID        int       `json:"id"`
	Username  string    `json:"username"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u User) View() UserView {
	return UserView{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name,
		Role:      u.Role,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
	}
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type UserUpdateRequest struct {
	Name     *string `json:"name,omitempty"`
	Password *string `json:"password,omitempty"`
	Role     *string `json:"role,omitempty"`
	Status   *string `json:"status,omitempty"`
}

func IsValidRole(role string) bool {
	switch role {
	case RoleAdministrator, RoleManager, RoleStocker, RoleCashier:
		return true
	default:
		return false
	}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string   `json:"accessToken"`
	ExpiresAt   string   `json:"expiresAt"`
	User        UserView `json:"user"`
}

type Actor struct {
	UserID   int
	Username string
	Role     string
}

type ProductSalesSummary struct {
	ProductID int             `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type SalesReport struct {
	From           string                `json:"from"`
	To             string                `json:"to"`
	SaleCount      int                   `json:"saleCount"`
	GrossSales     decimal.Decimal       `json:"grossSales"`
	RefundedCount  int                   `json:"refundedCount"`
	RefundedAmount decimal.Decimal       `json:"refundedAmount"`
	NetSales       decimal.Decimal       `json:"netSales"`
	LossCount      int                   `json:"lossCount"`
	LossValue      decimal.Decimal       `json:"lossValue"`
	TopProducts    []ProductSalesSummary `json:"topProducts"`
}
