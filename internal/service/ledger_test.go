package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"inventorypro/backend/internal/domain"
	"inventorypro/backend/internal/store"
)

func actorCtx(id int, username string, role string) context.Context {
	return WithActor(context.Background(), domain.Actor{UserID: id, Username: username, Role: role})
}

func decimalPtr(raw string) *decimal.Decimal {
	d := decimal.RequireFromString(raw)
	return &d
}

func TestCreateInventoryItemDerivesPriceAndStatus(t *testing.T) {
	f := newFixture(t, item(4, "Cola", 10, 5, "1.00"))
	ctx := actorCtx(2, "manager", domain.RoleManager)

	created, err := f.svc.CreateInventoryItem(ctx, domain.InventoryCreateRequest{
		SKU:          "SNK-01",
		Barcode:      "123456",
		Name:         "Crackers",
		CostPrice:    decimalPtr("2.00"),
		ProfitMargin: decimalPtr("25"),
		ProfitType:   domain.ProfitTypePercentage,
		Stock:        3,
		Threshold:    3,
	})
	if err != nil {
		t.Fatalf("create item: %v", err)
	}
	if created.ID != 5 {
		t.Fatalf("expected id max+1 = 5, got %d", created.ID)
	}
	if !created.Price.Equal(decimal.RequireFromString("2.50")) {
		t.Fatalf("expected derived price 2.50, got %s", created.Price)
	}
	if created.Status != domain.StatusWarning {
		t.Fatalf("expected Warning at threshold, got %s", created.Status)
	}

	fixed, err := f.svc.CreateInventoryItem(ctx, domain.InventoryCreateRequest{
		SKU:          "SNK-02",
		Name:         "Pretzels",
		CostPrice:    decimalPtr("1.20"),
		ProfitMargin: decimalPtr("0.30"),
		ProfitType:   domain.ProfitTypeFixed,
		Stock:        10,
	})
	if err != nil {
		t.Fatalf("create fixed-margin item: %v", err)
	}
	if !fixed.Price.Equal(decimal.RequireFromString("1.50")) {
		t.Fatalf("expected derived price 1.50, got %s", fixed.Price)
	}
}

func TestCreateInventoryItemRejectsDuplicates(t *testing.T) {
	f := newFixture(t, domain.InventoryItem{ID: 1, SKU: "SKU-1", Barcode: "999", Name: "Cola", Stock: 1})
	ctx := adminCtx()

	_, err := f.svc.CreateInventoryItem(ctx, domain.InventoryCreateRequest{SKU: "sku-1", Name: "Other"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected sku conflict, got %v", err)
	}
	_, err = f.svc.CreateInventoryItem(ctx, domain.InventoryCreateRequest{SKU: "SKU-2", Barcode: "999", Name: "Other"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected barcode conflict, got %v", err)
	}
	_, err = f.svc.CreateInventoryItem(ctx, domain.InventoryCreateRequest{SKU: "SKU-3", Name: ""})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected missing name rejected, got %v", err)
	}
}

func TestInventoryRolePolicy(t *testing.T) {
	f := newFixture(t, item(1, "Cola", 10, 5, "1.00"))
	stocker := actorCtx(3, "stocker", domain.RoleStocker)
	cashier := actorCtx(4, "cashier", domain.RoleCashier)

	stock := 40
	updated, err := f.svc.UpdateInventoryItem(stocker, 1, domain.InventoryUpdateRequest{Stock: &stock})
	if err != nil {
		t.Fatalf("stocker stock update: %v", err)
	}
	if updated.Stock != 40 || updated.Status != domain.StatusInStock {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	if _, err := f.svc.UpdateInventoryItem(stocker, 1, domain.InventoryUpdateRequest{Price: decimalPtr("9.99")}); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected stocker price change forbidden, got %v", err)
	}
	profitType := domain.ProfitTypeFixed
	if _, err := f.svc.UpdateInventoryItem(stocker, 1, domain.InventoryUpdateRequest{ProfitType: &profitType}); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected stocker profit change forbidden, got %v", err)
	}
	if err := f.svc.DeleteInventoryItem(stocker, 1); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected stocker delete forbidden, got %v", err)
	}
	if _, err := f.svc.UpdateInventoryItem(cashier, 1, domain.InventoryUpdateRequest{Stock: &stock}); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected cashier update forbidden, got %v", err)
	}
	if _, err := f.svc.CreateInventoryItem(cashier, domain.InventoryCreateRequest{SKU: "X", Name: "X"}); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected cashier create forbidden, got %v", err)
	}

	if got := mustItem(t, f, 1); !got.Price.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected price untouched, got %s", got.Price)
	}
}

func TestManagerCostUpdateRederivesPrice(t *testing.T) {
	f := newFixture(t, domain.InventoryItem{ID: 1, SKU: "SKU-1", Name: "Rice", Price: decimal.NewFromInt(3), CostPrice: decimal.NewFromInt(2), ProfitMargin: decimal.NewFromInt(1), ProfitType: domain.ProfitTypeFixed, Stock: 10})
	ctx := actorCtx(2, "manager", domain.RoleManager)

	updated, err := f.svc.UpdateInventoryItem(ctx, 1, domain.InventoryUpdateRequest{CostPrice: decimalPtr("2.40")})
	if err != nil {
		t.Fatalf("update cost: %v", err)
	}
	if !updated.Price.Equal(decimal.RequireFromString("3.40")) {
		t.Fatalf("expected price 3.40, got %s", updated.Price)
	}
}

func TestDeleteAndLookupInventory(t *testing.T) {
	f := newFixture(t, domain.InventoryItem{ID: 1, SKU: "SKU-1", Barcode: "4006381333931", Name: "Cola", Stock: 5})
	ctx := adminCtx()

	found, err := f.svc.FindInventoryByBarcode(ctx, "4006381333931")
	if err != nil || found.ID != 1 {
		t.Fatalf("expected barcode lookup to find item 1, got %+v, %v", found, err)
	}
	if _, err := f.svc.FindInventoryByBarcode(ctx, "000"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown barcode, got %v", err)
	}
	if err := f.svc.DeleteInventoryItem(ctx, 1); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := f.svc.GetInventoryItem(ctx, 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := f.svc.DeleteInventoryItem(ctx, 1); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestEnsureAdminAndAuthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.EnsureAdmin(ctx, "s3cret-pass")
	if err != nil || !created {
		t.Fatalf("expected admin seeded, got %v, %v", created, err)
	}
	if created, err := f.svc.EnsureAdmin(ctx, "other-pass"); err != nil || created {
		t.Fatalf("expected no second seed, got %v, %v", created, err)
	}

	user, err := f.svc.Authenticate(ctx, "ADMIN", "s3cret-pass")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if user.Role != domain.RoleAdministrator || user.PasswordHash == "s3cret-pass" {
		t.Fatalf("unexpected seeded admin: %+v", user)
	}
	if _, err := f.svc.Authenticate(ctx, "admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateUpgradesLegacyPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.repo.SaveUsers(ctx, []domain.User{{ID: 1, Username: "legacy", PasswordHash: "plain-pass", Role: domain.RoleCashier, Status: domain.UserStatusActive}}); err != nil {
		t.Fatalf("seed users: %v", err)
	}

	if _, err := f.svc.Authenticate(ctx, "legacy", "plain-pass"); err != nil {
		t.Fatalf("authenticate legacy: %v", err)
	}
	users, err := f.repo.Users(ctx)
	if err != nil {
		t.Fatalf("read users: %v", err)
	}
	if !isPasswordHash(users[0].PasswordHash) {
		t.Fatalf("expected password upgraded to bcrypt, got %q", users[0].PasswordHash)
	}
	if _, err := f.svc.Authenticate(ctx, "legacy", "plain-pass"); err != nil {
		t.Fatalf("authenticate after upgrade: %v", err)
	}
}

func TestUserAdministration(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.EnsureAdmin(context.Background(), "s3cret-pass"); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	ctx := adminCtx()

	created, err := f.svc.CreateUser(ctx, domain.UserCreateRequest{Username: "Dana", Name: "Dana", Password: "cashier-pass", Role: domain.RoleCashier})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.ID != 2 || created.Username != "dana" || created.Status != domain.UserStatusActive {
		t.Fatalf("unexpected created user: %+v", created)
	}
	if _, err := f.svc.CreateUser(ctx, domain.UserCreateRequest{Username: "dana", Password: "another-pass", Role: domain.RoleCashier}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected duplicate username conflict, got %v", err)
	}
	if _, err := f.svc.CreateUser(ctx, domain.UserCreateRequest{Username: "bob", Password: "bob-pass", Role: "Owner"}); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected invalid role rejected, got %v", err)
	}

	inactive := domain.UserStatusInactive
	if _, err := f.svc.UpdateUser(ctx, created.ID, domain.UserUpdateRequest{Status: &inactive}); err != nil {
		t.Fatalf("deactivate user: %v", err)
	}
	if _, err := f.svc.Authenticate(context.Background(), "dana", "cashier-pass"); !errors.Is(err, ErrInactiveAccount) {
		t.Fatalf("expected ErrInactiveAccount, got %v", err)
	}

	stats := mustStats(t, f)
	if stats.ActiveUsers != 1 {
		t.Fatalf("expected 1 active user, got %d", stats.ActiveUsers)
	}

	if err := f.svc.DeleteUser(ctx, 1); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected self delete rejected, got %v", err)
	}
	if err := f.svc.DeleteUser(ctx, created.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}
	users, err := f.svc.ListUsers(ctx)
	if err != nil {
		t.Fatalf("list users: %v", err)
	}
	if len(users) != 1 || users[0].Username != "admin" {
		t.Fatalf("unexpected users: %+v", users)
	}

	if _, err := f.svc.ListUsers(actorCtx(2, "manager", domain.RoleManager)); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected managers barred from user admin, got %v", err)
	}
}

func TestSettingsDefaultsAndUpdate(t *testing.T) {
	f := newFixture(t)

	settings, err := f.svc.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.StoreName == "" || settings.NextTransactionID != 1 {
		t.Fatalf("unexpected default settings: %+v", settings)
	}

	name := "  Corner Shop "
	updated, err := f.svc.UpdateSettings(actorCtx(2, "manager", domain.RoleManager), domain.SettingsUpdate{StoreName: &name})
	if err != nil {
		t.Fatalf("update settings: %v", err)
	}
	if updated.StoreName != "Corner Shop" || updated.ThankYouMessage != settings.ThankYouMessage {
		t.Fatalf("unexpected updated settings: %+v", updated)
	}
	if _, err := f.svc.UpdateSettings(actorCtx(3, "stocker", domain.RoleStocker), domain.SettingsUpdate{StoreName: &name}); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected stocker settings update forbidden, got %v", err)
	}

	entries, err := f.svc.ListActivity(adminCtx(), domain.ActivityFilter{Category: domain.CategorySettings})
	if err != nil {
		t.Fatalf("list activity: %v", err)
	}
	if len(entries) != 1 || entries[0].Username != "manager" {
		t.Fatalf("unexpected settings activity: %+v", entries)
	}
}

func TestSalesReportSummarisesRange(t *testing.T) {
	f := newFixture(t, item(1, "Cola", 100, 5, "2.00"), item(2, "Chips", 100, 5, "3.00"))
	ctx := adminCtx()

	if _, err := f.svc.RecordSale(ctx, saleOf(1, 4, "2.00")); err != nil {
		t.Fatalf("record sale: %v", err)
	}
	refunded, err := f.svc.RecordSale(ctx, saleOf(2, 1, "3.00"))
	if err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if _, err := f.svc.RefundSale(ctx, refunded.ID, ""); err != nil {
		t.Fatalf("refund: %v", err)
	}
	if _, err := f.svc.RecordLoss(ctx, domain.LossRequest{InventoryItemID: 2, Quantity: 2}); err != nil {
		t.Fatalf("record loss: %v", err)
	}

	f.clock.Set(time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC))
	if _, err := f.svc.RecordSale(ctx, saleOf(2, 2, "3.00")); err != nil {
		t.Fatalf("record sale: %v", err)
	}

	report, err := f.svc.SalesReport(ctx, "2024-05-01", "2024-05-01")
	if err != nil {
		t.Fatalf("sales report: %v", err)
	}
	if report.SaleCount != 2 || report.RefundedCount != 1 {
		t.Fatalf("unexpected counts: %+v", report)
	}
	if !report.GrossSales.Equal(decimal.NewFromInt(11)) || !report.NetSales.Equal(decimal.NewFromInt(8)) {
		t.Fatalf("expected gross 11 net 8, got %s %s", report.GrossSales, report.NetSales)
	}
	if report.LossCount != 1 || !report.LossValue.Equal(decimal.NewFromInt(6)) {
		t.Fatalf("unexpected loss totals: %d %s", report.LossCount, report.LossValue)
	}
	if len(report.TopProducts) != 1 || report.TopProducts[0].ProductID != 1 || report.TopProducts[0].Quantity != 4 {
		t.Fatalf("unexpected top products: %+v", report.TopProducts)
	}

	if _, err := f.svc.SalesReport(ctx, "2024-05-03", "2024-05-01"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected inverted range rejected, got %v", err)
	}
	if _, err := f.svc.SalesReport(ctx, "May 1", ""); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected bad date rejected, got %v", err)
	}
}

type mapViewCache struct {
	views       map[string][]domain.InventoryItem
	sets        int
	invalidated int
}

func (c *mapViewCache) Get(_ context.Context, key string) ([]domain.InventoryItem, bool, error) {
	items, ok := c.views[key]
	return items, ok, nil
}

func (c *mapViewCache) Set(_ context.Context, key string, items []domain.InventoryItem, _ time.Duration) error {
	c.views[key] = items
	c.sets++
	return nil
}

func (c *mapViewCache) Invalidate(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(c.views, key)
	}
	c.invalidated++
	return nil
}

func TestPopularInventoryReadsThroughViewCache(t *testing.T) {
	f := newFixture(t, item(1, "Cola", 10, 2, "1.00"), item(2, "Water", 10, 2, "1.00"))
	views := &mapViewCache{views: make(map[string][]domain.InventoryItem)}
	WithViewCache(views, time.Minute)(f.svc)
	ctx := adminCtx()

	for i := 0; i < 2; i++ {
		if _, err := f.svc.PopularInventory(ctx); err != nil {
			t.Fatalf("popular inventory: %v", err)
		}
	}
	if views.sets != 1 {
		t.Fatalf("expected second read served from cache, got %d sets", views.sets)
	}

	if _, err := f.svc.RecordSale(ctx, saleOf(2, 3, "1.00")); err != nil {
		t.Fatalf("record sale: %v", err)
	}
	if views.invalidated == 0 {
		t.Fatalf("expected sale to invalidate cached views")
	}
	popular, err := f.svc.PopularInventory(ctx)
	if err != nil {
		t.Fatalf("popular inventory: %v", err)
	}
	if popular[0].ID != 2 || views.sets != 2 {
		t.Fatalf("expected fresh ranking led by item 2, got %d (sets %d)", popular[0].ID, views.sets)
	}
}
