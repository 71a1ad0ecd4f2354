package httpapi

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"inventorypro/backend/internal/domain"
)

func (a *API) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(c *gin.Context) {
	if !a.loginLimiter.Allow(c.ClientIP()) {
		writeError(c, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(c, &req, false); err != nil {
		writeBadRequest(c, err)
		return
	}

	resp, user, err := a.auth.Login(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	a.service.RecordLogin(c.Request.Context(), user)
	c.JSON(http.StatusOK, resp)
}

// handleEvents upgrades to a websocket. Browsers cannot set headers on the
// upgrade request, so the token may also come as ?token=.
func (a *API) handleEvents(c *gin.Context) {
	if a.events == nil {
		writeError(c, http.StatusServiceUnavailable, errors.New("realtime events are disabled"))
		return
	}
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		if authorization := c.GetHeader("Authorization"); strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			token = strings.TrimSpace(authorization[len("Bearer "):])
		}
	}
	if _, err := a.auth.ParseToken(token); err != nil {
		writeError(c, http.StatusUnauthorized, err)
		return
	}
	a.events.ServeWS(c.Writer, c.Request)
}

func (a *API) handleListInventory(c *gin.Context) {
	items, err := a.service.ListInventory(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (a *API) handlePopularInventory(c *gin.Context) {
	items, err := a.service.PopularInventory(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (a *API) handleInventoryByBarcode(c *gin.Context) {
	item, err := a.service.FindInventoryByBarcode(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (a *API) handleGetInventory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	item, err := a.service.GetInventoryItem(c.Request.Context(), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (a *API) handleCreateInventory(c *gin.Context) {
	var req domain.InventoryCreateRequest
	if err := decodeJSON(c, &req, false); err != nil {
		writeBadRequest(c, err)
		return
	}
	item, err := a.service.CreateInventoryItem(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

func (a *API) handleUpdateInventory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req domain.InventoryUpdateRequest
	if err := decodeJSON(c, &req, false); err != nil {
		writeBadRequest(c, err)
		return
	}
	item, err := a.service.UpdateInventoryItem(c.Request.Context(), id, req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (a *API) handleDeleteInventory(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := a.service.DeleteInventoryItem(c.Request.Context(), id); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleListSales(c *gin.Context) {
	sales, err := a.service.ListSales(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sales": sales})
}

func (a *API) handleGetSale(c *gin.Context) {
	sale, err := a.service.GetSale(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (a *API) handleRecordSale(c *gin.Context) {
	var req domain.SaleRequest
	if err := decodeJSON(c, &req, false); err != nil {
		writeBadRequest(c, err)
		return
	}
	sale, err := a.service.RecordSale(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

func (a *API) handleRefundSale(c *gin.Context) {
	var req struct {
		RefundedBy string `json:"refundedBy"`
	}
	if err := decodeJSON(c, &req, true); err != nil {
		writeBadRequest(c, err)
		return
	}
	sale, err := a.service.RefundSale(c.Request.Context(), c.Param("id"), req.RefundedBy)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (a *API) handleListLosses(c *gin.Context) {
	losses, err := a.service.ListLosses(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"losses": losses})
}

func (a *API) handleGetLoss(c *gin.Context) {
	loss, err := a.service.GetLoss(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, loss)
}

func (a *API) handleRecordLoss(c *gin.Context) {
	var req domain.LossRequest
	if err := decodeJSON(c, &req, false); err != nil {
		writeBadRequest(c, err)
		return
	}
	loss, err := a.service.RecordLoss(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, loss)
}

func (a *API) handleUpdateLoss(c *gin.Context) {
	var req domain.LossUpdate
	if err := decodeJSON(c, &req, false); err != nil {
		writeBadRequest(c, err)
		return
	}
	loss, err := a.service.UpdateLoss(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, loss)
}

func (a *API) handleGetStats(c *gin.Context) {
	stats, err := a.service.GetStats(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a *API) handleUpdateStats(c *gin.Context) {
	var req domain.StatsUpdate
	if err := decodeJSON(c, &req, false); err != nil {
		writeBadRequest(c, err)
		return
	}
	stats, err := a.service.UpdateStats(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a *API) handleGetSettings(c *gin.Context) {
	settings, err := a.service.GetSettings(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (a *API) handleUpdateSettings(c *gin.Context) {
	var req domain.SettingsUpdate
	if err := decodeJSON(c, &req, false); err != nil {
		writeBadRequest(c, err)
		return
	}
	settings, err := a.service.UpdateSettings(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (a *API) handleListUsers(c *gin.Context) {
	users, err := a.service.ListUsers(c.Request.Context())
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (a *API) handleCreateUser(c *gin.Context) {
	var req domain.UserCreateRequest
	if err := decodeJSON(c, &req, false); err != nil {
		writeBadRequest(c, err)
		return
	}
	user, err := a.service.CreateUser(c.Request.Context(), req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (a *API) handleUpdateUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req domain.UserUpdateRequest
	if err := decodeJSON(c, &req, false); err != nil {
		writeBadRequest(c, err)
		return
	}
	user, err := a.service.UpdateUser(c.Request.Context(), id, req)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (a *API) handleDeleteUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := a.service.DeleteUser(c.Request.Context(), id); err != nil {
		writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *API) handleActivityLogs(c *gin.Context) {
	filter := domain.ActivityFilter{
		Category: strings.TrimSpace(c.Query("category")),
		Limit:    parsePositiveLimit(c.Query("limit"), 100, 1000),
	}
	if raw := strings.TrimSpace(c.Query("userId")); raw != "" {
		userID, err := strconv.Atoi(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, errors.New("userId must be an integer"))
			return
		}
		filter.UserID = userID
	}

	logs, err := a.service.ListActivity(c.Request.Context(), filter)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

func (a *API) handleSalesReport(c *gin.Context) {
	report, err := a.service.SalesReport(c.Request.Context(), c.Query("from"), c.Query("to"))
	if err != nil {
		writeServiceError(c, err)
		return
	}

	if strings.EqualFold(strings.TrimSpace(c.Query("format")), "csv") {
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"sales-report-%s-%s.csv\"", report.From, report.To))
		c.Status(http.StatusOK)
		if err := writeSalesReportCSV(c.Writer, report); err != nil {
			_ = c.Error(err)
		}
		return
	}
	c.JSON(http.StatusOK, report)
}

func writeSalesReportCSV(w io.Writer, report domain.SalesReport) error {
	writer := csv.NewWriter(w)
	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "from", report.From},
		{"summary", "to", report.To},
		{"summary", "sales", strconv.Itoa(report.SaleCount)},
		{"summary", "gross_sales", report.GrossSales.StringFixed(2)},
		{"summary", "refunded_sales", strconv.Itoa(report.RefundedCount)},
		{"summary", "refunded_amount", report.RefundedAmount.StringFixed(2)},
		{"summary", "net_sales", report.NetSales.StringFixed(2)},
		{"summary", "losses", strconv.Itoa(report.LossCount)},
		{"summary", "loss_value", report.LossValue.StringFixed(2)},
	}
	for _, product := range report.TopProducts {
		rows = append(rows,
			[]string{"product", product.Name + "_quantity", strconv.Itoa(product.Quantity)},
			[]string{"product", product.Name + "_revenue", product.Revenue.StringFixed(2)},
		)
	}
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return writer.Error()
}
