package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"inventorypro/backend/internal/domain"
	"inventorypro/backend/internal/logging"
	"inventorypro/backend/internal/service"
	"inventorypro/backend/internal/store"
)

const maxBodyBytes = 1 << 20

// EventStream serves the realtime websocket endpoint.
type EventStream interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}

type API struct {
	service       *service.Service
	auth          *AuthManager
	events        EventStream
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, events EventStream, allowedOrigin string) *API {
	return &API{
		service:       svc,
		auth:          auth,
		events:        events,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
}

func (a *API) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), logging.RequestLogger(), a.corsMiddleware(), securityHeaders())

	router.GET("/healthz", a.handleHealth)

	v1 := router.Group("/api/v1")
	v1.POST("/auth/login", a.handleLogin)
	v1.GET("/ws", a.handleEvents)

	all := []string{domain.RoleAdministrator, domain.RoleManager, domain.RoleStocker, domain.RoleCashier}
	stockers := []string{domain.RoleAdministrator, domain.RoleManager, domain.RoleStocker}
	managers := []string{domain.RoleAdministrator, domain.RoleManager}
	admins := []string{domain.RoleAdministrator}

	v1.GET("/inventory", a.requireAuth(all...), a.handleListInventory)
	v1.POST("/inventory", a.requireAuth(stockers...), a.handleCreateInventory)
	v1.GET("/inventory/popular", a.requireAuth(all...), a.handlePopularInventory)
	v1.GET("/inventory/barcode/:barcode", a.requireAuth(all...), a.handleInventoryByBarcode)
	v1.GET("/inventory/:id", a.requireAuth(all...), a.handleGetInventory)
	v1.PATCH("/inventory/:id", a.requireAuth(stockers...), a.handleUpdateInventory)
	v1.DELETE("/inventory/:id", a.requireAuth(managers...), a.handleDeleteInventory)

	v1.GET("/sales", a.requireAuth(all...), a.handleListSales)
	v1.POST("/sales", a.requireAuth(all...), a.handleRecordSale)
	v1.GET("/sales/:id", a.requireAuth(all...), a.handleGetSale)
	v1.POST("/sales/:id/refund", a.requireAuth(managers...), a.handleRefundSale)

	v1.GET("/losses", a.requireAuth(stockers...), a.handleListLosses)
	v1.POST("/losses", a.requireAuth(stockers...), a.handleRecordLoss)
	v1.GET("/losses/:id", a.requireAuth(stockers...), a.handleGetLoss)
	v1.PATCH("/losses/:id", a.requireAuth(stockers...), a.handleUpdateLoss)

	v1.GET("/stats", a.requireAuth(all...), a.handleGetStats)
	v1.PATCH("/stats", a.requireAuth(managers...), a.handleUpdateStats)

	v1.GET("/settings", a.requireAuth(all...), a.handleGetSettings)
	v1.PATCH("/settings", a.requireAuth(managers...), a.handleUpdateSettings)

	v1.GET("/users", a.requireAuth(admins...), a.handleListUsers)
	v1.POST("/users", a.requireAuth(admins...), a.handleCreateUser)
	v1.PATCH("/users/:id", a.requireAuth(admins...), a.handleUpdateUser)
	v1.DELETE("/users/:id", a.requireAuth(admins...), a.handleDeleteUser)

	v1.GET("/activity-logs", a.requireAuth(managers...), a.handleActivityLogs)
	v1.GET("/reports/sales", a.requireAuth(managers...), a.handleSalesReport)

	return router
}

func (a *API) corsMiddleware() gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	origin := strings.TrimSpace(a.allowedOrigin)
	if origin == "" || origin == "*" {
		config.AllowAllOrigins = true
	} else {
		for _, o := range strings.Split(origin, ",") {
			if o = strings.TrimSpace(o); o != "" {
				config.AllowOrigins = append(config.AllowOrigins, o)
			}
		}
	}
	return cors.New(config)
}

func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Cross-Origin-Opener-Policy", "same-origin")
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
		}
		c.Next()
	}
}

func (a *API) requireAuth(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authorization := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			abortWithError(c, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		actor, err := a.auth.ParseToken(strings.TrimSpace(authorization[len("Bearer "):]))
		if err != nil {
			abortWithError(c, http.StatusUnauthorized, err)
			return
		}
		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			abortWithError(c, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		c.Request = c.Request.WithContext(service.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

// decodeJSON rejects unknown fields. An empty body is an error unless
// optional is set.
func decodeJSON(c *gin.Context, dest any, optional bool) error {
	decoder := json.NewDecoder(c.Request.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errRequestTooLarge
		}
		return err
	}
	return nil
}

var errRequestTooLarge = errors.New("request body too large")

func parseID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		writeError(c, http.StatusBadRequest, errors.New("id must be a positive integer"))
		return 0, false
	}
	return id, true
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInactiveAccount):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict), errors.Is(err, service.ErrAlreadyRefunded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(c *gin.Context, err error) {
	writeError(c, statusFor(err), err)
}

func writeBadRequest(c *gin.Context, err error) {
	status := http.StatusBadRequest
	if errors.Is(err, errRequestTooLarge) {
		status = http.StatusRequestEntityTooLarge
	}
	writeError(c, status, err)
}

// writeError hides the cause of 5xx responses from clients and logs it.
func writeError(c *gin.Context, status int, err error) {
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("component", "httpapi").Str("path", c.Request.URL.Path).Int("status", status).Msg("request failed")
		msg = "internal server error"
	}
	c.JSON(status, gin.H{"error": msg})
}

func abortWithError(c *gin.Context, status int, err error) {
	writeError(c, status, err)
	c.Abort()
}
