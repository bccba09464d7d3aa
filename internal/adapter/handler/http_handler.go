package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rl1809/quote-cache/internal/adapter/storage"
	"github.com/rl1809/quote-cache/internal/core/domain"
	"github.com/rl1809/quote-cache/internal/core/service"
	"github.com/rl1809/quote-cache/internal/port"
)

const (
	adminTokenHeader   = "X-Admin-Token"
	maxSnapshotSymbols = 100
)

type QuoteService interface {
	ResolveQuote(ctx context.Context, symbol string, cred domain.Credential, opts ...service.ResolveOption) (domain.Quote, error)
	Invalidate(ctx context.Context, symbol string) error
}

type PortfolioService interface {
	PortfolioValue(ctx context.Context, ownerID string, cred domain.Credential) (domain.AggregateResult, error)
	Snapshot(ctx context.Context, symbols []string, cred domain.Credential) []service.SnapshotEntry
}

type HTTPHandler struct {
	quotes     QuoteService
	portfolios PortfolioService
	// admin is nil when the cache is disabled
	admin      port.CacheAdmin
	adminToken string
	log        *slog.Logger
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type SnapshotItem struct {
	Symbol string        `json:"symbol"`
	Quote  *domain.Quote `json:"quote,omitempty"`
	Error  string        `json:"error,omitempty"`
}

func NewHTTPHandler(quotes QuoteService, portfolios PortfolioService, admin port.CacheAdmin, adminToken string, log *slog.Logger) *HTTPHandler {
	return &HTTPHandler{
		quotes:     quotes,
		portfolios: portfolios,
		admin:      admin,
		adminToken: adminToken,
		log:        log,
	}
}

// NewRouter mounts every route on a fresh engine. Admin routes exist only
// when an admin token is configured.
func NewRouter(h *HTTPHandler, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", h.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	{
		api.GET("/quotes/:symbol", h.GetQuote)
		api.GET("/quotes", h.GetSnapshot)
		api.GET("/portfolios/:ownerId/value", h.GetPortfolioValue)
	}

	if h.adminToken != "" {
		admin := r.Group("/admin", h.requireAdmin)
		admin.DELETE("/cache/quotes/:symbol", h.InvalidateQuote)
		if h.admin != nil {
			admin.POST("/cache/flush", h.FlushCache)
		}
	}
	return r
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *HTTPHandler) GetQuote(c *gin.Context) {
	q, err := h.quotes.ResolveQuote(c.Request.Context(), c.Param("symbol"), credential(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *HTTPHandler) GetSnapshot(c *gin.Context) {
	var symbols []string
	for _, s := range strings.Split(c.Query("symbols"), ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, s)
		}
	}
	if len(symbols) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "symbols is required"})
		return
	}
	if len(symbols) > maxSnapshotSymbols {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "too many symbols"})
		return
	}

	entries := h.portfolios.Snapshot(c.Request.Context(), symbols, credential(c))
	items := make([]SnapshotItem, len(entries))
	for i, e := range entries {
		items[i] = SnapshotItem{Symbol: e.Symbol}
		if e.Err != nil {
			items[i].Error = e.Err.Error()
			continue
		}
		q := e.Quote
		items[i].Quote = &q
	}
	c.JSON(http.StatusOK, items)
}

func (h *HTTPHandler) GetPortfolioValue(c *gin.Context) {
	owner := strings.TrimSpace(c.Param("ownerId"))
	if owner == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "owner id is required"})
		return
	}

	res, err := h.portfolios.PortfolioValue(c.Request.Context(), owner, credential(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *HTTPHandler) InvalidateQuote(c *gin.Context) {
	if err := h.quotes.Invalidate(c.Request.Context(), c.Param("symbol")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// FlushCache wipes the whole Redis instance. The caller must pass
// ?confirm=FLUSHALL on top of the admin token.
func (h *HTTPHandler) FlushCache(c *gin.Context) {
	err := h.admin.FlushAll(c.Request.Context(), c.Query("confirm"))
	if errors.Is(err, storage.ErrFlushNotConfirmed) {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "confirm=" + storage.FlushAllConfirmation + " is required"})
		return
	}
	if err != nil {
		h.log.Error("cache flush failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "flush failed"})
		return
	}
	h.log.Warn("cache flushed by admin", "remote", c.ClientIP())
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) requireAdmin(c *gin.Context) {
	token := c.GetHeader(adminTokenHeader)
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.adminToken)) != 1 {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return
	}
	c.Next()
}

// statusClientClosedRequest is nginx's code for a request the client abandoned.
const statusClientClosedRequest = 499

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidSymbol):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid symbol"})
	case errors.Is(err, domain.ErrSymbolNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "symbol not found"})
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: "quote service unavailable"})
	case errors.Is(err, context.Canceled):
		// The client is gone; nobody reads this body.
		c.AbortWithStatus(statusClientClosedRequest)
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, ErrorResponse{Error: "quote request timed out"})
	default:
		h.log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func credential(c *gin.Context) domain.Credential {
	return domain.Credential(c.GetHeader("Authorization"))
}
