package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/davicafu/hexaledger/internal/catalog/application"
	catalogDomain "github.com/davicafu/hexaledger/internal/catalog/domain"
	sharedDomain "github.com/davicafu/hexaledger/internal/shared/domain"
	"github.com/davicafu/hexaledger/pkg/utils"
)

const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderUserID        = "X-User-ID"

	dayLayout           = "2006-01-02"
	defaultActivityDays = 7
)

// OutboxAdmin da los contadores del outbox y reencola las filas fallidas.
type OutboxAdmin interface {
	Summary(ctx context.Context) (sharedDomain.OutboxSummary, error)
	RequeueFailed(ctx context.Context, limit int, now time.Time) (int, error)
}

// QueueStats da las sentencias en cola del batcher.
type QueueStats interface {
	Pending() int
}

// ProductHandler encapsula los endpoints HTTP del catálogo.
type ProductHandler struct {
	service    *application.ProductService
	outbox     OutboxAdmin
	queue      QueueStats
	activity   catalogDomain.ActivityReader // nil si no hay ClickHouse
	commitWait time.Duration
	log        *zap.Logger
}

func NewProductHandler(service *application.ProductService, outbox OutboxAdmin, queue QueueStats, activity catalogDomain.ActivityReader, commitWait time.Duration, log *zap.Logger) *ProductHandler {
	return &ProductHandler{
		service:    service,
		outbox:     outbox,
		queue:      queue,
		activity:   activity,
		commitWait: commitWait,
		log:        log,
	}
}

// commandResponse es lo que devuelven las escrituras.
type commandResponse struct {
	ID        string `json:"id"`
	Version   int64  `json:"version"`
	Committed bool   `json:"committed"`
}

// --- Comandos ---

// CreateProduct endpoint POST /products
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	var req struct {
		ID          string `json:"id"`
		Name        string `json:"name" binding:"required"`
		Description string `json:"description"`
		PriceCents  int64  `json:"price_cents"`
		Stock       int    `json:"stock"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	res, err := h.service.CreateProduct(c.Request.Context(), application.CreateProduct{
		CommandMeta: meta(c),
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Stock:       req.Stock,
	})
	h.respond(c, http.StatusCreated, res, err)
}

// RenameProduct endpoint PATCH /products/:id/name
func (h *ProductHandler) RenameProduct(c *gin.Context) {
	var req struct {
		ExpectedVersion *int64 `json:"expected_version" binding:"required"`
		Name            string `json:"name" binding:"required"`
		Description     string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	res, err := h.service.RenameProduct(c.Request.Context(), application.RenameProduct{
		CommandMeta:     meta(c),
		ID:              c.Param("id"),
		ExpectedVersion: *req.ExpectedVersion,
		Name:            req.Name,
		Description:     req.Description,
	})
	h.respond(c, http.StatusOK, res, err)
}

// ChangePrice endpoint PATCH /products/:id/price
func (h *ProductHandler) ChangePrice(c *gin.Context) {
	var req struct {
		ExpectedVersion *int64 `json:"expected_version" binding:"required"`
		PriceCents      *int64 `json:"price_cents" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	res, err := h.service.ChangePrice(c.Request.Context(), application.ChangePrice{
		CommandMeta:     meta(c),
		ID:              c.Param("id"),
		ExpectedVersion: *req.ExpectedVersion,
		PriceCents:      *req.PriceCents,
	})
	h.respond(c, http.StatusOK, res, err)
}

// AdjustStock endpoint PATCH /products/:id/stock
func (h *ProductHandler) AdjustStock(c *gin.Context) {
	var req struct {
		ExpectedVersion *int64 `json:"expected_version" binding:"required"`
		Delta           int    `json:"delta"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.SendBadRequest(c, err.Error())
		return
	}

	res, err := h.service.AdjustStock(c.Request.Context(), application.AdjustStock{
		CommandMeta:     meta(c),
		ID:              c.Param("id"),
		ExpectedVersion: *req.ExpectedVersion,
		Delta:           req.Delta,
	})
	h.respond(c, http.StatusOK, res, err)
}

// DiscontinueProduct endpoint DELETE /products/:id?expected_version=N
func (h *ProductHandler) DiscontinueProduct(c *gin.Context) {
	expected, err := strconv.ParseInt(c.Query("expected_version"), 10, 64)
	if err != nil {
		utils.SendBadRequest(c, "expected_version query parameter is required")
		return
	}

	res, err := h.service.Discontinue(c.Request.Context(), application.DiscontinueProduct{
		CommandMeta:     meta(c),
		ID:              c.Param("id"),
		ExpectedVersion: expected,
	})
	h.respond(c, http.StatusOK, res, err)
}

// --- Consultas ---

// GetProduct endpoint GET /products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	view, err := h.service.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		sendDomainError(c, err)
		return
	}
	c.Header("ETag", strconv.FormatInt(view.Version, 10))
	utils.SendSuccess(c, http.StatusOK, view)
}

// OutboxSummary endpoint GET /outbox/summary
func (h *ProductHandler) OutboxSummary(c *gin.Context) {
	summary, err := h.outbox.Summary(c.Request.Context())
	if err != nil {
		utils.SendInternalServerError(c, err.Error())
		return
	}
	utils.SendSuccess(c, http.StatusOK, summary)
}

// RequeueFailed endpoint POST /outbox/requeue?limit=N
func (h *ProductHandler) RequeueFailed(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		utils.SendBadRequest(c, "limit must be a positive integer")
		return
	}

	n, err := h.outbox.RequeueFailed(c.Request.Context(), limit, time.Now().UTC())
	if err != nil {
		sendDomainError(c, err)
		return
	}
	h.log.Info("🔁 Eventos fallidos reencolados", zap.Int("count", n))
	utils.SendSuccess(c, http.StatusOK, gin.H{"requeued": n})
}

// DailyActivity endpoint GET /analytics/activity?from=2026-01-01&to=2026-01-07
// Ambas fechas son inclusivas; por defecto los últimos 7 días.
func (h *ProductHandler) DailyActivity(c *gin.Context) {
	if h.activity == nil {
		utils.SendError(c, http.StatusNotImplemented, "analytics backend not configured")
		return
	}

	today := time.Now().UTC().Truncate(24 * time.Hour)
	to, err := parseDay(c.Query("to"), today)
	if err != nil {
		utils.SendBadRequest(c, "to must be a YYYY-MM-DD date")
		return
	}
	from, err := parseDay(c.Query("from"), to.AddDate(0, 0, -(defaultActivityDays-1)))
	if err != nil {
		utils.SendBadRequest(c, "from must be a YYYY-MM-DD date")
		return
	}
	if to.Before(from) {
		utils.SendBadRequest(c, "from must not be after to")
		return
	}

	activity, err := h.activity.GetDailyActivity(c.Request.Context(), from, to.AddDate(0, 0, 1))
	if err != nil {
		h.log.Error("Error al leer la actividad diaria", zap.Error(err))
		utils.SendInternalServerError(c, err.Error())
		return
	}
	if activity == nil {
		activity = []catalogDomain.DailyActivity{}
	}
	utils.SendSuccess(c, http.StatusOK, activity)
}

// Health endpoint GET /health
func (h *ProductHandler) Health(c *gin.Context) {
	pending := 0
	if h.queue != nil {
		pending = h.queue.Pending()
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "pending_writes": pending})
}

// respond espera al recibo como mucho commitWait. Un 2xx con committed=true
// significa que la escritura es durable; si el plazo vence se responde 202.
func (h *ProductHandler) respond(c *gin.Context, status int, res *application.CommandResult, err error) {
	if err != nil {
		sendDomainError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.commitWait)
	defer cancel()

	body := commandResponse{ID: res.AggregateID, Version: res.Version}
	if err := res.Receipt.Wait(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && c.Request.Context().Err() == nil {
			h.log.Warn("⏳ Commit pendiente al responder", zap.String("product_id", res.AggregateID), zap.Int64("version", res.Version))
			utils.SendSuccess(c, http.StatusAccepted, body)
			return
		}
		sendDomainError(c, err)
		return
	}

	body.Committed = true
	utils.SendSuccess(c, status, body)
}

func meta(c *gin.Context) application.CommandMeta {
	return application.CommandMeta{
		CorrelationID: c.GetHeader(HeaderCorrelationID),
		UserID:        c.GetHeader(HeaderUserID),
	}
}

func parseDay(raw string, def time.Time) (time.Time, error) {
	if raw == "" {
		return def, nil
	}
	return time.Parse(dayLayout, raw)
}
