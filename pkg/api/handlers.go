package api

import (
	stderrors "errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aviroy619/critical-css-service/pkg/cdn"
	"github.com/aviroy619/critical-css-service/pkg/config"
	svcerrors "github.com/aviroy619/critical-css-service/pkg/errors"
	"github.com/aviroy619/critical-css-service/pkg/extract"
	"github.com/aviroy619/critical-css-service/pkg/health"
	"github.com/aviroy619/critical-css-service/pkg/logger"
	"github.com/aviroy619/critical-css-service/pkg/pool"
	"github.com/aviroy619/critical-css-service/pkg/ratelimit"
	"github.com/aviroy619/critical-css-service/pkg/storage"
)

// Handler bundles the service dependencies behind the HTTP surface
type Handler struct {
	pool      *pool.Pool
	store     storage.Store
	extractor *extract.Extractor
	uploader  cdn.Uploader
	limiter   *ratelimit.Limiter
	monitor   *health.Monitor
	log       *logger.Logger
}

// NewHandler creates an API handler with all dependencies
func NewHandler(p *pool.Pool, store storage.Store, ex *extract.Extractor, up cdn.Uploader, rl *ratelimit.Limiter, mon *health.Monitor, log *logger.Logger) *Handler {
	return &Handler{
		pool:      p,
		store:     store,
		extractor: ex,
		uploader:  up,
		limiter:   rl,
		monitor:   mon,
		log:       log.WithComponent("api"),
	}
}

// failureBackoff is how long a shop+template is cooled down after a
// failed generation attempt
const failureBackoff = 5 * time.Minute

// GenerateRequest is the payload for a critical CSS generation
type GenerateRequest struct {
	ShopID   string          `json:"shop_id" binding:"required"`
	Template string          `json:"template" binding:"required"`
	URL      string          `json:"url" binding:"required"`
	Viewport config.Viewport `json:"viewport"`
	Force    bool            `json:"force"`
}

// RegisterRoutes sets up all API routes
func (h *Handler) RegisterRoutes(router *gin.Engine, apiKey string) {
	router.GET("/healthz", h.Health)

	api := router.Group("/api/v1")
	api.Use(APIKeyMiddleware(apiKey))
	{
		api.POST("/critical-css/generate", h.Generate)
		api.GET("/critical-css/:shop_id", h.ListDocuments)
		api.GET("/critical-css/:shop_id/:template", h.GetDocument)
		api.DELETE("/critical-css/:shop_id/:template", h.DeleteDocument)
		api.GET("/critical-css/:shop_id/:template/errors", h.RecentErrors)

		api.GET("/pool/stats", h.PoolStats)
		api.GET("/pool/events", h.PoolEvents)
	}
}

// Generate runs an extraction for one shop+template and stores the result
func (h *Handler) Generate(c *gin.Context) {
	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, ErrInvalidRequest)
		return
	}
	if err := extract.ValidateURL(req.URL); err != nil {
		RespondError(c, http.StatusBadRequest, err.Error())
		return
	}

	ctx := c.Request.Context()
	log := h.log.WithContext(ctx)

	if !h.limiter.Allow(ctx, req.ShopID) {
		log.Warn("generation rate limited", "shop_id", req.ShopID)
		RespondRetryable(c, http.StatusTooManyRequests, ErrRateLimited)
		return
	}

	// A key that just failed gets a cooldown before the next attempt burns
	// a browser worker. force bypasses it.
	if !req.Force {
		if history, err := h.store.RecentErrors(req.ShopID, req.Template, 1); err == nil && len(history) > 0 {
			if time.Since(history[0].OccurredAt) < failureBackoff {
				log.Warn("generation in failure backoff",
					"shop_id", req.ShopID,
					"template", req.Template,
					"last_failure", history[0].OccurredAt)
				RespondRetryable(c, http.StatusTooManyRequests, ErrRecentFailure)
				return
			}
		}
	}

	worker, err := h.pool.Acquire(ctx)
	if err != nil {
		h.respondAcquireError(c, err)
		return
	}

	result, err := h.extractor.Extract(ctx, worker, req.URL, req.Viewport)
	h.pool.Release(worker)
	if err != nil {
		log.ErrorWithErr("extraction failed", err,
			"shop_id", req.ShopID,
			"template", req.Template,
			"url", req.URL)
		if recErr := h.store.RecordError(req.ShopID, req.Template, err.Error()); recErr != nil {
			log.WarnWithErr("failed to record generation error", recErr)
		}
		RespondRetryable(c, http.StatusBadGateway, err.Error())
		return
	}

	doc := &storage.Document{
		ShopID:      req.ShopID,
		Template:    req.Template,
		CSS:         result.CSS,
		ContentHash: result.ContentHash,
		SizeBytes:   len(result.CSS),
		SourceURL:   req.URL,
		ViewportW:   req.Viewport.Width,
		ViewportH:   req.Viewport.Height,
		DurationMs:  result.Duration.Milliseconds(),
		GeneratedAt: time.Now().UTC(),
	}

	// CDN upload failures are non-fatal; the CSS is still served from storage.
	cdnURL, upErr := h.uploader.Upload(ctx, req.ShopID, req.Template, []byte(result.CSS))
	if upErr != nil {
		log.WarnWithErr("cdn upload failed", upErr,
			"shop_id", req.ShopID,
			"template", req.Template)
	} else {
		doc.CDNURL = cdnURL
	}

	if err := h.store.SaveDocument(doc); err != nil {
		log.ErrorWithErr("failed to save document", err,
			"shop_id", req.ShopID,
			"template", req.Template)
		RespondError(c, http.StatusInternalServerError, ErrInternalServer)
		return
	}

	log.Info("critical css generated",
		"shop_id", req.ShopID,
		"template", req.Template,
		"bytes", doc.SizeBytes,
		"duration_ms", doc.DurationMs)
	RespondSuccess(c, doc, "generated")
}

// GetDocument returns the stored document for one shop+template
func (h *Handler) GetDocument(c *gin.Context) {
	shopID := c.Param("shop_id")
	template := c.Param("template")

	doc, err := h.store.GetDocument(shopID, template)
	if err != nil {
		if stderrors.Is(err, svcerrors.ErrDocumentNotFound) {
			RespondError(c, http.StatusNotFound, ErrNotFound)
			return
		}
		h.log.ErrorWithErr("failed to get document", err, "shop_id", shopID)
		RespondError(c, http.StatusInternalServerError, ErrInternalServer)
		return
	}

	RespondSuccess(c, doc, "")
}

// ListDocuments returns stored documents for a shop, CSS bodies omitted
func (h *Handler) ListDocuments(c *gin.Context) {
	shopID := c.Param("shop_id")

	docs, err := h.store.ListDocuments(shopID)
	if err != nil {
		h.log.ErrorWithErr("failed to list documents", err, "shop_id", shopID)
		RespondError(c, http.StatusInternalServerError, ErrInternalServer)
		return
	}

	RespondSuccess(c, gin.H{"documents": docs, "count": len(docs)}, "")
}

// DeleteDocument removes the stored document for one shop+template
func (h *Handler) DeleteDocument(c *gin.Context) {
	shopID := c.Param("shop_id")
	template := c.Param("template")

	if err := h.store.DeleteDocument(shopID, template); err != nil {
		if stderrors.Is(err, svcerrors.ErrDocumentNotFound) {
			RespondError(c, http.StatusNotFound, ErrNotFound)
			return
		}
		h.log.ErrorWithErr("failed to delete document", err, "shop_id", shopID)
		RespondError(c, http.StatusInternalServerError, ErrInternalServer)
		return
	}

	RespondSuccess(c, nil, "deleted")
}

// RecentErrors returns the latest generation failures for one shop+template
func (h *Handler) RecentErrors(c *gin.Context) {
	shopID := c.Param("shop_id")
	template := c.Param("template")

	history, err := h.store.RecentErrors(shopID, template, 20)
	if err != nil {
		h.log.ErrorWithErr("failed to read error history", err, "shop_id", shopID)
		RespondError(c, http.StatusInternalServerError, ErrInternalServer)
		return
	}

	RespondSuccess(c, gin.H{"errors": history, "count": len(history)}, "")
}

// PoolStats returns a snapshot of worker pool counters and store totals
func (h *Handler) PoolStats(c *gin.Context) {
	docs, errCount, err := h.store.Stats()
	if err != nil {
		h.log.WarnWithErr("failed to read store stats", err)
	}

	RespondSuccess(c, gin.H{
		"pool": h.pool.Stats(),
		"store": gin.H{
			"documents": docs,
			"errors":    errCount,
		},
	}, "")
}

// Health returns overall service health including pool and system stats
func (h *Handler) Health(c *gin.Context) {
	report := h.monitor.GetHealth(h.pool.Stats())

	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

func (h *Handler) respondAcquireError(c *gin.Context, err error) {
	var creationErr *pool.CreationError
	switch {
	case stderrors.Is(err, pool.ErrPoolShuttingDown):
		RespondError(c, http.StatusServiceUnavailable, err.Error())
	case stderrors.Is(err, pool.ErrAcquireTimeout):
		RespondRetryable(c, http.StatusServiceUnavailable, err.Error())
	case stderrors.As(err, &creationErr):
		RespondRetryable(c, http.StatusBadGateway, err.Error())
	default:
		h.log.ErrorWithErr("worker acquisition failed", err)
		RespondError(c, http.StatusInternalServerError, ErrInternalServer)
	}
}
