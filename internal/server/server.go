// Package server exposes the persisted recommendations, the run log and the
// elasticity catalog over a read-only HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/iwvelando/pricing-optimizer/internal/config"
	"github.com/iwvelando/pricing-optimizer/internal/storage"
	"github.com/iwvelando/pricing-optimizer/pkg/constants"
	"github.com/iwvelando/pricing-optimizer/pkg/pricing"
	"github.com/rs/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Dependencies are the readers the API serves from. Runs is optional.
type Dependencies struct {
	Recommendations storage.RecommendationStore
	Elasticities    storage.ElasticityLookup
	Runs            storage.RunLog
	Logger          *zap.Logger
}

type handler struct {
	recs    storage.RecommendationStore
	lookup  storage.ElasticityLookup
	runs    storage.RunLog
	logger  *zap.Logger
	maxBody int64
	version string
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type recommendationsResponse struct {
	Category        string                   `json:"category_id"`
	Count           int                      `json:"count"`
	Recommendations []pricing.Recommendation `json:"recommendations"`
}

type runsResponse struct {
	Category string        `json:"category_id"`
	Count    int           `json:"count"`
	Runs     []pricing.Run `json:"runs"`
}

type lookupRequest struct {
	Category  string `json:"category_id" binding:"required"`
	ProductID string `json:"upc_id" binding:"required"`
}

// NewHandler constructs the HTTP handler of the read API.
func NewHandler(cfg Config, deps Dependencies) http.Handler {
	cfg.normalize()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &handler{
		recs:    deps.Recommendations,
		lookup:  deps.Elasticities,
		runs:    deps.Runs,
		logger:  logger,
		maxBody: cfg.MaxRequestSize,
		version: cfg.Version,
	}

	router := gin.New()
	router.Use(h.recovery(), h.requestLogger(), rateLimit(rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)))

	router.GET("/health", h.handleHealth)

	api := router.Group("/v1")
	{
		api.GET("/recommendations/:category", h.handleRecommendations)
		api.GET("/recommendations/:category/:product", h.handleRecommendation)
		api.GET("/runs/:category", h.handleRuns)
		api.POST("/elasticity/lookup", h.handleElasticityLookup)
	}

	return cors.New(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler(router)
}

// Run serves handler on address until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, address string, handler http.Handler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("starting read API",
			zap.String("op", "server.Run"),
			zap.String("address", address),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		logger.Info("shutting down read API", zap.String("op", "server.Run"))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	}
}

func (h *handler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": h.version})
}

func (h *handler) handleRecommendations(c *gin.Context) {
	category := c.Param("category")
	if !h.validCategory(c, category) {
		return
	}

	recs, err := h.recs.Recommendations(c.Request.Context(), category)
	if err != nil {
		h.respondError(c, err, "server.handleRecommendations")
		return
	}
	if len(recs) == 0 {
		h.respondError(c, fmt.Errorf("no recommendations for category %s: %w", category, pricing.ErrNotFound), "server.handleRecommendations")
		return
	}
	c.JSON(http.StatusOK, recommendationsResponse{Category: category, Count: len(recs), Recommendations: recs})
}

func (h *handler) handleRecommendation(c *gin.Context) {
	category := c.Param("category")
	if !h.validCategory(c, category) {
		return
	}

	rec, err := h.recs.Recommendation(c.Request.Context(), category, c.Param("product"))
	if err != nil {
		h.respondError(c, err, "server.handleRecommendation")
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *handler) handleRuns(c *gin.Context) {
	category := c.Param("category")
	if !h.validCategory(c, category) {
		return
	}
	if h.runs == nil {
		h.respondError(c, fmt.Errorf("run log: %w", pricing.ErrNotFound), "server.handleRuns")
		return
	}

	limit := 20
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, errorResponse{Error: errorDetail{
				Code:    "INVALID_PARAM",
				Message: "limit must be a positive integer",
			}})
			return
		}
		limit = n
	}

	runs, err := h.runs.Runs(c.Request.Context(), category, limit)
	if err != nil {
		h.respondError(c, err, "server.handleRuns")
		return
	}
	c.JSON(http.StatusOK, runsResponse{Category: category, Count: len(runs), Runs: runs})
}

func (h *handler) handleElasticityLookup(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBody)

	var req lookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: errorDetail{
				Code:    "TOO_LARGE",
				Message: fmt.Sprintf("request exceeds limit of %d bytes", h.maxBody),
			}})
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse{Error: errorDetail{
			Code:    "INVALID_REQUEST",
			Message: "category_id and upc_id are required",
		}})
		return
	}
	if !h.validCategory(c, req.Category) {
		return
	}

	estimate, err := h.lookup.Elasticity(c.Request.Context(), req.Category, req.ProductID)
	if err != nil {
		h.respondError(c, err, "server.handleElasticityLookup")
		return
	}
	c.JSON(http.StatusOK, estimate)
}

func (h *handler) validCategory(c *gin.Context, category string) bool {
	if err := config.ValidateCategory(category); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: errorDetail{
			Code:    "INVALID_CATEGORY",
			Message: err.Error(),
		}})
		return false
	}
	return true
}

func (h *handler) respondError(c *gin.Context, err error, op string) {
	if errors.Is(err, pricing.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorResponse{Error: errorDetail{Code: "NOT_FOUND", Message: err.Error()}})
		return
	}
	h.logger.Error("request failed",
		zap.String("op", op),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, errorResponse{Error: errorDetail{
		Code:    "INTERNAL_ERROR",
		Message: "An unexpected error occurred",
	}})
}

func (h *handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Debug("request served",
			zap.String("op", "server.request"),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}

func (h *handler) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		h.logger.Error("panic while serving request",
			zap.String("op", "server.recovery"),
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", recovered),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: errorDetail{
			Code:    "INTERNAL_ERROR",
			Message: "An unexpected error occurred",
		}})
	})
}

func rateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, errorResponse{Error: errorDetail{
				Code:    "RATE_LIMITED",
				Message: "too many requests",
			}})
			return
		}
		c.Next()
	}
}
