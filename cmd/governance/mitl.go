package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/codeready-toolchain/swarm-governance/pkg/bus"
	"github.com/codeready-toolchain/swarm-governance/pkg/database"
	"github.com/codeready-toolchain/swarm-governance/pkg/watchdog"
)

// pendingReviewResponse is the wire shape for a GET /pending entry.
type pendingReviewResponse struct {
	ID              string    `json:"id"`
	ScopeID         string    `json:"scope_id"`
	Question        string    `json:"question"`
	Rank            int       `json:"rank"`
	Options         []string  `json:"options"`
	Dimension       string    `json:"dimension,omitempty"`
	CurrentScore    float64   `json:"current_score,omitempty"`
	Weight          float64   `json:"weight,omitempty"`
	PotentialGain   float64   `json:"potential_gain,omitempty"`
	SuggestedAction string    `json:"suggested_action,omitempty"`
	Priority        string    `json:"priority,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// resolveRequest is the body of POST /pending/:id/resolve.
type resolveRequest struct {
	ResolvedBy string         `json:"resolved_by" binding:"required"`
	Resolution map[string]any `json:"resolution"`
}

// mitlServer is the narrow human-in-the-loop review surface the watchdog's
// pending reviews are resolved through: list what's outstanding, resolve one
// by id. It runs on its own port (MITL_PORT) separate from the pipeline's
// primary health/metrics endpoint, since a human reviewer's tooling and a
// container orchestrator's probes have nothing to do with each other.
type mitlServer struct {
	reviews *watchdog.Store
	broker  *bus.Bus
	db      *database.Client
	logger  *slog.Logger
}

func newMITLRouter(reviews *watchdog.Store, broker *bus.Bus, db *database.Client, reg *prometheus.Registry, logger *slog.Logger) *gin.Engine {
	s := &mitlServer{reviews: reviews, broker: broker, db: db, logger: logger}

	router := gin.Default()
	router.GET("/healthz", s.handleHealthz)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	router.GET("/pending", s.handleListPending)
	router.POST("/pending/:id/resolve", s.handleResolve)
	return router
}

func (s *mitlServer) handleHealthz(c *gin.Context) {
	reqCtx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	health, err := database.Health(reqCtx, s.db.DB.DB)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "database": health, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "database": health})
}

func (s *mitlServer) handleListPending(c *gin.Context) {
	reviews, err := s.reviews.ListAllPending(c.Request.Context())
	if err != nil {
		s.logger.Error("failed to list pending reviews", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list pending reviews"})
		return
	}

	resp := make([]pendingReviewResponse, 0, len(reviews))
	for _, r := range reviews {
		resp = append(resp, pendingReviewResponse{
			ID: r.ID, ScopeID: r.ScopeID, Question: r.Question,
			Rank: r.Rank, Options: r.Options, CreatedAt: r.CreatedAt,
			Dimension: r.Dimension, CurrentScore: r.CurrentScore, Weight: r.Weight,
			PotentialGain: r.PotentialGain, SuggestedAction: r.SuggestedAction, Priority: r.Priority,
		})
	}
	c.JSON(http.StatusOK, gin.H{"pending": resp})
}

// handleResolve resolves a review and publishes the HITL-resolution
// trigger for the review's scope (swarm.actions.finality) so the finality
// evaluator re-runs now that the stall has been answered.
func (s *mitlServer) handleResolve(c *gin.Context) {
	id := c.Param("id")

	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	review, err := s.reviews.Resolve(ctx, id, req.ResolvedBy, req.Resolution)
	if err != nil {
		if errors.Is(err, watchdog.ErrAlreadyResolved) {
			c.JSON(http.StatusConflict, gin.H{"error": "review already resolved"})
			return
		}
		if errors.Is(err, watchdog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "review not found"})
			return
		}
		s.logger.Error("failed to resolve pending review", "review_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve review"})
		return
	}

	payload, err := json.Marshal(map[string]string{"scope_id": review.ScopeID})
	if err != nil {
		s.logger.Error("failed to encode finality trigger", "error", err)
	} else if err := s.broker.Publish(ctx, "swarm.actions.finality", payload); err != nil {
		s.logger.Error("failed to publish finality trigger after review resolution", "scope_id", review.ScopeID, "error", err)
	}

	c.JSON(http.StatusOK, pendingReviewResponse{
		ID: review.ID, ScopeID: review.ScopeID, Question: review.Question,
		Rank: review.Rank, Options: review.Options, CreatedAt: review.CreatedAt,
		Dimension: review.Dimension, CurrentScore: review.CurrentScore, Weight: review.Weight,
		PotentialGain: review.PotentialGain, SuggestedAction: review.SuggestedAction, Priority: review.Priority,
	})
}
