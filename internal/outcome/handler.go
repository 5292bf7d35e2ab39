// Package outcome receives per-call results from the forwarding proxy,
// feeds them to the health tracker, spends quota on success, and appends a
// call record for reporting.
package outcome

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/modelgate/tokenpool/internal/calllog"
	"github.com/modelgate/tokenpool/internal/logger"
	"github.com/modelgate/tokenpool/internal/pool"
	"github.com/modelgate/tokenpool/internal/usage"
)

// Handler is the proxy-facing outcome reporting surface.
type Handler struct {
	logger  *logger.Logger
	store   *pool.Store
	health  *pool.HealthTracker
	callLog *calllog.Store
}

// NewHandler creates an outcome handler.
func NewHandler(log *logger.Logger, store *pool.Store, health *pool.HealthTracker, callLog *calllog.Store) *Handler {
	if log == nil {
		log = logger.Production()
	}
	return &Handler{logger: log, store: store, health: health, callLog: callLog}
}

// ReportRequest is one completed upstream call.
type ReportRequest struct {
	Token             string             `json:"token"`
	Class             pool.WorkloadClass `json:"class"`
	Model             string             `json:"model"`
	HTTPStatus        int                `json:"httpStatus"`
	Message           string             `json:"message,omitempty"`
	DurationMs        int64              `json:"durationMs"`
	PromptTextTokens  int                `json:"promptTextTokens"`
	PromptImageTokens int                `json:"promptImageTokens"`
	CompletionText    string             `json:"completionText,omitempty"`
}

// Report handles POST /v1/outcomes.
//
// Classification policy: success (2xx/3xx) spends one quota unit; 429 rests
// the token; other client errors count against the failure limit; server
// errors count a failure and earn the short default backoff.
func (h *Handler) Report(c *gin.Context) {
	var req ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	if !req.Class.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workload class must be one of: standard, heavy"})
		return
	}

	ctx := c.Request.Context()
	status := req.HTTPStatus

	var err error
	switch {
	case status >= http.StatusOK && status < http.StatusBadRequest:
		err = h.store.DecrementQuota(ctx, req.Token, req.Class)

	case status == http.StatusTooManyRequests:
		err = h.health.ApplyCooldown(ctx, req.Token, status)

	case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
		err = h.health.RecordFailure(ctx, req.Token, status, req.Message)

	default:
		// Server errors and network-level failures (status 0)
		err = h.health.RecordFailure(ctx, req.Token, status, req.Message)
		if err == nil {
			err = h.health.ApplyCooldown(ctx, req.Token, status)
		}
	}

	if err != nil {
		if errors.Is(err, pool.ErrTokenNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "token not found"})
			return
		}
		h.logger.Error("Failed to record outcome", "error", err, "status", status)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record outcome"})
		return
	}

	counts := usage.BuildChatUsage(req.PromptTextTokens, req.PromptImageTokens, req.CompletionText)

	rec := calllog.NewRecord(c.ClientIP(), req.Model,
		time.Duration(req.DurationMs)*time.Millisecond, status, req.Token, counts)
	if err := h.callLog.Append(ctx, rec); err != nil {
		h.logger.Error("Failed to append call record", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record outcome"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": rec.ID, "usage": counts})
}

// Recent handles GET /admin/calls.
func (h *Handler) Recent(c *gin.Context) {
	records, err := h.callLog.Recent(c.Request.Context(), 100)
	if err != nil {
		h.logger.Error("Failed to list call records", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list call records"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": records})
}
