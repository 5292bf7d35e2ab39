package pool

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/modelgate/tokenpool/internal/logger"
)

// Handler exposes the pool over HTTP: token selection for the forwarding
// proxy, and the administrative add/remove/tag/list surface.
type Handler struct {
	logger    *logger.Logger
	store     *Store
	query     *QueryService
	allocator *Allocator
}

// NewHandler creates a pool handler.
func NewHandler(log *logger.Logger, store *Store, query *QueryService, allocator *Allocator) *Handler {
	if log == nil {
		log = logger.Production()
	}
	return &Handler{logger: log, store: store, query: query, allocator: allocator}
}

// MutateTokensRequest is the body of bulk add and bulk delete.
type MutateTokensRequest struct {
	Type    TokenType `json:"type"`
	Secrets []string  `json:"secrets"`
}

// SelectRequest asks for the best available token for a workload class.
type SelectRequest struct {
	Class WorkloadClass `json:"class"`
}

// SelectResponse carries the selected token handle.
type SelectResponse struct {
	Token string    `json:"token"`
	Type  TokenType `json:"type"`
}

// SelectToken handles POST /v1/tokens/select.
func (h *Handler) SelectToken(c *gin.Context) {
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !req.Class.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "workload class must be one of: standard, heavy"})
		return
	}

	tok, err := h.allocator.Select(c.Request.Context(), req.Class)
	if err != nil {
		if errors.Is(err, ErrNoEligibleToken) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no eligible token available"})
			return
		}
		h.logger.Error("Failed to select token", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to select token"})
		return
	}

	c.JSON(http.StatusOK, SelectResponse{Token: tok.Secret, Type: tok.Type})
}

// AddTokens handles POST /admin/tokens.
func (h *Handler) AddTokens(c *gin.Context) {
	var req MutateTokensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !req.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token type must be one of: standard, premium"})
		return
	}
	if len(req.Secrets) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one token secret is required"})
		return
	}

	added, err := h.store.BulkAdd(c.Request.Context(), req.Type, req.Secrets)
	if err != nil {
		h.logger.Error("Failed to add tokens", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add tokens"})
		return
	}

	h.logger.Info("Added tokens", "type", req.Type, "added", added)
	c.JSON(http.StatusOK, gin.H{"added": added})
}

// DeleteTokens handles DELETE /admin/tokens.
func (h *Handler) DeleteTokens(c *gin.Context) {
	var req MutateTokensRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !req.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token type must be one of: standard, premium"})
		return
	}

	deleted, err := h.store.BulkDelete(c.Request.Context(), req.Type, req.Secrets)
	if err != nil {
		h.logger.Error("Failed to delete tokens", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete tokens"})
		return
	}

	h.logger.Info("Deleted tokens", "type", req.Type, "deleted", deleted)
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// ListTokens handles GET /admin/tokens with filter and pagination params.
func (h *Handler) ListTokens(c *gin.Context) {
	var filter ListFilter

	if typ := TokenType(c.Query("type")); typ != "" {
		if !typ.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid token type filter"})
			return
		}
		filter.Type = typ
	}

	if status := StatusBucket(c.Query("status")); status != "" {
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter"})
			return
		}
		filter.Status = status
	}

	filter.Search = c.Query("search")
	filter.Tag = c.Query("tag")

	if nsfw := c.Query("nsfw"); nsfw != "" {
		v := nsfw == "true" || nsfw == "1"
		filter.NSFW = &v
	}

	page := 1
	if p := c.Query("page"); p != "" {
		parsed, err := strconv.Atoi(p)
		if err != nil || parsed < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a positive integer"})
			return
		}
		page = parsed
	}

	perPage := defaultPerPage
	if pp := c.Query("per_page"); pp != "" {
		if pp == "all" {
			perPage = -1
		} else {
			parsed, err := strconv.Atoi(pp)
			if err != nil || parsed < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "per_page must be a positive integer or \"all\""})
				return
			}
			perPage = parsed
		}
	}

	result, err := h.query.ListTokens(c.Request.Context(), filter, page, perPage)
	if err != nil {
		h.logger.Error("Failed to list tokens", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tokens"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// UpdateTagsRequest replaces the tag set of one token.
type UpdateTagsRequest struct {
	Token string   `json:"token"`
	Tags  []string `json:"tags"`
}

// UpdateTags handles PUT /admin/tokens/tags.
func (h *Handler) UpdateTags(c *gin.Context) {
	var req UpdateTagsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	if err := h.store.UpdateTags(c.Request.Context(), req.Token, req.Tags); err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "token not found"})
			return
		}
		h.logger.Error("Failed to update tags", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update tags"})
		return
	}

	c.Status(http.StatusNoContent)
}

// UpdateNoteRequest replaces the note of one token.
type UpdateNoteRequest struct {
	Token string `json:"token"`
	Note  string `json:"note"`
}

// UpdateNote handles PUT /admin/tokens/note.
func (h *Handler) UpdateNote(c *gin.Context) {
	var req UpdateNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	if err := h.store.UpdateNote(c.Request.Context(), req.Token, req.Note); err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "token not found"})
			return
		}
		h.logger.Error("Failed to update note", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update note"})
		return
	}

	c.Status(http.StatusNoContent)
}

// UpdateQuotaRequest overrides the quota counters of one token.
// Values use the raw encoding: -1 unused, 0 exhausted, positive remaining.
type UpdateQuotaRequest struct {
	Token      string `json:"token"`
	Quota      int    `json:"quota"`
	HeavyQuota int    `json:"heavyQuota"`
}

// UpdateQuota handles PUT /admin/tokens/quota.
func (h *Handler) UpdateQuota(c *gin.Context) {
	var req UpdateQuotaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	err := h.store.SetQuota(c.Request.Context(), req.Token,
		QuotaFromRaw(req.Quota), QuotaFromRaw(req.HeavyQuota))
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "token not found"})
			return
		}
		h.logger.Error("Failed to update quota", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update quota"})
		return
	}

	c.Status(http.StatusNoContent)
}

// ListTags handles GET /admin/tags.
func (h *Handler) ListTags(c *gin.Context) {
	tags, err := h.query.Tags(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list tags", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tags"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"tags": tags})
}
