package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/dividis/backend/internal/apperrors"
	"github.com/dividis/backend/internal/declarations"
	"github.com/gin-gonic/gin"
)

const (
	opListDeclarations = "server.list_declarations"
	opDecodeBody       = "server.decode_body"

	reasonInvalidOffset = "invalid_offset"
	reasonInvalidLimit  = "invalid_limit"
	reasonInvalidBody   = "invalid_body"

	maxPageSize = 100
)

var (
	errInvalidOffset = errors.New("offset must be a non-negative integer")
	errInvalidLimit  = errors.New("limit must be a positive integer")
)

type declarationsPage struct {
	Declaraciones []declarations.Declaration `json:"declaraciones"`
	Total         int                        `json:"total"`
	Offset        int                        `json:"offset"`
	Limit         int                        `json:"limit"`
}

type updateDeclarationPayload struct {
	Texto string `json:"texto"`
}

type transferPayload struct {
	NewOwnerID string `json:"newOwnerId"`
}

type reactionPayload struct {
	Tipo string `json:"tipo"`
}

func (h *httpHandler) handleListDeclarations(c *gin.Context) {
	offset, limit, err := h.pageBounds(c)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if !h.ensureFeedLoaded(c) {
		return
	}

	if c.Query("unlocked") != "true" {
		entries, total := h.declarations.Page(offset, limit)
		c.JSON(http.StatusOK, declarationsPage{Declaraciones: entries, Total: total, Offset: offset, Limit: limit})
		return
	}

	session, err := h.sessions.Open(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	visible := make([]declarations.Declaration, 0)
	for _, entry := range h.declarations.List() {
		if session.Progress.IsPilarUnlocked(entry.Categoria, entry.Pilar) {
			visible = append(visible, entry)
		}
	}
	total := len(visible)
	start := min(offset, total)
	end := min(start+limit, total)
	c.JSON(http.StatusOK, declarationsPage{Declaraciones: visible[start:end], Total: total, Offset: offset, Limit: limit})
}

func (h *httpHandler) handleCreateDeclaration(c *gin.Context) {
	var draft declarations.Draft
	if !h.bindBody(c, &draft) {
		return
	}
	if !h.ensureFeedLoaded(c) {
		return
	}
	created, err := h.declarations.Create(c.Request.Context(), currentUserID(c), draft)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *httpHandler) handleUpdateDeclaration(c *gin.Context) {
	var payload updateDeclarationPayload
	if !h.bindBody(c, &payload) {
		return
	}
	if !h.ensureFeedLoaded(c) {
		return
	}
	updated, err := h.declarations.Update(c.Request.Context(), currentUserID(c), c.Param("id"), payload.Texto)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) handleDeleteDeclaration(c *gin.Context) {
	if !h.ensureFeedLoaded(c) {
		return
	}
	if err := h.declarations.Delete(c.Request.Context(), currentUserID(c), c.Param("id")); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleTransferDeclaration(c *gin.Context) {
	var payload transferPayload
	if !h.bindBody(c, &payload) {
		return
	}
	if !h.ensureFeedLoaded(c) {
		return
	}
	transferred, err := h.declarations.TransferOwnership(c.Request.Context(), currentUserID(c), c.Param("id"), payload.NewOwnerID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, transferred)
}

func (h *httpHandler) handleReactDeclaration(c *gin.Context) {
	var payload reactionPayload
	if !h.bindBody(c, &payload) {
		return
	}
	if !h.ensureFeedLoaded(c) {
		return
	}
	kind := declarations.ReactionKind(strings.TrimSpace(payload.Tipo))
	reacted, err := h.declarations.React(c.Request.Context(), c.Param("id"), currentUserID(c), kind)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, reacted)
}

func (h *httpHandler) handleShareDeclaration(c *gin.Context) {
	if !h.ensureFeedLoaded(c) {
		return
	}
	shared, err := h.declarations.Share(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, shared)
}

func (h *httpHandler) handleUnshareDeclaration(c *gin.Context) {
	if !h.ensureFeedLoaded(c) {
		return
	}
	unshared, err := h.declarations.Unshare(c.Request.Context(), c.Param("id"), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, unshared)
}

// ensureFeedLoaded loads the public feed on first use and writes the error
// response when that fails.
func (h *httpHandler) ensureFeedLoaded(c *gin.Context) bool {
	if h.declarations.Loaded() {
		return true
	}
	if err := h.declarations.Load(c.Request.Context()); err != nil {
		h.writeServiceError(c, err)
		return false
	}
	return true
}

func (h *httpHandler) pageBounds(c *gin.Context) (int, int, error) {
	offset := 0
	if raw := strings.TrimSpace(c.Query("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return 0, 0, apperrors.Validation(opListDeclarations, reasonInvalidOffset, errInvalidOffset)
		}
		offset = parsed
	}
	limit := h.pageSize
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return 0, 0, apperrors.Validation(opListDeclarations, reasonInvalidLimit, errInvalidLimit)
		}
		limit = min(parsed, maxPageSize)
	}
	return offset, limit, nil
}

func (h *httpHandler) bindBody(c *gin.Context, target any) bool {
	if err := c.ShouldBindJSON(target); err != nil {
		h.writeServiceError(c, apperrors.Validation(opDecodeBody, reasonInvalidBody, err))
		return false
	}
	return true
}
