package server

import (
	"net/http"
	"strings"

	"github.com/dividis/backend/internal/catalog"
	"github.com/dividis/backend/internal/journey"
	"github.com/gin-gonic/gin"
)

type addCategoryPayload struct {
	Name      string   `json:"name"`
	Pilar     string   `json:"pilar"`
	Sentences []string `json:"sentences"`
}

type sentencePayload struct {
	Categoria string `json:"categoria"`
	Pilar     string `json:"pilar"`
	Texto     string `json:"texto"`
	Index     int    `json:"index"`
}

type sentenceIndexPayload struct {
	Categoria string `json:"categoria"`
	Pilar     string `json:"pilar"`
	Index     int    `json:"index"`
}

func (h *httpHandler) handleProfile(c *gin.Context) {
	identity, err := h.users.Profile(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, identity)
}

func (h *httpHandler) handleProgress(c *gin.Context) {
	session, err := h.sessions.Open(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, session.Progress.Snapshot())
}

func (h *httpHandler) handleShared(c *gin.Context) {
	shared, err := h.sharing.SharedDeclarations(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"declaraciones": shared})
}

func (h *httpHandler) handleJourney(c *gin.Context) {
	overview, err := h.sessions.Overview(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (h *httpHandler) handleAddCategory(c *gin.Context) {
	var payload addCategoryPayload
	if !h.bindBody(c, &payload) {
		return
	}
	session, err := h.sessions.Open(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	initial := journey.Pilar{Name: payload.Pilar, Sentences: payload.Sentences}
	if initial.Name == "" {
		initial.Name = catalog.PilarVision
	}
	if err := session.Journey.AddCategory(payload.Name, initial); err != nil {
		h.writeServiceError(c, err)
		return
	}
	if err := session.Journey.Flush(c.Request.Context()); err != nil {
		h.writeServiceError(c, err)
		return
	}
	category, _ := session.Journey.Category(strings.TrimSpace(payload.Name))
	c.JSON(http.StatusCreated, category)
}

func (h *httpHandler) handleAddSentence(c *gin.Context) {
	var payload sentencePayload
	if !h.bindBody(c, &payload) {
		return
	}
	session, err := h.sessions.Open(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	result, err := session.Journey.AddSentence(c.Request.Context(), payload.Categoria, payload.Pilar, payload.Texto)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if err := session.Journey.Flush(c.Request.Context()); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"result":   result,
		"progress": session.Progress.Snapshot(),
	})
}

func (h *httpHandler) handleEditSentence(c *gin.Context) {
	var payload sentencePayload
	if !h.bindBody(c, &payload) {
		return
	}
	session, err := h.sessions.Open(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if err := session.Journey.EditSentence(payload.Categoria, payload.Pilar, payload.Index, payload.Texto); err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.flushAndRespond(c, session.Journey, payload.Categoria)
}

func (h *httpHandler) handleDeleteSentence(c *gin.Context) {
	var payload sentenceIndexPayload
	if !h.bindBody(c, &payload) {
		return
	}
	session, err := h.sessions.Open(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if err := session.Journey.DeleteSentence(payload.Categoria, payload.Pilar, payload.Index); err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.flushAndRespond(c, session.Journey, payload.Categoria)
}

func (h *httpHandler) handleFlushJourney(c *gin.Context) {
	session, err := h.sessions.Open(c.Request.Context(), currentUserID(c))
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if err := session.Journey.Flush(c.Request.Context()); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pending": session.Journey.PendingChanges()})
}

func (h *httpHandler) flushAndRespond(c *gin.Context, store *journey.Store, categoryName string) {
	if err := store.Flush(c.Request.Context()); err != nil {
		h.writeServiceError(c, err)
		return
	}
	category, _ := store.Category(strings.TrimSpace(categoryName))
	c.JSON(http.StatusOK, category)
}
