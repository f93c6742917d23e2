package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// PageEvents receives content store page lifecycle events.
type PageEvents interface {
	OnPageDeleted(ctx context.Context, pageID, slug string) error
}

// PagesHandler handles content store page event requests.
type PagesHandler struct {
	events PageEvents
}

// NewPagesHandler creates a new pages handler.
func NewPagesHandler(events PageEvents) *PagesHandler {
	return &PagesHandler{events: events}
}

// PageDeletedRequest is the body of POST /pages/deleted.
type PageDeletedRequest struct {
	PageID string `json:"page_id" binding:"required"`
	Slug   string `json:"slug" binding:"required"`
}

// PageDeleted handles POST /api/v1/pages/deleted. The content store calls
// this when a page is removed so existing scan links keep a readable
// reference to it.
func (h *PagesHandler) PageDeleted(c *gin.Context) {
	var req PageDeletedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request: "+err.Error())
		return
	}

	if err := h.events.OnPageDeleted(c.Request.Context(), req.PageID, req.Slug); err != nil {
		respondInternalError(c, "Failed to record page deletion")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Page deletion recorded"})
}
