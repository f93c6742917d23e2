package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/linkscan/internal/database"
	"github.com/jonesrussell/linkscan/internal/domain"
	"github.com/jonesrussell/linkscan/internal/scan"
)

const (
	defaultLimit  = 50
	defaultOffset = 0

	defaultLinkLimit = 500
)

// ScanService drives the scan lifecycle for the API.
type ScanService interface {
	Start(ctx context.Context, siteID string, opts scan.StartOptions) (*domain.Scan, error)
	Stop(ctx context.Context, scanID string) error
	Delete(ctx context.Context, scanID string) error
	Get(ctx context.Context, scanID string) (*domain.Scan, *domain.ScanCounts, error)
	List(ctx context.Context, siteID string, limit, offset int) ([]*domain.Scan, error)
	RedispatchPending(ctx context.Context, scanID string) (int, error)
}

// LinkLister reads a scan's links for result views.
type LinkLister interface {
	ListByScan(ctx context.Context, scanID string, filters database.ListFilters) ([]*domain.ScanLink, error)
}

// ScansHandler handles scan-related HTTP requests.
type ScansHandler struct {
	scans ScanService
	links LinkLister
}

// NewScansHandler creates a new scans handler.
func NewScansHandler(scans ScanService, links LinkLister) *ScansHandler {
	return &ScansHandler{scans: scans, links: links}
}

// CreateScanRequest is the body of POST /scans.
type CreateScanRequest struct {
	SiteID    string `json:"site_id" binding:"required"`
	RunSync   bool   `json:"run_sync"`
	Verbosity int    `json:"verbosity"`
}

// CreateScan handles POST /api/v1/scans.
func (h *ScansHandler) CreateScan(c *gin.Context) {
	var req CreateScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request: "+err.Error())
		return
	}

	created, err := h.scans.Start(c.Request.Context(), req.SiteID, scan.StartOptions{
		RunSync:   req.RunSync,
		Verbosity: req.Verbosity,
	})
	if err != nil {
		respondInternalError(c, "Failed to start scan")
		return
	}

	c.JSON(http.StatusCreated, created)
}

// ListScans handles GET /api/v1/scans.
func (h *ScansHandler) ListScans(c *gin.Context) {
	siteID := c.Query("site_id")
	if siteID == "" {
		respondBadRequest(c, "site_id is required")
		return
	}

	limit, offset := parseLimitOffset(c, defaultLimit, defaultOffset)

	scans, err := h.scans.List(c.Request.Context(), siteID, limit, offset)
	if err != nil {
		respondInternalError(c, "Failed to retrieve scans")
		return
	}

	c.JSON(http.StatusOK, gin.H{"scans": scans})
}

// GetScan handles GET /api/v1/scans/:id.
func (h *ScansHandler) GetScan(c *gin.Context) {
	id := c.Param("id")

	found, counts, err := h.scans.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, database.ErrScanNotFound) {
			respondNotFound(c, "Scan")
			return
		}
		respondInternalError(c, "Failed to retrieve scan")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"scan":   found,
		"counts": counts,
		"result": counts.Result(),
	})
}

// ListScanLinks handles GET /api/v1/scans/:id/links.
func (h *ScansHandler) ListScanLinks(c *gin.Context) {
	id := c.Param("id")

	limit, offset := parseLimitOffset(c, defaultLinkLimit, defaultOffset)
	filters := database.ListFilters{
		State:   database.LinkState(c.DefaultQuery("state", string(database.LinkStateAll))),
		GroupBy: c.Query("group_by"),
		Limit:   limit,
		Offset:  offset,
	}

	links, err := h.links.ListByScan(c.Request.Context(), id, filters)
	if err != nil {
		respondInternalError(c, "Failed to retrieve scan links")
		return
	}

	c.JSON(http.StatusOK, gin.H{"links": links})
}

// StopScan handles POST /api/v1/scans/:id/stop.
func (h *ScansHandler) StopScan(c *gin.Context) {
	id := c.Param("id")

	err := h.scans.Stop(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "Scan stopped"})
	case errors.Is(err, scan.ErrAlreadyFinished):
		respondError(c, http.StatusConflict, "Scan already finished")
	case errors.Is(err, database.ErrScanNotFound):
		respondNotFound(c, "Scan")
	default:
		respondInternalError(c, "Failed to stop scan")
	}
}

// RedispatchScan handles POST /api/v1/scans/:id/redispatch. It re-drives an
// interrupted asynchronous scan by re-enqueueing every pending link.
func (h *ScansHandler) RedispatchScan(c *gin.Context) {
	id := c.Param("id")

	n, err := h.scans.RedispatchPending(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"redispatched": n})
	case errors.Is(err, scan.ErrAlreadyFinished):
		respondError(c, http.StatusConflict, "Scan already finished")
	case errors.Is(err, database.ErrScanNotFound):
		respondNotFound(c, "Scan")
	default:
		respondInternalError(c, "Failed to redispatch scan")
	}
}

// DeleteScan handles DELETE /api/v1/scans/:id.
func (h *ScansHandler) DeleteScan(c *gin.Context) {
	id := c.Param("id")

	if err := h.scans.Delete(c.Request.Context(), id); err != nil {
		if errors.Is(err, database.ErrScanNotFound) {
			respondNotFound(c, "Scan")
			return
		}
		respondInternalError(c, "Failed to delete scan")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Scan deleted"})
}
