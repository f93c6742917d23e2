package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/linkscan/internal/domain"
)

// PreferencesStore reads and writes per-site preferences.
type PreferencesStore interface {
	GetBySite(ctx context.Context, siteID string) (*domain.SitePreferences, error)
	Upsert(ctx context.Context, prefs *domain.SitePreferences) error
}

// PreferencesHandler handles site preference HTTP requests.
type PreferencesHandler struct {
	prefs PreferencesStore
}

// NewPreferencesHandler creates a new preferences handler.
func NewPreferencesHandler(prefs PreferencesStore) *PreferencesHandler {
	return &PreferencesHandler{prefs: prefs}
}

// GetPreferences handles GET /api/v1/sites/:site_id/preferences.
func (h *PreferencesHandler) GetPreferences(c *gin.Context) {
	siteID := c.Param("site_id")

	prefs, err := h.prefs.GetBySite(c.Request.Context(), siteID)
	if err != nil {
		respondInternalError(c, "Failed to retrieve preferences")
		return
	}

	c.JSON(http.StatusOK, prefs)
}

// UpdatePreferencesRequest is the body of PUT /sites/:site_id/preferences.
type UpdatePreferencesRequest struct {
	AutomatedScanning    bool   `json:"automated_scanning"`
	AutomatedCleanup     bool   `json:"automated_cleanup"`
	AutomatedCleanupDays int    `json:"automated_cleanup_days"`
	EmailReports         bool   `json:"email_reports"`
	EmailSender          string `json:"email_sender"`
	EmailRecipient       string `json:"email_recipient"`
	UserAgent            string `json:"user_agent"`
}

// UpdatePreferences handles PUT /api/v1/sites/:site_id/preferences.
func (h *PreferencesHandler) UpdatePreferences(c *gin.Context) {
	siteID := c.Param("site_id")

	var req UpdatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request: "+err.Error())
		return
	}

	prefs := domain.SitePreferences{
		SiteID:               siteID,
		AutomatedScanning:    req.AutomatedScanning,
		AutomatedCleanup:     req.AutomatedCleanup,
		AutomatedCleanupDays: req.AutomatedCleanupDays,
		EmailReports:         req.EmailReports,
		EmailSender:          req.EmailSender,
		EmailRecipient:       req.EmailRecipient,
		UserAgent:            req.UserAgent,
	}.WithDefaults()

	if err := h.prefs.Upsert(c.Request.Context(), &prefs); err != nil {
		respondInternalError(c, "Failed to save preferences")
		return
	}

	c.JSON(http.StatusOK, prefs)
}
