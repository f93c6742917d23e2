package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/linkscan/internal/domain"
)

const preferencesSelectColumns = `site_id, automated_scanning, automated_cleanup,
	automated_cleanup_days, email_reports, email_sender, email_recipient,
	user_agent, created_at, updated_at`

// PreferencesRepository handles database operations for site preferences.
type PreferencesRepository struct {
	db *sqlx.DB
}

// NewPreferencesRepository creates a new preferences repository.
func NewPreferencesRepository(db *sqlx.DB) *PreferencesRepository {
	return &PreferencesRepository{db: db}
}

// GetBySite retrieves preferences for a site. Sites without a stored row
// get defaults; this never fails on a missing row.
func (r *PreferencesRepository) GetBySite(ctx context.Context, siteID string) (*domain.SitePreferences, error) {
	var prefs domain.SitePreferences
	query := `SELECT ` + preferencesSelectColumns + ` FROM site_preferences WHERE site_id = $1`

	err := r.db.GetContext(ctx, &prefs, query, siteID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			defaults := domain.SitePreferences{SiteID: siteID}.WithDefaults()
			return &defaults, nil
		}
		return nil, fmt.Errorf("failed to get site preferences: %w", err)
	}

	prefs = prefs.WithDefaults()
	return &prefs, nil
}

// Upsert creates or replaces the preferences row for a site.
func (r *PreferencesRepository) Upsert(ctx context.Context, prefs *domain.SitePreferences) error {
	*prefs = prefs.WithDefaults()

	query := `
		INSERT INTO site_preferences (site_id, automated_scanning, automated_cleanup,
			automated_cleanup_days, email_reports, email_sender, email_recipient, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (site_id) DO UPDATE SET
			automated_scanning = EXCLUDED.automated_scanning,
			automated_cleanup = EXCLUDED.automated_cleanup,
			automated_cleanup_days = EXCLUDED.automated_cleanup_days,
			email_reports = EXCLUDED.email_reports,
			email_sender = EXCLUDED.email_sender,
			email_recipient = EXCLUDED.email_recipient,
			user_agent = EXCLUDED.user_agent,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx, query,
		prefs.SiteID, prefs.AutomatedScanning, prefs.AutomatedCleanup,
		prefs.AutomatedCleanupDays, prefs.EmailReports, prefs.EmailSender,
		prefs.EmailRecipient, prefs.UserAgent,
	).Scan(&prefs.CreatedAt, &prefs.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert site preferences: %w", err)
	}

	return nil
}
