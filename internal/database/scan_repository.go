package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/linkscan/internal/domain"
)

const scanSelectColumns = `id, site_id, started_at, finished_at, run_sync,
	verbosity, created_at, updated_at`

// ScanRepository handles database operations for scans.
type ScanRepository struct {
	db *sqlx.DB
}

// NewScanRepository creates a new scan repository.
func NewScanRepository(db *sqlx.DB) *ScanRepository {
	return &ScanRepository{db: db}
}

// Create inserts a new scan row and fills in generated fields.
func (r *ScanRepository) Create(ctx context.Context, scan *domain.Scan) error {
	if scan.ID == "" {
		scan.ID = uuid.New().String()
	}
	if scan.Started.IsZero() {
		scan.Started = time.Now().UTC()
	}

	query := `
		INSERT INTO scans (id, site_id, started_at, run_sync, verbosity)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx, query,
		scan.ID, scan.SiteID, scan.Started, scan.RunSync, scan.Verbosity,
	).Scan(&scan.CreatedAt, &scan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create scan: %w", err)
	}

	return nil
}

// GetByID retrieves a scan by its ID.
func (r *ScanRepository) GetByID(ctx context.Context, id string) (*domain.Scan, error) {
	var scan domain.Scan
	query := `SELECT ` + scanSelectColumns + ` FROM scans WHERE id = $1`

	err := r.db.GetContext(ctx, &scan, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScanNotFound
		}
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}

	return &scan, nil
}

// ListBySite retrieves scans for a site, newest first.
func (r *ScanRepository) ListBySite(ctx context.Context, siteID string, limit, offset int) ([]*domain.Scan, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var scans []*domain.Scan
	query := `
		SELECT ` + scanSelectColumns + `
		FROM scans
		WHERE site_id = $1
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3
	`

	err := r.db.SelectContext(ctx, &scans, query, siteID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans: %w", err)
	}

	if scans == nil {
		scans = []*domain.Scan{}
	}

	return scans, nil
}

// Finish sets the finish timestamp if it is not already set. Returns true
// when this call finished the scan, false when the scan was already
// finished. The WHERE guard keeps the finish idempotent under concurrent
// completion checks from multiple workers.
func (r *ScanRepository) Finish(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE scans
		SET finished_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND finished_at IS NULL
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to finish scan: %w", err)
	}

	n, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", affectedErr)
	}

	return n > 0, nil
}

// Delete removes a scan; its links cascade at the storage level.
func (r *ScanRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM scans WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, id)
	if execErr := execRequireRows(result, err, ErrScanNotFound); execErr != nil {
		if errors.Is(execErr, ErrScanNotFound) {
			return execErr
		}
		return fmt.Errorf("failed to delete scan: %w", execErr)
	}

	return nil
}

// DeleteStartedBefore removes all scans for a site started before the
// cutoff. Used by the retention cleanup sweep. Returns the number of scans
// removed.
func (r *ScanRepository) DeleteStartedBefore(ctx context.Context, siteID string, cutoff time.Time) (int, error) {
	query := `DELETE FROM scans WHERE site_id = $1 AND started_at < $2`

	result, err := r.db.ExecContext(ctx, query, siteID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old scans: %w", err)
	}

	n, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", affectedErr)
	}

	return int(n), nil
}
