package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jonesrussell/linkscan/internal/domain"
)

// LinkState selects a subset of links for listing and counting. Invalid
// links are excluded from both the broken and working states; they are a
// third category of their own.
type LinkState string

const (
	// LinkStateAll selects every link in a scan.
	LinkStateAll LinkState = ""
	// LinkStatePending selects links without a completed check.
	LinkStatePending LinkState = "pending"
	// LinkStateBroken selects crawled, valid links marked broken.
	LinkStateBroken LinkState = "broken"
	// LinkStateWorking selects crawled, valid links not marked broken.
	LinkStateWorking LinkState = "working"
	// LinkStateInvalid selects links with a non-checkable scheme.
	LinkStateInvalid LinkState = "invalid"
)

const linkSelectColumns = `id, scan_id, url, domain, follow, crawled, invalid,
	broken, status_code, error_text, page_id, page_deleted, page_slug,
	created_at, updated_at`

// ScanLinkRepository handles database operations for scan links.
type ScanLinkRepository struct {
	db *sqlx.DB
}

// NewScanLinkRepository creates a new scan link repository.
func NewScanLinkRepository(db *sqlx.DB) *ScanLinkRepository {
	return &ScanLinkRepository{db: db}
}

// Create inserts a new scan link. Returns true when the row was created, or
// false when a link for the same (scan_id, url) already existed; in that
// case the existing row is loaded into link. The ON CONFLICT guard combined
// with the unique constraint resolves the race where two workers discover
// the same URL simultaneously.
func (r *ScanLinkRepository) Create(ctx context.Context, link *domain.ScanLink) (bool, error) {
	if link.ID == "" {
		link.ID = uuid.New().String()
	}

	query := `
		INSERT INTO scan_links (id, scan_id, url, domain, follow, page_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (scan_id, url) DO NOTHING
		RETURNING created_at, updated_at
	`

	err := r.db.QueryRowContext(
		ctx, query,
		link.ID, link.ScanID, link.URL, link.Domain, link.Follow, link.PageID,
	).Scan(&link.CreatedAt, &link.UpdatedAt)

	if err == nil {
		return true, nil
	}

	if !errors.Is(err, sql.ErrNoRows) && !IsUniqueViolation(err) {
		return false, fmt.Errorf("failed to create scan link: %w", err)
	}

	existing, getErr := r.GetByScanAndURL(ctx, link.ScanID, link.URL)
	if getErr != nil {
		return false, fmt.Errorf("failed to load existing scan link: %w", getErr)
	}

	*link = *existing
	return false, nil
}

// GetByID retrieves a scan link by its ID.
func (r *ScanLinkRepository) GetByID(ctx context.Context, id string) (*domain.ScanLink, error) {
	var link domain.ScanLink
	query := `SELECT ` + linkSelectColumns + ` FROM scan_links WHERE id = $1`

	err := r.db.GetContext(ctx, &link, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get scan link: %w", err)
	}

	return &link, nil
}

// GetByScanAndURL retrieves a scan link by its dedup key.
func (r *ScanLinkRepository) GetByScanAndURL(ctx context.Context, scanID, url string) (*domain.ScanLink, error) {
	var link domain.ScanLink
	query := `SELECT ` + linkSelectColumns + ` FROM scan_links WHERE scan_id = $1 AND url = $2`

	err := r.db.GetContext(ctx, &link, query, scanID, url)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLinkNotFound
		}
		return nil, fmt.Errorf("failed to get scan link: %w", err)
	}

	return &link, nil
}

// MarkCrawled persists a link's terminal outcome fields and sets crawled.
// The crawled = FALSE guard makes the outcome write-once: returns true when
// this call recorded the outcome, false when the link was already crawled.
func (r *ScanLinkRepository) MarkCrawled(ctx context.Context, link *domain.ScanLink) (bool, error) {
	query := `
		UPDATE scan_links
		SET crawled = TRUE, invalid = $2, broken = $3, status_code = $4,
		    error_text = $5, updated_at = NOW()
		WHERE id = $1 AND crawled = FALSE
	`

	result, err := r.db.ExecContext(
		ctx, query,
		link.ID, link.Invalid, link.Broken, link.StatusCode, link.ErrorText,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark link crawled: %w", err)
	}

	n, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", affectedErr)
	}

	return n > 0, nil
}

// HasPending reports whether any link in the scan has not been crawled yet.
// The dispatcher evaluates this after every completed check to detect scan
// completion.
func (r *ScanLinkRepository) HasPending(ctx context.Context, scanID string) (bool, error) {
	var pending bool
	query := `SELECT EXISTS(SELECT 1 FROM scan_links WHERE scan_id = $1 AND crawled = FALSE)`

	err := r.db.GetContext(ctx, &pending, query, scanID)
	if err != nil {
		return false, fmt.Errorf("failed to check pending links: %w", err)
	}

	return pending, nil
}

// Counts returns aggregate link counts for a scan.
func (r *ScanLinkRepository) Counts(ctx context.Context, scanID string) (*domain.ScanCounts, error) {
	var counts domain.ScanCounts
	query := `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE NOT crawled) AS pending,
			COUNT(*) FILTER (WHERE crawled AND broken AND NOT invalid) AS broken,
			COUNT(*) FILTER (WHERE crawled AND NOT broken AND NOT invalid) AS working,
			COUNT(*) FILTER (WHERE invalid) AS invalid
		FROM scan_links
		WHERE scan_id = $1
	`

	err := r.db.GetContext(ctx, &counts, query, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to count scan links: %w", err)
	}

	return &counts, nil
}

// ListFilters represents filtering and grouping options for listing links.
type ListFilters struct {
	State   LinkState
	GroupBy string // status_code, domain, page_id
	Limit   int
	Offset  int
}

// stateClause returns the WHERE fragment for a link state.
func stateClause(state LinkState) string {
	switch state {
	case LinkStatePending:
		return "AND crawled = FALSE"
	case LinkStateBroken:
		return "AND crawled = TRUE AND broken = TRUE AND invalid = FALSE"
	case LinkStateWorking:
		return "AND crawled = TRUE AND broken = FALSE AND invalid = FALSE"
	case LinkStateInvalid:
		return "AND invalid = TRUE"
	default:
		return ""
	}
}

// ListByScan retrieves links for a scan, optionally restricted to one state
// and ordered for grouping in result views.
func (r *ScanLinkRepository) ListByScan(ctx context.Context, scanID string, filters ListFilters) ([]*domain.ScanLink, error) {
	groupBy := filters.GroupBy
	if groupBy != "domain" && groupBy != "page_id" {
		groupBy = "status_code"
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = 500
	}
	offset := filters.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM scan_links
		WHERE scan_id = $1 %s
		ORDER BY %s, status_code, domain, url
		LIMIT $2 OFFSET $3
	`, linkSelectColumns, stateClause(filters.State), groupBy)

	var links []*domain.ScanLink
	err := r.db.SelectContext(ctx, &links, query, scanID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list scan links: %w", err)
	}

	if links == nil {
		links = []*domain.ScanLink{}
	}

	return links, nil
}

// ListPendingByScan retrieves links awaiting a check, used when re-driving
// an interrupted scan.
func (r *ScanLinkRepository) ListPendingByScan(ctx context.Context, scanID string) ([]*domain.ScanLink, error) {
	var links []*domain.ScanLink
	query := `SELECT ` + linkSelectColumns + ` FROM scan_links WHERE scan_id = $1 AND crawled = FALSE`

	err := r.db.SelectContext(ctx, &links, query, scanID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending links: %w", err)
	}

	if links == nil {
		links = []*domain.ScanLink{}
	}

	return links, nil
}

// MarkPageDeleted records, on every link originating from the page, that
// the page was removed, keeping its last slug for display. The links
// themselves are preserved. Returns the number of links updated.
func (r *ScanLinkRepository) MarkPageDeleted(ctx context.Context, pageID, slug string) (int, error) {
	query := `
		UPDATE scan_links
		SET page_deleted = TRUE, page_slug = $2, updated_at = NOW()
		WHERE page_id = $1
	`

	result, err := r.db.ExecContext(ctx, query, pageID, strings.TrimSpace(slug))
	if err != nil {
		return 0, fmt.Errorf("failed to mark page deleted: %w", err)
	}

	n, affectedErr := result.RowsAffected()
	if affectedErr != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", affectedErr)
	}

	return int(n), nil
}
