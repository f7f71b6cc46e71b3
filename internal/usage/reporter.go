// Package usage reads and maintains the append-only usage ledger.
package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/pagemark/ingest/internal/db"
	"github.com/pagemark/ingest/internal/models"
	"gorm.io/gorm"
)

const defaultPageSize = 50

const maxPageSize = 500

// Reporter serves tenant-scoped usage listings and window summaries.
type Reporter struct {
	db *gorm.DB
}

// NewReporter constructs a Reporter.
func NewReporter(conn *gorm.DB) *Reporter {
	return &Reporter{db: conn}
}

// Summary aggregates committed usage over a time window.
type Summary struct {
	Operations     int64   `json:"operations"`
	CreditsCharged float64 `json:"credits_charged"`
	Pages          int64   `json:"pages"`
}

// List returns a tenant's usage records, newest first, with the total row
// count for pagination.
func (r *Reporter) List(ctx context.Context, ownerID uint64, limit, offset int) ([]models.UsageRecord, int64, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	errCount := r.db.WithContext(ctx).Model(&models.UsageRecord{}).
		Where("owner_id = ?", ownerID).
		Count(&total).Error
	if errCount != nil {
		return nil, 0, fmt.Errorf("count usage records: %w", errCount)
	}

	var records []models.UsageRecord
	errList := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&records).Error
	if errList != nil {
		return nil, 0, fmt.Errorf("list usage records: %w", errList)
	}
	return records, total, nil
}

// Summarize aggregates a tenant's committed usage since the given time.
// Page totals come out of the metadata JSON payload.
func (r *Reporter) Summarize(ctx context.Context, ownerID uint64, since time.Time) (*Summary, error) {
	pagesExpr := db.JSONExtractTextExpr(r.db, "metadata", "pages")

	var row struct {
		Operations     int64
		CreditsCharged float64
		Pages          int64
	}
	errScan := r.db.WithContext(ctx).Model(&models.UsageRecord{}).
		Select(fmt.Sprintf(
			"COUNT(*) AS operations, COALESCE(SUM(credits_charged), 0) AS credits_charged, COALESCE(SUM(CAST(%s AS INTEGER)), 0) AS pages",
			pagesExpr)).
		Where("owner_id = ? AND created_at >= ?", ownerID, since).
		Scan(&row).Error
	if errScan != nil {
		return nil, fmt.Errorf("summarize usage: %w", errScan)
	}
	return &Summary{
		Operations:     row.Operations,
		CreditsCharged: row.CreditsCharged,
		Pages:          row.Pages,
	}, nil
}
