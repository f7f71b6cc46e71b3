package models

import (
	"time"

	"gorm.io/datatypes"
)

// ActionOCRProcessing is the action recorded for committed OCR attempts.
const ActionOCRProcessing = "ocr_processing"

// UsageRecord is an append-only ledger entry for a committed metered action.
type UsageRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OwnerID uint64 `gorm:"not null;index"`            // Owning tenant ID.
	Action  string `gorm:"type:text;not null;index"`  // Action kind, e.g. ocr_processing.

	CreditsCharged float64 `gorm:"type:decimal(20,10);not null;default:0"` // Credits debited for this action.

	Metadata datatypes.JSON `gorm:"type:jsonb"` // Document ID, page counts, tokens, duration, tier.

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index"` // Creation timestamp.
}

// TableName overrides the default table name.
func (UsageRecord) TableName() string {
	return "usage_records"
}
