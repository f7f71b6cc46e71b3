package models

import "time"

// QuotaProfile tracks one tenant's tier, credit balance and monthly OCR counter.
type QuotaProfile struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	OwnerID uint64 `gorm:"not null;uniqueIndex"` // Owning tenant ID.

	Tier    string  `gorm:"type:text;not null;default:'free'"`      // Service tier name.
	Credits float64 `gorm:"type:decimal(20,10);not null;default:0"` // Spendable credit balance.

	OCRCountMonthly int       `gorm:"not null;default:0"` // OCR operations committed this window.
	OCRPeriodStart  time.Time `gorm:"not null"`           // Start of the current monthly window.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (QuotaProfile) TableName() string {
	return "quota_profiles"
}
