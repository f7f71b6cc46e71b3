package quota

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pagemark/ingest/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Ledger is the only writer of QuotaProfile counters and the usage_records
// table. Credits are charged exclusively at Commit time, after a confirmed
// OCR success; there is no reserve/refund bookkeeping.
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

// NewLedger constructs a Ledger backed by GORM.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// UsageMetadata is stored with each committed usage record.
type UsageMetadata struct {
	DocumentID       string `json:"document_id"`
	Pages            int    `json:"pages"`
	TokensUsed       int64  `json:"tokens_used,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms,omitempty"`
	Provider         string `json:"provider,omitempty"`
	Tier             string `json:"tier"`
}

// JSON serializes the metadata for storage.
func (m UsageMetadata) JSON() datatypes.JSON {
	payload, errMarshal := json.Marshal(m)
	if errMarshal != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(payload)
}

// Remaining carries post-commit figures recomputed from the authoritative
// profile row.
type Remaining struct {
	Credits      float64
	OCRCount     int
	OCRRemaining int // -1 when the tier cap is unlimited.
}

// ProfileFor loads the tenant's quota profile, creating a free-tier profile
// on first use.
func (l *Ledger) ProfileFor(ctx context.Context, ownerID uint64) (*models.QuotaProfile, error) {
	var profile models.QuotaProfile
	errFind := l.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&profile).Error
	if errFind == nil {
		return &profile, nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return nil, errFind
	}

	now := l.now()
	profile = models.QuotaProfile{
		OwnerID:        ownerID,
		Tier:           string(TierFree),
		OCRPeriodStart: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if errCreate := l.db.WithContext(ctx).Create(&profile).Error; errCreate != nil {
		// Lost a create race; the row exists now.
		var existing models.QuotaProfile
		if errRetry := l.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&existing).Error; errRetry == nil {
			return &existing, nil
		}
		return nil, errCreate
	}
	return &profile, nil
}

// EnsureFreshPeriod resets the monthly OCR counter when the profile's
// window has elapsed. The reset is a conditional update keyed on the stored
// period start being at least one month old, so concurrent callers and
// repeated calls within one window are no-ops. The profile is reloaded so
// later checks see the authoritative state.
func (l *Ledger) EnsureFreshPeriod(ctx context.Context, profile *models.QuotaProfile) error {
	now := l.now()
	if now.Before(profile.OCRPeriodStart.AddDate(0, 1, 0)) {
		return nil
	}

	newStart := profile.OCRPeriodStart
	for !now.Before(newStart.AddDate(0, 1, 0)) {
		newStart = newStart.AddDate(0, 1, 0)
	}

	res := l.db.WithContext(ctx).Model(&models.QuotaProfile{}).
		Where("id = ? AND ocr_period_start <= ?", profile.ID, now.AddDate(0, -1, 0)).
		Updates(map[string]any{
			"ocr_count_monthly": 0,
			"ocr_period_start":  newStart,
			"updated_at":        now,
		})
	if res.Error != nil {
		return res.Error
	}

	// Reload whether we won the reset or a concurrent request did.
	var fresh models.QuotaProfile
	if errFind := l.db.WithContext(ctx).First(&fresh, profile.ID).Error; errFind != nil {
		return errFind
	}
	*profile = fresh
	return nil
}

// Commit debits credits and bumps the monthly counter for one successful
// OCR attempt, appending exactly one usage record in the same transaction.
// The decrement is conditional at the storage layer (credits >= needed), so
// concurrent commits for the same tenant cannot lose updates or drive the
// balance negative. Enterprise tiers never pay credits but still count.
func (l *Ledger) Commit(ctx context.Context, profile *models.QuotaProfile, creditsNeeded float64, meta UsageMetadata) (*Remaining, error) {
	tier := NormalizeTier(profile.Tier)

	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"ocr_count_monthly": gorm.Expr("ocr_count_monthly + 1"),
			"updated_at":        l.now(),
		}
		q := tx.Model(&models.QuotaProfile{}).Where("id = ?", profile.ID)
		if tier != TierEnterprise && creditsNeeded > 0 {
			updates["credits"] = gorm.Expr("credits - ?", creditsNeeded)
			q = q.Where("credits >= ?", creditsNeeded)
		}
		res := q.Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &InsufficientCreditsError{Required: creditsNeeded, Available: profile.Credits}
		}

		charged := creditsNeeded
		if tier == TierEnterprise {
			charged = 0
		}
		meta.Tier = string(tier)
		record := models.UsageRecord{
			OwnerID:        profile.OwnerID,
			Action:         models.ActionOCRProcessing,
			CreditsCharged: charged,
			Metadata:       meta.JSON(),
			CreatedAt:      l.now(),
		}
		return tx.Create(&record).Error
	})
	if errTx != nil {
		return nil, errTx
	}

	var fresh models.QuotaProfile
	if errFind := l.db.WithContext(ctx).First(&fresh, profile.ID).Error; errFind != nil {
		return nil, errFind
	}
	*profile = fresh

	return l.remainingFor(&fresh), nil
}

// RemainingFor computes display figures from a profile's current state.
func (l *Ledger) RemainingFor(profile *models.QuotaProfile) *Remaining {
	return l.remainingFor(profile)
}

func (l *Ledger) remainingFor(profile *models.QuotaProfile) *Remaining {
	limits := LimitsFor(Tier(profile.Tier))
	remaining := &Remaining{
		Credits:      profile.Credits,
		OCRCount:     profile.OCRCountMonthly,
		OCRRemaining: -1,
	}
	if limits.MonthlyOCRLimit > 0 {
		left := limits.MonthlyOCRLimit - profile.OCRCountMonthly
		if left < 0 {
			left = 0
		}
		remaining.OCRRemaining = left
	}
	return remaining
}
