package quota

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pagemark/ingest/internal/models"
	"gorm.io/gorm"
)

func openTestLedger(t *testing.T) *Ledger {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.QuotaProfile{}, &models.UsageRecord{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return NewLedger(conn)
}

func seedProfile(t *testing.T, l *Ledger, tier Tier, credits float64, count int, periodStart time.Time) *models.QuotaProfile {
	t.Helper()
	profile := &models.QuotaProfile{
		OwnerID:         42,
		Tier:            string(tier),
		Credits:         credits,
		OCRCountMonthly: count,
		OCRPeriodStart:  periodStart,
	}
	if errCreate := l.db.Create(profile).Error; errCreate != nil {
		t.Fatalf("seed profile: %v", errCreate)
	}
	return profile
}

func TestProfileForCreatesFreeProfileOnFirstUse(t *testing.T) {
	l := openTestLedger(t)

	profile, errProfile := l.ProfileFor(context.Background(), 7)
	if errProfile != nil {
		t.Fatalf("profile for: %v", errProfile)
	}
	if profile.Tier != string(TierFree) || profile.Credits != 0 {
		t.Fatalf("unexpected new profile: %+v", profile)
	}

	again, errAgain := l.ProfileFor(context.Background(), 7)
	if errAgain != nil {
		t.Fatalf("profile for again: %v", errAgain)
	}
	if again.ID != profile.ID {
		t.Fatalf("second lookup created a new profile: %d != %d", again.ID, profile.ID)
	}
}

func TestCommitDebitsCreditsAndCountsOnce(t *testing.T) {
	l := openTestLedger(t)
	profile := seedProfile(t, l, TierPro, 10, 0, time.Now().UTC())

	remaining, errCommit := l.Commit(context.Background(), profile, 3, UsageMetadata{DocumentID: "doc-1", Pages: 12})
	if errCommit != nil {
		t.Fatalf("commit: %v", errCommit)
	}
	if remaining.Credits != 7 {
		t.Fatalf("remaining credits = %f, want 7", remaining.Credits)
	}
	if remaining.OCRCount != 1 {
		t.Fatalf("ocr count = %d, want 1", remaining.OCRCount)
	}
	if remaining.OCRRemaining != 99 {
		t.Fatalf("ocr remaining = %d, want 99", remaining.OCRRemaining)
	}
	if profile.Credits != 7 || profile.OCRCountMonthly != 1 {
		t.Fatalf("profile not refreshed: %+v", profile)
	}

	var records []models.UsageRecord
	if errFind := l.db.Find(&records).Error; errFind != nil {
		t.Fatalf("query usage records: %v", errFind)
	}
	if len(records) != 1 {
		t.Fatalf("got %d usage records, want 1", len(records))
	}
	if records[0].OwnerID != 42 || records[0].Action != models.ActionOCRProcessing || records[0].CreditsCharged != 3 {
		t.Fatalf("unexpected usage record: %+v", records[0])
	}
}

func TestCommitSequenceSumsCharges(t *testing.T) {
	l := openTestLedger(t)
	profile := seedProfile(t, l, TierPro, 10, 0, time.Now().UTC())

	costs := []float64{1, 2, 0.5}
	total := 0.0
	for _, cost := range costs {
		if _, errCommit := l.Commit(context.Background(), profile, cost, UsageMetadata{DocumentID: "doc"}); errCommit != nil {
			t.Fatalf("commit %f: %v", cost, errCommit)
		}
		total += cost
	}

	if profile.Credits != 10-total {
		t.Fatalf("credits = %f, want %f", profile.Credits, 10-total)
	}
	if profile.OCRCountMonthly != len(costs) {
		t.Fatalf("count = %d, want %d", profile.OCRCountMonthly, len(costs))
	}
}

func TestCommitEnterpriseNeverDebitsCredits(t *testing.T) {
	l := openTestLedger(t)
	profile := seedProfile(t, l, TierEnterprise, 5, 0, time.Now().UTC())

	remaining, errCommit := l.Commit(context.Background(), profile, 0, UsageMetadata{DocumentID: "doc-e"})
	if errCommit != nil {
		t.Fatalf("commit: %v", errCommit)
	}
	if remaining.Credits != 5 {
		t.Fatalf("credits = %f, want untouched 5", remaining.Credits)
	}
	if remaining.OCRCount != 1 {
		t.Fatalf("count = %d, want 1", remaining.OCRCount)
	}
	if remaining.OCRRemaining != -1 {
		t.Fatalf("remaining = %d, want -1 (unlimited)", remaining.OCRRemaining)
	}
}

func TestCommitFailsWhenBalanceDropsBelowCharge(t *testing.T) {
	l := openTestLedger(t)
	profile := seedProfile(t, l, TierPro, 2, 0, time.Now().UTC())

	_, errCommit := l.Commit(context.Background(), profile, 3, UsageMetadata{DocumentID: "doc-x"})
	var creditsErr *InsufficientCreditsError
	if !errors.As(errCommit, &creditsErr) {
		t.Fatalf("got %v, want InsufficientCreditsError", errCommit)
	}
	if creditsErr.Required != 3 || creditsErr.Available != 2 {
		t.Fatalf("got required=%f available=%f", creditsErr.Required, creditsErr.Available)
	}

	// No counter bump and no usage record on the failed conditional update.
	var fresh models.QuotaProfile
	if errFind := l.db.First(&fresh, profile.ID).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if fresh.Credits != 2 || fresh.OCRCountMonthly != 0 {
		t.Fatalf("ledger mutated on failed commit: %+v", fresh)
	}
	var count int64
	if errCount := l.db.Model(&models.UsageRecord{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count usage records: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("got %d usage records, want 0", count)
	}
}

func TestEnsureFreshPeriodResetsElapsedWindow(t *testing.T) {
	l := openTestLedger(t)
	start := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	profile := seedProfile(t, l, TierFree, 1, 5, start)

	l.now = func() time.Time { return time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC) }

	if errFresh := l.EnsureFreshPeriod(context.Background(), profile); errFresh != nil {
		t.Fatalf("ensure fresh period: %v", errFresh)
	}
	if profile.OCRCountMonthly != 0 {
		t.Fatalf("count = %d, want 0 after reset", profile.OCRCountMonthly)
	}
	want := time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)
	if !profile.OCRPeriodStart.Equal(want) {
		t.Fatalf("period start = %v, want %v", profile.OCRPeriodStart, want)
	}
}

func TestEnsureFreshPeriodIdempotentWithinWindow(t *testing.T) {
	l := openTestLedger(t)
	start := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	profile := seedProfile(t, l, TierFree, 1, 5, start)

	l.now = func() time.Time { return time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC) }
	if errFirst := l.EnsureFreshPeriod(context.Background(), profile); errFirst != nil {
		t.Fatalf("first reset: %v", errFirst)
	}
	countAfterFirst := profile.OCRCountMonthly
	startAfterFirst := profile.OCRPeriodStart

	// Simulate usage after the reset, then call again in the same window.
	if errBump := l.db.Model(&models.QuotaProfile{}).Where("id = ?", profile.ID).
		Update("ocr_count_monthly", 3).Error; errBump != nil {
		t.Fatalf("bump count: %v", errBump)
	}
	if errSecond := l.EnsureFreshPeriod(context.Background(), profile); errSecond != nil {
		t.Fatalf("second call: %v", errSecond)
	}
	if countAfterFirst != 0 {
		t.Fatalf("first call should have reset the counter, got %d", countAfterFirst)
	}

	var fresh models.QuotaProfile
	if errFind := l.db.First(&fresh, profile.ID).Error; errFind != nil {
		t.Fatalf("reload: %v", errFind)
	}
	if fresh.OCRCountMonthly != 3 {
		t.Fatalf("second call reset the counter again: %d", fresh.OCRCountMonthly)
	}
	if !fresh.OCRPeriodStart.Equal(startAfterFirst) {
		t.Fatalf("second call moved the window: %v != %v", fresh.OCRPeriodStart, startAfterFirst)
	}
}
