package ocr

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/pagemark/ingest/internal/models"
	"github.com/pagemark/ingest/internal/quota"
	"gorm.io/gorm"
)

type fakeStore struct {
	data map[string][]byte
	err  error
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	raw, ok := s.data[key]
	if !ok {
		return nil, errors.New("object missing: " + key)
	}
	return raw, nil
}

func (s *fakeStore) Put(_ context.Context, _ string, _ []byte, _ string, _ map[string]string) error {
	return nil
}

type fakeProvider struct {
	name   string
	result *Result
	err    error
	calls  int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Extract(_ context.Context, _ []byte, _ string, _ int, _ Options) (*Result, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.result, nil
}

func openTestOrchestrator(t *testing.T, primary, fallback Provider, store *fakeStore) (*Orchestrator, *gorm.DB) {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := conn.AutoMigrate(&models.Document{}, &models.QuotaProfile{}, &models.UsageRecord{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	o := NewOrchestrator(conn, quota.NewLedger(conn), store, primary, fallback, nil)
	o.now = func() time.Time { return time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC) }
	return o, conn
}

func seedDocument(t *testing.T, conn *gorm.DB, status string) *models.Document {
	t.Helper()
	doc := &models.Document{
		PublicID:   "doc-0001",
		OwnerID:    42,
		StorageKey: "tenants/42/doc-0001.pdf",
		MediaType:  "application/pdf",
		PageCount:  4,
		OCRStatus:  status,
	}
	if errCreate := conn.Create(doc).Error; errCreate != nil {
		t.Fatalf("seed document: %v", errCreate)
	}
	return doc
}

func seedOwnerProfile(t *testing.T, conn *gorm.DB, tier quota.Tier, credits float64, count int) {
	t.Helper()
	profile := &models.QuotaProfile{
		OwnerID:         42,
		Tier:            string(tier),
		Credits:         credits,
		OCRCountMonthly: count,
		OCRPeriodStart:  time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC),
	}
	if errCreate := conn.Create(profile).Error; errCreate != nil {
		t.Fatalf("seed profile: %v", errCreate)
	}
}

func TestRequestOCRSuccessCommitsCharge(t *testing.T) {
	primary := &fakeProvider{
		name: "vertex",
		result: &Result{
			Text:             "recognized text",
			PageTexts:        []string{"recognized", "text"},
			TokensUsed:       321,
			ProcessingTimeMs: 1500,
			Confidence:       0.97,
			PagesProcessed:   4,
		},
	}
	store := &fakeStore{data: map[string][]byte{"tenants/42/doc-0001.pdf": []byte("%PDF-1.7")}}
	o, conn := openTestOrchestrator(t, primary, nil, store)
	doc := seedDocument(t, conn, models.OCRStatusNone)
	seedOwnerProfile(t, conn, quota.TierPro, 10, 0)

	resp, errReq := o.RequestOCR(context.Background(), Request{
		DocumentID: doc.PublicID,
		OwnerID:    42,
		StorageKey: doc.StorageKey,
		PageCount:  4,
	})
	if errReq != nil {
		t.Fatalf("request ocr: %v", errReq)
	}
	if resp.Text != "recognized text" {
		t.Fatalf("unexpected text: %q", resp.Text)
	}
	if resp.CreditsCharged != 1.0 || resp.CreditsRemaining != 9.0 {
		t.Fatalf("unexpected charge: charged=%v remaining=%v", resp.CreditsCharged, resp.CreditsRemaining)
	}
	if resp.OCRCount != 1 || resp.OCRRemaining != 99 {
		t.Fatalf("unexpected counters: count=%d remaining=%d", resp.OCRCount, resp.OCRRemaining)
	}

	var stored models.Document
	if errLoad := conn.First(&stored, doc.ID).Error; errLoad != nil {
		t.Fatalf("reload document: %v", errLoad)
	}
	if stored.OCRStatus != models.OCRStatusCompleted {
		t.Fatalf("unexpected status: %s", stored.OCRStatus)
	}
	if stored.Content == nil || *stored.Content != "recognized text" {
		t.Fatalf("content not persisted: %v", stored.Content)
	}
	if stored.ExtractionKind != models.ExtractionOCR {
		t.Fatalf("unexpected extraction kind: %s", stored.ExtractionKind)
	}
	meta := models.DecodeOCRMetadata(stored.OCRMetadata)
	if meta.Provider != "vertex" || meta.TokensUsed != 321 || meta.CompletedAt == nil {
		t.Fatalf("unexpected metadata: %+v", meta)
	}

	var records int64
	if errCount := conn.Model(&models.UsageRecord{}).Count(&records).Error; errCount != nil {
		t.Fatalf("count usage: %v", errCount)
	}
	if records != 1 {
		t.Fatalf("expected one usage record, got %d", records)
	}
}

func TestRequestOCRProviderFailureMarksFailedWithoutCharge(t *testing.T) {
	primary := &fakeProvider{name: "vertex", err: errors.New("connection timeout")}
	store := &fakeStore{data: map[string][]byte{"tenants/42/doc-0001.pdf": []byte("%PDF-1.7")}}
	o, conn := openTestOrchestrator(t, primary, nil, store)
	doc := seedDocument(t, conn, models.OCRStatusNone)
	seedOwnerProfile(t, conn, quota.TierPro, 10, 0)

	_, errReq := o.RequestOCR(context.Background(), Request{
		DocumentID: doc.PublicID,
		OwnerID:    42,
		PageCount:  4,
	})
	var provErr *ProviderFailureError
	if !errors.As(errReq, &provErr) {
		t.Fatalf("expected ProviderFailureError, got %v", errReq)
	}
	if !provErr.CanRetry {
		t.Fatalf("timeout failure should be retryable: %+v", provErr)
	}

	var stored models.Document
	if errLoad := conn.First(&stored, doc.ID).Error; errLoad != nil {
		t.Fatalf("reload document: %v", errLoad)
	}
	if stored.OCRStatus != models.OCRStatusFailed {
		t.Fatalf("unexpected status: %s", stored.OCRStatus)
	}
	meta := models.DecodeOCRMetadata(stored.OCRMetadata)
	if !strings.Contains(meta.LastError, "connection timeout") || !meta.CanRetry {
		t.Fatalf("unexpected failure metadata: %+v", meta)
	}

	var profile models.QuotaProfile
	if errLoad := conn.Where("owner_id = ?", 42).First(&profile).Error; errLoad != nil {
		t.Fatalf("reload profile: %v", errLoad)
	}
	if profile.Credits != 10 || profile.OCRCountMonthly != 0 {
		t.Fatalf("failure must not charge: %+v", profile)
	}
	var records int64
	conn.Model(&models.UsageRecord{}).Count(&records)
	if records != 0 {
		t.Fatalf("failure must not record usage, got %d records", records)
	}
}

func TestRequestOCRFallsBackOnce(t *testing.T) {
	primary := &fakeProvider{name: "vertex", err: errors.New("503 unavailable")}
	fallback := &fakeProvider{
		name:   "http-ocr",
		result: &Result{Text: "fallback text", PagesProcessed: 4},
	}
	store := &fakeStore{data: map[string][]byte{"tenants/42/doc-0001.pdf": []byte("%PDF-1.7")}}
	o, conn := openTestOrchestrator(t, primary, fallback, store)
	doc := seedDocument(t, conn, models.OCRStatusNone)
	seedOwnerProfile(t, conn, quota.TierPro, 10, 0)

	resp, errReq := o.RequestOCR(context.Background(), Request{DocumentID: doc.PublicID, OwnerID: 42, PageCount: 4})
	if errReq != nil {
		t.Fatalf("request ocr: %v", errReq)
	}
	if resp.Metadata.Provider != "http-ocr" || resp.Text != "fallback text" {
		t.Fatalf("fallback result not used: %+v", resp)
	}
	if primary.calls != 1 || fallback.calls != 1 {
		t.Fatalf("unexpected call counts: primary=%d fallback=%d", primary.calls, fallback.calls)
	}
}

func TestRequestOCRConflictWhenAlreadyProcessing(t *testing.T) {
	primary := &fakeProvider{name: "vertex", result: &Result{Text: "x"}}
	store := &fakeStore{data: map[string][]byte{"tenants/42/doc-0001.pdf": []byte("%PDF-1.7")}}
	o, conn := openTestOrchestrator(t, primary, nil, store)
	doc := seedDocument(t, conn, models.OCRStatusProcessing)
	seedOwnerProfile(t, conn, quota.TierPro, 10, 0)

	_, errReq := o.RequestOCR(context.Background(), Request{DocumentID: doc.PublicID, OwnerID: 42, PageCount: 4})
	if !errors.Is(errReq, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", errReq)
	}
	if primary.calls != 0 {
		t.Fatalf("provider must not run on conflict")
	}
}

func TestRequestOCRMonthlyCapDenied(t *testing.T) {
	primary := &fakeProvider{name: "vertex", result: &Result{Text: "x"}}
	store := &fakeStore{data: map[string][]byte{"tenants/42/doc-0001.pdf": []byte("%PDF-1.7")}}
	o, conn := openTestOrchestrator(t, primary, nil, store)
	doc := seedDocument(t, conn, models.OCRStatusNone)
	seedOwnerProfile(t, conn, quota.TierFree, 50, 5)

	_, errReq := o.RequestOCR(context.Background(), Request{DocumentID: doc.PublicID, OwnerID: 42, PageCount: 2})
	var quotaErr *quota.QuotaExceededError
	if !errors.As(errReq, &quotaErr) {
		t.Fatalf("expected QuotaExceededError, got %v", errReq)
	}
	if quotaErr.CurrentCount != 5 || quotaErr.Limit != 5 {
		t.Fatalf("unexpected quota error: %+v", quotaErr)
	}

	var stored models.Document
	conn.First(&stored, doc.ID)
	if stored.OCRStatus != models.OCRStatusNone {
		t.Fatalf("denied request must not touch the document: %s", stored.OCRStatus)
	}
}

func TestRequestOCRInsufficientCreditsLeavesDocumentUntouched(t *testing.T) {
	primary := &fakeProvider{name: "vertex", result: &Result{Text: "x"}}
	store := &fakeStore{data: map[string][]byte{"tenants/42/doc-0001.pdf": []byte("%PDF-1.7")}}
	o, conn := openTestOrchestrator(t, primary, nil, store)
	doc := seedDocument(t, conn, models.OCRStatusNone)
	seedOwnerProfile(t, conn, quota.TierPro, 0.25, 0)

	_, errReq := o.RequestOCR(context.Background(), Request{DocumentID: doc.PublicID, OwnerID: 42, PageCount: 4})
	var credErr *quota.InsufficientCreditsError
	if !errors.As(errReq, &credErr) {
		t.Fatalf("expected InsufficientCreditsError, got %v", errReq)
	}
	if credErr.Required != 1.0 || credErr.Available != 0.25 {
		t.Fatalf("unexpected credit error: %+v", credErr)
	}

	var stored models.Document
	conn.First(&stored, doc.ID)
	if stored.OCRStatus != models.OCRStatusNone {
		t.Fatalf("denied request must not touch the document: %s", stored.OCRStatus)
	}
}

func TestRequestOCRStorageFailureMarksFailed(t *testing.T) {
	primary := &fakeProvider{name: "vertex", result: &Result{Text: "x"}}
	store := &fakeStore{err: errors.New("bucket unreachable")}
	o, conn := openTestOrchestrator(t, primary, nil, store)
	doc := seedDocument(t, conn, models.OCRStatusNone)
	seedOwnerProfile(t, conn, quota.TierPro, 10, 0)

	_, errReq := o.RequestOCR(context.Background(), Request{DocumentID: doc.PublicID, OwnerID: 42, PageCount: 4})
	if !errors.Is(errReq, ErrStorageUnavailable) {
		t.Fatalf("expected ErrStorageUnavailable, got %v", errReq)
	}
	if primary.calls != 0 {
		t.Fatalf("provider must not run without the blob")
	}

	var stored models.Document
	conn.First(&stored, doc.ID)
	if stored.OCRStatus != models.OCRStatusFailed {
		t.Fatalf("unexpected status after storage failure: %s", stored.OCRStatus)
	}
}

func TestRequestOCRUnknownDocumentAndKeyMismatch(t *testing.T) {
	primary := &fakeProvider{name: "vertex", result: &Result{Text: "x"}}
	store := &fakeStore{data: map[string][]byte{}}
	o, conn := openTestOrchestrator(t, primary, nil, store)
	doc := seedDocument(t, conn, models.OCRStatusNone)
	seedOwnerProfile(t, conn, quota.TierPro, 10, 0)

	_, errMissing := o.RequestOCR(context.Background(), Request{DocumentID: "doc-9999", OwnerID: 42, PageCount: 1})
	if !errors.Is(errMissing, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown id, got %v", errMissing)
	}

	_, errMismatch := o.RequestOCR(context.Background(), Request{
		DocumentID: doc.PublicID,
		OwnerID:    42,
		StorageKey: "tenants/42/other.pdf",
		PageCount:  1,
	})
	if !errors.Is(errMismatch, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for key mismatch, got %v", errMismatch)
	}

	_, errForeign := o.RequestOCR(context.Background(), Request{DocumentID: doc.PublicID, OwnerID: 99, PageCount: 1})
	if !errors.Is(errForeign, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", errForeign)
	}
}

func TestQueryStatusIncludesContentOnlyWhenCompleted(t *testing.T) {
	o, conn := openTestOrchestrator(t, &fakeProvider{name: "vertex"}, nil, &fakeStore{})
	content := "finished text"
	done := &models.Document{
		PublicID:   "doc-done",
		OwnerID:    42,
		StorageKey: "tenants/42/doc-done.pdf",
		MediaType:  "application/pdf",
		OCRStatus:  models.OCRStatusCompleted,
		Content:    &content,
	}
	if errCreate := conn.Create(done).Error; errCreate != nil {
		t.Fatalf("seed completed document: %v", errCreate)
	}
	pending := seedDocument(t, conn, models.OCRStatusProcessing)

	status, errDone := o.QueryStatus(context.Background(), "doc-done", 42)
	if errDone != nil {
		t.Fatalf("query completed: %v", errDone)
	}
	if status.OCRStatus != models.OCRStatusCompleted || status.Content == nil || *status.Content != content {
		t.Fatalf("unexpected completed status: %+v", status)
	}

	inFlight, errPending := o.QueryStatus(context.Background(), pending.PublicID, 42)
	if errPending != nil {
		t.Fatalf("query processing: %v", errPending)
	}
	if inFlight.OCRStatus != models.OCRStatusProcessing || inFlight.Content != nil {
		t.Fatalf("processing status must not expose content: %+v", inFlight)
	}

	if _, errForeign := o.QueryStatus(context.Background(), "doc-done", 7); !errors.Is(errForeign, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", errForeign)
	}
}
