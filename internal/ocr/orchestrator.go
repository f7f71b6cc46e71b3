package ocr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pagemark/ingest/internal/models"
	"github.com/pagemark/ingest/internal/quota"
	"github.com/pagemark/ingest/internal/statuscache"
	"github.com/pagemark/ingest/internal/storage"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// defaultCallTimeout bounds a single provider invocation.
const defaultCallTimeout = 2 * time.Minute

// Orchestrator runs the OCR state machine: quota admission, the
// none/failed -> processing -> completed|failed transitions, provider
// fallback, and the charge-on-success ledger commit.
type Orchestrator struct {
	db          *gorm.DB
	ledger      *quota.Ledger
	store       storage.ObjectStore
	primary     Provider
	fallback    Provider
	cache       *statuscache.Cache
	callTimeout time.Duration
	now         func() time.Time
}

// NewOrchestrator wires an Orchestrator. fallback and cache may be nil.
func NewOrchestrator(db *gorm.DB, ledger *quota.Ledger, store storage.ObjectStore, primary, fallback Provider, cache *statuscache.Cache) *Orchestrator {
	return &Orchestrator{
		db:          db,
		ledger:      ledger,
		store:       store,
		primary:     primary,
		fallback:    fallback,
		cache:       cache,
		callTimeout: defaultCallTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetCallTimeout overrides the per-provider call timeout.
func (o *Orchestrator) SetCallTimeout(d time.Duration) {
	if d > 0 {
		o.callTimeout = d
	}
}

// Request describes one OCR invocation.
type Request struct {
	DocumentID string  // Public document ID.
	OwnerID    uint64  // Authenticated tenant.
	StorageKey string  // Must match the document's recorded key.
	PageCount  int     // Declared page count for pricing and caps.
	Options    Options // Provider options.
}

// Response is returned on a committed OCR success.
type Response struct {
	Text             string
	PageTexts        []string
	CreditsCharged   float64
	CreditsRemaining float64
	OCRCount         int
	OCRRemaining     int // -1 when the tier cap is unlimited.
	Metadata         models.OCRMetadata
}

// Status is the answer to a status query.
type Status struct {
	DocumentID string             `json:"document_id"`
	OCRStatus  string             `json:"ocr_status"`
	Metadata   models.OCRMetadata `json:"metadata"`
	Content    *string            `json:"content,omitempty"`
}

// RequestOCR performs one metered OCR attempt for a document.
//
// Quota and credit admission happen before any document mutation, so a
// denied request leaves no trace. The processing transition is a
// conditional update at the datastore (prior state must be none or failed);
// a concurrent request for the same document loses the race and gets
// ErrConflict. Credits are charged only after confirmed provider success.
func (o *Orchestrator) RequestOCR(ctx context.Context, req Request) (*Response, error) {
	profile, errProfile := o.ledger.ProfileFor(ctx, req.OwnerID)
	if errProfile != nil {
		return nil, fmt.Errorf("load quota profile: %w", errProfile)
	}
	if errFresh := o.ledger.EnsureFreshPeriod(ctx, profile); errFresh != nil {
		return nil, fmt.Errorf("refresh quota period: %w", errFresh)
	}

	tier := quota.NormalizeTier(profile.Tier)
	if errQuota := quota.CheckQuota(profile.OCRCountMonthly, tier, req.PageCount); errQuota != nil {
		return nil, errQuota
	}

	creditsNeeded := quota.PriceOCR(req.PageCount, tier)
	if tier != quota.TierEnterprise && profile.Credits < creditsNeeded {
		return nil, &quota.InsufficientCreditsError{Required: creditsNeeded, Available: profile.Credits}
	}

	var doc models.Document
	errDoc := o.db.WithContext(ctx).
		Where("public_id = ? AND owner_id = ?", req.DocumentID, req.OwnerID).
		First(&doc).Error
	if errDoc != nil {
		if errors.Is(errDoc, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errDoc
	}
	if req.StorageKey != "" && doc.StorageKey != req.StorageKey {
		return nil, ErrNotFound
	}

	startedAt := o.now()
	startMeta := models.OCRMetadata{
		StartedAt:     &startedAt,
		DeclaredPages: req.PageCount,
	}
	if errStart := o.transition(ctx, &doc,
		[]string{models.OCRStatusNone, models.OCRStatusFailed},
		map[string]any{
			"ocr_status":   models.OCRStatusProcessing,
			"ocr_metadata": startMeta.JSON(),
			"updated_at":   startedAt,
		}); errStart != nil {
		return nil, errStart
	}

	raw, errGet := o.store.Get(ctx, doc.StorageKey)
	if errGet != nil {
		o.markFailed(ctx, &doc, startMeta, errGet)
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, errGet)
	}

	result, providerName, errProviders := o.callProviders(ctx, raw, doc.MediaType, req.PageCount, req.Options)
	if errProviders != nil {
		o.markFailed(ctx, &doc, startMeta, errProviders)
		return nil, &ProviderFailureError{Message: errProviders.Error(), CanRetry: Retryable(errProviders)}
	}

	completedAt := o.now()
	doneMeta := models.OCRMetadata{
		Provider:         providerName,
		StartedAt:        &startedAt,
		CompletedAt:      &completedAt,
		DeclaredPages:    req.PageCount,
		PagesProcessed:   result.PagesProcessed,
		TokensUsed:       result.TokensUsed,
		ProcessingTimeMs: result.ProcessingTimeMs,
		Confidence:       result.Confidence,
	}
	if errDone := o.transition(ctx, &doc,
		[]string{models.OCRStatusProcessing},
		map[string]any{
			"ocr_status":      models.OCRStatusCompleted,
			"content":         result.Text,
			"extraction_kind": models.ExtractionOCR,
			"ocr_metadata":    doneMeta.JSON(),
			"updated_at":      completedAt,
		}); errDone != nil {
		// The document left processing underneath us; do not commit the
		// ledger for a result we could not persist.
		log.WithField("document", doc.PublicID).WithError(errDone).
			Error("ocr: completion transition lost")
		return nil, fmt.Errorf("%w: %v", ErrUnexpected, errDone)
	}

	remaining, errCommit := o.ledger.Commit(ctx, profile, creditsNeeded, quota.UsageMetadata{
		DocumentID:       doc.PublicID,
		Pages:            result.PagesProcessed,
		TokensUsed:       result.TokensUsed,
		ProcessingTimeMs: result.ProcessingTimeMs,
		Provider:         providerName,
	})
	if errCommit != nil {
		// Content is persisted but the charge did not land. Surface the
		// failure; the usage record is the audit trail and must not be
		// silently skipped.
		log.WithField("owner", req.OwnerID).WithError(errCommit).
			Error("ocr: ledger commit failed after completion")
		return nil, fmt.Errorf("%w: %v", ErrUnexpected, errCommit)
	}

	charged := creditsNeeded
	if tier == quota.TierEnterprise {
		charged = 0
	}
	return &Response{
		Text:             result.Text,
		PageTexts:        result.PageTexts,
		CreditsCharged:   charged,
		CreditsRemaining: remaining.Credits,
		OCRCount:         remaining.OCRCount,
		OCRRemaining:     remaining.OCRRemaining,
		Metadata:         doneMeta,
	}, nil
}

// QueryStatus returns the document's OCR state, serving repeat lookups
// from the cache when one is configured. Content is included only for
// completed documents.
func (o *Orchestrator) QueryStatus(ctx context.Context, documentID string, ownerID uint64) (*Status, error) {
	if payload, ok := o.cache.Get(ctx, statusCacheID(ownerID, documentID)); ok {
		var cached Status
		if errDecode := json.Unmarshal(payload, &cached); errDecode == nil {
			return &cached, nil
		}
	}

	var doc models.Document
	errDoc := o.db.WithContext(ctx).
		Where("public_id = ? AND owner_id = ?", documentID, ownerID).
		First(&doc).Error
	if errDoc != nil {
		if errors.Is(errDoc, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errDoc
	}

	status := &Status{
		DocumentID: doc.PublicID,
		OCRStatus:  doc.OCRStatus,
		Metadata:   models.DecodeOCRMetadata(doc.OCRMetadata),
	}
	if doc.OCRStatus == models.OCRStatusCompleted {
		status.Content = doc.Content
	}

	if payload, errEncode := json.Marshal(status); errEncode == nil {
		o.cache.Set(ctx, statusCacheID(ownerID, documentID), payload)
	}
	return status, nil
}

// statusCacheID scopes cached statuses to the owner so a cache hit can
// never leak a document across tenants.
func statusCacheID(ownerID uint64, documentID string) string {
	return fmt.Sprintf("%d/%s", ownerID, documentID)
}

// transition performs a conditional state change for a document. The
// update applies only when the current status is in fromStatuses; zero
// rows affected means a concurrent request holds the document.
func (o *Orchestrator) transition(ctx context.Context, doc *models.Document, fromStatuses []string, updates map[string]any) error {
	o.cache.Invalidate(ctx, statusCacheID(doc.OwnerID, doc.PublicID))

	res := o.db.WithContext(ctx).Model(&models.Document{}).
		Where("id = ? AND ocr_status IN ?", doc.ID, fromStatuses).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// callProviders invokes the primary provider and, on failure, exactly one
// fallback. Each call is bounded by the orchestrator's timeout.
func (o *Orchestrator) callProviders(ctx context.Context, raw []byte, mediaType string, pageCount int, opts Options) (*Result, string, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	result, errPrimary := o.primary.Extract(callCtx, raw, mediaType, pageCount, opts)
	cancel()
	if errPrimary == nil {
		return result, o.primary.Name(), nil
	}
	log.WithError(errPrimary).Warnf("ocr: primary provider %s failed", o.primary.Name())

	if o.fallback == nil {
		return nil, "", errPrimary
	}

	callCtx, cancel = context.WithTimeout(ctx, o.callTimeout)
	result, errFallback := o.fallback.Extract(callCtx, raw, mediaType, pageCount, opts)
	cancel()
	if errFallback == nil {
		return result, o.fallback.Name(), nil
	}
	log.WithError(errFallback).Warnf("ocr: fallback provider %s failed", o.fallback.Name())

	return nil, "", fmt.Errorf("primary: %v; fallback: %v", errPrimary, errFallback)
}

// markFailed is the compensating action after a failure past the
// processing transition. It must not leave the document stuck in
// processing, and its own failure is logged, never escalated, so the
// caller's original error is the only one reported.
func (o *Orchestrator) markFailed(ctx context.Context, doc *models.Document, startMeta models.OCRMetadata, cause error) {
	failedAt := o.now()
	meta := startMeta
	meta.FailedAt = &failedAt
	meta.LastError = cause.Error()
	meta.CanRetry = Retryable(cause)

	if errMark := o.transition(ctx, doc,
		[]string{models.OCRStatusProcessing},
		map[string]any{
			"ocr_status":   models.OCRStatusFailed,
			"ocr_metadata": meta.JSON(),
			"updated_at":   failedAt,
		}); errMark != nil {
		log.WithField("document", doc.PublicID).WithError(errMark).
			Warn("ocr: best-effort failure cleanup did not persist")
	}
}
