// Package ingest exposes the document ingestion entry points: structural
// extraction on submit, metered OCR, and status lookup.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pagemark/ingest/internal/extract"
	"github.com/pagemark/ingest/internal/models"
	"github.com/pagemark/ingest/internal/ocr"
	"github.com/pagemark/ingest/internal/pdfinfo"
	"github.com/pagemark/ingest/internal/sniff"
	"github.com/pagemark/ingest/internal/storage"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ValidationError reports a rejected argument before any datastore or
// ledger work happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Facade composes the sniffer, extractor, orchestrator and object store
// behind the three ingestion operations. All collaborators arrive at
// construction; there is no process-wide state.
type Facade struct {
	db    *gorm.DB
	store storage.ObjectStore
	orch  *ocr.Orchestrator
}

// NewFacade wires a Facade.
func NewFacade(conn *gorm.DB, store storage.ObjectStore, orch *ocr.Orchestrator) *Facade {
	return &Facade{db: conn, store: store, orch: orch}
}

// SubmitRequest registers one uploaded blob for extraction.
type SubmitRequest struct {
	OwnerID   uint64
	FileName  string
	MediaType string
	PageCount int // Optional; estimated for PDFs when omitted.
	Data      []byte
}

// SubmitResult reports the registered document and its structural
// extraction outcome.
type SubmitResult struct {
	DocumentID     string `json:"document_id"`
	StorageKey     string `json:"storage_key"`
	MediaType      string `json:"media_type"`
	PageCount      int    `json:"page_count"`
	ExtractionKind string `json:"extraction_kind"`
	Content        string `json:"content"`
	OCRStatus      string `json:"ocr_status"`
	SizeBytes      int64  `json:"size_bytes"`
}

// SubmitForExtraction stores the raw blob, runs the structural extractor
// and persists the resulting document record.
//
// EPUB parse failures degrade to the pending placeholder instead of
// failing the submission; only unsupported media types are rejected.
func (f *Facade) SubmitForExtraction(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.OwnerID == 0 {
		return nil, &ValidationError{Field: "owner_id", Reason: "required"}
	}
	if len(req.Data) == 0 {
		return nil, &ValidationError{Field: "data", Reason: "empty upload"}
	}
	if req.MediaType == "" {
		return nil, &ValidationError{Field: "media_type", Reason: "required"}
	}

	format := sniff.Classify(req.MediaType)
	if format == sniff.FormatUnsupported {
		return nil, &ValidationError{Field: "media_type", Reason: fmt.Sprintf("unsupported media type %q", req.MediaType)}
	}

	publicID := uuid.NewString()
	storageKey := fmt.Sprintf("tenants/%d/%s", req.OwnerID, publicID)
	errPut := f.store.Put(ctx, storageKey, req.Data, req.MediaType, map[string]string{
		"owner_id":  fmt.Sprintf("%d", req.OwnerID),
		"file_name": req.FileName,
	})
	if errPut != nil {
		return nil, fmt.Errorf("%w: %v", ocr.ErrStorageUnavailable, errPut)
	}

	pageCount := req.PageCount
	if pageCount <= 0 {
		if format == sniff.FormatPDF {
			pageCount = pdfinfo.PageCount(req.Data)
		} else {
			pageCount = 1
		}
	}

	content, errExtract := extract.Extract(req.MediaType, req.Data)
	if errExtract != nil {
		// Structural failure never aborts ingestion; the document gets
		// the placeholder and OCR remains available.
		log.WithField("document", publicID).WithError(errExtract).
			Warn("ingest: structural extraction degraded to placeholder")
		content = extract.PendingPlaceholder
	}

	doc := &models.Document{
		PublicID:       publicID,
		OwnerID:        req.OwnerID,
		StorageKey:     storageKey,
		MediaType:      req.MediaType,
		PageCount:      pageCount,
		FileName:       req.FileName,
		SizeBytes:      int64(len(req.Data)),
		Content:        &content,
		ExtractionKind: models.ExtractionStructural,
		OCRStatus:      models.OCRStatusNone,
	}
	if errCreate := f.db.WithContext(ctx).Create(doc).Error; errCreate != nil {
		return nil, fmt.Errorf("persist document: %w", errCreate)
	}

	return &SubmitResult{
		DocumentID:     doc.PublicID,
		StorageKey:     doc.StorageKey,
		MediaType:      doc.MediaType,
		PageCount:      doc.PageCount,
		ExtractionKind: doc.ExtractionKind,
		Content:        content,
		OCRStatus:      doc.OCRStatus,
		SizeBytes:      doc.SizeBytes,
	}, nil
}

// RequestOCR validates arguments and delegates to the orchestrator. A
// missing page count falls back to the count recorded at registration.
func (f *Facade) RequestOCR(ctx context.Context, req ocr.Request) (*ocr.Response, error) {
	if req.OwnerID == 0 {
		return nil, &ValidationError{Field: "owner_id", Reason: "required"}
	}
	if req.DocumentID == "" {
		return nil, &ValidationError{Field: "document_id", Reason: "required"}
	}

	if req.PageCount <= 0 {
		var doc models.Document
		errDoc := f.db.WithContext(ctx).
			Select("page_count").
			Where("public_id = ? AND owner_id = ?", req.DocumentID, req.OwnerID).
			First(&doc).Error
		if errDoc != nil {
			if errors.Is(errDoc, gorm.ErrRecordNotFound) {
				return nil, ocr.ErrNotFound
			}
			return nil, errDoc
		}
		if doc.PageCount <= 0 {
			return nil, &ValidationError{Field: "page_count", Reason: "must be positive"}
		}
		req.PageCount = doc.PageCount
	}

	return f.orch.RequestOCR(ctx, req)
}

// QueryStatus validates arguments and delegates to the orchestrator.
func (f *Facade) QueryStatus(ctx context.Context, documentID string, ownerID uint64) (*ocr.Status, error) {
	if ownerID == 0 {
		return nil, &ValidationError{Field: "owner_id", Reason: "required"}
	}
	if documentID == "" {
		return nil, &ValidationError{Field: "document_id", Reason: "required"}
	}
	return f.orch.QueryStatus(ctx, documentID, ownerID)
}
