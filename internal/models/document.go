package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// OCR status values for a document.
const (
	// OCRStatusNone means no OCR has been requested.
	OCRStatusNone = "none"
	// OCRStatusProcessing means an OCR request is in flight.
	OCRStatusProcessing = "processing"
	// OCRStatusCompleted means OCR finished and content is available.
	OCRStatusCompleted = "completed"
	// OCRStatusFailed means the last OCR attempt failed.
	OCRStatusFailed = "failed"
)

// Extraction kinds recorded on a document.
const (
	// ExtractionStructural marks content recovered by the local parser.
	ExtractionStructural = "structural"
	// ExtractionOCR marks content produced by an OCR provider.
	ExtractionOCR = "ocr"
)

// Document is a registered upload and its extraction state.
type Document struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	PublicID string `gorm:"type:text;not null;uniqueIndex"` // Opaque external identifier.
	OwnerID  uint64 `gorm:"not null;index"`                 // Owning tenant ID.

	StorageKey string `gorm:"type:text;not null"`     // Object store key for the raw bytes.
	MediaType  string `gorm:"type:text;not null"`     // Declared media type.
	PageCount  int    `gorm:"not null;default:0"`     // Known or estimated page count.
	FileName   string `gorm:"type:text"`              // Original file name, when provided.
	SizeBytes  int64  `gorm:"not null;default:0"`     // Raw blob size.

	Content        *string `gorm:"type:text"` // Extracted text, nil until extraction completes.
	ExtractionKind string  `gorm:"type:text"` // structural or ocr, empty before extraction.

	OCRStatus   string         `gorm:"type:text;not null;default:'none';index"` // OCR state machine value.
	OCRMetadata datatypes.JSON `gorm:"type:jsonb"`                              // Free-form OCR metadata payload.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}

// TableName overrides the default table name.
func (Document) TableName() string {
	return "documents"
}

// OCRMetadata is the payload stored in Document.OCRMetadata.
type OCRMetadata struct {
	Provider         string     `json:"provider,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	FailedAt         *time.Time `json:"failed_at,omitempty"`
	DeclaredPages    int        `json:"declared_pages,omitempty"`
	PagesProcessed   int        `json:"pages_processed,omitempty"`
	TokensUsed       int64      `json:"tokens_used,omitempty"`
	ProcessingTimeMs int64      `json:"processing_time_ms,omitempty"`
	Confidence       float64    `json:"confidence,omitempty"`
	LastError        string     `json:"last_error,omitempty"`
	CanRetry         bool       `json:"can_retry,omitempty"`
}

// JSON serializes the metadata for storage.
func (m OCRMetadata) JSON() datatypes.JSON {
	payload, errMarshal := json.Marshal(m)
	if errMarshal != nil {
		return datatypes.JSON("{}")
	}
	return datatypes.JSON(payload)
}

// DecodeOCRMetadata parses a stored metadata payload.
func DecodeOCRMetadata(raw datatypes.JSON) OCRMetadata {
	var meta OCRMetadata
	if len(raw) == 0 {
		return meta
	}
	_ = json.Unmarshal(raw, &meta)
	return meta
}
