package ocr

import (
	"errors"
	"fmt"
)

// Orchestrator error kinds.
var (
	// ErrNotFound covers both absent documents and documents owned by
	// another tenant; callers cannot distinguish the two.
	ErrNotFound = errors.New("document not found")
	// ErrConflict means OCR is already in progress for the document.
	ErrConflict = errors.New("ocr already in progress")
	// ErrStorageUnavailable means the object store could not serve the blob.
	ErrStorageUnavailable = errors.New("object storage unavailable")
	// ErrUnexpected is the catch-all for internal failures after the
	// document entered processing.
	ErrUnexpected = errors.New("unexpected ocr failure")
)

// ProviderFailureError means both the primary and fallback providers
// failed. CanRetry tells the caller whether resubmitting may succeed.
type ProviderFailureError struct {
	Message  string
	CanRetry bool
}

func (e *ProviderFailureError) Error() string {
	return fmt.Sprintf("ocr providers failed: %s", e.Message)
}
