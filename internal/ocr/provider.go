// Package ocr drives metered text extraction through external vision
// providers: quota checks, the document state machine, provider fallback
// and the charge-on-success ledger commit.
package ocr

import "context"

// Options tunes a provider call.
type Options struct {
	// Language hints the expected document language, e.g. "en".
	Language string
}

// Result is a successful provider extraction.
type Result struct {
	Text             string
	PageTexts        []string
	TokensUsed       int64
	ProcessingTimeMs int64
	Confidence       float64
	PagesProcessed   int
}

// Provider extracts text from raw document bytes via an external model.
type Provider interface {
	// Name identifies the provider in logs and metadata.
	Name() string
	// Extract runs OCR over the blob. Implementations must honor ctx
	// cancellation; callers bound every invocation with a timeout.
	Extract(ctx context.Context, raw []byte, mediaType string, pageCount int, opts Options) (*Result, error)
}
