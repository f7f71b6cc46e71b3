// Package extract recovers text from uploaded blobs without calling an
// external model: plain text passthrough and a structural EPUB parse.
// PDF text extraction is handled elsewhere; PDFs yield a placeholder here.
package extract

import (
	"fmt"
	"strings"

	"github.com/pagemark/ingest/internal/sniff"
)

// PendingPlaceholder marks content whose text extraction is deferred. The
// ingestion flow stores it instead of failing when structural extraction
// cannot produce text.
const PendingPlaceholder = "[text extraction pending]"

// Extract dispatches on the classified format and returns recovered text.
func Extract(mediaType string, raw []byte) (string, error) {
	switch sniff.Classify(mediaType) {
	case sniff.FormatText:
		return extractPlainText(raw), nil
	case sniff.FormatPDF:
		return PendingPlaceholder, nil
	case sniff.FormatEPUB:
		return extractEPUB(raw)
	default:
		return "", fmt.Errorf("extract: unsupported media type %q", mediaType)
	}
}

// extractPlainText decodes bytes as UTF-8 leniently: invalid sequences are
// replaced rather than rejected, and a leading BOM is dropped.
func extractPlainText(raw []byte) string {
	text := strings.ToValidUTF8(string(raw), "�")
	return strings.TrimPrefix(text, "\uFEFF")
}
