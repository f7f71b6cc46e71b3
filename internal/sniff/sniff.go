// Package sniff classifies declared media types into the formats the
// ingestion pipeline knows how to handle.
package sniff

import "strings"

// Format is the pipeline-level classification of an uploaded blob.
type Format string

// Recognized formats.
const (
	FormatText        Format = "text"
	FormatPDF         Format = "pdf"
	FormatEPUB        Format = "epub"
	FormatUnsupported Format = "unsupported"
)

// Classify maps a declared media type to a pipeline format. Unknown or
// unlisted media types classify as unsupported; no error path exists.
func Classify(declaredMediaType string) Format {
	mediaType := strings.ToLower(strings.TrimSpace(declaredMediaType))
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = strings.TrimSpace(mediaType[:idx])
	}

	switch mediaType {
	case "application/pdf":
		return FormatPDF
	case "application/epub+zip":
		return FormatEPUB
	}
	if mediaType == "text/plain" || strings.HasPrefix(mediaType, "text/") {
		return FormatText
	}
	return FormatUnsupported
}
