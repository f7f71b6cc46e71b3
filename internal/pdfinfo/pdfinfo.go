// Package pdfinfo estimates page counts for uploaded PDF blobs.
package pdfinfo

import (
	"bytes"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	log "github.com/sirupsen/logrus"
)

// bytesPerPageEstimate drives the size heuristic when the PDF cannot be
// parsed. Scanned PDFs average roughly this many bytes per page.
const bytesPerPageEstimate = 50 * 1024

// maxEstimatedPages caps the heuristic so a corrupt giant blob does not
// produce an absurd declared page count.
const maxEstimatedPages = 5000

// PageCount returns the page count of a PDF blob. Unparseable input falls
// back to a size-based estimate, so the result is always at least 1.
func PageCount(raw []byte) int {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	count, errCount := api.PageCount(bytes.NewReader(raw), conf)
	if errCount == nil && count > 0 {
		return count
	}
	if errCount != nil {
		log.WithError(errCount).Debug("pdfinfo: parse failed, using size heuristic")
	}
	return EstimateBySize(int64(len(raw)))
}

// EstimateBySize guesses a page count from blob size alone.
func EstimateBySize(sizeBytes int64) int {
	pages := int(sizeBytes / bytesPerPageEstimate)
	if pages < 1 {
		return 1
	}
	if pages > maxEstimatedPages {
		return maxEstimatedPages
	}
	return pages
}
