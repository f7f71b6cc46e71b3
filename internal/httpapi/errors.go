package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pagemark/ingest/internal/ingest"
	"github.com/pagemark/ingest/internal/ocr"
	"github.com/pagemark/ingest/internal/quota"
	log "github.com/sirupsen/logrus"
)

// writeError translates internal error kinds into HTTP responses. Every
// response carries enough structured data for a client to render an
// actionable message without string-parsing.
func writeError(c *gin.Context, err error) {
	var valErr *ingest.ValidationError
	if errors.As(err, &valErr) {
		c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Error(), "field": valErr.Field})
		return
	}

	var quotaErr *quota.QuotaExceededError
	if errors.As(err, &quotaErr) {
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":      quotaErr.Error(),
			"reason":     quotaErr.Reason,
			"current":    quotaErr.CurrentCount,
			"limit":      quotaErr.Limit,
			"page_count": quotaErr.PageCount,
			"page_limit": quotaErr.PageLimit,
		})
		return
	}

	var creditsErr *quota.InsufficientCreditsError
	if errors.As(err, &creditsErr) {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"error":     creditsErr.Error(),
			"required":  creditsErr.Required,
			"available": creditsErr.Available,
		})
		return
	}

	var providerErr *ocr.ProviderFailureError
	if errors.As(err, &providerErr) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":     "ocr provider failure",
			"can_retry": providerErr.CanRetry,
		})
		return
	}

	switch {
	case errors.Is(err, ocr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
	case errors.Is(err, ocr.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "ocr already in progress for this document"})
	case errors.Is(err, ocr.ErrStorageUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "object storage unavailable"})
	default:
		log.WithError(err).Error("httpapi: unexpected failure")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
