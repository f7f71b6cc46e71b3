package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pagemark/ingest/internal/ingest"
	"github.com/pagemark/ingest/internal/ocr"
	"github.com/pagemark/ingest/internal/quota"
	"github.com/pagemark/ingest/internal/usage"
	"gorm.io/gorm"
)

// maxUploadBytes caps a single document upload.
const maxUploadBytes = 50 << 20

// DocumentHandler serves document registration, OCR and status endpoints.
type DocumentHandler struct {
	facade *ingest.Facade
}

// NewDocumentHandler constructs a DocumentHandler.
func NewDocumentHandler(facade *ingest.Facade) *DocumentHandler {
	return &DocumentHandler{facade: facade}
}

// Submit registers an uploaded blob and runs structural extraction.
func (h *DocumentHandler) Submit(c *gin.Context) {
	ownerID, ok := ownerIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	file, header, errFile := c.Request.FormFile("file")
	if errFile != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	defer file.Close()

	data, errRead := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if errRead != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable upload"})
		return
	}
	if len(data) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "upload exceeds size limit"})
		return
	}

	mediaType := c.PostForm("media_type")
	if mediaType == "" && header != nil {
		mediaType = header.Header.Get("Content-Type")
	}
	pageCount, _ := strconv.Atoi(c.PostForm("page_count"))

	fileName := ""
	if header != nil {
		fileName = header.Filename
	}

	result, errSubmit := h.facade.SubmitForExtraction(c.Request.Context(), ingest.SubmitRequest{
		OwnerID:   ownerID,
		FileName:  fileName,
		MediaType: mediaType,
		PageCount: pageCount,
		Data:      data,
	})
	if errSubmit != nil {
		writeError(c, errSubmit)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// requestOCRBody captures the payload for an OCR request.
type requestOCRBody struct {
	StorageKey string `json:"storage_key"` // Optional consistency check.
	PageCount  int    `json:"page_count"`  // Optional; defaults to the registered count.
	Language   string `json:"language"`    // Optional language hint.
}

// RequestOCR runs one metered OCR attempt for a document.
func (h *DocumentHandler) RequestOCR(c *gin.Context) {
	ownerID, ok := ownerIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	var body requestOCRBody
	if c.Request.ContentLength > 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}

	resp, errOCR := h.facade.RequestOCR(c.Request.Context(), ocr.Request{
		DocumentID: c.Param("id"),
		OwnerID:    ownerID,
		StorageKey: body.StorageKey,
		PageCount:  body.PageCount,
		Options:    ocr.Options{Language: body.Language},
	})
	if errOCR != nil {
		writeError(c, errOCR)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"text":              resp.Text,
		"page_texts":        resp.PageTexts,
		"credits_charged":   resp.CreditsCharged,
		"credits_remaining": resp.CreditsRemaining,
		"ocr_count":         resp.OCRCount,
		"ocr_remaining":     resp.OCRRemaining,
		"metadata":          resp.Metadata,
	})
}

// Status reports a document's OCR state.
func (h *DocumentHandler) Status(c *gin.Context) {
	ownerID, ok := ownerIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	status, errStatus := h.facade.QueryStatus(c.Request.Context(), c.Param("id"), ownerID)
	if errStatus != nil {
		writeError(c, errStatus)
		return
	}
	c.JSON(http.StatusOK, status)
}

// QuotaHandler serves the tenant's quota profile.
type QuotaHandler struct {
	ledger *quota.Ledger
}

// NewQuotaHandler constructs a QuotaHandler.
func NewQuotaHandler(ledger *quota.Ledger) *QuotaHandler {
	return &QuotaHandler{ledger: ledger}
}

// Get returns the current tier, balances and remaining figures.
func (h *QuotaHandler) Get(c *gin.Context) {
	ownerID, ok := ownerIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	profile, errProfile := h.ledger.ProfileFor(c.Request.Context(), ownerID)
	if errProfile != nil {
		writeError(c, errProfile)
		return
	}
	if errFresh := h.ledger.EnsureFreshPeriod(c.Request.Context(), profile); errFresh != nil {
		writeError(c, errFresh)
		return
	}

	tier := quota.NormalizeTier(profile.Tier)
	limits := quota.LimitsFor(tier)
	remaining := h.ledger.RemainingFor(profile)
	c.JSON(http.StatusOK, gin.H{
		"tier":              string(tier),
		"credits":           remaining.Credits,
		"ocr_count_monthly": remaining.OCRCount,
		"ocr_remaining":     remaining.OCRRemaining,
		"period_start":      profile.OCRPeriodStart.UTC(),
		"limits": gin.H{
			"monthly_ocr_limit":     limits.MonthlyOCRLimit,
			"max_pages_per_request": limits.MaxPagesPerRequest,
			"credits_per_page":      limits.CreditsPerPage,
			"min_charge":            limits.MinCharge,
		},
	})
}

// UsageHandler serves the tenant's usage ledger.
type UsageHandler struct {
	reporter *usage.Reporter
}

// NewUsageHandler constructs a UsageHandler.
func NewUsageHandler(reporter *usage.Reporter) *UsageHandler {
	return &UsageHandler{reporter: reporter}
}

// List returns usage records plus a 30-day summary.
func (h *UsageHandler) List(c *gin.Context) {
	ownerID, ok := ownerIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	records, total, errList := h.reporter.List(c.Request.Context(), ownerID, limit, offset)
	if errList != nil {
		writeError(c, errList)
		return
	}

	since := time.Now().UTC().AddDate(0, 0, -30)
	summary, errSummary := h.reporter.Summarize(c.Request.Context(), ownerID, since)
	if errSummary != nil {
		writeError(c, errSummary)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"records":      records,
		"total":        total,
		"last_30_days": summary,
	})
}

// HealthHandler serves health check endpoints.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Healthz checks database connectivity and returns status.
func (h *HealthHandler) Healthz(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
		return
	}
	if errPing := sqlDB.PingContext(c.Request.Context()); errPing != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
