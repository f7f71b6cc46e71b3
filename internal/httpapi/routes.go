// Package httpapi exposes the ingestion pipeline over HTTP.
package httpapi

import (
	"github.com/gin-gonic/gin"
	"github.com/pagemark/ingest/internal/config"
	"github.com/pagemark/ingest/internal/ingest"
	"github.com/pagemark/ingest/internal/quota"
	"github.com/pagemark/ingest/internal/usage"
	"gorm.io/gorm"
)

// RegisterRoutes mounts the public health endpoint and the authenticated
// v0 API onto the engine.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, facade *ingest.Facade, ledger *quota.Ledger, reporter *usage.Reporter, authCfg config.AuthConfig) {
	if r == nil || db == nil {
		return
	}

	healthHandler := NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	v0 := r.Group("/v0")
	v0.Use(ownerAuthMiddleware(authCfg.JWTSecret, authCfg.ServiceKeys))

	docHandler := NewDocumentHandler(facade)
	v0.POST("/documents", docHandler.Submit)
	v0.POST("/documents/:id/ocr", docHandler.RequestOCR)
	v0.GET("/documents/:id/ocr", docHandler.Status)

	quotaHandler := NewQuotaHandler(ledger)
	v0.GET("/quota", quotaHandler.Get)

	usageHandler := NewUsageHandler(reporter)
	v0.GET("/usage", usageHandler.List)
}
