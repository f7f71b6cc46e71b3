// Package app boots the ingestion service: configuration, logging,
// datastore, collaborator clients and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pagemark/ingest/internal/config"
	"github.com/pagemark/ingest/internal/db"
	"github.com/pagemark/ingest/internal/httpapi"
	"github.com/pagemark/ingest/internal/ingest"
	"github.com/pagemark/ingest/internal/ocr"
	"github.com/pagemark/ingest/internal/quota"
	"github.com/pagemark/ingest/internal/statuscache"
	"github.com/pagemark/ingest/internal/storage"
	"github.com/pagemark/ingest/internal/usage"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"
)

// AppConfig holds command-line inputs.
type AppConfig struct {
	ConfigPath string
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, appCfg AppConfig) error {
	cfg, errLoad := config.Load(appCfg.ConfigPath)
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer boots the ingestion API server and blocks until the context
// is cancelled or the listener fails.
func RunServer(ctx context.Context, appCfg AppConfig) error {
	cfg, errLoad := config.Load(appCfg.ConfigPath)
	if errLoad != nil {
		return errLoad
	}
	setupLogging(cfg.Log)

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}

	store, closeStore, errStore := buildObjectStore(ctx, cfg.Storage)
	if errStore != nil {
		return errStore
	}
	defer closeStore()

	var cache *statuscache.Cache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		cache = statuscache.New(rdb, cfg.Redis.StatusTTL)
		log.Infof("status cache enabled at %s", cfg.Redis.Addr)
	}

	primary, fallback, errProviders := buildProviders(ctx, cfg.OCR)
	if errProviders != nil {
		return errProviders
	}

	ledger := quota.NewLedger(conn)
	orch := ocr.NewOrchestrator(conn, ledger, store, primary, fallback, cache)
	orch.SetCallTimeout(cfg.OCR.CallTimeout)
	facade := ingest.NewFacade(conn, store, orch)
	reporter := usage.NewReporter(conn)

	if cleaner := usage.NewRetentionCleaner(conn, cfg.Usage.RetentionDays); cleaner != nil {
		cleaner.Start(ctx)
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())
	httpapi.RegisterRoutes(engine, conn, facade, ledger, reporter, cfg.Auth)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("ingestion api listening on %s", cfg.Server.Addr)
		errServe := srv.ListenAndServe()
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// buildObjectStore selects GCS when a bucket is configured, otherwise an
// in-process store suitable only for development.
func buildObjectStore(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStore, func(), error) {
	if cfg.Bucket == "" {
		log.Warn("no storage bucket configured, using the in-memory object store")
		return storage.NewMemoryStore(), func() {}, nil
	}
	gcs, errGCS := storage.NewGCSStore(ctx, cfg.Bucket)
	if errGCS != nil {
		return nil, nil, fmt.Errorf("open gcs bucket %s: %w", cfg.Bucket, errGCS)
	}
	return gcs, func() {
		if errClose := gcs.Close(); errClose != nil {
			log.WithError(errClose).Warn("closing gcs client")
		}
	}, nil
}

// buildProviders wires the primary OCR provider and its optional fallback.
func buildProviders(ctx context.Context, cfg config.OCRConfig) (ocr.Provider, ocr.Provider, error) {
	var fallback ocr.Provider
	if cfg.Fallback.Endpoint != "" {
		fallback = ocr.NewHTTPProvider("http-ocr", cfg.Fallback.Endpoint, cfg.Fallback.APIKey)
	}

	if cfg.Vertex.Project != "" {
		vertex, errVertex := ocr.NewVertexProvider(ctx, cfg.Vertex.Project, cfg.Vertex.Region, cfg.Vertex.Model)
		if errVertex != nil {
			return nil, nil, fmt.Errorf("init vertex provider: %w", errVertex)
		}
		return vertex, fallback, nil
	}
	if fallback != nil {
		// No Vertex project: promote the HTTP provider to primary.
		return fallback, nil, nil
	}
	return nil, nil, errors.New("no ocr provider configured")
}

func setupLogging(cfg config.LogConfig) {
	level, errLevel := log.ParseLevel(cfg.Level)
	if errLevel != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	}
}

// requestLogger emits one structured line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Info("request")
	}
}
