package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/batch-enrollment-api/api/swagger"
	"github.com/noah-isme/batch-enrollment-api/internal/handler"
	"github.com/noah-isme/batch-enrollment-api/internal/middleware"
	"github.com/noah-isme/batch-enrollment-api/internal/repository"
	"github.com/noah-isme/batch-enrollment-api/internal/service"
	"github.com/noah-isme/batch-enrollment-api/pkg/cache"
	"github.com/noah-isme/batch-enrollment-api/pkg/config"
	"github.com/noah-isme/batch-enrollment-api/pkg/database"
	"github.com/noah-isme/batch-enrollment-api/pkg/jobs"
	"github.com/noah-isme/batch-enrollment-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/batch-enrollment-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/batch-enrollment-api/pkg/middleware/requestid"
)

// @title Batch Enrollment API
// @version 1.0.0
// @description Batch capacity, enrollment approvals and reconciled public section documents.
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	metrics := service.NewMetricsService()
	cacheStore, closeCache := newCacheStore(cfg, logr)
	defer closeCache()
	cacheSvc := service.NewCacheService(cacheStore, metrics, cfg.Cache.DefaultTTL, logr, cfg.Cache.Enabled)

	validate := validator.New()
	batchRepo := repository.NewBatchRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	sectionRepo := repository.NewSectionRepository(db)
	displayItemRepo := repository.NewDisplayItemRepository(db)

	reconciler := service.NewReconcilerService(sectionRepo, batchRepo, displayItemRepo, cacheSvc, metrics, validate, logr)
	queue := jobs.NewQueue("section-reconcile", service.ReconcileJobHandler(reconciler), jobs.QueueConfig{
		Workers:    cfg.Reconcile.Workers,
		BufferSize: cfg.Reconcile.BufferSize,
		Logger:     logr,
	})
	// Workers outlive the signal context so buffered rebuilds drain during shutdown.
	queue.Start(context.Background())
	dispatcher := service.NewQueueReconcileDispatcher(queue, logr)

	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, batchRepo, dispatcher, metrics, validate, logr)
	batchSvc := service.NewBatchService(batchRepo, enrollmentRepo, dispatcher, validate, logr)
	displayItemSvc := service.NewDisplayItemService(displayItemRepo, reconciler, validate, logr)
	sectionSvc := service.NewSectionService(sectionRepo, cacheSvc, logr)
	exportSvc := service.NewExportService(batchRepo, enrollmentRepo, logr, nil, nil)

	if cfg.Reconcile.OnStartup {
		startupReconcile(ctx, reconciler, logr)
	}

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, func(ctx context.Context) error {
		return database.Ping(ctx, db)
	})
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	responseCache := middleware.ResponseCache(cacheSvc, middleware.CacheTTL{
		Default:  cfg.Cache.DefaultTTL,
		Sections: cfg.Cache.SectionTTL,
	}, logr)

	registerRoutes(r.Group(cfg.APIPrefix), routeDeps{
		enrollments:  handler.NewEnrollmentHandler(enrollmentSvc),
		batches:      handler.NewBatchHandler(batchSvc, exportSvc),
		sections:     handler.NewSectionHandler(sectionSvc, reconciler),
		displayItems: handler.NewDisplayItemHandler(displayItemSvc),
		cache:        handler.NewCacheHandler(cacheSvc),
		metrics:      metricsHandler,
		responses:    responseCache,
		audit:        middleware.Audit(logr),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("http shutdown failed", zap.Error(err))
	}
	if err := queue.Stop(shutdownCtx); err != nil {
		logr.Warn("reconcile queue did not drain", zap.Error(err))
	}
}

type routeDeps struct {
	enrollments  *handler.EnrollmentHandler
	batches      *handler.BatchHandler
	sections     *handler.SectionHandler
	displayItems *handler.DisplayItemHandler
	cache        *handler.CacheHandler
	metrics      *handler.MetricsHandler
	responses    gin.HandlerFunc
	audit        gin.HandlerFunc
}

func registerRoutes(api *gin.RouterGroup, d routeDeps) {
	public := api.Group("", d.responses)
	for _, register := range []func(string, ...gin.HandlerFunc) gin.IRoutes{public.GET, public.HEAD} {
		register("/sections", d.sections.List)
		register("/sections/:name", d.sections.Get)
		register("/batches", d.batches.ListPublic)
	}

	api.POST("/enrollment-requests", d.enrollments.Create)

	admin := api.Group("/admin", d.audit)
	admin.GET("/enrollment-requests", d.enrollments.List)
	admin.GET("/enrollment-requests/:id", d.enrollments.Get)
	admin.PATCH("/enrollment-requests/:id/status", d.enrollments.SetStatus)
	admin.PUT("/enrollment-requests/:id", d.enrollments.Update)
	admin.DELETE("/enrollment-requests/:id", d.enrollments.Delete)

	admin.GET("/batches", d.batches.List)
	admin.POST("/batches", d.batches.Create)
	admin.GET("/batches/:id", d.batches.Get)
	admin.PUT("/batches/:id", d.batches.Update)
	admin.DELETE("/batches/:id", d.batches.Delete)
	admin.GET("/batches/:id/roster", d.batches.Roster)

	admin.GET("/display-items", d.displayItems.List)
	admin.POST("/display-items", d.displayItems.Create)
	admin.PUT("/display-items/:id", d.displayItems.Update)
	admin.DELETE("/display-items/:id", d.displayItems.Delete)

	admin.POST("/sections/:name/reconcile", d.sections.Reconcile)
	admin.PATCH("/sections/:name/records/:recordId", d.sections.UpdateRecord)
	admin.PUT("/sections/:name", d.sections.Put)

	admin.DELETE("/cache", d.cache.Invalidate)
	admin.GET("/metrics", d.metrics.Summary)
}

// newCacheStore picks the response cache backend. A Redis outage at boot falls
// back to the in-process store rather than refusing to start.
func newCacheStore(cfg *config.Config, logr *zap.Logger) (service.CacheRepository, func()) {
	if cfg.Cache.Backend != config.CacheBackendRedis {
		return cache.NewMemoryStore(), func() {}
	}
	client, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, using in-memory response cache", zap.Error(err))
		return cache.NewMemoryStore(), func() {}
	}
	repo := repository.NewCacheRepository(client, logr)
	return repo, func() {
		if err := repo.Close(); err != nil {
			logr.Warn("redis close failed", zap.Error(err))
		}
	}
}

type startupReconciler interface {
	SeedCarousel(ctx context.Context) (int, error)
	ReconcileAll(ctx context.Context) error
}

func startupReconcile(ctx context.Context, reconciler startupReconciler, logr *zap.Logger) {
	seeded, err := reconciler.SeedCarousel(ctx)
	if err != nil {
		logr.Warn("carousel seed failed", zap.Error(err))
	} else if seeded > 0 {
		logr.Info("carousel seeded from stored section", zap.Int("items", seeded))
	}
	if err := reconciler.ReconcileAll(ctx); err != nil {
		logr.Warn("startup reconcile incomplete", zap.Error(err))
	}
}
