package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadengine/internal/audit"
	"leadengine/internal/geo"
	"leadengine/internal/imports"
	"leadengine/internal/leads/dedup"
	"leadengine/internal/leads/handler"
	"leadengine/internal/leads/repository"
	"leadengine/internal/leads/serial"
	"leadengine/internal/leads/service"
	"leadengine/internal/notification/inapp"
	"leadengine/internal/users"
	"leadengine/internal/whatsapp"
	"leadengine/platform/config"
	"leadengine/platform/db"
	"leadengine/platform/httpkit"
	"leadengine/platform/logger"
	"leadengine/platform/validator"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting api", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg, "migrations")
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()
	log.Info("database connection established")

	val := validator.New()

	leadRepo := repository.New(pool)
	userRepo := users.New(pool)
	auditRepo := audit.New(pool)
	geoRepo := geo.New(pool)
	inappRepo := inapp.NewRepository(pool)

	messenger := whatsapp.NewClient(cfg, log)

	var importer *imports.Service
	if cfg.MinioEndpoint != "" {
		importer, err = imports.New(cfg, log)
		if err != nil {
			log.Error("failed to initialize import storage", "error", err)
			panic("failed to initialize import storage: " + err.Error())
		}
		if err := withRetry(ctx, log, "ensure import bucket", 5, 2*time.Second, func() error {
			return importer.EnsureBucket(ctx)
		}); err != nil {
			log.Error("failed to ensure import bucket", "error", err)
			panic("failed to ensure import bucket: " + err.Error())
		}
	} else {
		log.Warn("MINIO_ENDPOINT not configured; CSV import archiving disabled")
	}

	leadSvc := service.New(leadRepo, userRepo, auditRepo, geoRepo, messenger, log)
	dedupJob := dedup.New(leadRepo, userRepo, auditRepo, log)

	backfillLock := newBackfillLock(cfg, log)
	allocator := serial.NewAllocator(leadRepo, auditRepo, backfillLock, log)

	engine := buildRouter(cfg, log, val, leadSvc, leadRepo, importer, dedupJob, allocator, inappRepo, pool)

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- engine.Run(cfg.HTTPAddr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-srvErr:
		if err != nil {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func buildRouter(
	cfg *config.Config,
	log *logger.Logger,
	val *validator.Validator,
	leadSvc *service.Service,
	leadRepo *repository.Repository,
	importer *imports.Service,
	dedupJob *dedup.Job,
	allocator *serial.Allocator,
	inappRepo *inapp.Repository,
	pool *pgxpool.Pool,
) *gin.Engine {
	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestLogger(log))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.GetCORSAllowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	engine.GET("/health", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			httpkit.Error(c, http.StatusServiceUnavailable, "database unreachable", nil)
			return
		}
		httpkit.OK(c, gin.H{"status": "ok"})
	})

	leadHandler := handler.NewLeadHandler(leadSvc, leadRepo, importer, val, log)
	adminHandler := handler.NewAdminHandler(dedupJob, allocator, val, log)
	notifHandler := inapp.NewHandler(inappRepo, log)

	limiter := httpkit.NewIPRateLimiter(rate.Limit(5), 20, log)

	public := engine.Group("/api/v1")
	public.Use(limiter.RateLimit())
	leadHandler.RegisterPublicRoutes(public)

	authed := engine.Group("/api/v1")
	authed.Use(httpkit.AuthRequired(cfg))
	leadHandler.RegisterRoutes(authed)
	notifHandler.RegisterRoutes(authed)

	admin := engine.Group("/api/v1/admin")
	admin.Use(httpkit.AuthRequired(cfg), httpkit.RequireRole(users.RoleAdmin))
	adminHandler.RegisterRoutes(admin)

	return engine
}

// newBackfillLock returns the Redis advisory lock when Redis is configured,
// otherwise an in-process lock good enough for a single instance.
func newBackfillLock(cfg *config.Config, log *logger.Logger) serial.Lock {
	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not configured; using in-process backfill lock")
		return serial.NewLocalLock()
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Warn("invalid REDIS_URL; using in-process backfill lock", "error", err)
		return serial.NewLocalLock()
	}

	return serial.NewRedisLock(redis.NewClient(opt))
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
