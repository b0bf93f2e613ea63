package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"kkn/internal/api"
	"kkn/internal/approval"
	"kkn/internal/attendance"
	"kkn/internal/auth"
	"kkn/internal/cloudinary"
	"kkn/internal/config"
	"kkn/internal/httpmiddleware"
	"kkn/internal/queue"
	"kkn/internal/roster"
	"kkn/internal/store"
	"kkn/internal/summary"
	"kkn/internal/worker"
)

func main() {
	cfg := config.Load()
	log := cfg.SetupLogging()

	if err := cfg.ValidateAuth(); err != nil {
		log.WithError(err).Fatal("refusing to start")
	}
	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, log); err != nil {
		log.WithError(err).Fatal("http server failed")
	}
}

func runHTTP(cfg config.App, log *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
	}

	var redisClient *store.Redis
	if cfg.QueueBackend != "memory" || cfg.SummaryCacheTTL > 0 {
		redisClient, err = store.NewRedis(cfg.RedisAddr)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)
	}

	var cache summary.Cache = summary.NopCache{}
	if cfg.SummaryCacheTTL > 0 {
		cache = summary.NewRedisCache(redisClient.Client, cfg.SummaryCacheTTL)
		log.WithField("ttl", cfg.SummaryCacheTTL.String()).Info("summary cache enabled")
	}

	rosters := roster.NewRepository(db)
	authz := auth.NewAuthorizer(cfg.AdminEmails, rosters)
	records := attendance.NewRepository(db)
	att := attendance.NewService(records, rosters, authz, cache, q)
	ledger := approval.NewLedger(approval.NewRepository(db), rosters, authz, cache, q)
	summaries := summary.NewAggregator(rosters, records, ledger, cache)

	if cfg.QueueBackend == "memory" {
		// nothing else drains an in-process queue
		go func() {
			if err := worker.New(ledger).Run(ctx, q); err != nil {
				log.WithError(err).Error("in-process worker stopped")
			}
		}()
	}

	var uploader api.Uploader
	if cfg.CloudinaryEnabled() {
		uploader = cloudinary.New(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		log.WithField("cloud", cfg.CloudinaryCloudName).Info("cloudinary configured")
	} else {
		log.Info("cloudinary not configured, proof uploads disabled")
	}

	handler := api.New(api.Deps{
		Attendance: att,
		Ledger:     ledger,
		Summaries:  summaries,
		Teams:      rosters,
		Authz:      authz,
		Uploader:   uploader,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(log, "/healthz", "/metrics"))
	r.Use(cors.New(corsConfig(cfg.CORSOrigins)))
	r.Use(httpmiddleware.SecurityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		redisHealthy := redisClient == nil || redisClient.Healthy(c.Request.Context())
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	v1 := r.Group("/v1",
		auth.RequireUser(cfg.JWTSigningKey, cfg.JWTIssuer),
		httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware(),
	)
	handler.Register(v1)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.HTTPPort).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server forced shutdown")
	}
	log.Info("server exited")
	return nil
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        24 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
