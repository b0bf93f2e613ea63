package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"kkn/internal/approval"
	"kkn/internal/attendance"
	"kkn/internal/auth"
	"kkn/internal/config"
	"kkn/internal/queue"
	"kkn/internal/roster"
	"kkn/internal/store"
	"kkn/internal/summary"
	"kkn/internal/worker"
)

// Worker appends approval history from queued decisions, logs recorded
// attendance and posts the weekly pending-review digest.
func main() {
	cfg := config.Load()
	log := cfg.SetupLogging()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("db connect failed")
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := db.Migrate(ctx); err != nil {
			log.WithError(err).Fatal("migrate failed")
		}
	}

	if cfg.QueueBackend == "memory" {
		log.Fatal("QUEUE_BACKEND=memory is served by the api process, the worker needs redis")
	}
	redisClient, err := store.NewRedis(cfg.RedisAddr)
	if err != nil {
		log.WithError(err).Fatal("redis config invalid")
	}
	defer redisClient.Close()
	if !redisClient.Healthy(ctx) {
		log.Warn("redis not reachable yet, consumer will keep retrying")
	}
	q := queue.NewRedisQueue(redisClient.Client, queue.DefaultKey)

	rosters := roster.NewRepository(db)
	authz := auth.NewAuthorizer(cfg.AdminEmails, rosters)
	ledger := approval.NewLedger(approval.NewRepository(db), rosters, authz, nil, nil)
	summaries := summary.NewAggregator(rosters, attendance.NewRepository(db), ledger, nil)

	scheduler := cron.New()
	if err := worker.NewDigest(rosters, summaries).Schedule(ctx, scheduler, cfg.DigestSchedule); err != nil {
		log.WithError(err).WithField("schedule", cfg.DigestSchedule).Fatal("invalid digest schedule")
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	if err := worker.New(ledger).Run(ctx, q); err != nil {
		log.WithError(err).Fatal("queue consume init failed")
	}
}
