package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach-engine/internal/campaign"
	"github.com/ignite/outreach-engine/internal/config"
	"github.com/ignite/outreach-engine/internal/message"
	"github.com/ignite/outreach-engine/internal/pkg/logger"
	"github.com/ignite/outreach-engine/internal/transport"
	"github.com/ignite/outreach-engine/internal/worker"

	_ "github.com/lib/pq"
)

func main() {
	log.Println("Starting Outreach Engine...")

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.RedactPII)

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Minute)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelPing()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Invalid redis URL: %v", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		log.Fatalf("Failed to ping redis: %v", err)
	}
	log.Println("Connected to redis")

	store := campaign.NewStore(db)
	limiter := worker.NewRateLimiter(redisClient)
	recorder := worker.NewLaunchRecorder(store, cfg.Engine.SystemicErrorThreshold)

	collaborator := transport.NewClient(cfg.Transport.BaseURL, cfg.Transport.APIKey, cfg.Transport.MaxRetries)
	dispatcher := worker.NewDispatcher(collaborator, collaborator, message.NewRenderer(), cfg.Engine.DispatchTimeout())
	log.Printf("Dispatcher wired to collaborator at %s", cfg.Transport.BaseURL)

	engine := worker.NewEngine(db, store, limiter, dispatcher, recorder, worker.AccountWorkerOptions{
		PollInterval: cfg.Engine.PollInterval(),
		ClaimBatch:   cfg.Engine.ClaimBatchSize,
		RetryCeiling: cfg.Engine.RetryCeiling,
	}, cfg.Engine.AccountRescan())
	engine.SetRedisClient(redisClient)

	if err := engine.Start(); err != nil {
		log.Fatalf("Failed to start engine: %v", err)
	}

	maintCtx, cancelMaint := context.WithCancel(context.Background())
	maintenance := worker.NewMaintenanceWorker(db)
	go maintenance.Start(maintCtx)

	log.Println("Engine running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down engine...")
	cancelMaint()
	engine.Stop()
	log.Println("Engine stopped")
}
