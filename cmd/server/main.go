package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/griphq/retention-engine/internal/api"
	"github.com/griphq/retention-engine/internal/config"
	"github.com/griphq/retention-engine/internal/pkg/distlock"
	"github.com/griphq/retention-engine/internal/pkg/logger"
	"github.com/griphq/retention-engine/internal/repository/postgres"
	"github.com/griphq/retention-engine/internal/service/enrollment"
	"github.com/griphq/retention-engine/internal/service/outreach"
	"github.com/griphq/retention-engine/internal/transport"
	"github.com/griphq/retention-engine/internal/whop"
	"github.com/griphq/retention-engine/internal/worker"
)

func main() {
	log.Println("Starting Grip retention server...")

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	logger.SetRedactPII(cfg.Logging.RedactPII)

	db, err := openDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	// Repositories
	memberRepo := postgres.NewMemberRepo(db)
	communityRepo := postgres.NewCommunityRepo(db)
	riskRepo := postgres.NewRiskRepo(db)
	outreachRepo := postgres.NewOutreachRepo(db)
	playbookRepo := postgres.NewPlaybookRepo(db)
	enrollmentRepo := postgres.NewEnrollmentRepo(db)
	stepRepo := postgres.NewStepRepo(db)

	// Outreach pipeline
	var sender outreach.Transport
	if cfg.SES.Enabled {
		sesSender, err := transport.NewSESSender(context.Background(),
			cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region,
			cfg.SES.FromEmail, cfg.SES.FromName)
		if err != nil {
			log.Fatalf("Failed to initialize SES: %v", err)
		}
		sender = sesSender
	} else {
		sender = transport.NoopSender{}
		log.Println("SES disabled, outreach sends are no-ops")
	}
	dispatcher := outreach.NewDispatcher(sender, outreachRepo)
	renderer := outreach.NewRenderer()

	// Services and on-demand runners
	enrollService := enrollment.NewService(enrollmentRepo)
	whopClient := whop.NewClient(cfg.Whop.BaseURL, cfg.Whop.APIKey, cfg.Whop.Timeout())

	stepExecutor := worker.NewStepExecutor(stepRepo, dispatcher, nil,
		cfg.Workers.StepInterval(), cfg.Workers.StepBatchSize)
	riskRecalc := worker.NewRiskRecalculator(riskStore{communityRepo, memberRepo, riskRepo},
		lockFor(redisClient, db, "lock:risk-recalc"), cfg.Workers.RiskInterval())
	memberSync := worker.NewMemberSyncer(whopClient, syncStore{communityRepo, memberRepo},
		lockFor(redisClient, db, "lock:member-sync"), cfg.Workers.SyncInterval())

	handlers := api.NewHandlers(
		memberRepo, communityRepo, riskRepo, outreachRepo, playbookRepo,
		enrollService, stepExecutor, riskRecalc, memberSync,
		dispatcher, renderer,
	)
	server := api.NewServer(cfg.Server, handlers)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	go func() {
		log.Printf("API listening on %s", addr)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Println("Server stopped")
}

func openDB(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

func lockFor(redisClient *redis.Client, db *sql.DB, key string) distlock.Lock {
	if redisClient != nil {
		return distlock.New(redisClient, db, key, 10*time.Minute)
	}
	return distlock.NewAdvisoryLock(db, key)
}

// riskStore composes the repositories into the risk sweep's store surface.
type riskStore struct {
	*postgres.CommunityRepo
	*postgres.MemberRepo
	*postgres.RiskRepo
}

// syncStore composes the repositories into the membership sync's store surface.
type syncStore struct {
	*postgres.CommunityRepo
	*postgres.MemberRepo
}
