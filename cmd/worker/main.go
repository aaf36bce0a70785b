package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

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
	log.Println("Starting Grip retention worker...")

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

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
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

	memberRepo := postgres.NewMemberRepo(db)
	communityRepo := postgres.NewCommunityRepo(db)
	riskRepo := postgres.NewRiskRepo(db)
	outreachRepo := postgres.NewOutreachRepo(db)
	stepRepo := postgres.NewStepRepo(db)
	playbookRepo := postgres.NewPlaybookRepo(db)
	enrollmentRepo := postgres.NewEnrollmentRepo(db)

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

	whopClient := whop.NewClient(cfg.Whop.BaseURL, cfg.Whop.APIKey, cfg.Whop.Timeout())

	stepExecutor := worker.NewStepExecutor(stepRepo, dispatcher,
		lockFor(redisClient, db, "lock:step-executor"),
		cfg.Workers.StepInterval(), cfg.Workers.StepBatchSize)
	riskRecalc := worker.NewRiskRecalculator(
		riskStore{communityRepo, memberRepo, riskRepo},
		lockFor(redisClient, db, "lock:risk-recalc"),
		cfg.Workers.RiskInterval())
	memberSync := worker.NewMemberSyncer(whopClient,
		syncStore{communityRepo, memberRepo},
		lockFor(redisClient, db, "lock:member-sync"),
		cfg.Workers.SyncInterval())
	autoEnroller := worker.NewAutoEnroller(
		autoEnrollStore{communityRepo, memberRepo, riskRepo, playbookRepo},
		enrollment.NewService(enrollmentRepo),
		lockFor(redisClient, db, "lock:auto-enroll"),
		cfg.Workers.EnrollInterval())
	dailyDigest := worker.NewDailyDigest(
		digestStore{communityRepo, riskRepo},
		sender,
		lockFor(redisClient, db, "lock:daily-digest"),
		cfg.SES.DigestEmail,
		cfg.Workers.DigestInterval())

	stepExecutor.Start()
	riskRecalc.Start()
	memberSync.Start()
	autoEnroller.Start()
	dailyDigest.Start()
	log.Println("Workers running...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down workers...")
	stepExecutor.Stop()
	riskRecalc.Stop()
	memberSync.Stop()
	autoEnroller.Stop()
	dailyDigest.Stop()
	log.Println("Workers stopped")
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

// autoEnrollStore composes the repositories into the auto-enrollment sweep's
// store surface.
type autoEnrollStore struct {
	*postgres.CommunityRepo
	*postgres.MemberRepo
	*postgres.RiskRepo
	*postgres.PlaybookRepo
}

// digestStore composes the repositories into the daily digest's store surface.
type digestStore struct {
	*postgres.CommunityRepo
	*postgres.RiskRepo
}
