package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	v1 "mxops/api/v1"
	"mxops/internal/action"
	"mxops/internal/auth"
	"mxops/internal/cache"
	"mxops/internal/config"
	"mxops/internal/db"
	"mxops/internal/mendix"
	"mxops/internal/model"
	"mxops/internal/notify"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
		os.Exit(1)
	}
	log.Println("✓ Configuration loaded")

	// 2. Initialize MySQL
	if err := db.InitMySQL(cfg.MySQL.DSN); err != nil {
		log.Fatalf("Failed to initialize MySQL: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.Migrate {
		if err := db.Migrate(db.DB()); err != nil {
			log.Fatalf("Failed to migrate database: %v", err)
			os.Exit(1)
		}
		log.Println("✓ Database migrated")
	}

	// 3. Initialize Redis
	if err := cache.InitRedis(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
		log.Fatalf("Failed to initialize Redis: %v", err)
		os.Exit(1)
	}
	defer cache.Close()

	// 4. Initialize JWT
	auth.InitJWT(cfg.JWT.Secret)

	logger := logrus.WithField("app", "mxops")

	// 5. Notifier
	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notifier.Enabled {
		notifier = notify.NewWebhook(cfg.Notifier.WebhookURL,
			time.Duration(cfg.Notifier.TimeoutSec)*time.Second, logger)
	}

	// 6. Action worker
	apiTimeout := time.Duration(cfg.Mendix.TimeoutSec) * time.Second
	baseURL := cfg.Mendix.BaseURL
	factory := func(cred *model.MendixCredential) action.PlatformAPI {
		return mendix.NewClient(baseURL, mendix.Credential{
			Username: cred.Username,
			APIKey:   cred.APIKey,
		}, apiTimeout)
	}

	worker := action.NewWorker(&action.WorkerConfig{
		DB:            db.DB(),
		Locks:         cache.NewEnvLock(cache.Client, time.Duration(cfg.ActionWorker.EnvLockSec)*time.Second),
		Notifier:      notifier,
		Logger:        logger,
		ClientFactory: factory,
		IntervalSec:   cfg.ActionWorker.IntervalSec,
		BatchSize:     cfg.ActionWorker.BatchSize,
		BudgetSec:     cfg.ActionWorker.BudgetSec,
		LeaseTTLSec:   cfg.ActionWorker.LeaseTTLSec,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.ActionWorker.Enabled {
		go worker.RunLoop(ctx)
	}

	// 7. Initialize Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// Setup API v1 routes
	v1.SetupRouter(r, db.DB(), cfg, worker)

	log.Printf("✓ Server starting on %s", cfg.HTTPAddr)

	// Start server
	if err := r.Run(cfg.HTTPAddr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
		os.Exit(1)
	}
}
