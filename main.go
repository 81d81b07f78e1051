package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/mongo"

	"egharbari/api/internal/api"
	"egharbari/api/internal/cache"
	"egharbari/api/internal/config"
	"egharbari/api/internal/db"
	"egharbari/api/internal/email"
	"egharbari/api/internal/services"
	"egharbari/api/internal/storage"
	"egharbari/api/internal/tasks"
	"egharbari/api/internal/utils"
)

var runMode = flag.String("m", "all", "Run mode: 'api', 'bg' (background tasks), 'img' (image processing), 'all' (default)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*runMode)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	utils.InitLogger(cfg.AppName, cfg.LogLevel)
	logger := utils.Logger

	mongoClient, mongoDb, err := db.ConnectDB(cfg.MongoURI, cfg.MongoDbName)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.DisconnectDB(mongoClient); err != nil {
			logger.Errorf("Error disconnecting from MongoDB: %v", err)
		}
	}()

	redisClient, err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		if err := cache.DisconnectRedis(redisClient); err != nil {
			logger.Errorf("Error disconnecting from Redis: %v", err)
		}
	}()

	assetStorage, err := storage.NewS3Storage(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize S3 storage: %v", err)
	}

	var primaryEmailSender email.Sender
	if cfg.MockServices {
		logger.Info("MOCK_SERVICES enabled: Using Redis email sender.")
		primaryEmailSender = email.NewRedisSender(redisClient, cfg)
	} else {
		primaryEmailSender = email.NewSMTPSender(cfg)
	}
	emailSender := email.NewCompositeEmailSender(primaryEmailSender)

	views := cache.NewRedisViewDeduper(redisClient, cfg.ViewDedupWindow)
	propertyService := services.NewPropertyService(mongoDb, cfg, views)
	inquiryService := services.NewInquiryService(mongoDb, cfg)
	userService := services.NewUserService(mongoDb, cfg)
	emailTemplateService := services.NewEmailTemplateService(mongoDb)

	if err := bootstrap(cfg, mongoDb, propertyService, userService); err != nil {
		logger.Fatalf("Startup failed: %v", err)
	}

	taskClient := tasks.NewClient(redisClient)
	defer taskClient.Close()

	taskProcessor := tasks.NewTaskProcessor(cfg, emailSender, assetStorage, inquiryService, propertyService, emailTemplateService)

	var wg sync.WaitGroup
	shutdownChan := make(chan struct{}, 1)

	// The service API only exists for end-to-end runs against mocked delivery.
	var serviceSrv *http.Server
	if cfg.MockServices {
		serviceSrv = &http.Server{
			Addr:    ":" + cfg.ServicePort,
			Handler: api.SetupServiceRouter(redisClient, shutdownChan),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Infof("Service API listening on :%s", cfg.ServicePort)
			if err := serviceSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatalf("Service API ListenAndServe error: %v", err)
			}
			logger.Info("Service API server stopped.")
		}()
	}

	var mainApiSrv *http.Server
	var stopRouter func()
	var taskSrv *asynq.Server

	logger.Infof("Starting application in '%s' mode...", cfg.RunMode)

	apiMode := func() {
		var router http.Handler
		router, stopRouter = api.SetupRouter(cfg, mongoDb, redisClient, taskClient, assetStorage)
		mainApiSrv = &http.Server{
			Addr:              ":" + cfg.ApiPort,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Infof("Main API listening on :%s", cfg.ApiPort)
			if err := mainApiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Fatalf("Main API ListenAndServe error: %v", err)
			}
			logger.Info("Main API server stopped.")
		}()
	}

	workerMode := func(isImageWorker, isBgWorker bool) {
		srv, mux := tasks.SetupServer(redisClient, taskProcessor, isImageWorker, isBgWorker)
		if srv == nil {
			return
		}
		if err := srv.Start(mux); err != nil {
			logger.Fatalf("Task server failed to start: %v", err)
		}
		taskSrv = srv
	}

	switch cfg.RunMode {
	case "api":
		apiMode()
	case "bg":
		workerMode(false, true)
	case "img":
		workerMode(true, false)
	case "all":
		apiMode()
		workerMode(true, true)
	default:
		logger.Fatalf("Invalid run mode specified in config: %s.", cfg.RunMode)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Infof("Received signal: %s. Shutting down gracefully...", sig)
	case <-shutdownChan:
		logger.Info("Shutdown requested via Service API. Shutting down gracefully...")
	}

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	if serviceSrv != nil {
		if err := serviceSrv.Shutdown(ctxShutdown); err != nil {
			logger.Errorf("Service API server shutdown error: %v", err)
		}
	}
	if mainApiSrv != nil {
		if err := mainApiSrv.Shutdown(ctxShutdown); err != nil {
			logger.Errorf("Main API server shutdown error: %v", err)
		}
	}
	if stopRouter != nil {
		stopRouter()
	}
	if taskSrv != nil {
		logger.Info("Shutting down task server...")
		taskSrv.Shutdown()
	}

	wg.Wait()
	logger.Info("Server gracefully stopped")
}

// bootstrap prepares the database before any server starts: indexes, the
// property counter, and the initial admin account.
func bootstrap(cfg *config.Config, database *mongo.Database, properties services.IPropertyService, users services.IUserService) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.EnsureIndexes(ctx, database); err != nil {
		return err
	}
	seq, err := properties.SyncSequence(ctx)
	if err != nil {
		return err
	}
	utils.Logger.Infof("Property sequence at %d", seq)

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		admin, err := users.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminName)
		if err != nil {
			return err
		}
		utils.Logger.Infof("Admin account %s ready", admin.Email)
	}
	return nil
}
