package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lk2023060901/fileshare-backend/internal/auth"
	"github.com/lk2023060901/fileshare-backend/internal/cleaner"
	"github.com/lk2023060901/fileshare-backend/internal/conf"
	"github.com/lk2023060901/fileshare-backend/internal/data"
	"github.com/lk2023060901/fileshare-backend/internal/pkg/logger"
	"github.com/lk2023060901/fileshare-backend/internal/pkg/workerpool"
	"github.com/lk2023060901/fileshare-backend/internal/server"
	settingsbiz "github.com/lk2023060901/fileshare-backend/internal/settings/biz"
	settingsdata "github.com/lk2023060901/fileshare-backend/internal/settings/data"
	settingsservice "github.com/lk2023060901/fileshare-backend/internal/settings/service"
	"github.com/lk2023060901/fileshare-backend/internal/transfer/biz"
	transferdata "github.com/lk2023060901/fileshare-backend/internal/transfer/data"
	"github.com/lk2023060901/fileshare-backend/internal/transfer/service"
	"go.uber.org/zap"
)

var (
	configFile = flag.String("config", "config.yaml", "config file path")
)

func main() {
	flag.Parse()

	// Load configuration
	config, err := conf.LoadConfig(*configFile)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger with config
	logConfig := &logger.Config{
		Level:            config.Log.Level,
		Format:           config.Log.Format,
		Output:           config.Log.Output,
		EnableCaller:     config.Log.EnableCaller,
		EnableStacktrace: config.Log.EnableStacktrace,
		File: logger.FileConfig{
			Filename:   config.Log.File.Filename,
			MaxSize:    config.Log.File.MaxSize,
			MaxAge:     config.Log.File.MaxAge,
			MaxBackups: config.Log.File.MaxBackups,
			Compress:   config.Log.File.Compress,
		},
	}

	log, err := logger.New(logConfig)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	if err := logger.InitGlobal(logConfig); err != nil {
		log.Fatal("failed to initialize global logger", zap.Error(err))
	}

	log.Info("config loaded successfully")

	// Initialize data layer
	d, cleanup, err := data.NewData(config, log.Logger)
	if err != nil {
		log.Fatal("failed to initialize data layer", zap.Error(err))
	}
	defer cleanup()

	// Initialize repositories
	sessionRepo := transferdata.NewUploadSessionRepo(d.DB)
	fileRepo := transferdata.NewFileRepo(d.DB)
	accessLogRepo := transferdata.NewAccessLogRepo(d.DB)
	settingsRepo := settingsdata.NewSettingsRepo(d.DB)

	// Initialize use cases
	settingsUseCase := settingsbiz.NewSettingsUseCase(settingsRepo, log)
	sessionUseCase := biz.NewSessionUseCase(
		sessionRepo,
		fileRepo,
		d.Chunks,
		d.Blobs,
		settingsUseCase,
		biz.SessionConfig{
			ChunkSize:  config.Transfer.ChunkSize,
			SessionTTL: config.Transfer.SessionTTL,
		},
		log,
	)
	fileUseCase := biz.NewFileUseCase(fileRepo, accessLogRepo, d.Blobs, log)

	// Initialize background cleanup
	pool, err := workerpool.New(config.Transfer.SweepWorkers, log.Logger)
	if err != nil {
		log.Fatal("failed to create worker pool", zap.Error(err))
	}
	defer pool.Release()

	sweeper := cleaner.New(sessionUseCase, fileUseCase, pool, config.Transfer.SweepInterval, log)
	sweeper.Start()
	defer sweeper.Stop()

	// Initialize services
	uploadService := service.NewUploadService(sessionUseCase, config.Server.BaseURL, log)
	downloadService := service.NewDownloadService(fileUseCase, d.Blobs, settingsUseCase, log)
	fileService := service.NewFileService(fileUseCase, log)
	settingsService := settingsservice.NewSettingsService(settingsUseCase, log)

	jwtManager := auth.NewJWTManager(config.Auth.JWTSecret, config.Auth.JWTIssuer)

	// Initialize server
	httpServer := server.NewHTTPServer(
		config,
		log,
		jwtManager,
		d.RedisClient,
		uploadService,
		downloadService,
		fileService,
		settingsService,
	)

	go func() {
		if err := httpServer.Start(); err != nil {
			log.Fatal("failed to start HTTP server", zap.Error(err))
		}
	}()

	log.Info("server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
