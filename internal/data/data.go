package data

import (
	"context"
	"fmt"
	"time"

	"github.com/lk2023060901/fileshare-backend/internal/conf"
	pkgminio "github.com/lk2023060901/fileshare-backend/internal/pkg/minio"
	settingsdata "github.com/lk2023060901/fileshare-backend/internal/settings/data"
	transferdata "github.com/lk2023060901/fileshare-backend/internal/transfer/data"
	"github.com/lk2023060901/fileshare-backend/internal/transfer/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Data aggregates the shared infrastructure handles
type Data struct {
	DB          *gorm.DB
	RedisClient *redis.Client
	Blobs       storage.BlobStore
	Chunks      *storage.ChunkStore
	Logger      *zap.Logger
}

// NewData initializes the data layer and returns a cleanup function
func NewData(config *conf.Config, log *zap.Logger) (*Data, func(), error) {
	db, err := initDB(config, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init database: %w", err)
	}

	redisClient := initRedis(config)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	blobs, err := initBlobStore(config, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init blob store: %w", err)
	}

	chunks, err := storage.NewChunkStore(config.Transfer.TempDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init chunk store: %w", err)
	}

	d := &Data{
		DB:          db,
		RedisClient: redisClient,
		Blobs:       blobs,
		Chunks:      chunks,
		Logger:      log,
	}

	cleanup := func() {
		log.Info("cleaning up data resources")

		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}

		if redisClient != nil {
			redisClient.Close()
		}
	}

	return d, cleanup, nil
}

func initDB(config *conf.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(config.Database.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	// Auto migrate
	if err := db.AutoMigrate(
		&transferdata.UploadSessionPO{},
		&transferdata.FilePO{},
		&transferdata.AccessLogPO{},
		&settingsdata.SystemConfigPO{},
	); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	log.Info("database initialized successfully")
	return db, nil
}

func initRedis(config *conf.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Redis.Host, config.Redis.Port),
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})
}

func initBlobStore(config *conf.Config, log *zap.Logger) (storage.BlobStore, error) {
	switch config.Storage.Driver {
	case "minio":
		client, err := pkgminio.NewClient(&pkgminio.Config{
			Endpoint:        config.Storage.MinIO.Endpoint,
			AccessKeyID:     config.Storage.MinIO.AccessKey,
			SecretAccessKey: config.Storage.MinIO.SecretKey,
			UseSSL:          config.Storage.MinIO.UseSSL,
		}, log)
		if err != nil {
			return nil, err
		}
		if err := client.EnsureBucket(context.Background(), config.Storage.MinIO.Bucket); err != nil {
			return nil, err
		}
		return storage.NewMinIOStore(client, config.Storage.MinIO.Bucket), nil

	case "local":
		return storage.NewLocalStore(config.Storage.Local.Root)

	default:
		return nil, fmt.Errorf("unknown storage driver %q", config.Storage.Driver)
	}
}
