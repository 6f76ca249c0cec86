package biz

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/lk2023060901/fileshare-backend/internal/pkg/errors"
	"github.com/lk2023060901/fileshare-backend/internal/pkg/logger"
	transferbiz "github.com/lk2023060901/fileshare-backend/internal/transfer/biz"
	"go.uber.org/zap"
)

// SystemConfig holds the admin-tunable knobs. Zero means unlimited for all
// three.
type SystemConfig struct {
	// UploadSpeedLimit throttles chunk ingestion, bytes per second
	UploadSpeedLimit float64 `json:"upload_speed_limit"`
	// DownloadSpeedLimit throttles download streaming, bytes per second
	DownloadSpeedLimit float64 `json:"download_speed_limit"`
	// MaxFileSize caps the declared size of new uploads, bytes
	MaxFileSize int64 `json:"max_file_size"`
}

// SettingsRepo is the metadata-store port for the system config
type SettingsRepo interface {
	Get(ctx context.Context) (*SystemConfig, error)
	Save(ctx context.Context, cfg *SystemConfig) error
}

// cacheTTL bounds how stale a limit read can be. Transfers pick up an admin
// change within this window without a database round trip per chunk.
const cacheTTL = 5 * time.Second

// SettingsUseCase serves and updates the system config. It implements the
// transfer engine's LimitSource with a short-lived cache that an update
// invalidates immediately.
type SettingsUseCase struct {
	repo   SettingsRepo
	logger *logger.Logger

	mu        sync.Mutex
	cached    SystemConfig
	fetchedAt time.Time
}

// NewSettingsUseCase creates the settings engine
func NewSettingsUseCase(repo SettingsRepo, lgr *logger.Logger) *SettingsUseCase {
	if lgr == nil {
		lgr = logger.L()
	}
	return &SettingsUseCase{repo: repo, logger: lgr}
}

// Get returns the current system config, bypassing the cache
func (uc *SettingsUseCase) Get(ctx context.Context) (*SystemConfig, error) {
	cfg, err := uc.repo.Get(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
	return cfg, nil
}

// Update validates and persists a new system config
func (uc *SettingsUseCase) Update(ctx context.Context, cfg *SystemConfig) error {
	if cfg.UploadSpeedLimit < 0 || cfg.DownloadSpeedLimit < 0 || cfg.MaxFileSize < 0 {
		return apperrors.New(apperrors.ErrInvalidParams, "limits must not be negative")
	}

	if err := uc.repo.Save(ctx, cfg); err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternalServer)
	}

	uc.mu.Lock()
	uc.cached = *cfg
	uc.fetchedAt = time.Now()
	uc.mu.Unlock()

	uc.logger.Info("system config updated",
		zap.Float64("upload_speed_limit", cfg.UploadSpeedLimit),
		zap.Float64("download_speed_limit", cfg.DownloadSpeedLimit),
		zap.Int64("max_file_size", cfg.MaxFileSize))
	return nil
}

// TransferLimits implements transferbiz.LimitSource
func (uc *SettingsUseCase) TransferLimits(ctx context.Context) (transferbiz.TransferLimits, error) {
	uc.mu.Lock()
	if time.Since(uc.fetchedAt) < cacheTTL {
		cfg := uc.cached
		uc.mu.Unlock()
		return toLimits(cfg), nil
	}
	uc.mu.Unlock()

	cfg, err := uc.repo.Get(ctx)
	if err != nil {
		return transferbiz.TransferLimits{}, err
	}

	uc.mu.Lock()
	uc.cached = *cfg
	uc.fetchedAt = time.Now()
	uc.mu.Unlock()

	return toLimits(*cfg), nil
}

func toLimits(cfg SystemConfig) transferbiz.TransferLimits {
	return transferbiz.TransferLimits{
		UploadBytesPerSec:   cfg.UploadSpeedLimit,
		DownloadBytesPerSec: cfg.DownloadSpeedLimit,
		MaxFileSize:         cfg.MaxFileSize,
	}
}
