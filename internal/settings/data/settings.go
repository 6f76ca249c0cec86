package data

import (
	"context"
	"errors"
	"time"

	"github.com/lk2023060901/fileshare-backend/internal/settings/biz"
	"gorm.io/gorm"
)

// SystemConfigPO represents the database model. The config is a single row;
// the fixed primary key makes updates race-free upserts.
type SystemConfigPO struct {
	ID                 int       `gorm:"primarykey"`
	UploadSpeedLimit   float64   `gorm:"not null;default:0"`
	DownloadSpeedLimit float64   `gorm:"not null;default:0"`
	MaxFileSize        int64     `gorm:"not null;default:0"`
	UpdatedAt          time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (SystemConfigPO) TableName() string {
	return "system_configs"
}

const configRowID = 1

// SettingsRepo implements biz.SettingsRepo
type SettingsRepo struct {
	db *gorm.DB
}

func NewSettingsRepo(db *gorm.DB) biz.SettingsRepo {
	return &SettingsRepo{db: db}
}

// Get reads the config row, falling back to all-unlimited defaults when it
// has never been written.
func (r *SettingsRepo) Get(ctx context.Context) (*biz.SystemConfig, error) {
	var po SystemConfigPO
	err := r.db.WithContext(ctx).Where("id = ?", configRowID).First(&po).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &biz.SystemConfig{}, nil
		}
		return nil, err
	}

	return &biz.SystemConfig{
		UploadSpeedLimit:   po.UploadSpeedLimit,
		DownloadSpeedLimit: po.DownloadSpeedLimit,
		MaxFileSize:        po.MaxFileSize,
	}, nil
}

func (r *SettingsRepo) Save(ctx context.Context, cfg *biz.SystemConfig) error {
	po := &SystemConfigPO{
		ID:                 configRowID,
		UploadSpeedLimit:   cfg.UploadSpeedLimit,
		DownloadSpeedLimit: cfg.DownloadSpeedLimit,
		MaxFileSize:        cfg.MaxFileSize,
		UpdatedAt:          time.Now(),
	}
	return r.db.WithContext(ctx).Save(po).Error
}
