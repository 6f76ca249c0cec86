package data

import (
	"context"
	"time"

	"github.com/lk2023060901/fileshare-backend/internal/transfer/biz"
	"gorm.io/gorm"
)

// AccessLogPO represents the database model
type AccessLogPO struct {
	ID         uint      `gorm:"primarykey"`
	FileID     string    `gorm:"type:uuid;not null;index"`
	UserID     string    `gorm:"type:uuid;default:null"`
	AccessType string    `gorm:"size:32;not null"`
	IPAddress  string    `gorm:"size:45"`
	UserAgent  string    `gorm:"size:512"`
	CreatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (AccessLogPO) TableName() string {
	return "file_access_logs"
}

// AccessLogRepo implements biz.AccessLogRepo
type AccessLogRepo struct {
	db *gorm.DB
}

func NewAccessLogRepo(db *gorm.DB) biz.AccessLogRepo {
	return &AccessLogRepo{db: db}
}

func (r *AccessLogRepo) Append(ctx context.Context, event *biz.AccessEvent) error {
	po := &AccessLogPO{
		FileID:     event.FileID,
		UserID:     event.UserID,
		AccessType: event.AccessType,
		IPAddress:  event.IPAddress,
		UserAgent:  event.UserAgent,
		CreatedAt:  event.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(po).Error
}
