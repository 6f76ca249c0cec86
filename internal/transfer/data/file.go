package data

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/lk2023060901/fileshare-backend/internal/pkg/errors"
	"github.com/lk2023060901/fileshare-backend/internal/transfer/biz"
	"gorm.io/gorm"
)

// FilePO represents the database model
type FilePO struct {
	ID            string `gorm:"type:uuid;primarykey"`
	OwnerID       string `gorm:"type:uuid;index;default:null"`
	Filename      string `gorm:"size:512;not null"`
	BlobKey       string `gorm:"size:1024;not null"`
	BlobURL       string `gorm:"size:1024"`
	FileSize      int64  `gorm:"not null"`
	MimeType      string `gorm:"size:255"`
	ShareToken    string `gorm:"size:64;not null;uniqueIndex"`
	PasswordHash  string `gorm:"size:255"`
	BurnAfterRead bool   `gorm:"not null;default:false"`
	ExpiresAt     *time.Time
	DownloadCount int64     `gorm:"not null;default:0"`
	Status        string    `gorm:"size:16;not null;default:'active';index"`
	CreatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (FilePO) TableName() string {
	return "files"
}

// FileRepo implements biz.FileRepo
type FileRepo struct {
	db *gorm.DB
}

func NewFileRepo(db *gorm.DB) biz.FileRepo {
	return &FileRepo{db: db}
}

func (r *FileRepo) Create(ctx context.Context, record *biz.FileRecord) error {
	po := r.toPO(record)
	return r.db.WithContext(ctx).Create(po).Error
}

// GetByShareToken resolves an active record by its share token. Records in
// any other status are indistinguishable from absent ones.
func (r *FileRepo) GetByShareToken(ctx context.Context, token string) (*biz.FileRecord, error) {
	var po FilePO
	err := r.db.WithContext(ctx).
		Where("share_token = ? AND status = ?", token, biz.StatusActive).
		First(&po).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrFileNotFound)
		}
		return nil, err
	}
	return r.toRecord(&po), nil
}

func (r *FileRepo) GetByID(ctx context.Context, id string) (*biz.FileRecord, error) {
	var po FilePO
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrFileNotFound)
		}
		return nil, err
	}
	return r.toRecord(&po), nil
}

func (r *FileRepo) ListByOwner(ctx context.Context, ownerID string) ([]*biz.FileRecord, error) {
	var pos []FilePO
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND status = ?", ownerID, biz.StatusActive).
		Order("created_at DESC").
		Find(&pos).Error
	if err != nil {
		return nil, err
	}

	records := make([]*biz.FileRecord, len(pos))
	for i, po := range pos {
		records[i] = r.toRecord(&po)
	}
	return records, nil
}

// TransitionStatus performs the lifecycle CAS. The WHERE clause carries the
// expected current status, so under concurrent transitions exactly one
// caller observes a row change.
func (r *FileRepo) TransitionStatus(ctx context.Context, id, from, to string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&FilePO{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *FileRepo) IncrementDownloadCount(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Model(&FilePO{}).
		Where("id = ?", id).
		UpdateColumn("download_count", gorm.Expr("download_count + 1")).Error
}

func (r *FileRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]*biz.FileRecord, error) {
	var pos []FilePO
	q := r.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", biz.StatusActive, now)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&pos).Error; err != nil {
		return nil, err
	}

	records := make([]*biz.FileRecord, len(pos))
	for i, po := range pos {
		records[i] = r.toRecord(&po)
	}
	return records, nil
}

func (r *FileRepo) toPO(record *biz.FileRecord) *FilePO {
	return &FilePO{
		ID:            record.ID,
		OwnerID:       record.OwnerID,
		Filename:      record.Filename,
		BlobKey:       record.BlobKey,
		BlobURL:       record.BlobURL,
		FileSize:      record.FileSize,
		MimeType:      record.MimeType,
		ShareToken:    record.ShareToken,
		PasswordHash:  record.PasswordHash,
		BurnAfterRead: record.BurnAfterRead,
		ExpiresAt:     record.ExpiresAt,
		DownloadCount: record.DownloadCount,
		Status:        record.Status,
		CreatedAt:     record.CreatedAt,
		UpdatedAt:     record.CreatedAt,
	}
}

func (r *FileRepo) toRecord(po *FilePO) *biz.FileRecord {
	return &biz.FileRecord{
		ID:            po.ID,
		OwnerID:       po.OwnerID,
		Filename:      po.Filename,
		BlobKey:       po.BlobKey,
		BlobURL:       po.BlobURL,
		FileSize:      po.FileSize,
		MimeType:      po.MimeType,
		ShareToken:    po.ShareToken,
		PasswordHash:  po.PasswordHash,
		BurnAfterRead: po.BurnAfterRead,
		ExpiresAt:     po.ExpiresAt,
		DownloadCount: po.DownloadCount,
		Status:        po.Status,
		CreatedAt:     po.CreatedAt,
		UpdatedAt:     po.UpdatedAt,
	}
}
