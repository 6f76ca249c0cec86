package data

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	apperrors "github.com/lk2023060901/fileshare-backend/internal/pkg/errors"
	"github.com/lk2023060901/fileshare-backend/internal/transfer/biz"
	"gorm.io/gorm"
)

// PolicyJSON stores the upload access policy as a JSONB column
type PolicyJSON biz.UploadPolicy

func (p *PolicyJSON) Scan(value interface{}) error {
	if value == nil {
		*p = PolicyJSON{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, p)
}

func (p PolicyJSON) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// UploadSessionPO represents the database model
type UploadSessionPO struct {
	ID          string     `gorm:"type:uuid;primarykey"`
	OwnerID     string     `gorm:"type:uuid;index;default:null"`
	Filename    string     `gorm:"size:512;not null"`
	FileSize    int64      `gorm:"not null"`
	MimeType    string     `gorm:"size:255"`
	ChunkSize   int64      `gorm:"not null"`
	TotalChunks int        `gorm:"not null"`
	Policy      PolicyJSON `gorm:"type:jsonb"`
	ExpiresAt   time.Time  `gorm:"not null;index"`
	CreatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (UploadSessionPO) TableName() string {
	return "upload_sessions"
}

// UploadSessionRepo implements biz.UploadSessionRepo
type UploadSessionRepo struct {
	db *gorm.DB
}

func NewUploadSessionRepo(db *gorm.DB) biz.UploadSessionRepo {
	return &UploadSessionRepo{db: db}
}

func (r *UploadSessionRepo) Create(ctx context.Context, session *biz.UploadSession) error {
	po := &UploadSessionPO{
		ID:          session.ID,
		OwnerID:     session.OwnerID,
		Filename:    session.Filename,
		FileSize:    session.FileSize,
		MimeType:    session.MimeType,
		ChunkSize:   session.ChunkSize,
		TotalChunks: session.TotalChunks,
		Policy:      PolicyJSON(session.Policy),
		ExpiresAt:   session.ExpiresAt,
		CreatedAt:   session.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(po).Error
}

func (r *UploadSessionRepo) Get(ctx context.Context, id string) (*biz.UploadSession, error) {
	var po UploadSessionPO
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&po).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrSessionNotFound)
		}
		return nil, err
	}
	return r.toSession(&po), nil
}

func (r *UploadSessionRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&UploadSessionPO{}).Error
}

func (r *UploadSessionRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]*biz.UploadSession, error) {
	var pos []UploadSessionPO
	q := r.db.WithContext(ctx).Where("expires_at < ?", now)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&pos).Error; err != nil {
		return nil, err
	}

	sessions := make([]*biz.UploadSession, len(pos))
	for i, po := range pos {
		sessions[i] = r.toSession(&po)
	}
	return sessions, nil
}

func (r *UploadSessionRepo) toSession(po *UploadSessionPO) *biz.UploadSession {
	return &biz.UploadSession{
		ID:          po.ID,
		OwnerID:     po.OwnerID,
		Filename:    po.Filename,
		FileSize:    po.FileSize,
		MimeType:    po.MimeType,
		ChunkSize:   po.ChunkSize,
		TotalChunks: po.TotalChunks,
		Policy:      biz.UploadPolicy(po.Policy),
		ExpiresAt:   po.ExpiresAt,
		CreatedAt:   po.CreatedAt,
	}
}
