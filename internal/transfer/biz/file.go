package biz

import (
	"context"
	"time"

	apperrors "github.com/lk2023060901/fileshare-backend/internal/pkg/errors"
	"github.com/lk2023060901/fileshare-backend/internal/pkg/logger"
	"github.com/lk2023060901/fileshare-backend/internal/transfer/storage"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// File record statuses. Transitions are one-way, from active to expired or
// deleted; expired and deleted are terminal.
const (
	StatusActive  = "active"
	StatusExpired = "expired"
	StatusDeleted = "deleted"
)

// Access event types emitted to the append-only access log
const (
	AccessDownload       = "download"
	AccessPreview        = "preview"
	AccessFailedPassword = "failed_password"
)

// FileRecord is a shared file's metadata. The password hash never leaves
// this package.
type FileRecord struct {
	ID            string
	OwnerID       string // empty for guest uploads
	Filename      string
	BlobKey       string
	BlobURL       string
	FileSize      int64
	MimeType      string
	ShareToken    string
	PasswordHash  string
	BurnAfterRead bool
	ExpiresAt     *time.Time
	DownloadCount int64
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// FileView is the public projection of a FileRecord returned to clients.
// Burn-after-read files never expose a direct content URL; the download
// stream is the only way to consume them.
type FileView struct {
	Filename      string     `json:"filename"`
	FileSize      int64      `json:"file_size"`
	MimeType      string     `json:"mime_type"`
	ShareToken    string     `json:"share_token"`
	DownloadCount int64      `json:"download_count"`
	BurnAfterRead bool       `json:"burn_after_read"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	FileURL       string     `json:"file_url,omitempty"`
}

// View builds the public projection
func (f *FileRecord) View() *FileView {
	v := &FileView{
		Filename:      f.Filename,
		FileSize:      f.FileSize,
		MimeType:      f.MimeType,
		ShareToken:    f.ShareToken,
		DownloadCount: f.DownloadCount,
		BurnAfterRead: f.BurnAfterRead,
		ExpiresAt:     f.ExpiresAt,
		CreatedAt:     f.CreatedAt,
	}
	if !f.BurnAfterRead {
		v.FileURL = f.BlobURL
	}
	return v
}

// FileRepo is the metadata-store port for file records. GetByShareToken only
// surfaces active records; GetByID sees every status so ownership checks can
// stay idempotent.
type FileRepo interface {
	Create(ctx context.Context, record *FileRecord) error
	GetByShareToken(ctx context.Context, token string) (*FileRecord, error)
	GetByID(ctx context.Context, id string) (*FileRecord, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*FileRecord, error)
	// TransitionStatus atomically moves a record from one status to
	// another and reports whether this call won the transition.
	TransitionStatus(ctx context.Context, id, from, to string) (bool, error)
	IncrementDownloadCount(ctx context.Context, id string) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*FileRecord, error)
}

// AccessEvent is one entry for the append-only access log
type AccessEvent struct {
	FileID     string
	UserID     string
	AccessType string
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
}

// AccessLogRepo is the access-event sink
type AccessLogRepo interface {
	Append(ctx context.Context, event *AccessEvent) error
}

// AccessMeta identifies the requester for access logging
type AccessMeta struct {
	UserID    string
	IPAddress string
	UserAgent string
}

// AccessDecision is the outcome of CheckAccess. Record is nil whenever the
// password gate was not passed.
type AccessDecision struct {
	RequiresPassword bool
	PasswordValid    bool
	Record           *FileRecord
}

// FileUseCase owns the file lifecycle: access gating, lazy expiry,
// burn-after-read consumption and explicit deletion.
type FileUseCase struct {
	files  FileRepo
	access AccessLogRepo
	blobs  storage.BlobStore
	logger *logger.Logger
	now    func() time.Time
}

// NewFileUseCase creates the lifecycle engine
func NewFileUseCase(files FileRepo, access AccessLogRepo, blobs storage.BlobStore, lgr *logger.Logger) *FileUseCase {
	if lgr == nil {
		lgr = logger.L()
	}
	return &FileUseCase{
		files:  files,
		access: access,
		blobs:  blobs,
		logger: lgr,
		now:    time.Now,
	}
}

// CheckAccess gates access to a shared file: token lookup, lazy expiry,
// password verification. A failed password is not an error; the decision
// acknowledges the file exists but withholds everything else.
func (uc *FileUseCase) CheckAccess(ctx context.Context, token, password string, meta AccessMeta) (*AccessDecision, error) {
	record, err := uc.files.GetByShareToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if record.ExpiresAt != nil && uc.now().After(*record.ExpiresAt) {
		// Expiry is discovered lazily: the record flips state on the
		// access that finds it stale and is gone from then on.
		if _, err := uc.files.TransitionStatus(ctx, record.ID, StatusActive, StatusExpired); err != nil {
			uc.logger.Error("failed to mark file expired",
				zap.String("file_id", record.ID),
				zap.Error(err))
		}
		return nil, apperrors.New(apperrors.ErrFileExpired)
	}

	if record.PasswordHash != "" {
		if password == "" || bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)) != nil {
			uc.appendEvent(ctx, record.ID, AccessFailedPassword, meta)
			return &AccessDecision{RequiresPassword: true, PasswordValid: false}, nil
		}
		return &AccessDecision{RequiresPassword: true, PasswordValid: true, Record: record}, nil
	}

	return &AccessDecision{Record: record}, nil
}

// RecordPreview logs a metadata view of a shared file
func (uc *FileUseCase) RecordPreview(ctx context.Context, fileID string, meta AccessMeta) {
	uc.appendEvent(ctx, fileID, AccessPreview, meta)
}

// RecordDownload counts one logical download and logs it. Resumed range
// requests must not call this; the caller decides using the range start.
func (uc *FileUseCase) RecordDownload(ctx context.Context, fileID string, meta AccessMeta) {
	if err := uc.files.IncrementDownloadCount(ctx, fileID); err != nil {
		uc.logger.Error("failed to increment download count",
			zap.String("file_id", fileID),
			zap.Error(err))
	}
	uc.appendEvent(ctx, fileID, AccessDownload, meta)
}

// ConsumeBurnAfterRead fires the burn-after-read transition after a download
// that reached the final byte. The active-to-deleted CAS makes the transition
// exactly-once under concurrent completions: only the winner removes the
// blob, every loser sees false.
func (uc *FileUseCase) ConsumeBurnAfterRead(ctx context.Context, record *FileRecord) (bool, error) {
	if !record.BurnAfterRead {
		return false, nil
	}

	won, err := uc.files.TransitionStatus(ctx, record.ID, StatusActive, StatusDeleted)
	if err != nil {
		return false, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
	if !won {
		return false, nil
	}

	if err := uc.blobs.Delete(ctx, record.BlobKey); err != nil {
		// The record is already gone for clients; report and move on.
		uc.logger.Error("failed to delete burned blob",
			zap.String("file_id", record.ID),
			zap.Error(err))
	}

	uc.logger.Info("file burned after read",
		zap.String("file_id", record.ID),
		zap.String("share_token", record.ShareToken))
	return true, nil
}

// Delete removes a file on behalf of its owner or an admin. Deleting an
// already-deleted or expired record is a no-op success for the owning
// caller; unknown records and foreign records still fail.
func (uc *FileUseCase) Delete(ctx context.Context, callerID string, isAdmin bool, fileID string) error {
	record, err := uc.files.GetByID(ctx, fileID)
	if err != nil {
		return err
	}

	if !isAdmin && (callerID == "" || record.OwnerID != callerID) {
		return apperrors.New(apperrors.ErrForbidden, "not the file owner")
	}

	if record.Status != StatusActive {
		return nil
	}

	won, err := uc.files.TransitionStatus(ctx, record.ID, StatusActive, StatusDeleted)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
	if won {
		if err := uc.blobs.Delete(ctx, record.BlobKey); err != nil {
			uc.logger.Error("failed to delete blob",
				zap.String("file_id", record.ID),
				zap.Error(err))
		}
		uc.logger.Info("file deleted",
			zap.String("file_id", record.ID),
			zap.String("caller_id", callerID))
	}
	return nil
}

// ListByOwner returns the caller's files, newest first
func (uc *FileUseCase) ListByOwner(ctx context.Context, ownerID string) ([]*FileRecord, error) {
	if ownerID == "" {
		return nil, apperrors.New(apperrors.ErrUnauthorized)
	}
	return uc.files.ListByOwner(ctx, ownerID)
}

// SweepExpired flips active records whose deadline passed to expired.
// Returns how many were flipped.
func (uc *FileUseCase) SweepExpired(ctx context.Context, limit int) (int, error) {
	stale, err := uc.files.ListExpired(ctx, uc.now(), limit)
	if err != nil {
		return 0, err
	}

	flipped := 0
	for _, record := range stale {
		won, err := uc.files.TransitionStatus(ctx, record.ID, StatusActive, StatusExpired)
		if err != nil {
			uc.logger.Warn("failed to expire file",
				zap.String("file_id", record.ID),
				zap.Error(err))
			continue
		}
		if won {
			flipped++
		}
	}
	return flipped, nil
}

func (uc *FileUseCase) appendEvent(ctx context.Context, fileID, accessType string, meta AccessMeta) {
	event := &AccessEvent{
		FileID:     fileID,
		UserID:     meta.UserID,
		AccessType: accessType,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
		CreatedAt:  uc.now(),
	}
	if err := uc.access.Append(ctx, event); err != nil {
		uc.logger.Error("failed to append access event",
			zap.String("file_id", fileID),
			zap.String("access_type", accessType),
			zap.Error(err))
	}
}
