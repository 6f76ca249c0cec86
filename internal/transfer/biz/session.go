package biz

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/lk2023060901/fileshare-backend/internal/pkg/errors"
	"github.com/lk2023060901/fileshare-backend/internal/pkg/logger"
	"github.com/lk2023060901/fileshare-backend/internal/pkg/throttle"
	"github.com/lk2023060901/fileshare-backend/internal/transfer/storage"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// UploadPolicy carries the access policy a client declares at init time.
// It is applied to the FileRecord at merge, not before.
type UploadPolicy struct {
	Password         string `json:"password,omitempty"`
	BurnAfterRead    bool   `json:"burn_after_read,omitempty"`
	ExpiresInSeconds int64  `json:"expires_in_seconds,omitempty"`
}

// UploadSession is a chunked upload in progress. The declared size and the
// derived chunk layout are fixed at creation and never change.
type UploadSession struct {
	ID          string
	OwnerID     string // empty for guest uploads
	Filename    string
	FileSize    int64
	MimeType    string
	ChunkSize   int64
	TotalChunks int
	Policy      UploadPolicy
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// Expired reports whether the session window has closed
func (s *UploadSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// chunkSizeAt returns the exact size the layout assigns to one chunk. Every
// chunk is ChunkSize bytes except the last, which takes the remainder.
func (s *UploadSession) chunkSizeAt(index int) int64 {
	if index == s.TotalChunks-1 {
		return s.FileSize - int64(s.TotalChunks-1)*s.ChunkSize
	}
	return s.ChunkSize
}

// UploadSessionRepo is the metadata-store port for upload sessions
type UploadSessionRepo interface {
	Create(ctx context.Context, session *UploadSession) error
	Get(ctx context.Context, id string) (*UploadSession, error)
	Delete(ctx context.Context, id string) error
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*UploadSession, error)
}

// TransferLimits are the three admin-tunable knobs the engine reads per
// operation. Zero means unlimited.
type TransferLimits struct {
	UploadBytesPerSec   float64
	DownloadBytesPerSec float64
	MaxFileSize         int64
}

// LimitSource is the narrow read port for the transfer knobs. The
// implementation is expected to cache briefly; the engine reads it fresh on
// every operation.
type LimitSource interface {
	TransferLimits(ctx context.Context) (TransferLimits, error)
}

// SessionConfig tunes the session engine
type SessionConfig struct {
	// ChunkSize is the server-enforced chunk size in bytes
	ChunkSize int64
	// SessionTTL is the window a client has to finish an upload
	SessionTTL time.Duration
}

// SessionUseCase manages chunked upload sessions: creation, chunk ingestion,
// merge into a blob, and retirement.
type SessionUseCase struct {
	sessions UploadSessionRepo
	files    FileRepo
	chunks   *storage.ChunkStore
	blobs    storage.BlobStore
	limits   LimitSource
	cfg      SessionConfig
	locks    *sessionLocks
	logger   *logger.Logger
	now      func() time.Time
}

// NewSessionUseCase creates the session engine
func NewSessionUseCase(
	sessions UploadSessionRepo,
	files FileRepo,
	chunks *storage.ChunkStore,
	blobs storage.BlobStore,
	limits LimitSource,
	cfg SessionConfig,
	lgr *logger.Logger,
) *SessionUseCase {
	if lgr == nil {
		lgr = logger.L()
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 20 * 1024 * 1024
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 24 * time.Hour
	}
	return &SessionUseCase{
		sessions: sessions,
		files:    files,
		chunks:   chunks,
		blobs:    blobs,
		limits:   limits,
		cfg:      cfg,
		locks:    newSessionLocks(),
		logger:   lgr,
		now:      time.Now,
	}
}

// InitUploadRequest describes a new chunked upload
type InitUploadRequest struct {
	OwnerID  string
	Filename string
	FileSize int64
	MimeType string
	Policy   UploadPolicy
}

// InitUpload allocates a session and its chunk-storage area. The returned
// chunk size and chunk count are authoritative; any client-side estimate is
// ignored.
func (uc *SessionUseCase) InitUpload(ctx context.Context, req *InitUploadRequest) (*UploadSession, error) {
	if req.Filename == "" || req.FileSize <= 0 {
		return nil, apperrors.New(apperrors.ErrInvalidParams, "filename and file size are required")
	}

	limits, err := uc.limits.TransferLimits(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
	if limits.MaxFileSize > 0 && req.FileSize > limits.MaxFileSize {
		return nil, apperrors.Newf(apperrors.ErrFileTooLarge, "declared size %d exceeds limit of %d bytes", req.FileSize, limits.MaxFileSize)
	}

	now := uc.now()
	session := &UploadSession{
		ID:          uuid.NewString(),
		OwnerID:     req.OwnerID,
		Filename:    req.Filename,
		FileSize:    req.FileSize,
		MimeType:    req.MimeType,
		ChunkSize:   uc.cfg.ChunkSize,
		TotalChunks: int((req.FileSize + uc.cfg.ChunkSize - 1) / uc.cfg.ChunkSize),
		Policy:      req.Policy,
		ExpiresAt:   now.Add(uc.cfg.SessionTTL),
		CreatedAt:   now,
	}

	if err := uc.sessions.Create(ctx, session); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}

	if err := uc.chunks.CreateSession(session.ID); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFailed)
	}

	uc.logger.Info("upload session created",
		zap.String("session_id", session.ID),
		zap.String("filename", session.Filename),
		zap.Int64("file_size", session.FileSize),
		zap.Int("total_chunks", session.TotalChunks))

	return session, nil
}

// AcceptChunk ingests one chunk body, throttled by the current upload speed
// limit. Chunks may arrive in any order and a re-sent index overwrites the
// previous bytes, so clients resume by uploading only what is missing.
func (uc *SessionUseCase) AcceptChunk(ctx context.Context, sessionID string, index int, body io.Reader) (int64, error) {
	session, err := uc.sessions.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	if session.Expired(uc.now()) {
		return 0, apperrors.New(apperrors.ErrSessionExpired)
	}
	if index < 0 || index >= session.TotalChunks {
		return 0, apperrors.Newf(apperrors.ErrChunkIndexOutOfRange, "index %d not in [0, %d)", index, session.TotalChunks)
	}

	limits, err := uc.limits.TransferLimits(ctx)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}

	// The layout fixes every chunk's size, so reading one byte past the cap
	// is enough to detect an oversized body without buffering it.
	expected := session.chunkSizeAt(index)

	// Writes to distinct indices proceed concurrently; only a merge takes
	// the session lock exclusively.
	lock := uc.locks.acquire(sessionID)
	lock.RLock()
	defer func() {
		lock.RUnlock()
		uc.locks.release(sessionID)
	}()

	n, err := uc.chunks.Write(sessionID, index, throttle.NewReader(ctx, io.LimitReader(body, expected+1), limits.UploadBytesPerSec))
	if err != nil {
		if ctx.Err() != nil {
			// Client went away mid-chunk; a retry will overwrite.
			return n, apperrors.Wrap(ctx.Err(), apperrors.ErrBadRequest, "chunk upload aborted")
		}
		return n, apperrors.Wrap(err, apperrors.ErrStorageFailed)
	}
	if n > expected {
		// The stored chunk is oversized but a retry overwrites it, and the
		// merge size check refuses to assemble anything left behind.
		return n, apperrors.Newf(apperrors.ErrChunkTooLarge, "chunk %d holds more than %d bytes", index, expected)
	}

	return n, nil
}

// MergeResult is the outcome of a successful merge
type MergeResult struct {
	File *FileRecord
}

// Merge validates the chunk set, concatenates it into a single blob and
// creates the FileRecord. The session and its chunks are gone afterwards.
// A failed blob write leaves no FileRecord behind.
func (uc *SessionUseCase) Merge(ctx context.Context, sessionID string) (*MergeResult, error) {
	session, err := uc.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Expired(uc.now()) {
		return nil, apperrors.New(apperrors.ErrSessionExpired)
	}

	lock := uc.locks.acquire(sessionID)
	lock.Lock()
	defer func() {
		lock.Unlock()
		uc.locks.release(sessionID)
	}()

	indices, err := uc.chunks.Indices(sessionID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFailed)
	}
	if err := verifyChunkSet(indices, session.TotalChunks); err != nil {
		return nil, err
	}

	size, err := uc.chunks.Size(sessionID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrStorageFailed)
	}
	if size != session.FileSize {
		// The size gate at init is only as good as the bytes that follow it.
		return nil, apperrors.Newf(apperrors.ErrSizeMismatch, "declared %d bytes, chunks hold %d", session.FileSize, size)
	}

	shareToken := randomHex(16)
	blobKey := buildBlobKey(shareToken, session.Filename)

	reader := uc.chunks.NewReader(sessionID, session.TotalChunks)
	blobURL, err := uc.blobs.Put(ctx, blobKey, reader, size, session.MimeType)
	reader.Close()
	if err != nil {
		uc.logger.Error("merge blob write failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return nil, apperrors.New(apperrors.ErrStorageFailed)
	}

	record, err := uc.createFileRecord(ctx, session, shareToken, blobKey, blobURL, size)
	if err != nil {
		// Roll the blob back so a metadata failure cannot strand content.
		if delErr := uc.blobs.Delete(ctx, blobKey); delErr != nil {
			uc.logger.Error("failed to roll back merged blob",
				zap.String("blob_key", blobKey),
				zap.Error(delErr))
		}
		return nil, err
	}

	// Cleanup is best-effort; the sweep reclaims anything left behind.
	if err := uc.chunks.Remove(sessionID); err != nil {
		uc.logger.Warn("failed to remove chunk dir after merge",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
	if err := uc.sessions.Delete(ctx, sessionID); err != nil {
		uc.logger.Warn("failed to delete merged session",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}

	uc.logger.Info("upload merged",
		zap.String("session_id", sessionID),
		zap.String("share_token", shareToken),
		zap.Int64("size", size))

	return &MergeResult{File: record}, nil
}

func (uc *SessionUseCase) createFileRecord(ctx context.Context, session *UploadSession, shareToken, blobKey, blobURL string, size int64) (*FileRecord, error) {
	var passwordHash string
	if session.Policy.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(session.Policy.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
		}
		passwordHash = string(hash)
	}

	var expiresAt *time.Time
	if session.Policy.ExpiresInSeconds > 0 {
		t := uc.now().Add(time.Duration(session.Policy.ExpiresInSeconds) * time.Second)
		expiresAt = &t
	}

	record := &FileRecord{
		ID:            uuid.NewString(),
		OwnerID:       session.OwnerID,
		Filename:      session.Filename,
		BlobKey:       blobKey,
		BlobURL:       blobURL,
		FileSize:      size,
		MimeType:      session.MimeType,
		ShareToken:    shareToken,
		PasswordHash:  passwordHash,
		BurnAfterRead: session.Policy.BurnAfterRead,
		ExpiresAt:     expiresAt,
		Status:        StatusActive,
		CreatedAt:     uc.now(),
	}

	if err := uc.files.Create(ctx, record); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrInternalServer)
	}
	return record, nil
}

// SweepExpired reclaims sessions past their window along with their chunk
// storage. Returns the number of sessions removed.
func (uc *SessionUseCase) SweepExpired(ctx context.Context, limit int) (int, error) {
	stale, err := uc.sessions.ListExpired(ctx, uc.now(), limit)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, session := range stale {
		if err := uc.chunks.Remove(session.ID); err != nil {
			uc.logger.Warn("failed to remove stale chunk dir",
				zap.String("session_id", session.ID),
				zap.Error(err))
			continue
		}
		if err := uc.sessions.Delete(ctx, session.ID); err != nil {
			uc.logger.Warn("failed to delete stale session",
				zap.String("session_id", session.ID),
				zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// verifyChunkSet checks the present indices against the exact expected set
// {0..totalChunks-1}. Counting alone is not enough: a duplicate-free store
// could still hold a wrong index (say {0,1,3} of 3), so identity is checked
// per position.
func verifyChunkSet(indices []int, totalChunks int) error {
	present := make(map[int]bool, len(indices))
	for _, idx := range indices {
		present[idx] = true
	}

	var missing []int
	for i := 0; i < totalChunks; i++ {
		if !present[i] {
			missing = append(missing, i)
		}
	}

	if len(missing) > 0 || len(present) != totalChunks {
		return apperrors.Newf(apperrors.ErrChunkSetIncomplete,
			"expected %d chunks, found %d, missing %v", totalChunks, len(present), missing)
	}
	return nil
}

// buildBlobKey derives the storage key for a merged file. The random suffix
// keeps keys unguessable even when filenames repeat.
func buildBlobKey(shareToken, filename string) string {
	base := path.Base(filename)
	ext := path.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return fmt.Sprintf("files/%s/%s-%s%s", shareToken, name, randomHex(8), ext)
}

// randomHex returns n random bytes hex-encoded
func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing means the process cannot mint tokens at all.
		panic(fmt.Sprintf("rand.Read: %v", err))
	}
	return hex.EncodeToString(b)
}
