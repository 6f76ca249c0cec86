package service

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/fileshare-backend/internal/auth/middleware"
	apperrors "github.com/lk2023060901/fileshare-backend/internal/pkg/errors"
	"github.com/lk2023060901/fileshare-backend/internal/pkg/logger"
	"github.com/lk2023060901/fileshare-backend/internal/pkg/response"
	"github.com/lk2023060901/fileshare-backend/internal/transfer/biz"
	"go.uber.org/zap"
)

// UploadService exposes the chunked upload API
type UploadService struct {
	uc      *biz.SessionUseCase
	baseURL string
	logger  *logger.Logger
}

// NewUploadService creates the upload handlers
func NewUploadService(uc *biz.SessionUseCase, baseURL string, lgr *logger.Logger) *UploadService {
	if lgr == nil {
		lgr = logger.L()
	}
	return &UploadService{uc: uc, baseURL: baseURL, logger: lgr}
}

type InitUploadRequest struct {
	Filename string           `json:"filename" binding:"required"`
	FileSize int64            `json:"file_size" binding:"required"`
	MimeType string           `json:"mime_type"`
	Policy   biz.UploadPolicy `json:"policy"`
}

type InitUploadResponse struct {
	SessionID   string    `json:"session_id"`
	ChunkSize   int64     `json:"chunk_size"`
	TotalChunks int       `json:"total_chunks"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type ChunkResponse struct {
	Index    int   `json:"index"`
	Received int64 `json:"received"`
}

type MergeResponse struct {
	File     *biz.FileView `json:"file"`
	ShareURL string        `json:"share_url"`
}

// InitUpload starts a chunked upload session
// POST /api/v1/files/uploads
func (s *UploadService) InitUpload(c *gin.Context) {
	var req InitUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	ownerID, _ := middleware.GetUserID(c)

	session, err := s.uc.InitUpload(c.Request.Context(), &biz.InitUploadRequest{
		OwnerID:  ownerID,
		Filename: req.Filename,
		FileSize: req.FileSize,
		MimeType: req.MimeType,
		Policy:   req.Policy,
	})
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Created(c, InitUploadResponse{
		SessionID:   session.ID,
		ChunkSize:   session.ChunkSize,
		TotalChunks: session.TotalChunks,
		ExpiresAt:   session.ExpiresAt,
	})
}

// UploadChunk ingests one chunk body
// PUT /api/v1/files/uploads/:id/chunks/:index
func (s *UploadService) UploadChunk(c *gin.Context) {
	sessionID := c.Param("id")
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.BadRequest(c, "chunk index must be an integer")
		return
	}

	n, err := s.uc.AcceptChunk(c.Request.Context(), sessionID, index, c.Request.Body)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Success(c, ChunkResponse{Index: index, Received: n})
}

// Merge finalizes a chunked upload into a shared file
// POST /api/v1/files/uploads/:id/merge
func (s *UploadService) Merge(c *gin.Context) {
	sessionID := c.Param("id")

	result, err := s.uc.Merge(c.Request.Context(), sessionID)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Created(c, MergeResponse{
		File:     result.File.View(),
		ShareURL: s.shareURL(result.File.ShareToken),
	})
}

// Upload handles a single-shot multipart upload for files small enough to
// skip the chunk protocol. Internally it still runs the session engine so
// both paths share validation, throttling and policy handling.
// POST /api/v1/files
func (s *UploadService) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "file field is required")
		return
	}

	policy := biz.UploadPolicy{
		Password:      c.PostForm("password"),
		BurnAfterRead: c.PostForm("burn_after_read") == "true",
	}
	if v := c.PostForm("expires_in_seconds"); v != "" {
		secs, err := strconv.ParseInt(v, 10, 64)
		if err != nil || secs < 0 {
			response.BadRequest(c, "expires_in_seconds must be a non-negative integer")
			return
		}
		policy.ExpiresInSeconds = secs
	}

	ownerID, _ := middleware.GetUserID(c)
	ctx := c.Request.Context()

	session, err := s.uc.InitUpload(ctx, &biz.InitUploadRequest{
		OwnerID:  ownerID,
		Filename: fileHeader.Filename,
		FileSize: fileHeader.Size,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Policy:   policy,
	})
	if err != nil {
		response.HandleError(c, err)
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		response.HandleError(c, apperrors.Wrap(err, apperrors.ErrBadRequest, "failed to open uploaded file"))
		return
	}
	defer src.Close()

	for i := 0; i < session.TotalChunks; i++ {
		if _, err := s.uc.AcceptChunk(ctx, session.ID, i, io.LimitReader(src, session.ChunkSize)); err != nil {
			response.HandleError(c, err)
			return
		}
	}

	result, err := s.uc.Merge(ctx, session.ID)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	s.logger.Info("single-shot upload completed",
		zap.String("filename", fileHeader.Filename),
		zap.Int64("size", fileHeader.Size))

	response.Created(c, MergeResponse{
		File:     result.File.View(),
		ShareURL: s.shareURL(result.File.ShareToken),
	})
}

func (s *UploadService) shareURL(token string) string {
	return fmt.Sprintf("%s/share/%s", s.baseURL, token)
}
