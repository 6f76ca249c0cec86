package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/fileshare-backend/internal/auth/middleware"
	apperrors "github.com/lk2023060901/fileshare-backend/internal/pkg/errors"
	"github.com/lk2023060901/fileshare-backend/internal/pkg/httprange"
	"github.com/lk2023060901/fileshare-backend/internal/pkg/logger"
	"github.com/lk2023060901/fileshare-backend/internal/pkg/response"
	"github.com/lk2023060901/fileshare-backend/internal/pkg/throttle"
	"github.com/lk2023060901/fileshare-backend/internal/transfer/biz"
	"github.com/lk2023060901/fileshare-backend/internal/transfer/storage"
	"go.uber.org/zap"
)

// DownloadService serves shared files: metadata preview and the
// range-capable, throttled download stream.
type DownloadService struct {
	files  *biz.FileUseCase
	blobs  storage.BlobStore
	limits biz.LimitSource
	logger *logger.Logger
}

// NewDownloadService creates the download handlers
func NewDownloadService(files *biz.FileUseCase, blobs storage.BlobStore, limits biz.LimitSource, lgr *logger.Logger) *DownloadService {
	if lgr == nil {
		lgr = logger.L()
	}
	return &DownloadService{files: files, blobs: blobs, limits: limits, logger: lgr}
}

// PreviewResponse is the share-page payload. When the password gate is
// closed only the flag is populated.
type PreviewResponse struct {
	RequiresPassword bool          `json:"requires_password"`
	File             *biz.FileView `json:"file,omitempty"`
}

// Preview returns shared-file metadata for the share page
// GET /api/v1/files/share/:token
func (s *DownloadService) Preview(c *gin.Context) {
	token := c.Param("token")
	password := filePassword(c)

	decision, err := s.files.CheckAccess(c.Request.Context(), token, password, accessMeta(c))
	if err != nil {
		response.HandleError(c, err)
		return
	}

	if decision.RequiresPassword && !decision.PasswordValid {
		if password == "" {
			// The share page needs to know a password prompt is due, so
			// this is a success response, not a 401.
			response.Success(c, PreviewResponse{RequiresPassword: true})
			return
		}
		response.HandleError(c, apperrors.New(apperrors.ErrInvalidPassword))
		return
	}

	s.files.RecordPreview(c.Request.Context(), decision.Record.ID, accessMeta(c))

	response.Success(c, PreviewResponse{
		RequiresPassword: decision.RequiresPassword,
		File:             decision.Record.View(),
	})
}

// Download streams the file content. Range requests resume from any offset;
// only a download starting at byte zero counts toward the download counter.
// A burn-after-read file is consumed when the stream delivers its final
// byte.
// GET /api/v1/download/:token
func (s *DownloadService) Download(c *gin.Context) {
	token := c.Param("token")
	password := filePassword(c)
	ctx := c.Request.Context()

	decision, err := s.files.CheckAccess(ctx, token, password, accessMeta(c))
	if err != nil {
		response.HandleError(c, err)
		return
	}
	if decision.RequiresPassword && !decision.PasswordValid {
		if password == "" {
			response.HandleError(c, apperrors.New(apperrors.ErrPasswordRequired))
		} else {
			response.HandleError(c, apperrors.New(apperrors.ErrInvalidPassword))
		}
		return
	}
	record := decision.Record

	rng, err := httprange.Parse(c.GetHeader("Range"), record.FileSize)
	if err != nil {
		// A 416 carries the total size in Content-Range and no body.
		c.Header("Content-Range", fmt.Sprintf("bytes */%d", record.FileSize))
		c.Status(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	start, end := int64(0), record.FileSize-1
	status := http.StatusOK
	if rng != nil {
		start, end = rng.Start, rng.End
		status = http.StatusPartialContent
	}

	rc, err := s.blobs.GetRange(ctx, record.BlobKey, start, end)
	if err != nil {
		if errors.Is(err, storage.ErrBlobNotFound) {
			s.logger.Error("file record has no blob",
				zap.String("file_id", record.ID),
				zap.String("blob_key", record.BlobKey))
			response.HandleError(c, apperrors.New(apperrors.ErrFileNotFound))
			return
		}
		response.HandleError(c, apperrors.Wrap(err, apperrors.ErrStorageFailed))
		return
	}
	defer rc.Close()

	limits, err := s.limits.TransferLimits(ctx)
	if err != nil {
		// A limit-store fault degrades to an unthrottled stream.
		s.logger.Error("failed to read transfer limits", zap.Error(err))
		limits = biz.TransferLimits{}
	}

	contentType := record.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	c.Header("Content-Length", fmt.Sprintf("%d", end-start+1))
	c.Header("Accept-Ranges", "bytes")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", record.Filename))
	if status == http.StatusPartialContent {
		c.Header("Content-Range", rng.ContentRange(record.FileSize))
	}

	// A resumed range is a continuation of a download already counted.
	if rng == nil || rng.Start == 0 {
		s.files.RecordDownload(ctx, record.ID, accessMeta(c))
	}

	c.Status(status)
	n, copyErr := io.Copy(c.Writer, throttle.NewReader(ctx, rc, limits.DownloadBytesPerSec))
	if copyErr != nil {
		// Usually the client going away; the response is underway so
		// there is nothing to send back.
		s.logger.Debug("download stream interrupted",
			zap.String("file_id", record.ID),
			zap.Int64("bytes_sent", n),
			zap.Error(copyErr))
		return
	}

	// Burn only when the final byte actually went out. The client may close
	// the connection the instant the body completes, which cancels the
	// request context; delivery already happened, so the transition runs
	// detached from it.
	if end == record.FileSize-1 && n == end-start+1 {
		burnCtx := context.WithoutCancel(ctx)
		if _, err := s.files.ConsumeBurnAfterRead(burnCtx, record); err != nil {
			s.logger.Error("burn-after-read transition failed",
				zap.String("file_id", record.ID),
				zap.Error(err))
		}
	}
}

// filePassword reads the share password from the query string or header.
// The short "p" form is what share links embed.
func filePassword(c *gin.Context) string {
	if p := c.Query("password"); p != "" {
		return p
	}
	if p := c.Query("p"); p != "" {
		return p
	}
	return c.GetHeader("X-File-Password")
}

func accessMeta(c *gin.Context) biz.AccessMeta {
	meta := biz.AccessMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if userID, ok := middleware.GetUserID(c); ok {
		meta.UserID = userID
	}
	return meta
}
