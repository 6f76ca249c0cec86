package service

import (
	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/fileshare-backend/internal/auth/middleware"
	apperrors "github.com/lk2023060901/fileshare-backend/internal/pkg/errors"
	"github.com/lk2023060901/fileshare-backend/internal/pkg/logger"
	"github.com/lk2023060901/fileshare-backend/internal/pkg/response"
	"github.com/lk2023060901/fileshare-backend/internal/transfer/biz"
)

// FileService exposes owner-facing file management
type FileService struct {
	uc     *biz.FileUseCase
	logger *logger.Logger
}

// NewFileService creates the file management handlers
func NewFileService(uc *biz.FileUseCase, lgr *logger.Logger) *FileService {
	if lgr == nil {
		lgr = logger.L()
	}
	return &FileService{uc: uc, logger: lgr}
}

// ListMine lists the caller's active files
// GET /api/v1/files/mine
func (s *FileService) ListMine(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.HandleError(c, apperrors.New(apperrors.ErrUnauthorized))
		return
	}

	records, err := s.uc.ListByOwner(c.Request.Context(), userID)
	if err != nil {
		response.HandleError(c, err)
		return
	}

	views := make([]*biz.FileView, len(records))
	for i, record := range records {
		views[i] = record.View()
	}
	response.Success(c, gin.H{"files": views})
}

// Delete removes a file owned by the caller (admins may remove any)
// DELETE /api/v1/files/:id
func (s *FileService) Delete(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.HandleError(c, apperrors.New(apperrors.ErrUnauthorized))
		return
	}

	err := s.uc.Delete(c.Request.Context(), userID, middleware.IsAdmin(c), c.Param("id"))
	if err != nil {
		response.HandleError(c, err)
		return
	}

	response.Success(c, nil)
}
