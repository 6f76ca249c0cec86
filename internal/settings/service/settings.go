package service

import (
	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/fileshare-backend/internal/pkg/logger"
	"github.com/lk2023060901/fileshare-backend/internal/pkg/response"
	"github.com/lk2023060901/fileshare-backend/internal/settings/biz"
)

// SettingsService exposes the admin config API
type SettingsService struct {
	uc     *biz.SettingsUseCase
	logger *logger.Logger
}

// NewSettingsService creates the admin config handlers
func NewSettingsService(uc *biz.SettingsUseCase, lgr *logger.Logger) *SettingsService {
	if lgr == nil {
		lgr = logger.L()
	}
	return &SettingsService{uc: uc, logger: lgr}
}

// GetConfig returns the current transfer limits
// GET /api/v1/admin/config
func (s *SettingsService) GetConfig(c *gin.Context) {
	cfg, err := s.uc.Get(c.Request.Context())
	if err != nil {
		response.HandleError(c, err)
		return
	}
	response.Success(c, cfg)
}

// UpdateConfig replaces the transfer limits. New limits apply to transfers
// started afterwards; in-flight streams keep the rate they started with.
// PUT /api/v1/admin/config
func (s *SettingsService) UpdateConfig(c *gin.Context) {
	var cfg biz.SystemConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := s.uc.Update(c.Request.Context(), &cfg); err != nil {
		response.HandleError(c, err)
		return
	}

	response.Success(c, cfg)
}
