package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lk2023060901/fileshare-backend/internal/auth"
	"github.com/lk2023060901/fileshare-backend/internal/auth/middleware"
	"github.com/lk2023060901/fileshare-backend/internal/conf"
	"github.com/lk2023060901/fileshare-backend/internal/pkg/logger"
	settingsservice "github.com/lk2023060901/fileshare-backend/internal/settings/service"
	"github.com/lk2023060901/fileshare-backend/internal/transfer/service"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type HTTPServer struct {
	server *http.Server
	logger *logger.Logger
}

func NewHTTPServer(
	config *conf.Config,
	log *logger.Logger,
	jwtManager *auth.JWTManager,
	redisClient *redis.Client,
	uploadService *service.UploadService,
	downloadService *service.DownloadService,
	fileService *service.FileService,
	settingsService *settingsservice.SettingsService,
) *HTTPServer {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log.Logger))
	router.Use(middleware.CORS())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	api := router.Group("/api/v1")

	// Uploads work for guests too; a valid token just attaches ownership.
	uploads := api.Group("/files", middleware.OptionalJWTAuth(jwtManager, log))
	{
		uploads.POST("", middleware.UploadRateLimiter(redisClient, log), uploadService.Upload)
		uploads.POST("/uploads", middleware.UploadRateLimiter(redisClient, log), uploadService.InitUpload)
		uploads.PUT("/uploads/:id/chunks/:index", uploadService.UploadChunk)
		uploads.POST("/uploads/:id/merge", uploadService.Merge)
	}

	// Share access is public.
	share := api.Group("", middleware.OptionalJWTAuth(jwtManager, log), middleware.DownloadRateLimiter(redisClient, log))
	{
		share.GET("/files/share/:token", downloadService.Preview)
		share.GET("/download/:token", downloadService.Download)
	}

	// Owner file management.
	owned := api.Group("/files", middleware.JWTAuth(jwtManager, log))
	{
		owned.GET("/mine", fileService.ListMine)
		owned.DELETE("/:id", fileService.Delete)
	}

	// Admin config.
	admin := api.Group("/admin", middleware.JWTAuth(jwtManager, log), middleware.RequireRole(auth.RoleAdmin))
	{
		admin.GET("/config", settingsService.GetConfig)
		admin.PUT("/config", settingsService.UpdateConfig)
	}

	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)

	return &HTTPServer{
		server: &http.Server{
			Addr:    addr,
			Handler: router,
		},
		logger: log,
	}
}

func (s *HTTPServer) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")
	return s.server.Shutdown(ctx)
}

func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
