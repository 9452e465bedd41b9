package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"jobboard/internal/api/middleware"
	"jobboard/internal/auth"
	"jobboard/internal/authz"
	"jobboard/internal/config"
)

// RegisterRoutes 注册 /api 下的全部业务路由。
func RegisterRoutes(
	router *gin.Engine,
	db *gorm.DB,
	authService *auth.AuthService,
	redisClient redis.UniversalClient,
	storageClient ObjectStorage,
	asynqClient taskEnqueuer,
	logger *slog.Logger,
	cfg *config.Config,
) {
	authHandler := NewAuthHandler(db, authService, redisClient, logger,
		cfg.Auth.LoginRateLimitPerHour, cfg.Auth.LoginLockThreshold, cfg.Auth.LoginLockTTL())
	resumeHandler := NewResumeHandler(db, asynqClient, logger)
	userHandler := NewUserHandler(db, asynqClient, logger)
	photoHandler := NewPhotoHandler(db, storageClient, asynqClient, logger,
		cfg.Upload.MaxBytes, cfg.Upload.ClamdAddr)

	authMiddleware := middleware.AuthMiddleware(authService, db)
	optionalAuth := middleware.OptionalAuthMiddleware(authService, db)
	requireModerator := middleware.Require(authz.ActionModerateResume)
	requireUserManager := middleware.Require(authz.ActionManageUsers)
	requireListAll := middleware.Require(authz.ActionListAllResumes)

	apiGroup := router.Group("/api")
	{
		authGroup := apiGroup.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
		}

		resumeGroup := apiGroup.Group("/resume")
		{
			resumeGroup.GET("/public", resumeHandler.ListPublicResumes)

			resumeGroup.POST("", authMiddleware, resumeHandler.CreateResume)
			resumeGroup.GET("/own", authMiddleware, resumeHandler.ListOwnResumes)
			resumeGroup.PATCH("/private", authMiddleware, resumeHandler.MakePrivate)
			resumeGroup.PATCH("/public", authMiddleware, resumeHandler.MakePublic)
			resumeGroup.PATCH("/status/:id", authMiddleware, resumeHandler.ChangeStatus)
			resumeGroup.PATCH("/:id", authMiddleware, resumeHandler.UpdateResume)
			resumeGroup.DELETE("/:id", authMiddleware, resumeHandler.DeleteResume)

			resumeGroup.GET("", authMiddleware, requireListAll, resumeHandler.ListAllResumes)
			resumeGroup.GET("/accept", authMiddleware, requireListAll, resumeHandler.ListApprovedResumes)
			resumeGroup.PATCH("/accept", authMiddleware, requireModerator, resumeHandler.AcceptResume)
			resumeGroup.PATCH("/reject", authMiddleware, requireModerator, resumeHandler.RejectResume)
		}

		photoGroup := apiGroup.Group("/photo")
		{
			photoGroup.GET("", optionalAuth, photoHandler.GetPhoto)
			photoGroup.POST("/upload", authMiddleware, photoHandler.UploadPhoto)
		}

		userGroup := apiGroup.Group("/user")
		userGroup.Use(authMiddleware, requireUserManager)
		{
			userGroup.GET("", userHandler.ListUsers)
			userGroup.PATCH("/blocked", userHandler.BlockUser)
			userGroup.PATCH("/unblock", userHandler.UnblockUser)
			userGroup.DELETE("/by-email/:email", userHandler.DeleteUser)
		}
	}
}
