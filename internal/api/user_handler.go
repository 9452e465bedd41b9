package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"

	"jobboard/internal/api/middleware"
	"jobboard/internal/api/validate"
	"jobboard/internal/database"
	"jobboard/internal/tasks"
)

// taskEnqueuer 抽象 asynq 客户端，便于测试注入。
type taskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// UserHandler 处理管理员侧的用户管理操作。
type UserHandler struct {
	db          *gorm.DB
	asynqClient taskEnqueuer
	logger      *slog.Logger
}

// NewUserHandler 构造 UserHandler。
func NewUserHandler(db *gorm.DB, asynqClient taskEnqueuer, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		db:          db,
		asynqClient: asynqClient,
		logger:      logger,
	}
}

// ListUsers 返回全部用户的公开投影，永不包含密码哈希。
func (h *UserHandler) ListUsers(c *gin.Context) {
	var users []database.User
	if err := h.db.WithContext(c.Request.Context()).Order("id").Find(&users).Error; err != nil {
		Internal(c, "failed to list users")
		return
	}

	items := make([]userResponse, 0, len(users))
	for _, u := range users {
		items = append(items, newUserResponse(u))
	}

	c.JSON(http.StatusOK, items)
}

type userEmailRequest struct {
	Email string `json:"email"`
}

// BlockUser 按邮箱封禁用户。重复封禁是幂等的。
func (h *UserHandler) BlockUser(c *gin.Context) {
	h.setBlocked(c, true)
}

// UnblockUser 按邮箱解封用户。对未封禁用户同样幂等。
func (h *UserHandler) UnblockUser(c *gin.Context) {
	h.setBlocked(c, false)
}

func (h *UserHandler) setBlocked(c *gin.Context, blocked bool) {
	var req userEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	var errs validate.Errors
	validate.RegisterEmail(&errs, req.Email)
	if !errs.Empty() {
		FailValidation(c, errs)
		return
	}

	ctx := c.Request.Context()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := h.findUserByEmail(c, email)
	if err != nil {
		return
	}

	if user.Blocked != blocked {
		if err := h.db.WithContext(ctx).Model(user).Update("blocked", blocked).Error; err != nil {
			Internal(c, "failed to update user")
			return
		}
	}

	c.Status(http.StatusNoContent)
}

// DeleteUser 按邮箱删除用户，级联删除其全部简历，
// 并入队异步清理对象存储中的照片。
func (h *UserHandler) DeleteUser(c *gin.Context) {
	email := strings.ToLower(strings.TrimSpace(c.Param("email")))

	var errs validate.Errors
	validate.RegisterEmail(&errs, email)
	if !errs.Empty() {
		FailValidation(c, errs)
		return
	}

	ctx := c.Request.Context()
	user, err := h.findUserByEmail(c, email)
	if err != nil {
		return
	}

	var resumeIDs []uint
	if err := h.db.WithContext(ctx).
		Model(&database.Resume{}).
		Where("user_id = ?", user.ID).
		Pluck("id", &resumeIDs).Error; err != nil {
		Internal(c, "failed to collect resumes")
		return
	}

	if err := h.db.WithContext(ctx).Unscoped().Delete(user).Error; err != nil {
		Internal(c, "failed to delete user")
		return
	}

	h.enqueuePhotoCleanup(c, resumeIDs)

	h.loggerFromContext(c).Info("user deleted",
		slog.String("email", email),
		slog.Int("resumes", len(resumeIDs)),
	)
	c.Status(http.StatusNoContent)
}

func (h *UserHandler) findUserByEmail(c *gin.Context, email string) (*database.User, error) {
	var user database.User
	if err := h.db.WithContext(c.Request.Context()).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Fail(c, http.StatusBadRequest, "not_found", "user not found")
			return nil, err
		}
		Internal(c, "failed to query user")
		return nil, err
	}
	return &user, nil
}

// enqueuePhotoCleanup 尽力入队照片清理；失败只记日志，不影响请求结果。
func (h *UserHandler) enqueuePhotoCleanup(c *gin.Context, resumeIDs []uint) {
	if h.asynqClient == nil || len(resumeIDs) == 0 {
		return
	}

	prefixes := make([]string, 0, len(resumeIDs))
	for _, id := range resumeIDs {
		prefixes = append(prefixes, photoObjectPrefix(id))
	}

	task, err := tasks.NewStorageCleanupTask(nil, prefixes, middleware.GetCorrelationID(c))
	if err != nil {
		h.loggerFromContext(c).Error("create cleanup task failed", slog.Any("error", err))
		return
	}
	if _, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(5)); err != nil {
		h.loggerFromContext(c).Error("enqueue cleanup task failed", slog.Any("error", err))
	}
}

func photoObjectPrefix(resumeID uint) string {
	return fmt.Sprintf("resume-photos/%d/", resumeID)
}

func (h *UserHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}
