package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/dutchcoders/go-clamd"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"gorm.io/gorm"

	"jobboard/internal/api/middleware"
	"jobboard/internal/authz"
	"jobboard/internal/database"
	"jobboard/internal/tasks"
)

// ObjectStorage 是照片处理依赖的对象存储能力，便于测试注入。
type ObjectStorage interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
	ReadObject(ctx context.Context, objectKey string) (io.ReadCloser, error)
	DeleteObject(ctx context.Context, objectKey string) error
}

// PhotoHandler 负责简历照片的上传与读取。
type PhotoHandler struct {
	db          *gorm.DB
	storage     ObjectStorage
	asynqClient taskEnqueuer
	logger      *slog.Logger
	maxBytes    int64
	clamdAddr   string
}

// NewPhotoHandler 构造 PhotoHandler。clamdAddr 为空时跳过病毒扫描。
func NewPhotoHandler(db *gorm.DB, storage ObjectStorage, asynqClient taskEnqueuer, logger *slog.Logger, maxBytes int64, clamdAddr string) *PhotoHandler {
	return &PhotoHandler{
		db:          db,
		storage:     storage,
		asynqClient: asynqClient,
		logger:      logger,
		maxBytes:    maxBytes,
		clamdAddr:   clamdAddr,
	}
}

// UploadPhoto 校验并上传简历照片，整体替换旧照片。
// 大小与内容嗅探在任何存储访问之前完成；
// 声明的 Content-Type 不参与判定。
func (h *PhotoHandler) UploadPhoto(c *gin.Context) {
	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	if !authz.Can(p, authz.ActionSubmitResume) {
		Forbidden(c, "user is blocked")
		return
	}

	resumeID, err := strconv.ParseUint(c.PostForm("resumeId"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid resume id")
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, "missing file")
		return
	}

	if file.Size > h.maxBytes {
		Fail(c, http.StatusBadRequest, "file.too_large",
			fmt.Sprintf("photo must be at most %d bytes", h.maxBytes))
		return
	}

	sniffed, err := h.sniffContentType(file)
	if err != nil {
		Internal(c, "failed to read file")
		return
	}
	if !isImageContentType(sniffed) {
		Fail(c, http.StatusBadRequest, "file.not_image", "file content is not a recognized image")
		return
	}

	if h.clamdAddr != "" {
		if clean, err := h.scanFile(file); err != nil {
			h.loggerFromContext(c).Error("scan file failed", slog.Any("error", err))
			Internal(c, "failed to scan file")
			return
		} else if !clean {
			Fail(c, http.StatusBadRequest, "file.malicious", "malicious file detected")
			return
		}
	}

	ctx := c.Request.Context()
	var resume database.Resume
	if err := h.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", uint(resumeID), p.UserID).
		First(&resume).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "resume not found")
			return
		}
		Internal(c, "failed to query resume")
		return
	}

	reader, err := file.Open()
	if err != nil {
		Internal(c, "failed to open file")
		return
	}
	defer reader.Close()

	objectKey := fmt.Sprintf("%s%s", photoObjectPrefix(resume.ID), uuid.NewString())
	if _, err := h.storage.UploadFile(ctx, objectKey, reader, file.Size, sniffed); err != nil {
		h.loggerFromContext(c).Error("upload photo failed", slog.Any("error", err))
		Internal(c, "failed to upload photo")
		return
	}

	var oldKey string
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var photo database.ResumePhoto
		err := tx.Where("resume_id = ?", resume.ID).First(&photo).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&database.ResumePhoto{
				ResumeID:    resume.ID,
				ObjectKey:   objectKey,
				ContentType: sniffed,
				FileName:    file.Filename,
				Size:        file.Size,
			}).Error
		case err != nil:
			return err
		default:
			oldKey = photo.ObjectKey
			return tx.Model(&photo).Updates(map[string]any{
				"object_key":   objectKey,
				"content_type": sniffed,
				"file_name":    file.Filename,
				"size":         file.Size,
			}).Error
		}
	})
	if err != nil {
		h.loggerFromContext(c).Error("save photo metadata failed", slog.Any("error", err))
		// 元数据写入失败时直接回收刚上传的对象。
		_ = h.storage.DeleteObject(ctx, objectKey)
		Internal(c, "failed to save photo")
		return
	}

	if oldKey != "" && oldKey != objectKey {
		h.enqueueCleanup(c, []string{oldKey}, nil)
	}

	c.Status(http.StatusNoContent)
}

// GetPhoto 按简历 id 返回照片流；没有照片时返回 204。
// 可见性遵循简历的可见性矩阵。
func (h *PhotoHandler) GetPhoto(c *gin.Context) {
	resumeID, err := strconv.ParseUint(c.Query("resumeId"), 10, 64)
	if err != nil {
		BadRequest(c, "invalid resume id")
		return
	}

	ctx := c.Request.Context()
	var resume database.Resume
	if err := h.db.WithContext(ctx).First(&resume, uint(resumeID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			Fail(c, http.StatusBadRequest, "not_found", "resume not found")
			return
		}
		Internal(c, "failed to query resume")
		return
	}

	var principal *authz.Principal
	if p, ok := middleware.PrincipalFromContext(c); ok {
		principal = &p
	}
	if !authz.CanSeeResume(principal, resume.UserID, resume.Moderation, resume.Visibility) {
		Fail(c, http.StatusBadRequest, "not_found", "resume not found")
		return
	}

	var photo database.ResumePhoto
	if err := h.db.WithContext(ctx).Where("resume_id = ?", resume.ID).First(&photo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Status(http.StatusNoContent)
			return
		}
		Internal(c, "failed to query photo")
		return
	}

	reader, err := h.storage.ReadObject(ctx, photo.ObjectKey)
	if err != nil {
		h.loggerFromContext(c).Error("read photo failed", slog.Any("error", err))
		Internal(c, "failed to read photo")
		return
	}
	defer reader.Close()

	extraHeaders := map[string]string{
		"Content-Disposition": fmt.Sprintf("inline; filename=%q", photo.FileName),
	}
	c.DataFromReader(http.StatusOK, photo.Size, photo.ContentType, reader, extraHeaders)
}

// sniffContentType 读取文件头部并嗅探真实类型。
func (h *PhotoHandler) sniffContentType(file *multipart.FileHeader) (string, error) {
	reader, err := file.Open()
	if err != nil {
		return "", err
	}
	defer reader.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(reader, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}

func isImageContentType(contentType string) bool {
	switch contentType {
	case "image/png", "image/jpeg", "image/gif", "image/webp", "image/bmp":
		return true
	default:
		return false
	}
}

// scanFile 通过 clamd 扫描上传内容，返回是否干净。
func (h *PhotoHandler) scanFile(file *multipart.FileHeader) (bool, error) {
	reader, err := file.Open()
	if err != nil {
		return false, err
	}
	defer reader.Close()

	clamdClient := clamd.NewClamd(h.clamdAddr)
	abortChan := make(chan bool)
	defer close(abortChan)

	scanChan, err := clamdClient.ScanStream(reader, abortChan)
	if err != nil {
		return false, err
	}

	for result := range scanChan {
		if result.Status != clamd.RES_OK {
			return false, nil
		}
	}
	return true, nil
}

func (h *PhotoHandler) enqueueCleanup(c *gin.Context, keys, prefixes []string) {
	if h.asynqClient == nil {
		return
	}
	task, err := tasks.NewStorageCleanupTask(keys, prefixes, middleware.GetCorrelationID(c))
	if err != nil {
		h.loggerFromContext(c).Error("create cleanup task failed", slog.Any("error", err))
		return
	}
	if _, err := h.asynqClient.Enqueue(task, asynq.MaxRetry(5)); err != nil {
		h.loggerFromContext(c).Error("enqueue cleanup task failed", slog.Any("error", err))
	}
}

func (h *PhotoHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}
