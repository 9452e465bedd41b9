package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"jobboard/internal/api/middleware"
	"jobboard/internal/api/validate"
	"jobboard/internal/authz"
	"jobboard/internal/database"
	"jobboard/internal/tasks"
)

// ResumeHandler 负责简历的提交、修改、审核与可见性管理。
type ResumeHandler struct {
	db          *gorm.DB
	asynqClient taskEnqueuer
	logger      *slog.Logger
}

// NewResumeHandler 构造 ResumeHandler。
func NewResumeHandler(db *gorm.DB, asynqClient taskEnqueuer, logger *slog.Logger) *ResumeHandler {
	return &ResumeHandler{
		db:          db,
		asynqClient: asynqClient,
		logger:      logger,
	}
}

var errInvalidResumeID = errors.New("invalid resume id")

type educationPeriodPayload struct {
	ID          uint       `json:"id"`
	Name        string     `json:"name"`
	Degree      string     `json:"degree"`
	City        string     `json:"city"`
	Description string     `json:"description"`
	From        *time.Time `json:"from"`
	To          *time.Time `json:"to"`
}

type workPeriodPayload struct {
	ID          uint       `json:"id"`
	Position    string     `json:"position"`
	Employer    string     `json:"employer"`
	City        string     `json:"city"`
	Description string     `json:"description"`
	From        *time.Time `json:"from"`
	To          *time.Time `json:"to"`
}

type resumePayload struct {
	FullName            string                   `json:"full_name"`
	ProgrammingLanguage string                   `json:"programming_language"`
	LanguageLevel       string                   `json:"language_level"`
	Country             string                   `json:"country"`
	City                string                   `json:"city"`
	Skills              string                   `json:"skills"`
	Links               *[]string                `json:"links"`
	EducationPeriods    []educationPeriodPayload `json:"education_periods"`
	WorkPeriods         []workPeriodPayload      `json:"work_periods"`
}

type educationPeriodResponse struct {
	ID          uint       `json:"id"`
	Name        string     `json:"name"`
	Degree      string     `json:"degree,omitempty"`
	City        string     `json:"city"`
	Description string     `json:"description,omitempty"`
	From        time.Time  `json:"from"`
	To          *time.Time `json:"to,omitempty"`
}

type workPeriodResponse struct {
	ID          uint       `json:"id"`
	Position    string     `json:"position"`
	Employer    string     `json:"employer"`
	City        string     `json:"city"`
	Description string     `json:"description,omitempty"`
	From        time.Time  `json:"from"`
	To          *time.Time `json:"to,omitempty"`
}

type resumeResponse struct {
	ID                  uint                      `json:"id"`
	UserID              uint                      `json:"user_id"`
	FullName            string                    `json:"full_name"`
	ProgrammingLanguage string                    `json:"programming_language"`
	LanguageLevel       string                    `json:"language_level"`
	Country             string                    `json:"country"`
	City                string                    `json:"city"`
	Skills              string                    `json:"skills"`
	Links               []string                  `json:"links,omitempty"`
	Moderation          string                    `json:"moderation"`
	Visibility          string                    `json:"visibility"`
	EducationPeriods    []educationPeriodResponse `json:"education_periods"`
	WorkPeriods         []workPeriodResponse      `json:"work_periods"`
	CreatedAt           time.Time                 `json:"created_at"`
	UpdatedAt           time.Time                 `json:"updated_at"`
}

func newResumeResponse(resume database.Resume) resumeResponse {
	var links []string
	if len(resume.Links) > 0 {
		_ = json.Unmarshal(resume.Links, &links)
	}

	education := make([]educationPeriodResponse, 0, len(resume.EducationPeriods))
	for _, p := range resume.EducationPeriods {
		education = append(education, educationPeriodResponse{
			ID:          p.ID,
			Name:        p.Name,
			Degree:      p.Degree,
			City:        p.City,
			Description: p.Description,
			From:        p.From,
			To:          p.To,
		})
	}

	work := make([]workPeriodResponse, 0, len(resume.WorkPeriods))
	for _, p := range resume.WorkPeriods {
		work = append(work, workPeriodResponse{
			ID:          p.ID,
			Position:    p.Position,
			Employer:    p.Employer,
			City:        p.City,
			Description: p.Description,
			From:        p.From,
			To:          p.To,
		})
	}

	return resumeResponse{
		ID:                  resume.ID,
		UserID:              resume.UserID,
		FullName:            resume.FullName,
		ProgrammingLanguage: resume.ProgrammingLanguage,
		LanguageLevel:       resume.LanguageLevel,
		Country:             resume.Country,
		City:                resume.City,
		Skills:              resume.Skills,
		Links:               links,
		Moderation:          resume.Moderation,
		Visibility:          resume.Visibility,
		EducationPeriods:    education,
		WorkPeriods:         work,
		CreatedAt:           resume.CreatedAt,
		UpdatedAt:           resume.UpdatedAt,
	}
}

// validateResumePayload 聚合校验简历字段。
// required 为 false 时（部分更新）只校验已提供的字段。
func validateResumePayload(errs *validate.Errors, req resumePayload, required bool) {
	field := func(name, value string, maxLen int) {
		chain := validate.Field(errs, name, value)
		if required {
			chain.Required().MaxLen(maxLen)
		} else if value != "" {
			chain.MaxLen(maxLen)
		}
	}

	field("full_name", req.FullName, 100)
	field("programming_language", req.ProgrammingLanguage, 50)
	field("language_level", req.LanguageLevel, 50)
	field("country", req.Country, 100)
	field("city", req.City, 100)
	field("skills", req.Skills, 300)

	if req.Links != nil {
		for _, link := range *req.Links {
			validate.Field(errs, "links", link).Required().MaxLen(300)
		}
	}

	for _, p := range req.EducationPeriods {
		validateEducationPeriod(errs, p, required || p.ID == 0)
	}
	for _, p := range req.WorkPeriods {
		validateWorkPeriod(errs, p, required || p.ID == 0)
	}
}

func validateEducationPeriod(errs *validate.Errors, p educationPeriodPayload, required bool) {
	if required {
		validate.Field(errs, "education.name", p.Name).Required().MaxLen(150)
		validate.Field(errs, "education.city", p.City).Required().MaxLen(100)
		if p.From == nil || p.From.IsZero() {
			*errs = append(*errs, validate.Violation{
				Message: "education period must have a start date",
				Code:    "education.from.required",
			})
		}
	} else {
		if p.Name != "" {
			validate.Field(errs, "education.name", p.Name).MaxLen(150)
		}
		if p.City != "" {
			validate.Field(errs, "education.city", p.City).MaxLen(100)
		}
	}
	if p.Degree != "" {
		validate.Field(errs, "education.degree", p.Degree).MaxLen(100)
	}
	if p.Description != "" {
		validate.Field(errs, "education.description", p.Description).MaxLen(300)
	}
}

func validateWorkPeriod(errs *validate.Errors, p workPeriodPayload, required bool) {
	if required {
		validate.Field(errs, "work.position", p.Position).Required().MaxLen(150)
		validate.Field(errs, "work.employer", p.Employer).Required().MaxLen(150)
		validate.Field(errs, "work.city", p.City).Required().MaxLen(100)
		if p.From == nil || p.From.IsZero() {
			*errs = append(*errs, validate.Violation{
				Message: "work period must have a start date",
				Code:    "work.from.required",
			})
		}
	} else {
		if p.Position != "" {
			validate.Field(errs, "work.position", p.Position).MaxLen(150)
		}
		if p.Employer != "" {
			validate.Field(errs, "work.employer", p.Employer).MaxLen(150)
		}
		if p.City != "" {
			validate.Field(errs, "work.city", p.City).MaxLen(100)
		}
	}
	if p.Description != "" {
		validate.Field(errs, "work.description", p.Description).MaxLen(300)
	}
}

func linksJSON(links []string) (datatypes.JSON, error) {
	data, err := json.Marshal(links)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

// CreateResume 以待审核/私有状态保存一份新简历及其经历子记录。
func (h *ResumeHandler) CreateResume(c *gin.Context) {
	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	if !authz.Can(p, authz.ActionSubmitResume) {
		Forbidden(c, "user is blocked")
		return
	}

	var req resumePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	var errs validate.Errors
	validateResumePayload(&errs, req, true)
	if !errs.Empty() {
		FailValidation(c, errs)
		return
	}

	resume := database.Resume{
		UserID:              p.UserID,
		FullName:            req.FullName,
		ProgrammingLanguage: req.ProgrammingLanguage,
		LanguageLevel:       req.LanguageLevel,
		Country:             req.Country,
		City:                req.City,
		Skills:              req.Skills,
		Moderation:          database.ModerationPending,
		Visibility:          database.VisibilityPrivate,
	}

	if req.Links != nil {
		data, err := linksJSON(*req.Links)
		if err != nil {
			BadRequest(c, "invalid links")
			return
		}
		resume.Links = data
	}

	for _, pp := range req.EducationPeriods {
		resume.EducationPeriods = append(resume.EducationPeriods, database.EducationPeriod{
			Name:        pp.Name,
			Degree:      pp.Degree,
			City:        pp.City,
			Description: pp.Description,
			From:        *pp.From,
			To:          pp.To,
		})
	}
	for _, pp := range req.WorkPeriods {
		resume.WorkPeriods = append(resume.WorkPeriods, database.WorkPeriod{
			Position:    pp.Position,
			Employer:    pp.Employer,
			City:        pp.City,
			Description: pp.Description,
			From:        *pp.From,
			To:          pp.To,
		})
	}

	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Create(&resume).Error; err != nil {
		h.loggerFromContext(c).Error("create resume failed", slog.Any("error", err))
		Internal(c, "failed to create resume")
		return
	}

	c.JSON(http.StatusOK, newResumeResponse(resume))
}

// UpdateResume 对指定简历做部分更新：提供的非空字段覆盖原值，
// 缺失字段保持不变；经历子记录按 id 匹配后同样按字段覆盖。
func (h *ResumeHandler) UpdateResume(c *gin.Context) {
	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	if !authz.Can(p, authz.ActionSubmitResume) {
		Forbidden(c, "user is blocked")
		return
	}

	var req resumePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	var errs validate.Errors
	validateResumePayload(&errs, req, false)
	if !errs.Empty() {
		FailValidation(c, errs)
		return
	}

	ctx := c.Request.Context()
	resume, err := h.getResumeForUser(c, c.Param("id"), p.UserID)
	if err != nil {
		return
	}

	updates := map[string]any{}
	setIfPresent := func(column, value string) {
		if value != "" {
			updates[column] = value
		}
	}
	setIfPresent("full_name", req.FullName)
	setIfPresent("programming_language", req.ProgrammingLanguage)
	setIfPresent("language_level", req.LanguageLevel)
	setIfPresent("country", req.Country)
	setIfPresent("city", req.City)
	setIfPresent("skills", req.Skills)
	if req.Links != nil {
		data, err := linksJSON(*req.Links)
		if err != nil {
			BadRequest(c, "invalid links")
			return
		}
		updates["links"] = data
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(resume).Updates(updates).Error; err != nil {
				return err
			}
		}
		for _, pp := range req.EducationPeriods {
			if err := patchEducationPeriod(tx, resume.ID, pp); err != nil {
				return err
			}
		}
		for _, pp := range req.WorkPeriods {
			if err := patchWorkPeriod(tx, resume.ID, pp); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		h.loggerFromContext(c).Error("update resume failed", slog.Any("error", err))
		Internal(c, "failed to update resume")
		return
	}

	c.Status(http.StatusNoContent)
}

// patchEducationPeriod 按 id 匹配子记录并覆盖提供的字段；
// id 为 0 时新增；不属于该简历的 id 被忽略。
func patchEducationPeriod(tx *gorm.DB, resumeID uint, pp educationPeriodPayload) error {
	if pp.ID == 0 {
		period := database.EducationPeriod{
			ResumeID:    resumeID,
			Name:        pp.Name,
			Degree:      pp.Degree,
			City:        pp.City,
			Description: pp.Description,
			To:          pp.To,
		}
		if pp.From != nil {
			period.From = *pp.From
		}
		return tx.Create(&period).Error
	}

	var period database.EducationPeriod
	err := tx.Where("id = ? AND resume_id = ?", pp.ID, resumeID).First(&period).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	updates := map[string]any{}
	if pp.Name != "" {
		updates["name"] = pp.Name
	}
	if pp.Degree != "" {
		updates["degree"] = pp.Degree
	}
	if pp.City != "" {
		updates["city"] = pp.City
	}
	if pp.Description != "" {
		updates["description"] = pp.Description
	}
	if pp.From != nil {
		updates["from"] = *pp.From
	}
	if pp.To != nil {
		updates["to"] = *pp.To
	}
	if len(updates) == 0 {
		return nil
	}
	return tx.Model(&period).Updates(updates).Error
}

func patchWorkPeriod(tx *gorm.DB, resumeID uint, pp workPeriodPayload) error {
	if pp.ID == 0 {
		period := database.WorkPeriod{
			ResumeID:    resumeID,
			Position:    pp.Position,
			Employer:    pp.Employer,
			City:        pp.City,
			Description: pp.Description,
			To:          pp.To,
		}
		if pp.From != nil {
			period.From = *pp.From
		}
		return tx.Create(&period).Error
	}

	var period database.WorkPeriod
	err := tx.Where("id = ? AND resume_id = ?", pp.ID, resumeID).First(&period).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	updates := map[string]any{}
	if pp.Position != "" {
		updates["position"] = pp.Position
	}
	if pp.Employer != "" {
		updates["employer"] = pp.Employer
	}
	if pp.City != "" {
		updates["city"] = pp.City
	}
	if pp.Description != "" {
		updates["description"] = pp.Description
	}
	if pp.From != nil {
		updates["from"] = *pp.From
	}
	if pp.To != nil {
		updates["to"] = *pp.To
	}
	if len(updates) == 0 {
		return nil
	}
	return tx.Model(&period).Updates(updates).Error
}

// DeleteResume 硬删除指定简历，级联删除其子记录与照片行，
// 并入队清理对象存储中的照片。
func (h *ResumeHandler) DeleteResume(c *gin.Context) {
	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	if !authz.Can(p, authz.ActionSubmitResume) {
		Forbidden(c, "user is blocked")
		return
	}

	resume, err := h.getResumeForUser(c, c.Param("id"), p.UserID)
	if err != nil {
		return
	}

	ctx := c.Request.Context()
	if err := h.db.WithContext(ctx).Unscoped().Delete(&database.Resume{}, resume.ID).Error; err != nil {
		h.loggerFromContext(c).Error("delete resume failed", slog.Any("error", err))
		Internal(c, "failed to delete resume")
		return
	}

	h.enqueueCleanup(c, nil, []string{photoObjectPrefix(resume.ID)})

	c.Status(http.StatusNoContent)
}

type resumeIDRequest struct {
	ID uint `json:"id"`
}

// AcceptResume 将简历标记为审核通过。重复通过是幂等的，
// 已拒绝的简历可以被重新通过。
func (h *ResumeHandler) AcceptResume(c *gin.Context) {
	h.setModeration(c, database.ModerationApproved)
}

// RejectResume 将简历标记为已拒绝。简历本身保留，只做标记。
func (h *ResumeHandler) RejectResume(c *gin.Context) {
	h.setModeration(c, database.ModerationRejected)
}

func (h *ResumeHandler) setModeration(c *gin.Context, moderation string) {
	var req resumeIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	var resume database.Resume
	if err := h.db.WithContext(ctx).First(&resume, req.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "resume not found")
			return
		}
		Internal(c, "failed to query resume")
		return
	}

	if resume.Moderation != moderation {
		if err := h.db.WithContext(ctx).Model(&resume).Update("moderation", moderation).Error; err != nil {
			Internal(c, "failed to update resume")
			return
		}
	}

	c.Status(http.StatusNoContent)
}

// MakePrivate 将已审核通过的简历设为私有。
func (h *ResumeHandler) MakePrivate(c *gin.Context) {
	h.changeVisibilityByID(c, database.VisibilityPrivate)
}

// MakePublic 将已审核通过的简历设为公开。
func (h *ResumeHandler) MakePublic(c *gin.Context) {
	h.changeVisibilityByID(c, database.VisibilityPublic)
}

func (h *ResumeHandler) changeVisibilityByID(c *gin.Context, visibility string) {
	var req resumeIDRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	h.changeVisibility(c, strconv.FormatUint(uint64(req.ID), 10), visibility)
}

// ChangeStatus 兼容旧的状态端点：请求体携带目标状态。
// 显式设置 pending 在任何状态下都是校验错误。
func (h *ResumeHandler) ChangeStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	switch req.Status {
	case database.VisibilityPrivate, database.VisibilityPublic:
		h.changeVisibility(c, c.Param("id"), req.Status)
	case database.ModerationPending:
		FailValidation(c, validate.Errors{{
			Message: "cannot set status to pending",
			Code:    "status.pending",
		}})
	default:
		FailValidation(c, validate.Errors{{
			Message: "status must be private or public",
			Code:    "status.invalid",
		}})
	}
}

func (h *ResumeHandler) changeVisibility(c *gin.Context, idParam, visibility string) {
	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	if !authz.Can(p, authz.ActionChangeVisibility) {
		Forbidden(c, "user is blocked")
		return
	}

	resume, err := h.getResumeForUser(c, idParam, p.UserID)
	if err != nil {
		return
	}

	if resume.Moderation != database.ModerationApproved {
		Fail(c, http.StatusBadRequest, "under_review", "resume is still under review")
		return
	}

	if resume.Visibility != visibility {
		if err := h.db.WithContext(c.Request.Context()).Model(resume).Update("visibility", visibility).Error; err != nil {
			Internal(c, "failed to update resume")
			return
		}
	}

	c.Status(http.StatusNoContent)
}

// ListAllResumes 返回全部简历（管理员）。
func (h *ResumeHandler) ListAllResumes(c *gin.Context) {
	h.listResumes(c, h.db.WithContext(c.Request.Context()))
}

// ListOwnResumes 返回当前用户的全部简历。
func (h *ResumeHandler) ListOwnResumes(c *gin.Context) {
	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	h.listResumes(c, h.db.WithContext(c.Request.Context()).Where("user_id = ?", p.UserID))
}

// ListApprovedResumes 返回审核通过的简历（管理员）。
func (h *ResumeHandler) ListApprovedResumes(c *gin.Context) {
	h.listResumes(c, h.db.WithContext(c.Request.Context()).
		Where("moderation = ?", database.ModerationApproved))
}

// ListPublicResumes 返回审核通过且公开的简历，无需认证。
func (h *ResumeHandler) ListPublicResumes(c *gin.Context) {
	h.listResumes(c, h.db.WithContext(c.Request.Context()).
		Where("moderation = ? AND visibility = ?", database.ModerationApproved, database.VisibilityPublic))
}

func (h *ResumeHandler) listResumes(c *gin.Context, query *gorm.DB) {
	var resumes []database.Resume
	if err := query.
		Preload("EducationPeriods").
		Preload("WorkPeriods").
		Order("id").
		Find(&resumes).Error; err != nil {
		Internal(c, "failed to list resumes")
		return
	}

	items := make([]resumeResponse, 0, len(resumes))
	for _, r := range resumes {
		items = append(items, newResumeResponse(r))
	}

	c.JSON(http.StatusOK, items)
}

// getResumeForUser 按 id+归属 查找简历。
// 他人的简历一律表现为 404，避免探测资源 id。
func (h *ResumeHandler) getResumeForUser(c *gin.Context, idParam string, userID uint) (*database.Resume, error) {
	resumeID, err := strconv.ParseUint(idParam, 10, 64)
	if err != nil {
		BadRequest(c, "invalid resume id")
		return nil, errInvalidResumeID
	}

	var resume database.Resume
	if err := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND user_id = ?", uint(resumeID), userID).
		First(&resume).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "resume not found")
			return nil, err
		}
		Internal(c, "failed to query resume")
		return nil, err
	}

	return &resume, nil
}

// enqueueCleanup 尽力入队对象存储清理；失败只记日志。
func (h *ResumeHandler) enqueueCleanup(c *gin.Context, keys, prefixes []string) {
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

func (h *ResumeHandler) loggerFromContext(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}
