package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"jobboard/internal/api/validate"
)

// ErrorItem 是统一失败信封中的单条错误。
type ErrorItem struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type failureResponse struct {
	Errors []ErrorItem `json:"errors"`
}

// Fail 写入统一的失败信封，并将错误挂到 gin 上下文供日志中间件输出。
func Fail(c *gin.Context, status int, code, message string) {
	_ = c.Error(errors.New(code + ": " + message))
	c.JSON(status, failureResponse{Errors: []ErrorItem{{Message: message, Code: code}}})
}

// FailValidation 将聚合后的校验违规整体写入失败信封。
func FailValidation(c *gin.Context, errs validate.Errors) {
	items := make([]ErrorItem, 0, len(errs))
	for _, v := range errs {
		items = append(items, ErrorItem{Message: v.Message, Code: v.Code})
		_ = c.Error(errors.New(v.Code + ": " + v.Message))
	}
	c.JSON(http.StatusBadRequest, failureResponse{Errors: items})
}

// AbortUnauthorized 终止请求并返回 401。
func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, failureResponse{
		Errors: []ErrorItem{{Message: "unauthorized", Code: "unauthorized"}},
	})
}

func Unauthorized(c *gin.Context)           { Fail(c, http.StatusUnauthorized, "unauthorized", "unauthorized") }
func BadRequest(c *gin.Context, msg string) { Fail(c, http.StatusBadRequest, "bad_request", msg) }
func Forbidden(c *gin.Context, msg string)  { Fail(c, http.StatusForbidden, "forbidden", msg) }
func NotFound(c *gin.Context, msg string)   { Fail(c, http.StatusNotFound, "not_found", msg) }
func Conflict(c *gin.Context, msg string)   { Fail(c, http.StatusBadRequest, "conflict", msg) }
func Internal(c *gin.Context, msg string)   { Fail(c, http.StatusInternalServerError, "internal_error", msg) }
