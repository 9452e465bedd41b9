package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// RecoveryMiddleware 是最外层的异常边界：任何从 handler 逃逸的 panic
// 都在这里被捕获、记录，并转换为通用的 500 失败信封。
// 调用方永远看不到堆栈。
func RecoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				LoggerFromContext(c).Error("panic recovered",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"errors": []gin.H{{"message": "internal error", "code": "internal_error"}},
				})
			}
		}()
		c.Next()
	}
}
