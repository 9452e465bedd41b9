package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	correlationIDKey  = "correlationID"
	correlationHeader = "X-Correlation-ID"

	// 客户端传入的 ID 超长则丢弃，避免日志被撑爆。
	maxCorrelationIDLen = 64
)

// CorrelationIDMiddleware 给每个请求分配关联 ID：
// 优先沿用客户端传入的头，缺失或不合法时生成新的 UUID，
// 并回写到响应头方便排查。
func CorrelationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(correlationHeader))
		if id == "" || len(id) > maxCorrelationIDLen {
			id = uuid.NewString()
		}

		c.Set(correlationIDKey, id)
		c.Header(correlationHeader, id)

		c.Next()
	}
}

// GetCorrelationID 返回当前请求的关联 ID，没有则返回空串。
func GetCorrelationID(c *gin.Context) string {
	if value, ok := c.Get(correlationIDKey); ok {
		if id, ok := value.(string); ok {
			return id
		}
	}
	return ""
}
