package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"jobboard/internal/auth"
	"jobboard/internal/authz"
	"jobboard/internal/database"
)

const principalKey = "principal"

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"errors": []gin.H{{"message": "unauthorized", "code": "unauthorized"}},
	})
}

func abortForbidden(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
		"errors": []gin.H{{"message": "forbidden", "code": "forbidden"}},
	})
}

// AuthMiddleware 校验访问令牌并将行为主体注入上下文。
// 用户行按主键重新加载，保证封禁标志是当前值而非签发令牌时的快照。
func AuthMiddleware(authService *auth.AuthService, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		rawToken := parts[1]
		if strings.TrimSpace(rawToken) == "" {
			abortUnauthorized(c)
			return
		}

		claims, err := authService.ValidateToken(rawToken)
		if err != nil {
			abortUnauthorized(c)
			return
		}

		var user database.User
		if err := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				abortUnauthorized(c)
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"errors": []gin.H{{"message": "internal error", "code": "internal_error"}},
			})
			return
		}

		c.Set(principalKey, authz.Principal{
			UserID:  user.ID,
			Email:   user.Email,
			Role:    user.Role,
			Blocked: user.Blocked,
		})
		c.Next()
	}
}

// OptionalAuthMiddleware 尝试解析访问令牌：有效则注入行为主体，
// 缺失或无效则以匿名身份继续，不中断请求。
func OptionalAuthMiddleware(authService *auth.AuthService, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.Next()
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil {
			c.Next()
			return
		}

		var user database.User
		if err := db.WithContext(c.Request.Context()).First(&user, claims.UserID).Error; err != nil {
			c.Next()
			return
		}

		c.Set(principalKey, authz.Principal{
			UserID:  user.ID,
			Email:   user.Email,
			Role:    user.Role,
			Blocked: user.Blocked,
		})
		c.Next()
	}
}

// Require 将路由要求的操作交给集中策略裁决。
// 非管理员与被封禁的管理员在这里统一拿到 403。
func Require(action authz.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFromContext(c)
		if !ok {
			abortUnauthorized(c)
			return
		}
		if !authz.Can(p, action) {
			abortForbidden(c)
			return
		}
		c.Next()
	}
}

// PrincipalFromContext 返回上下文中的行为主体。
func PrincipalFromContext(c *gin.Context) (authz.Principal, bool) {
	value, exists := c.Get(principalKey)
	if !exists {
		return authz.Principal{}, false
	}
	p, ok := value.(authz.Principal)
	return p, ok
}

// SetPrincipal 供测试注入行为主体。
func SetPrincipal(c *gin.Context, p authz.Principal) {
	c.Set(principalKey, p)
}
