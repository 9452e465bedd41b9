package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"jobboard/internal/auth"
	"jobboard/internal/authz"
	"jobboard/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", name)), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestAuthService(t *testing.T) *auth.AuthService {
	t.Helper()
	service, err := auth.NewAuthService([]byte("test-secret"), 30*time.Minute)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return service
}

func newProtectedRouter(authService *auth.AuthService, db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", AuthMiddleware(authService, db), func(c *gin.Context) {
		p, _ := PrincipalFromContext(c)
		c.JSON(http.StatusOK, gin.H{"email": p.Email, "blocked": p.Blocked})
	})
	return router
}

func TestAuthMiddleware_ReloadsBlockedFlag(t *testing.T) {
	db := newTestDB(t)
	authService := newTestAuthService(t)
	user := database.User{Email: "jane@example.com", PasswordHash: "hash", Role: database.RoleUser}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}

	token, err := authService.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	// 令牌签发后再封禁：中间件必须看到数据库里的当前状态。
	if err := db.Model(&user).Update("blocked", true).Error; err != nil {
		t.Fatalf("block user: %v", err)
	}

	router := newProtectedRouter(authService, db)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"blocked":true`) {
		t.Fatalf("expected fresh blocked flag in principal: %s", w.Body.String())
	}
}

func TestAuthMiddleware_RejectsBadTokens(t *testing.T) {
	db := newTestDB(t)
	authService := newTestAuthService(t)
	router := newProtectedRouter(authService, db)

	headers := []string{
		"",
		"Bearer",
		"Bearer not-a-token",
		"Basic dXNlcjpwYXNz",
	}
	for _, header := range headers {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401 got %d", header, w.Code)
		}
	}
}

func TestAuthMiddleware_RejectsDeletedUser(t *testing.T) {
	db := newTestDB(t)
	authService := newTestAuthService(t)

	token, err := authService.GenerateToken(42, "ghost@example.com", database.RoleUser)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}

	router := newProtectedRouter(authService, db)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deleted user got %d", w.Code)
	}
}

func TestRequire_ConsultsPolicy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/admin", func(c *gin.Context) {
		role := c.Query("role")
		if role != "" {
			SetPrincipal(c, authz.Principal{
				UserID:  1,
				Role:    role,
				Blocked: c.Query("blocked") == "1",
			})
		}
	}, Require(authz.ActionManageUsers), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	cases := []struct {
		name  string
		query string
		want  int
	}{
		{"admin allowed", "role=admin", http.StatusOK},
		{"regular user forbidden", "role=user", http.StatusForbidden},
		{"blocked admin forbidden", "role=admin&blocked=1", http.StatusForbidden},
		{"anonymous unauthorized", "", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/admin?"+tc.query, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s: expected %d got %d", tc.name, tc.want, w.Code)
		}
	}
}

func TestOptionalAuthMiddleware_AnonymousContinues(t *testing.T) {
	db := newTestDB(t)
	authService := newTestAuthService(t)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/open", OptionalAuthMiddleware(authService, db), func(c *gin.Context) {
		if _, ok := PrincipalFromContext(c); ok {
			c.JSON(http.StatusOK, gin.H{"principal": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"principal": false})
	})

	req := httptest.NewRequest(http.MethodGet, "/open", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"principal":false`) {
		t.Fatalf("expected anonymous continuation: %s", w.Body.String())
	}
}
