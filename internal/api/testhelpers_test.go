package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"jobboard/internal/api/middleware"
	"jobboard/internal/authz"
	"jobboard/internal/database"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{}, nil
}

type fakeStorage struct {
	objects      map[string][]byte
	contentTypes map[string]string
	deleted      []string
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		objects:      map[string][]byte{},
		contentTypes: map[string]string{},
	}
}

func (s *fakeStorage) UploadFile(_ context.Context, objectName string, reader io.Reader, _ int64, contentType string) (*minio.UploadInfo, error) {
	b, _ := io.ReadAll(reader)
	s.objects[objectName] = b
	s.contentTypes[objectName] = contentType
	return &minio.UploadInfo{}, nil
}

func (s *fakeStorage) ReadObject(_ context.Context, objectKey string) (io.ReadCloser, error) {
	b, ok := s.objects[objectKey]
	if !ok {
		return nil, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *fakeStorage) DeleteObject(_ context.Context, objectKey string) error {
	s.deleted = append(s.deleted, objectKey)
	delete(s.objects, objectKey)
	return nil
}

func newTestContext(t *testing.T, method, target string, body any) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, reader)
	if body != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	return c, w
}

// invoke 直接调用 handler 并补上引擎收尾时才会写出的状态行，
// 否则 c.Status 设置的 204 等状态不会落到 recorder 上。
func invoke(c *gin.Context, handler gin.HandlerFunc) {
	handler(c)
	c.Writer.WriteHeaderNow()
}

func seedUser(t *testing.T, db *gorm.DB, email, role string, blocked bool) database.User {
	t.Helper()
	user := database.User{
		Email:        email,
		PasswordHash: "seeded-hash",
		Role:         role,
		Blocked:      blocked,
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func seedResume(t *testing.T, db *gorm.DB, userID uint, moderation, visibility string) database.Resume {
	t.Helper()
	resume := database.Resume{
		UserID:              userID,
		FullName:            "Jane Doe",
		ProgrammingLanguage: "Go",
		LanguageLevel:       "B2",
		Country:             "Poland",
		City:                "Warsaw",
		Skills:              "backend, sql",
		Moderation:          moderation,
		Visibility:          visibility,
	}
	if err := db.Create(&resume).Error; err != nil {
		t.Fatalf("seed resume: %v", err)
	}
	return resume
}

func principalFor(user database.User) authz.Principal {
	return authz.Principal{
		UserID:  user.ID,
		Email:   user.Email,
		Role:    user.Role,
		Blocked: user.Blocked,
	}
}

func setPrincipal(c *gin.Context, user database.User) {
	middleware.SetPrincipal(c, principalFor(user))
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func setParamID(c *gin.Context, id uint) {
	c.Params = gin.Params{{Key: "id", Value: strconv.FormatUint(uint64(id), 10)}}
}

func decodeFailure(t *testing.T, w *httptest.ResponseRecorder) failureResponse {
	t.Helper()
	var resp failureResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failure envelope: %v body=%s", err, w.Body.String())
	}
	return resp
}

func hasErrorCode(resp failureResponse, code string) bool {
	for _, item := range resp.Errors {
		if item.Code == code {
			return true
		}
	}
	return false
}

func newPhotoUpload(t *testing.T, resumeID uint, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("resumeId", strconv.FormatUint(uint64(resumeID), 10)); err != nil {
		t.Fatalf("write field: %v", err)
	}
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func requireStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("expected %d got %d body=%s", want, w.Code, w.Body.String())
	}
}
