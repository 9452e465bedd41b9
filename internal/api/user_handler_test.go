package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"jobboard/internal/database"
	"jobboard/internal/tasks"
)

func TestListUsers_NeverLeaksHashes(t *testing.T) {
	db := newTestDB(t)
	h := NewUserHandler(db, &fakeEnqueuer{}, testLogger())
	seedUser(t, db, "jane@example.com", database.RoleUser, false)
	seedUser(t, db, "admin@example.com", database.RoleAdmin, false)

	c, w := newTestContext(t, http.MethodGet, "/api/user", nil)
	invoke(c, h.ListUsers)

	requireStatus(t, w, http.StatusOK)
	var items []userResponse
	if err := json.Unmarshal(w.Body.Bytes(), &items); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 users got %d", len(items))
	}
	if strings.Contains(w.Body.String(), "seeded-hash") {
		t.Fatalf("response must not leak password hashes: %s", w.Body.String())
	}
}

func TestBlockUser_Idempotent(t *testing.T) {
	db := newTestDB(t)
	h := NewUserHandler(db, &fakeEnqueuer{}, testLogger())
	user := seedUser(t, db, "jane@example.com", database.RoleUser, false)

	for i := 0; i < 2; i++ {
		c, w := newTestContext(t, http.MethodPatch, "/api/user/blocked", userEmailRequest{Email: "Jane@Example.com"})
		invoke(c, h.BlockUser)
		requireStatus(t, w, http.StatusNoContent)
	}

	var reloaded database.User
	if err := db.First(&reloaded, user.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if !reloaded.Blocked {
		t.Fatal("expected user blocked")
	}

	c, w := newTestContext(t, http.MethodPatch, "/api/user/unblock", userEmailRequest{Email: "jane@example.com"})
	invoke(c, h.UnblockUser)
	requireStatus(t, w, http.StatusNoContent)

	if err := db.First(&reloaded, user.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if reloaded.Blocked {
		t.Fatal("expected user unblocked")
	}
}

func TestBlockUser_UnknownEmail(t *testing.T) {
	db := newTestDB(t)
	h := NewUserHandler(db, &fakeEnqueuer{}, testLogger())

	c, w := newTestContext(t, http.MethodPatch, "/api/user/blocked", userEmailRequest{Email: "nobody@example.com"})
	invoke(c, h.BlockUser)

	requireStatus(t, w, http.StatusBadRequest)
	resp := decodeFailure(t, w)
	if !hasErrorCode(resp, "not_found") {
		t.Fatalf("expected not_found envelope, got %+v", resp.Errors)
	}
}

func TestDeleteUser_CascadesAndEnqueuesCleanup(t *testing.T) {
	db := newTestDB(t)
	enqueuer := &fakeEnqueuer{}
	h := NewUserHandler(db, enqueuer, testLogger())
	user := seedUser(t, db, "jane@example.com", database.RoleUser, false)
	resume := seedResume(t, db, user.ID, database.ModerationApproved, database.VisibilityPublic)

	c, w := newTestContext(t, http.MethodDelete, "/api/user/by-email/jane@example.com", nil)
	c.Params = gin.Params{{Key: "email", Value: "jane@example.com"}}
	invoke(c, h.DeleteUser)

	requireStatus(t, w, http.StatusNoContent)

	var count int64
	db.Model(&database.User{}).Where("id = ?", user.ID).Count(&count)
	if count != 0 {
		t.Fatal("user row must be hard deleted")
	}
	db.Model(&database.Resume{}).Where("user_id = ?", user.ID).Count(&count)
	if count != 0 {
		t.Fatal("resumes must cascade")
	}

	if len(enqueuer.tasks) != 1 {
		t.Fatalf("expected one cleanup task, got %d", len(enqueuer.tasks))
	}
	var payload tasks.StorageCleanupPayload
	if err := json.Unmarshal(enqueuer.tasks[0].Payload(), &payload); err != nil {
		t.Fatalf("decode task payload: %v", err)
	}
	if len(payload.Prefixes) != 1 || payload.Prefixes[0] != photoObjectPrefix(resume.ID) {
		t.Fatalf("expected photo prefix for resume %d, got %+v", resume.ID, payload.Prefixes)
	}
}
