package authz

import (
	"testing"

	"jobboard/internal/database"
)

func TestCan_BlockedUserDeniedAllMutations(t *testing.T) {
	blocked := Principal{UserID: 1, Role: database.RoleUser, Blocked: true}
	blockedAdmin := Principal{UserID: 2, Role: database.RoleAdmin, Blocked: true}

	actions := []Action{
		ActionSubmitResume,
		ActionChangeVisibility,
		ActionModerateResume,
		ActionManageUsers,
		ActionListAllResumes,
	}
	for _, action := range actions {
		if Can(blocked, action) {
			t.Fatalf("blocked user must be denied action %d", action)
		}
		if Can(blockedAdmin, action) {
			t.Fatalf("blocked admin must be denied action %d", action)
		}
	}
}

func TestCan_AdminOnlyActions(t *testing.T) {
	user := Principal{UserID: 1, Role: database.RoleUser}
	admin := Principal{UserID: 2, Role: database.RoleAdmin}

	adminOnly := []Action{ActionModerateResume, ActionManageUsers, ActionListAllResumes}
	for _, action := range adminOnly {
		if Can(user, action) {
			t.Fatalf("regular user must be denied action %d", action)
		}
		if !Can(admin, action) {
			t.Fatalf("admin must be allowed action %d", action)
		}
	}

	if !Can(user, ActionSubmitResume) || !Can(user, ActionChangeVisibility) {
		t.Fatal("regular user must manage own resumes")
	}
}

func TestCanSeeResume(t *testing.T) {
	owner := &Principal{UserID: 1, Role: database.RoleUser}
	stranger := &Principal{UserID: 2, Role: database.RoleUser}
	admin := &Principal{UserID: 3, Role: database.RoleAdmin}

	cases := []struct {
		name       string
		p          *Principal
		moderation string
		visibility string
		want       bool
	}{
		{"owner sees pending private", owner, database.ModerationPending, database.VisibilityPrivate, true},
		{"owner sees rejected", owner, database.ModerationRejected, database.VisibilityPrivate, true},
		{"admin sees everything", admin, database.ModerationPending, database.VisibilityPrivate, true},
		{"stranger sees approved public", stranger, database.ModerationApproved, database.VisibilityPublic, true},
		{"stranger blind to approved private", stranger, database.ModerationApproved, database.VisibilityPrivate, false},
		{"stranger blind to pending public", stranger, database.ModerationPending, database.VisibilityPublic, false},
		{"anonymous sees approved public", nil, database.ModerationApproved, database.VisibilityPublic, true},
		{"anonymous blind to the rest", nil, database.ModerationApproved, database.VisibilityPrivate, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanSeeResume(tc.p, 1, tc.moderation, tc.visibility); got != tc.want {
				t.Fatalf("expected %v got %v", tc.want, got)
			}
		})
	}
}
