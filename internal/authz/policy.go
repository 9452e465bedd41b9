// Package authz 集中定义访问策略，避免在各个 handler 中重复散落
// 角色与归属判断。
package authz

import "jobboard/internal/database"

// Principal 表示一次请求的行为主体。
// Blocked 标志来自当前数据库行，而不是令牌签发时的快照。
type Principal struct {
	UserID  uint
	Email   string
	Role    string
	Blocked bool
}

// IsAdmin 判断主体是否为管理员。
func (p Principal) IsAdmin() bool {
	return p.Role == database.RoleAdmin
}

// Action 枚举需要策略裁决的操作。
type Action int

const (
	// ActionSubmitResume 创建、修改、删除自己的简历及照片。
	ActionSubmitResume Action = iota
	// ActionChangeVisibility 切换自己已审核简历的可见性。
	ActionChangeVisibility
	// ActionModerateResume 审核（通过/拒绝）任意简历。
	ActionModerateResume
	// ActionManageUsers 查看、封禁、解封、删除用户。
	ActionManageUsers
	// ActionListAllResumes 查看全部简历列表。
	ActionListAllResumes
)

// Can 裁决主体能否执行某操作。被封禁的用户保留登录能力，
// 但所有写操作一律拒绝。
func Can(p Principal, action Action) bool {
	switch action {
	case ActionSubmitResume, ActionChangeVisibility:
		return !p.Blocked
	case ActionModerateResume, ActionManageUsers, ActionListAllResumes:
		return p.IsAdmin() && !p.Blocked
	default:
		return false
	}
}

// CanSeeResume 实现可见性矩阵 {角色 × 归属 × 状态}：
// 管理员可见全部；所有者可见自己的任何状态；
// 其他人仅可见审核通过且公开的简历。
func CanSeeResume(p *Principal, ownerID uint, moderation, visibility string) bool {
	if p != nil {
		if p.IsAdmin() || p.UserID == ownerID {
			return true
		}
	}
	return moderation == database.ModerationApproved && visibility == database.VisibilityPublic
}
