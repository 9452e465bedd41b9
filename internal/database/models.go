package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 用户角色。
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// 简历审核状态：待审核 / 已通过 / 已拒绝。
const (
	ModerationPending  = "pending"
	ModerationApproved = "approved"
	ModerationRejected = "rejected"
)

// 简历可见性，仅在审核通过后可切换。
const (
	VisibilityPrivate = "private"
	VisibilityPublic  = "public"
)

// User 表示系统中的账号信息。
// Email 统一以小写存储，保证大小写不敏感的唯一性。
type User struct {
	gorm.Model
	Email        string   `gorm:"uniqueIndex;size:200"`
	PasswordHash string   `gorm:"size:255"`
	Role         string   `gorm:"size:16;default:user"`
	Blocked      bool     `gorm:"default:false"`
	Resumes      []Resume `gorm:"constraint:OnDelete:CASCADE"`
}

// Resume 表示求职者提交的简历。
type Resume struct {
	gorm.Model
	UserID              uint           `gorm:"index;not null"`
	FullName            string         `gorm:"size:100"`
	ProgrammingLanguage string         `gorm:"size:50"`
	LanguageLevel       string         `gorm:"size:50"`
	Country             string         `gorm:"size:100"`
	City                string         `gorm:"size:100"`
	Skills              string         `gorm:"size:300"`
	Links               datatypes.JSON `gorm:"type:jsonb"`
	Moderation          string         `gorm:"size:16;default:pending"`
	Visibility          string         `gorm:"size:16;default:private"`

	EducationPeriods []EducationPeriod `gorm:"constraint:OnDelete:CASCADE"`
	WorkPeriods      []WorkPeriod      `gorm:"constraint:OnDelete:CASCADE"`
	Photo            *ResumePhoto      `gorm:"constraint:OnDelete:CASCADE"`
}

// EducationPeriod 表示简历中的一段教育经历。
type EducationPeriod struct {
	gorm.Model
	ResumeID    uint   `gorm:"index;not null"`
	Name        string `gorm:"size:150"`
	Degree      string `gorm:"size:100"`
	City        string `gorm:"size:100"`
	Description string `gorm:"size:300"`
	From        time.Time
	To          *time.Time
}

// WorkPeriod 表示简历中的一段工作经历。
type WorkPeriod struct {
	gorm.Model
	ResumeID    uint   `gorm:"index;not null"`
	Position    string `gorm:"size:150"`
	Employer    string `gorm:"size:150"`
	City        string `gorm:"size:100"`
	Description string `gorm:"size:300"`
	From        time.Time
	To          *time.Time
}

// ResumePhoto 记录简历照片的元数据，二进制内容存放在对象存储中。
// 每份简历最多一张照片，重新上传整体替换。
type ResumePhoto struct {
	gorm.Model
	ResumeID    uint   `gorm:"uniqueIndex;not null"`
	ObjectKey   string `gorm:"size:512"`
	ContentType string `gorm:"size:100"`
	FileName    string `gorm:"size:255"`
	Size        int64
}
