package domain

import "time"

// AccessStatus 访问申请状态
type AccessStatus string

const (
	AccessPending  AccessStatus = "pending"
	AccessApproved AccessStatus = "approved"
	AccessDenied   AccessStatus = "denied"
)

// AccessRequest 租户申请 webmail 功能的记录，每个租户至多一条。
type AccessRequest struct {
	ID              string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID          string       `json:"userId" gorm:"type:varchar(64);uniqueIndex;not null"`
	SlackUserID     string       `json:"slackUserId" gorm:"type:varchar(64)"`
	Name            string       `json:"name" gorm:"type:varchar(255)"`
	Email           string       `json:"email" gorm:"type:varchar(255)"`
	Status          AccessStatus `json:"status" gorm:"type:varchar(16);index;not null"`
	RequestedAt     time.Time    `json:"requestedAt"`
	DecidedAt       *time.Time   `json:"decidedAt,omitempty" gorm:"index"`
	DecidedBy       string       `json:"decidedBy,omitempty" gorm:"type:varchar(64)"`
	LastRequestAt   time.Time    `json:"lastRequestAt"`
	QuizCompletedAt *time.Time   `json:"quizCompletedAt,omitempty"`
}

// CanUseWebmail 审批通过且已完成测验才可使用 webmail。
func (r *AccessRequest) CanUseWebmail() bool {
	return r != nil && r.Status == AccessApproved && r.QuizCompletedAt != nil
}

// Stale 已拒绝且决定时间早于 cutoff 的申请可被清理。
func (r *AccessRequest) Stale(cutoff time.Time) bool {
	return r.Status == AccessDenied && r.DecidedAt != nil && r.DecidedAt.Before(cutoff)
}
