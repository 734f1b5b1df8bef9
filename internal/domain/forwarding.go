package domain

import "time"

// ForwardingStatus 转发规则状态
type ForwardingStatus string

const (
	ForwardingPending ForwardingStatus = "pending" // 目标地址尚未验证
	ForwardingActive  ForwardingStatus = "active"
)

// ForwardingRule 邮件转发规则（Cloudflare Email Routing）。
type ForwardingRule struct {
	ID            string           `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID        string           `json:"userId" gorm:"type:varchar(64);index;not null"`
	FromEmail     string           `json:"fromEmail" gorm:"type:varchar(255);not null"`
	ToEmail       string           `json:"toEmail" gorm:"type:varchar(255);not null"`
	Domain        string           `json:"domain" gorm:"type:varchar(253);index"`
	RuleID        string           `json:"ruleId" gorm:"type:varchar(64);uniqueIndex;not null"`
	DestinationID string           `json:"destinationId" gorm:"type:varchar(64)"`
	Status        ForwardingStatus `json:"status" gorm:"type:varchar(16)"`
	CreatedAt     time.Time        `json:"createdAt"`
}
