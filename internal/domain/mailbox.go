package domain

import (
	"strings"
	"time"
)

// Mailbox 租户在邮件域名下认领的收件箱（webmail）。
type Mailbox struct {
	ID             string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID         string    `json:"userId" gorm:"type:varchar(64);index;not null"`
	Email          string    `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	AllowedSenders []string  `json:"allowedSenders" gorm:"serializer:json;type:text"`
	Active         bool      `json:"active" gorm:"default:true;index"`
	CreatedAt      time.Time `json:"createdAt"`
}

// AcceptsFrom 判断发件人是否在白名单内；白名单为空时接受所有发件人。
func (m *Mailbox) AcceptsFrom(sender string) bool {
	if len(m.AllowedSenders) == 0 {
		return true
	}
	sender = strings.ToLower(ExtractAddress(sender))
	for _, allowed := range m.AllowedSenders {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == sender {
			return true
		}
		// "@example.com" 形式匹配整个域名
		if strings.HasPrefix(allowed, "@") && strings.HasSuffix(sender, allowed) {
			return true
		}
	}
	return false
}
