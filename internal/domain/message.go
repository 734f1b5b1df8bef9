package domain

import "time"

// MessageFolder 邮件列表的分组
type MessageFolder string

const (
	FolderInbox   MessageFolder = "inbox"
	FolderSent    MessageFolder = "sent"
	FolderDeleted MessageFolder = "deleted"
)

// ParseFolder 解析文件夹名称，空字符串视为收件箱。
func ParseFolder(value string) (MessageFolder, bool) {
	switch MessageFolder(value) {
	case "", FolderInbox:
		return FolderInbox, true
	case FolderSent:
		return FolderSent, true
	case FolderDeleted:
		return FolderDeleted, true
	default:
		return "", false
	}
}

// Message 属于某个收件箱的一封邮件（收到或发出）。
type Message struct {
	ID          string        `json:"id" gorm:"primaryKey;type:varchar(36)"`
	InboxID     string        `json:"inboxId" gorm:"type:varchar(36);index;not null"`
	MessageID   string        `json:"messageId" gorm:"type:varchar(255);index"` // 传输方返回的消息 ID
	From        string        `json:"from" gorm:"type:varchar(255)"`
	To          string        `json:"to" gorm:"type:varchar(255)"`
	Subject     string        `json:"subject" gorm:"type:varchar(500)"`
	Text        string        `json:"text" gorm:"type:text"`
	HTML        string        `json:"html" gorm:"type:text"`
	Attachments []*Attachment `json:"attachments" gorm:"serializer:json;type:text"`
	Read        bool          `json:"read" gorm:"default:false"`
	Sent        bool          `json:"sent" gorm:"default:false;index"`
	Junk        bool          `json:"junk" gorm:"default:false"`
	Deleted     bool          `json:"deleted" gorm:"default:false;index"`
	DeletedAt   *time.Time    `json:"deletedAt,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// InFolder 判断邮件是否属于指定文件夹。
func (m *Message) InFolder(folder MessageFolder) bool {
	switch folder {
	case FolderDeleted:
		return m.Deleted
	case FolderSent:
		return !m.Deleted && m.Sent
	default:
		return !m.Deleted && !m.Sent
	}
}

// MessageAction 对单封邮件执行的操作
type MessageAction string

const (
	ActionDelete          MessageAction = "delete"
	ActionRestore         MessageAction = "restore"
	ActionPermanentDelete MessageAction = "permanent-delete"
	ActionRead            MessageAction = "read"
	ActionUnread          MessageAction = "unread"
)

// Valid 是否为已知操作
func (a MessageAction) Valid() bool {
	switch a {
	case ActionDelete, ActionRestore, ActionPermanentDelete, ActionRead, ActionUnread:
		return true
	}
	return false
}
