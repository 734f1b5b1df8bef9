package storage

import (
	"context"
	"errors"
	"time"

	"furrydomains/backend/internal/domain"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate 唯一约束冲突
	ErrDuplicate = errors.New("record already exists")
	// ErrNotPending 条件更新失败：申请已不处于待审批状态
	ErrNotPending = errors.New("access request is not pending")
)

// DomainRecordRepository 定义 DNS 记录数据存取操作。
type DomainRecordRepository interface {
	// CreateDomainRecord (domain, recordType) 已存在时返回 ErrDuplicate。
	CreateDomainRecord(ctx context.Context, record *domain.DomainRecord) error
	UpdateDomainRecord(ctx context.Context, record *domain.DomainRecord) error
	GetDomainRecord(ctx context.Context, name string, recordType domain.RecordType) (*domain.DomainRecord, error)
	ListDomainRecordsByName(ctx context.Context, name string) ([]*domain.DomainRecord, error)
	ListDomainRecordsByUser(ctx context.Context, userID string) ([]*domain.DomainRecord, error)
	// DeleteDomainRecords 删除租户在该名称下的记录；recordType 为空时删除全部类型。
	DeleteDomainRecords(ctx context.Context, userID, name string, recordType domain.RecordType) (int64, error)
}

// AccessRequestRepository 定义访问申请数据存取操作。
type AccessRequestRepository interface {
	GetAccessRequest(ctx context.Context, id string) (*domain.AccessRequest, error)
	GetAccessRequestByUser(ctx context.Context, userID string) (*domain.AccessRequest, error)
	SaveAccessRequest(ctx context.Context, request *domain.AccessRequest) error
	// DecideAccessRequest 仅当申请处于 pending 时更新状态，否则返回 ErrNotPending。
	DecideAccessRequest(ctx context.Context, id string, status domain.AccessStatus, decidedBy string, at time.Time) (*domain.AccessRequest, error)
	PurgeDeniedAccessRequests(ctx context.Context, decidedBefore time.Time) (int64, error)
}

// MailboxRepository 定义收件箱数据存取操作。
type MailboxRepository interface {
	CreateMailbox(ctx context.Context, mailbox *domain.Mailbox) error
	GetMailbox(ctx context.Context, id string) (*domain.Mailbox, error)
	GetMailboxByEmail(ctx context.Context, email string) (*domain.Mailbox, error)
	ListMailboxesByUser(ctx context.Context, userID string) ([]*domain.Mailbox, error)
	// DeleteMailbox 同时删除该收件箱下的所有邮件。
	DeleteMailbox(ctx context.Context, id string) error
}

// MessageRepository 定义邮件数据存取操作。
type MessageRepository interface {
	SaveMessage(ctx context.Context, message *domain.Message) error
	GetMessage(ctx context.Context, id string) (*domain.Message, error)
	// ListMessages 按创建时间倒序返回。
	ListMessages(ctx context.Context, inboxID string, folder domain.MessageFolder, limit int) ([]*domain.Message, error)
	ListMessagesByInboxes(ctx context.Context, inboxIDs []string) ([]*domain.Message, error)
	DeleteMessage(ctx context.Context, id string) error
}

// FileAssetRepository 定义 CDN 文件元数据存取操作。
type FileAssetRepository interface {
	// CreateFileAsset key 已存在（包括已删除的记录）时返回 ErrDuplicate。
	CreateFileAsset(ctx context.Context, asset *domain.FileAsset) error
	GetFileAsset(ctx context.Context, id string) (*domain.FileAsset, error)
	GetFileAssetByKey(ctx context.Context, key string) (*domain.FileAsset, error)
	// ListFileAssetsByUser 返回未删除的文件，按上传时间倒序。
	ListFileAssetsByUser(ctx context.Context, userID string) ([]*domain.FileAsset, error)
	MarkFileAssetDeleted(ctx context.Context, id string, at time.Time) error
	PurgeFileAsset(ctx context.Context, id string) error
	RecordFileView(ctx context.Context, key string, bytes int64, at time.Time) error
	FileStatsByUser(ctx context.Context, userID string) (*domain.FileStats, error)
}

// ShortLinkRepository 定义短链接数据存取操作。
type ShortLinkRepository interface {
	CreateShortLink(ctx context.Context, link *domain.ShortLink) error
	ShortCodeExists(ctx context.Context, code string) (bool, error)
	// ResolveShortLink 原子地增加点击数并返回更新后的链接。
	ResolveShortLink(ctx context.Context, code string, at time.Time) (*domain.ShortLink, error)
	ListShortLinksByUser(ctx context.Context, userID string) ([]*domain.ShortLink, error)
	DeleteShortLink(ctx context.Context, userID, code string) error
}

// ForwardingRepository 定义邮件转发规则存取操作。
type ForwardingRepository interface {
	CreateForwardingRule(ctx context.Context, rule *domain.ForwardingRule) error
	GetForwardingRule(ctx context.Context, ruleID string) (*domain.ForwardingRule, error)
	ListForwardingRulesByUser(ctx context.Context, userID string) ([]*domain.ForwardingRule, error)
	DeleteForwardingRule(ctx context.Context, ruleID string) error
}

// FeedbackRepository 定义反馈数据存取操作。
type FeedbackRepository interface {
	CreateFeedback(ctx context.Context, feedback *domain.Feedback) error
	ListFeedbackByUser(ctx context.Context, userID string) ([]*domain.Feedback, error)
}

// Store 定义完整的存储接口。
type Store interface {
	DomainRecordRepository
	AccessRequestRepository
	MailboxRepository
	MessageRepository
	FileAssetRepository
	ShortLinkRepository
	ForwardingRepository
	FeedbackRepository

	// 工具方法
	Close() error
	Health(ctx context.Context) error
}
