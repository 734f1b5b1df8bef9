package domain

import "time"

// ProfileStats 个人主页统计
type ProfileStats struct {
	Inboxes         int64    `json:"inboxes"`
	Messages        int64    `json:"messages"`
	Domains         int64    `json:"domains"`
	ForwardingRules int64    `json:"forwardingRules"`
	Links           int64    `json:"links"`
	Files           int64    `json:"files"`
	AverageRating   *float64 `json:"averageRating,omitempty"`
}

// ProfileExport 租户全部数据的导出
type ProfileExport struct {
	ExportedAt      time.Time         `json:"exportDate"`
	UserID          string            `json:"userId"`
	Email           string            `json:"email,omitempty"`
	SlackID         string            `json:"slackId,omitempty"`
	Domains         []*DomainRecord   `json:"domains"`
	AccessRequest   *AccessRequest    `json:"accessRequest,omitempty"`
	Inboxes         []*Mailbox        `json:"inboxes"`
	Messages        []*Message        `json:"messages"`
	Files           []*FileAsset      `json:"files"`
	Links           []*ShortLink      `json:"links"`
	ForwardingRules []*ForwardingRule `json:"forwardingRules"`
	Feedback        []*Feedback       `json:"feedback"`
}
