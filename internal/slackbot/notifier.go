package slackbot

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"furrydomains/backend/internal/config"
	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/monitoring"
)

// 审批按钮的 action_id
const (
	ActionApprove = "approve_request"
	ActionDeny    = "deny_request"
)

// ButtonValue 审批按钮携带的值
type ButtonValue struct {
	RequestID   string `json:"requestId"`
	UserID      string `json:"userId"`
	SlackUserID string `json:"slackUserId"`
}

// Notifier 通过 Slack 机器人发送访问申请通知
type Notifier struct {
	api          *slack.Client
	adminChannel string
	observer     monitoring.UpstreamObserver
	log          *zap.Logger
}

// NewNotifier 创建 Slack 通知器
func NewNotifier(cfg config.SlackConfig, observer monitoring.UpstreamObserver, log *zap.Logger) *Notifier {
	opts := []slack.Option{}
	if cfg.APIURL != "" {
		opts = append(opts, slack.OptionAPIURL(strings.TrimSuffix(cfg.APIURL, "/")+"/"))
	}
	if observer == nil {
		observer = monitoring.NopObserver
	}
	return &Notifier{
		api:          slack.New(cfg.BotToken, opts...),
		adminChannel: cfg.AdminChannel,
		observer:     observer,
		log:          log,
	}
}

// PostAccessRequest 向管理员频道发送带审批按钮的消息
func (n *Notifier) PostAccessRequest(ctx context.Context, req *domain.AccessRequest) (err error) {
	start := time.Now()
	defer func() { n.observer.ObserveUpstream("slack", "post_access_request", start, err) }()

	value, err := json.Marshal(ButtonValue{
		RequestID:   req.ID,
		UserID:      req.UserID,
		SlackUserID: req.SlackUserID,
	})
	if err != nil {
		return fmt.Errorf("failed to encode button value: %w", err)
	}

	text := fmt.Sprintf("New inbox access request from *%s* (%s)", req.Name, req.Email)
	approve := slack.NewButtonBlockElement(ActionApprove, string(value),
		slack.NewTextBlockObject(slack.PlainTextType, "Approve", false, false)).WithStyle(slack.StylePrimary)
	deny := slack.NewButtonBlockElement(ActionDeny, string(value),
		slack.NewTextBlockObject(slack.PlainTextType, "Deny", false, false)).WithStyle(slack.StyleDanger)

	_, _, err = n.api.PostMessageContext(ctx, n.adminChannel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil),
			slack.NewActionBlock("access_request", approve, deny),
		),
	)
	if err != nil {
		return fmt.Errorf("failed to post access request: %w", err)
	}
	return nil
}

// NotifyRequester 私信申请人审批结果
func (n *Notifier) NotifyRequester(ctx context.Context, slackUserID string, status domain.AccessStatus) (err error) {
	if slackUserID == "" {
		return nil
	}
	start := time.Now()
	defer func() { n.observer.ObserveUpstream("slack", "notify_requester", start, err) }()

	text := "Your inbox access request has been denied. You can try again after 24 hours."
	if status == domain.AccessApproved {
		text = "Your inbox access request has been approved! You can now access the inbox feature!"
	}
	if _, _, err = n.api.PostMessageContext(ctx, slackUserID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("failed to send direct message: %w", err)
	}
	return nil
}

// UpdateDecisionMessage 把管理员频道里的审批消息替换为结果
func (n *Notifier) UpdateDecisionMessage(ctx context.Context, channelID, ts, name string, status domain.AccessStatus) (err error) {
	if channelID == "" || ts == "" {
		return nil
	}
	start := time.Now()
	defer func() { n.observer.ObserveUpstream("slack", "update_message", start, err) }()

	text := fmt.Sprintf("Request from *%s* was %s", name, status)
	_, _, _, err = n.api.UpdateMessageContext(ctx, channelID, ts,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)),
	)
	if err != nil {
		return fmt.Errorf("failed to update admin message: %w", err)
	}
	return nil
}
