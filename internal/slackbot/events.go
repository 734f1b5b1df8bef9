package slackbot

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

var (
	// ErrInvalidSignature 签名校验失败或时间戳过期
	ErrInvalidSignature = errors.New("invalid slack signature")
	// ErrUnsupportedPayload 不是审批按钮回调
	ErrUnsupportedPayload = errors.New("unsupported slack payload")
)

// Verify 校验 X-Slack-Signature（v0 HMAC-SHA256，时间戳 5 分钟内有效）
func Verify(header http.Header, body []byte, signingSecret string) error {
	verifier, err := slack.NewSecretsVerifier(header, signingSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if _, err := verifier.Write(body); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if err := verifier.Ensure(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

// URLVerificationChallenge 识别 Events API 的 url_verification 请求并返回 challenge
func URLVerificationChallenge(body []byte) (string, bool) {
	var envelope struct {
		Type      string `json:"type"`
		Challenge string `json:"challenge"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", false
	}
	if envelope.Type != slackevents.URLVerification || envelope.Challenge == "" {
		return "", false
	}
	return envelope.Challenge, true
}

// Decision 管理员点击审批按钮产生的决定
type Decision struct {
	ActionID  string
	Value     ButtonValue
	AdminID   string
	ChannelID string
	MessageTS string
	// RequesterName 从原消息文本 "*name*" 中提取
	RequesterName string
}

// Approved 是否为批准操作
func (d *Decision) Approved() bool {
	return d.ActionID == ActionApprove
}

// ParseDecision 解析 block_actions 回调（表单字段 payload）
func ParseDecision(payload string) (*Decision, error) {
	var callback slack.InteractionCallback
	if err := json.Unmarshal([]byte(payload), &callback); err != nil {
		return nil, fmt.Errorf("failed to parse interaction payload: %w", err)
	}
	if callback.Type != slack.InteractionTypeBlockActions || len(callback.ActionCallback.BlockActions) == 0 {
		return nil, ErrUnsupportedPayload
	}

	action := callback.ActionCallback.BlockActions[0]
	if action.ActionID != ActionApprove && action.ActionID != ActionDeny {
		return nil, ErrUnsupportedPayload
	}

	var value ButtonValue
	if err := json.Unmarshal([]byte(action.Value), &value); err != nil {
		return nil, fmt.Errorf("failed to parse button value: %w", err)
	}

	channelID := callback.Channel.ID
	if channelID == "" {
		channelID = callback.Container.ChannelID
	}
	ts := callback.Message.Timestamp
	if ts == "" {
		ts = callback.Container.MessageTs
	}

	return &Decision{
		ActionID:      action.ActionID,
		Value:         value,
		AdminID:       callback.User.ID,
		ChannelID:     channelID,
		MessageTS:     ts,
		RequesterName: requesterName(callback.Message.Text),
	}, nil
}

func requesterName(text string) string {
	parts := strings.Split(text, "*")
	if len(parts) < 3 {
		return ""
	}
	return parts[1]
}
