package mail

import (
	"errors"
	"strconv"
	"strings"

	"github.com/mailgun/mailgun-go/v4"

	"furrydomains/backend/internal/config"
	"furrydomains/backend/internal/domain"
)

// ErrInvalidWebhookSignature webhook 签名无效
var ErrInvalidWebhookSignature = errors.New("invalid webhook signature")

// WebhookVerifier 校验 Mailgun 入站 webhook 的 HMAC-SHA256(timestamp+token) 签名
type WebhookVerifier struct {
	mg *mailgun.MailgunImpl
}

// NewWebhookVerifier 创建签名校验器
//
// VerifyWebhookSignature 以客户端的 API key 计算 HMAC，因此校验专用实例使用
// webhook 签名密钥作为 key；未配置签名密钥时退回 API key。
func NewWebhookVerifier(cfg config.MailConfig) *WebhookVerifier {
	key := cfg.WebhookSigningKey
	if key == "" {
		key = cfg.MailgunAPIKey
	}
	return &WebhookVerifier{mg: mailgun.NewMailgun(cfg.MailgunDomain, key)}
}

// Verify 校验签名
func (v *WebhookVerifier) Verify(timestamp, token, signature string) error {
	if timestamp == "" || token == "" || signature == "" {
		return ErrInvalidWebhookSignature
	}
	ok, err := v.mg.VerifyWebhookSignature(mailgun.Signature{
		TimeStamp: timestamp,
		Token:     token,
		Signature: signature,
	})
	if err != nil || !ok {
		return ErrInvalidWebhookSignature
	}
	return nil
}

// InboundMail Mailgun 路由转发的入站邮件
type InboundMail struct {
	Sender    string
	Recipient string
	Subject   string
	Text      string
	HTML      string
	MessageID string
}

// ParseInbound 从表单字段读取入站邮件
func ParseInbound(get func(key string) string) InboundMail {
	recipient := get("recipient")
	// 多个收件人时只取第一个
	if i := strings.IndexByte(recipient, ','); i >= 0 {
		recipient = recipient[:i]
	}
	return InboundMail{
		Sender:    domain.ExtractAddress(get("sender")),
		Recipient: strings.ToLower(domain.ExtractAddress(recipient)),
		Subject:   get("subject"),
		Text:      get("body-plain"),
		HTML:      get("body-html"),
		MessageID: strings.Trim(get("Message-Id"), "<>"),
	}
}

// AttachmentCount 读取 attachment-count 字段
func AttachmentCount(get func(key string) string) int {
	n, err := strconv.Atoi(get("attachment-count"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
