package mail

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"furrydomains/backend/internal/config"
	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/monitoring"
)

// ErrUnknownTransport 未知的发信方式
var ErrUnknownTransport = errors.New("unknown mail transport")

// OutboundMessage 待发送的邮件
type OutboundMessage struct {
	From        string
	To          []string
	Subject     string
	Text        string
	HTML        string
	Attachments []*domain.Attachment // Content 必须已加载
}

// Transport 发信通道，返回服务方的消息 ID
type Transport interface {
	Send(ctx context.Context, msg *OutboundMessage) (string, error)
}

// NewTransport 根据配置创建发信通道
func NewTransport(cfg config.MailConfig, observer monitoring.UpstreamObserver, log *zap.Logger) (Transport, error) {
	if observer == nil {
		observer = monitoring.NopObserver
	}
	switch cfg.Transport {
	case "", "mailgun":
		return NewMailgunTransport(cfg, observer, log), nil
	case "smtp":
		return NewRelayTransport(cfg, observer, log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransport, cfg.Transport)
	}
}
