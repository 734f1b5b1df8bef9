package mail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"go.uber.org/zap"

	"furrydomains/backend/internal/config"
	"furrydomains/backend/internal/monitoring"
)

// MailgunTransport 通过 Mailgun API 发信
type MailgunTransport struct {
	mg       *mailgun.MailgunImpl
	observer monitoring.UpstreamObserver
	log      *zap.Logger
}

func newMailgunClient(cfg config.MailConfig) *mailgun.MailgunImpl {
	mg := mailgun.NewMailgun(cfg.MailgunDomain, cfg.MailgunAPIKey)
	switch {
	case cfg.MailgunAPIBase != "":
		mg.SetAPIBase(strings.TrimSuffix(cfg.MailgunAPIBase, "/"))
	case cfg.MailgunRegion == "eu":
		mg.SetAPIBase(mailgun.APIBaseEU)
	}
	return mg
}

// NewMailgunTransport 创建 Mailgun 发信通道
func NewMailgunTransport(cfg config.MailConfig, observer monitoring.UpstreamObserver, log *zap.Logger) *MailgunTransport {
	return &MailgunTransport{
		mg:       newMailgunClient(cfg),
		observer: observer,
		log:      log,
	}
}

// Send 发送邮件
func (t *MailgunTransport) Send(ctx context.Context, msg *OutboundMessage) (id string, err error) {
	start := time.Now()
	defer func() { t.observer.ObserveUpstream("mailgun", "send", start, err) }()

	m := t.mg.NewMessage(msg.From, msg.Subject, msg.Text, msg.To...)
	if msg.HTML != "" {
		m.SetHtml(msg.HTML)
	}
	for _, a := range msg.Attachments {
		m.AddBufferAttachment(a.Filename, a.Content)
	}

	_, id, err = t.mg.Send(ctx, m)
	if err != nil {
		t.log.Warn("mailgun send failed", zap.String("from", msg.From), zap.Error(err))
		return "", fmt.Errorf("mailgun send failed: %w", err)
	}
	return strings.Trim(id, "<>"), nil
}
