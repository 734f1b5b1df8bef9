package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"furrydomains/backend/internal/config"
	"furrydomains/backend/internal/monitoring"
)

const relayTimeout = 30 * time.Second

// RelayTransport 通过 SMTP 中继发信（STARTTLS + PLAIN 认证，可选 DKIM 签名）
type RelayTransport struct {
	addr     string
	username string
	password string
	domain   string
	insecure bool
	tls      *tls.Config
	signer   *Signer
	observer monitoring.UpstreamObserver
	log      *zap.Logger
}

// NewRelayTransport 创建 SMTP 中继发信通道
func NewRelayTransport(cfg config.MailConfig, observer monitoring.UpstreamObserver, log *zap.Logger) (*RelayTransport, error) {
	if cfg.RelayAddr == "" {
		return nil, fmt.Errorf("mail.relay_addr is required for the smtp transport")
	}
	t := &RelayTransport{
		addr:     cfg.RelayAddr,
		username: cfg.RelayUsername,
		password: cfg.RelayPassword,
		domain:   cfg.Domain,
		insecure: cfg.RelayInsecure,
		observer: observer,
		log:      log,
	}
	if cfg.DKIMSelector != "" && cfg.DKIMKeyFile != "" {
		signer, err := NewSignerFromFile(cfg.DKIMKeyFile, cfg.Domain, cfg.DKIMSelector)
		if err != nil {
			return nil, err
		}
		t.signer = signer
	}
	return t, nil
}

// WithSigner 设置 DKIM 签名器
func (t *RelayTransport) WithSigner(signer *Signer) *RelayTransport {
	t.signer = signer
	return t
}

// WithTLSConfig 设置 STARTTLS 使用的 TLS 配置
func (t *RelayTransport) WithTLSConfig(cfg *tls.Config) *RelayTransport {
	t.tls = cfg
	return t
}

// Send 发送邮件，返回生成的 Message-ID
func (t *RelayTransport) Send(ctx context.Context, msg *OutboundMessage) (id string, err error) {
	start := time.Now()
	defer func() { t.observer.ObserveUpstream("smtp", "send", start, err) }()

	messageID := fmt.Sprintf("%s@%s", uuid.New().String(), t.domain)
	data, err := buildMessage(msg, messageID, time.Now())
	if err != nil {
		return "", fmt.Errorf("failed to build message: %w", err)
	}
	if t.signer != nil {
		signed, err := t.signer.Sign(data)
		if err != nil {
			t.log.Warn("DKIM signing failed, sending unsigned", zap.Error(err))
		} else {
			data = signed
		}
	}

	if err := t.deliver(ctx, msg.From, msg.To, data); err != nil {
		t.log.Warn("smtp relay send failed", zap.String("relay", t.addr), zap.Error(err))
		return "", err
	}
	return messageID, nil
}

func (t *RelayTransport) deliver(ctx context.Context, from string, to []string, data []byte) error {
	dialer := &net.Dialer{Timeout: relayTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return fmt.Errorf("connection failed to %s: %w", t.addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(relayTimeout))
	}

	client, err := t.newClient(conn)
	if err != nil {
		return err
	}
	defer client.Close()

	if t.username != "" {
		if err := client.Auth(sasl.NewPlainClient("", t.username, t.password)); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := client.Mail(from, nil); err != nil {
		return fmt.Errorf("MAIL FROM failed: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt, nil); err != nil {
			return fmt.Errorf("RCPT TO %s failed: %w", rcpt, err)
		}
	}

	wc, err := client.Data()
	if err != nil {
		return fmt.Errorf("DATA failed: %w", err)
	}
	if _, err := wc.Write(data); err != nil {
		_ = wc.Close()
		return fmt.Errorf("failed to write message data: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("DATA close failed: %w", err)
	}
	return client.Quit()
}

// newClient 默认要求中继支持 STARTTLS；只有显式关闭时才使用明文连接
func (t *RelayTransport) newClient(conn net.Conn) (*smtp.Client, error) {
	if t.insecure {
		client := smtp.NewClient(conn)
		if err := client.Hello(t.domain); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("HELO failed: %w", err)
		}
		return client, nil
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if t.tls != nil {
		cfg = t.tls.Clone()
	}
	if cfg.ServerName == "" {
		cfg.ServerName, _, _ = net.SplitHostPort(t.addr)
	}
	client, err := smtp.NewClientStartTLS(conn, cfg)
	if err != nil {
		return nil, fmt.Errorf("STARTTLS failed: %w", err)
	}
	return client, nil
}
