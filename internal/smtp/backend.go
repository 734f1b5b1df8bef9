package smtp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/service"
)

// SourceSMTP 记录在指标中的入站来源
const SourceSMTP = "smtp"

// deliveryTimeout 单个收件人的投递超时
const deliveryTimeout = 30 * time.Second

// Deliverer 收件箱查询与投递
type Deliverer interface {
	Domain() string
	ActiveInbox(ctx context.Context, address string) (*domain.Mailbox, error)
	Deliver(ctx context.Context, in service.InboundInput) (*domain.Message, error)
}

// Backend 实现 go-smtp 的 Backend 接口。
//
// 只接收发往邮件域名下已激活收件箱的邮件，不做中继。
// 域名之外的地址返回 550 5.7.1，域名内不存在的收件箱返回 550 5.1.1。
type Backend struct {
	mail     Deliverer
	maxBytes int64
	log      *zap.Logger
}

// NewBackend 创建 SMTP Backend
func NewBackend(mail Deliverer, maxBytes int64, log *zap.Logger) *Backend {
	return &Backend{mail: mail, maxBytes: maxBytes, log: log}
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	remote := ""
	if c != nil && c.Conn() != nil {
		remote = c.Conn().RemoteAddr().String()
	}
	return &session{backend: b, remote: remote}, nil
}

type session struct {
	backend    *Backend
	remote     string
	from       string
	recipients []string
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.from = normalizeAddress(from)
	return nil
}

// Rcpt 处理 RCPT 命令，这里是拒绝中继的唯一入口。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := normalizeAddress(to)
	at := strings.LastIndexByte(addr, '@')
	if at <= 0 || at == len(addr)-1 {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}
	if !strings.EqualFold(addr[at+1:], s.backend.mail.Domain()) {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "relay access denied",
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	if _, err := s.backend.mail.ActiveInbox(ctx, addr); err != nil {
		if errors.Is(err, service.ErrInboxNotFound) {
			return &gosmtp.SMTPError{
				Code:         550,
				EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
				Message:      "recipient mailbox not found",
			}
		}
		s.backend.log.Error("smtp recipient lookup failed", zap.String("rcpt", addr), zap.Error(err))
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "temporary lookup failure",
		}
	}

	for _, r := range s.recipients {
		if r == addr {
			return nil
		}
	}
	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 解析邮件并逐个收件人投递。
func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(r, s.backend.maxBytes+1))
	if err != nil {
		return err
	}
	if int64(len(raw)) > s.backend.maxBytes {
		return gosmtp.ErrDataTooLarge
	}

	parsed, err := ParseMail(raw)
	if err != nil {
		s.backend.log.Warn("smtp message rejected", zap.String("remote", s.remote), zap.Error(err))
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      "malformed message",
		}
	}

	sender := s.from
	if sender == "" {
		sender = domain.ExtractAddress(parsed.From)
	}

	delivered := 0
	for _, rcpt := range s.recipients {
		ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
		_, err := s.backend.mail.Deliver(ctx, service.InboundInput{
			Source:      SourceSMTP,
			Recipient:   rcpt,
			Sender:      sender,
			Subject:     parsed.Subject,
			Text:        parsed.Text,
			HTML:        parsed.HTML,
			MessageID:   parsed.MessageID,
			Attachments: parsed.Attachments,
		})
		cancel()
		if err != nil {
			s.backend.log.Error("smtp delivery failed", zap.String("rcpt", rcpt), zap.Error(err))
			continue
		}
		delivered++
	}

	if delivered == 0 && len(s.recipients) > 0 {
		return fmt.Errorf("delivery failed for all %d recipients", len(s.recipients))
	}
	s.backend.log.Info("smtp message accepted",
		zap.String("from", sender),
		zap.Int("recipients", delivered),
		zap.Int("attachments", len(parsed.Attachments)),
	)
	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.from = ""
	s.recipients = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	return nil
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(addr), "<>"))
}
