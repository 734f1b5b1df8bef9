package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/mail"
	"furrydomains/backend/internal/monitoring"
	"furrydomains/backend/internal/security"
	"furrydomains/backend/internal/storage"
)

var (
	// ErrInboxTaken 地址已被认领
	ErrInboxTaken = errors.New("email address already taken")
	// ErrInboxNotFound 收件箱不存在、未激活或不属于当前租户
	ErrInboxNotFound = errors.New("inbox not found")
	// ErrInboxRequired 未指定收件箱
	ErrInboxRequired = errors.New("inboxId is required")
	// ErrInvalidFolder 未知的文件夹
	ErrInvalidFolder = errors.New("invalid folder")
	// ErrMessageNotFound 邮件不存在或不属于当前租户
	ErrMessageNotFound = errors.New("message not found")
	// ErrInvalidAction 未知的邮件操作
	ErrInvalidAction = errors.New("invalid action")
	// ErrRecipientRequired 未填写收件人
	ErrRecipientRequired = errors.New("recipient is required")
	// ErrAttachmentNotFound 附件引用无效
	ErrAttachmentNotFound = errors.New("attachment not found")
)

const (
	// DefaultMailDomain 收件箱默认域名
	DefaultMailDomain = "hackclubber.dev"
	// MessageListLimit 单次列出的最大邮件数
	MessageListLimit = 100

	attachmentPrefix = "attachments/"
)

// MailRepository 收件箱与邮件存储
type MailRepository interface {
	storage.MailboxRepository
	storage.MessageRepository
}

// NewMailNotifier 新邮件实时通知
type NewMailNotifier interface {
	NotifyNewMail(ctx context.Context, userID string, message *domain.Message)
}

// MailService 封装 webmail 收件箱与邮件逻辑
type MailService struct {
	repo      MailRepository
	transport mail.Transport
	blobs     BlobStore
	notifier  NewMailNotifier
	policy    *security.UploadPolicy
	validator *domain.EmailValidator
	domain    string
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// NewMailService 创建 webmail 服务
func NewMailService(
	repo MailRepository,
	transport mail.Transport,
	blobs BlobStore,
	notifier NewMailNotifier,
	policy *security.UploadPolicy,
	mailDomain string,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *MailService {
	if mailDomain == "" {
		mailDomain = DefaultMailDomain
	}
	if policy == nil {
		policy = security.NewAttachmentPolicy(security.DefaultAttachmentSize)
	}
	return &MailService{
		repo:      repo,
		transport: transport,
		blobs:     blobs,
		notifier:  notifier,
		policy:    policy,
		validator: domain.NewEmailValidator(),
		domain:    strings.ToLower(mailDomain),
		metrics:   metrics,
		log:       log,
	}
}

// Domain 返回收件箱域名
func (s *MailService) Domain() string {
	return s.domain
}

// ========== 收件箱 ==========

// ListInboxes 返回租户的收件箱
func (s *MailService) ListInboxes(ctx context.Context, userID string) ([]*domain.Mailbox, error) {
	return s.repo.ListMailboxesByUser(ctx, userID)
}

// CreateInbox 认领 {localPart}@{domain}
func (s *MailService) CreateInbox(ctx context.Context, userID, localPart string, allowedSenders []string) (*domain.Mailbox, error) {
	localPart = strings.ToLower(strings.TrimSpace(localPart))
	if err := s.validator.ValidateLocalPart(localPart); err != nil {
		return nil, err
	}

	senders := make([]string, 0, len(allowedSenders))
	for _, sender := range allowedSenders {
		if sender = strings.ToLower(strings.TrimSpace(sender)); sender != "" {
			senders = append(senders, sender)
		}
	}

	mailbox := &domain.Mailbox{
		ID:             uuid.NewString(),
		UserID:         userID,
		Email:          localPart + "@" + s.domain,
		AllowedSenders: senders,
		Active:         true,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.repo.CreateMailbox(ctx, mailbox); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrInboxTaken
		}
		return nil, err
	}

	s.log.Info("inbox created", zap.String("user_id", userID), zap.String("email", mailbox.Email))
	return mailbox, nil
}

// DeleteInbox 删除租户自己的收件箱及其邮件
func (s *MailService) DeleteInbox(ctx context.Context, userID, inboxID string) error {
	if _, err := s.ownedInbox(ctx, userID, inboxID); err != nil {
		return err
	}
	return s.repo.DeleteMailbox(ctx, inboxID)
}

func (s *MailService) ownedInbox(ctx context.Context, userID, inboxID string) (*domain.Mailbox, error) {
	mailbox, err := s.repo.GetMailbox(ctx, inboxID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInboxNotFound
		}
		return nil, err
	}
	if mailbox.UserID != userID {
		return nil, ErrInboxNotFound
	}
	return mailbox, nil
}

// ========== 邮件 ==========

// ListMessages 按文件夹列出邮件，最新的在前
func (s *MailService) ListMessages(ctx context.Context, userID, inboxID, folder string) ([]*domain.Message, error) {
	if inboxID == "" {
		return nil, ErrInboxRequired
	}
	f, ok := domain.ParseFolder(folder)
	if !ok {
		return nil, ErrInvalidFolder
	}
	if _, err := s.ownedInbox(ctx, userID, inboxID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, inboxID, f, MessageListLimit)
}

// GetMessage 返回邮件详情并标记为已读
func (s *MailService) GetMessage(ctx context.Context, userID, messageID string) (*domain.Message, error) {
	message, err := s.ownedMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}
	if !message.Read {
		message.Read = true
		if err := s.repo.SaveMessage(ctx, message); err != nil {
			return nil, err
		}
	}
	return message, nil
}

// ApplyAction 对邮件执行操作；permanent-delete 返回 nil 邮件
func (s *MailService) ApplyAction(ctx context.Context, userID, messageID, action string) (*domain.Message, error) {
	act := domain.MessageAction(action)
	if !act.Valid() {
		return nil, ErrInvalidAction
	}
	message, err := s.ownedMessage(ctx, userID, messageID)
	if err != nil {
		return nil, err
	}

	switch act {
	case domain.ActionPermanentDelete:
		if err := s.repo.DeleteMessage(ctx, message.ID); err != nil {
			return nil, err
		}
		return nil, nil
	case domain.ActionDelete:
		now := time.Now().UTC()
		message.Deleted = true
		message.DeletedAt = &now
	case domain.ActionRestore:
		message.Deleted = false
		message.DeletedAt = nil
	case domain.ActionRead:
		message.Read = true
	case domain.ActionUnread:
		message.Read = false
	}

	if err := s.repo.SaveMessage(ctx, message); err != nil {
		return nil, err
	}
	return message, nil
}

func (s *MailService) ownedMessage(ctx context.Context, userID, messageID string) (*domain.Message, error) {
	message, err := s.repo.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	if _, err := s.ownedInbox(ctx, userID, message.InboxID); err != nil {
		return nil, ErrMessageNotFound
	}
	return message, nil
}

// ========== 发信 ==========

// SendInput 发信输入；附件为之前上传得到的引用
type SendInput struct {
	UserID      string
	From        string
	To          string
	Subject     string
	Text        string
	HTML        string
	Attachments []*domain.Attachment
}

// Send 通过发信通道发送，确认成功后才保存到已发送
func (s *MailService) Send(ctx context.Context, in SendInput) (*domain.Message, error) {
	from := strings.ToLower(domain.ExtractAddress(in.From))
	mailbox, err := s.repo.GetMailboxByEmail(ctx, from)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInboxNotFound
		}
		return nil, err
	}
	if mailbox.UserID != in.UserID || !mailbox.Active {
		return nil, ErrInboxNotFound
	}

	recipients := splitRecipients(in.To)
	if len(recipients) == 0 {
		return nil, ErrRecipientRequired
	}
	for _, rcpt := range recipients {
		if !validRecipient(rcpt) {
			return nil, fmt.Errorf("%w: %s", domain.ErrInvalidEmail, rcpt)
		}
	}

	attachments, err := s.loadAttachments(ctx, in.Attachments)
	if err != nil {
		return nil, err
	}

	providerID, err := s.transport.Send(ctx, &mail.OutboundMessage{
		From:        mailbox.Email,
		To:          recipients,
		Subject:     in.Subject,
		Text:        in.Text,
		HTML:        in.HTML,
		Attachments: attachments,
	})
	if err != nil {
		s.log.Error("mail send failed", zap.String("from", mailbox.Email), zap.Error(err))
		return nil, upstream("send mail", err)
	}

	message := &domain.Message{
		ID:          uuid.NewString(),
		InboxID:     mailbox.ID,
		MessageID:   providerID,
		From:        mailbox.Email,
		To:          strings.Join(recipients, ", "),
		Subject:     in.Subject,
		Text:        in.Text,
		HTML:        in.HTML,
		Attachments: stripContent(attachments),
		Read:        true,
		Sent:        true,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.SaveMessage(ctx, message); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.MessagesSent.Inc()
	}
	s.log.Info("mail sent",
		zap.String("from", mailbox.Email),
		zap.Int("recipients", len(recipients)),
		zap.String("provider_id", providerID))
	return message, nil
}

// loadAttachments 从对象存储读取附件内容
func (s *MailService) loadAttachments(ctx context.Context, refs []*domain.Attachment) ([]*domain.Attachment, error) {
	loaded := make([]*domain.Attachment, 0, len(refs))
	for _, ref := range refs {
		if ref == nil || !strings.HasPrefix(ref.Key, attachmentPrefix) {
			return nil, ErrAttachmentNotFound
		}
		obj, err := s.blobs.Get(ctx, ref.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrAttachmentNotFound, ref.Key, err)
		}
		content, err := io.ReadAll(io.LimitReader(obj.Body, s.policy.MaxFileSize()+1))
		obj.Body.Close()
		if err != nil {
			return nil, upstream("read attachment", err)
		}
		contentType := ref.ContentType
		if contentType == "" {
			contentType = obj.ContentType
		}
		loaded = append(loaded, &domain.Attachment{
			Filename:    ref.Filename,
			ContentType: contentType,
			Size:        int64(len(content)),
			Key:         ref.Key,
			URL:         s.blobs.PublicURL(ref.Key),
			Content:     content,
		})
	}
	return loaded, nil
}

// UploadAttachment 校验并保存一个待发送的附件
func (s *MailService) UploadAttachment(ctx context.Context, filename, contentType string, size int64, body io.Reader) (*domain.Attachment, error) {
	name, err := security.SanitizeFilename(filename)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CheckSize(size); err != nil {
		return nil, err
	}
	content, err := io.ReadAll(io.LimitReader(body, s.policy.MaxFileSize()+1))
	if err != nil {
		return nil, err
	}
	return s.storeAttachment(ctx, &domain.Attachment{Filename: name, ContentType: contentType, Content: content})
}

func (s *MailService) storeAttachment(ctx context.Context, a *domain.Attachment) (*domain.Attachment, error) {
	size := int64(len(a.Content))
	contentType, err := s.policy.Check(a.Filename, a.ContentType, size, a.Content)
	if err != nil {
		return nil, err
	}

	key := attachmentPrefix + randomHex(16)
	if ext := domain.FileExtension(a.Filename); ext != "" {
		key += "." + ext
	}
	if err := s.blobs.Put(ctx, key, bytes.NewReader(a.Content), size, contentType); err != nil {
		return nil, upstream("store attachment", err)
	}
	return &domain.Attachment{
		Filename:    a.Filename,
		ContentType: contentType,
		Size:        size,
		Key:         key,
		URL:         s.blobs.PublicURL(key),
	}, nil
}

// ========== 收信 ==========

// InboundInput 入站邮件
type InboundInput struct {
	Source      string // webhook / smtp
	Recipient   string
	Sender      string
	Subject     string
	Text        string
	HTML        string
	MessageID   string
	Attachments []*domain.Attachment // Content 已加载
}

// ActiveInbox 按地址查找激活的收件箱；地址不在邮件域名下时同样返回 ErrInboxNotFound
func (s *MailService) ActiveInbox(ctx context.Context, address string) (*domain.Mailbox, error) {
	address = strings.ToLower(domain.ExtractAddress(address))
	if !strings.HasSuffix(address, "@"+s.domain) {
		return nil, ErrInboxNotFound
	}
	mailbox, err := s.repo.GetMailboxByEmail(ctx, address)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInboxNotFound
		}
		return nil, err
	}
	if !mailbox.Active {
		return nil, ErrInboxNotFound
	}
	return mailbox, nil
}

// Deliver 保存入站邮件；发件人不在白名单内时标记为垃圾邮件
func (s *MailService) Deliver(ctx context.Context, in InboundInput) (*domain.Message, error) {
	mailbox, err := s.ActiveInbox(ctx, in.Recipient)
	if err != nil {
		return nil, err
	}

	attachments := make([]*domain.Attachment, 0, len(in.Attachments))
	for _, a := range in.Attachments {
		stored, err := s.storeAttachment(ctx, a)
		if err != nil {
			// 不合规的附件丢弃，邮件正文照常投递
			s.log.Warn("inbound attachment dropped",
				zap.String("inbox", mailbox.Email),
				zap.String("filename", a.Filename),
				zap.Error(err))
			continue
		}
		attachments = append(attachments, stored)
	}

	message := &domain.Message{
		ID:          uuid.NewString(),
		InboxID:     mailbox.ID,
		MessageID:   in.MessageID,
		From:        in.Sender,
		To:          mailbox.Email,
		Subject:     in.Subject,
		Text:        in.Text,
		HTML:        in.HTML,
		Attachments: attachments,
		Junk:        !mailbox.AcceptsFrom(in.Sender),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.SaveMessage(ctx, message); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordMessageReceived(in.Source)
	}
	if s.notifier != nil && !message.Junk {
		s.notifier.NotifyNewMail(ctx, mailbox.UserID, message)
	}
	s.log.Info("mail received",
		zap.String("inbox", mailbox.Email),
		zap.String("source", in.Source),
		zap.Bool("junk", message.Junk),
		zap.Int("attachments", len(attachments)))
	return message, nil
}

func splitRecipients(to string) []string {
	var out []string
	for _, part := range strings.Split(to, ",") {
		if addr := strings.ToLower(domain.ExtractAddress(part)); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// validRecipient 外部收件人只检查基本格式，本地部分允许 + 等字符
func validRecipient(addr string) bool {
	at := strings.LastIndexByte(addr, '@')
	return at > 0 && len(addr) <= domain.MaxEmailLength && domain.IsHostname(addr[at+1:])
}

func stripContent(attachments []*domain.Attachment) []*domain.Attachment {
	out := make([]*domain.Attachment, len(attachments))
	for i, a := range attachments {
		cp := *a
		cp.Content = nil
		out[i] = &cp
	}
	return out
}
