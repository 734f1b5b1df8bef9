package httptransport

import (
	"errors"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/mail"
	"furrydomains/backend/internal/service"
)

// 入站来源，记录在指标中
const sourceWebhook = "webhook"

// maxInboundMemory 解析 multipart 表单时保存在内存中的上限
const maxInboundMemory = 32 << 20

// SignatureVerifier 校验 webhook 签名
type SignatureVerifier interface {
	Verify(timestamp, token, signature string) error
}

// MailgunWebhookHandler Mailgun 入站邮件 webhook
type MailgunWebhookHandler struct {
	mail     *service.MailService
	verifier SignatureVerifier
	log      *zap.Logger
}

// NewMailgunWebhookHandler 创建入站 webhook 处理器
func NewMailgunWebhookHandler(mail *service.MailService, verifier SignatureVerifier, log *zap.Logger) *MailgunWebhookHandler {
	return &MailgunWebhookHandler{mail: mail, verifier: verifier, log: log}
}

// Inbound godoc
// @Summary Mailgun 入站邮件
// @Description 表单提交，签名为 HMAC-SHA256(signingKey, timestamp+token)
// @Tags Webhooks
// @Accept x-www-form-urlencoded
// @Produce json
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Failure 404 {object} Response
// @Router /webhooks/mailgun [post]
func (h *MailgunWebhookHandler) Inbound(c *gin.Context) {
	// multipart 时同时解析附件，普通表单由 PostForm 处理
	_ = c.Request.ParseMultipartForm(maxInboundMemory)

	if err := h.verifier.Verify(c.PostForm("timestamp"), c.PostForm("token"), c.PostForm("signature")); err != nil {
		h.log.Warn("mailgun webhook signature rejected", zap.String("remote_addr", c.ClientIP()))
		Unauthorized(c, MsgInvalidSignature)
		return
	}

	inbound := mail.ParseInbound(c.PostForm)
	message, err := h.mail.Deliver(c.Request.Context(), service.InboundInput{
		Source:      sourceWebhook,
		Recipient:   inbound.Recipient,
		Sender:      inbound.Sender,
		Subject:     inbound.Subject,
		Text:        inbound.Text,
		HTML:        inbound.HTML,
		MessageID:   inbound.MessageID,
		Attachments: h.attachments(c, mail.AttachmentCount(c.PostForm)),
	})
	if err != nil {
		if !errors.Is(err, service.ErrInboxNotFound) {
			respondError(c, h.log, err, MsgInboundFailed)
			return
		}
		h.log.Info("inbound mail for unknown inbox", zap.String("recipient", inbound.Recipient))
		NotFound(c, GetErrorMessage(err))
		return
	}
	Success(c, gin.H{"id": message.ID, "junk": message.Junk})
}

// attachments 读取 attachment-1..N 文件字段，读取失败的跳过
func (h *MailgunWebhookHandler) attachments(c *gin.Context, count int) []*domain.Attachment {
	out := make([]*domain.Attachment, 0, count)
	for i := 1; i <= count; i++ {
		header, err := c.FormFile(fmt.Sprintf("attachment-%d", i))
		if err != nil {
			continue
		}
		file, err := header.Open()
		if err != nil {
			continue
		}
		content, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			h.log.Warn("failed to read inbound attachment", zap.String("filename", header.Filename), zap.Error(err))
			continue
		}
		out = append(out, &domain.Attachment{
			Filename:    header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        int64(len(content)),
			Content:     content,
		})
	}
	return out
}
