package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/service"
)

// MailHandler webmail 收件箱与邮件处理器
type MailHandler struct {
	mail *service.MailService
	log  *zap.Logger
}

// NewMailHandler 创建 webmail 处理器
func NewMailHandler(mail *service.MailService, log *zap.Logger) *MailHandler {
	return &MailHandler{mail: mail, log: log}
}

// CreateInboxRequest 创建收件箱请求
type CreateInboxRequest struct {
	LocalPart      string   `json:"localPart" binding:"required"`
	AllowedSenders []string `json:"allowedSenders"`
}

// MessageActionRequest 邮件操作请求
type MessageActionRequest struct {
	Action string `json:"action" binding:"required"`
}

// SendRequest 发信请求；附件为 /v1/attachments 返回的引用
type SendRequest struct {
	From        string               `json:"from" binding:"required"`
	To          string               `json:"to"`
	Subject     string               `json:"subject"`
	Text        string               `json:"text"`
	HTML        string               `json:"html"`
	Attachments []*domain.Attachment `json:"attachments"`
}

// ListInboxes godoc
// @Summary 获取收件箱列表
// @Tags Webmail
// @Produce json
// @Success 200 {array} domain.Mailbox
// @Failure 403 {object} Response
// @Router /v1/inboxes [get]
func (h *MailHandler) ListInboxes(c *gin.Context) {
	inboxes, err := h.mail.ListInboxes(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, h.log, err, MsgInboxListFailed)
		return
	}
	if inboxes == nil {
		inboxes = []*domain.Mailbox{}
	}
	Success(c, inboxes)
}

// CreateInbox godoc
// @Summary 创建收件箱
// @Description 认领 {localPart}@邮件域名
// @Tags Webmail
// @Accept json
// @Produce json
// @Param request body CreateInboxRequest true "收件箱"
// @Success 201 {object} domain.Mailbox
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Router /v1/inboxes [post]
func (h *MailHandler) CreateInbox(c *gin.Context) {
	var req CreateInboxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	mailbox, err := h.mail.CreateInbox(c.Request.Context(), c.GetString("userID"), req.LocalPart, req.AllowedSenders)
	if err != nil {
		respondError(c, h.log, err, MsgInboxCreateFailed)
		return
	}
	Created(c, mailbox)
}

// DeleteInbox godoc
// @Summary 删除收件箱及其邮件
// @Tags Webmail
// @Produce json
// @Param id path string true "收件箱ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /v1/inboxes/{id} [delete]
func (h *MailHandler) DeleteInbox(c *gin.Context) {
	if err := h.mail.DeleteInbox(c.Request.Context(), c.GetString("userID"), c.Param("id")); err != nil {
		respondError(c, h.log, err, MsgInboxDeleteFailed)
		return
	}
	SuccessWithMsg(c, "删除成功", nil)
}

// ListMessages godoc
// @Summary 获取邮件列表
// @Description 最新的在前，最多 100 封
// @Tags Webmail
// @Produce json
// @Param inboxId query string true "收件箱ID"
// @Param folder query string false "inbox / sent / deleted"
// @Success 200 {array} domain.Message
// @Failure 400 {object} Response
// @Router /v1/messages [get]
func (h *MailHandler) ListMessages(c *gin.Context) {
	messages, err := h.mail.ListMessages(c.Request.Context(), c.GetString("userID"), c.Query("inboxId"), c.Query("folder"))
	if err != nil {
		respondError(c, h.log, err, MsgMessageListFailed)
		return
	}
	if messages == nil {
		messages = []*domain.Message{}
	}
	Success(c, messages)
}

// GetMessage godoc
// @Summary 获取邮件详情并标记已读
// @Tags Webmail
// @Produce json
// @Param id path string true "邮件ID"
// @Success 200 {object} domain.Message
// @Failure 404 {object} Response
// @Router /v1/messages/{id} [get]
func (h *MailHandler) GetMessage(c *gin.Context) {
	message, err := h.mail.GetMessage(c.Request.Context(), c.GetString("userID"), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err, MsgMessageGetFailed)
		return
	}
	Success(c, message)
}

// UpdateMessage godoc
// @Summary 对邮件执行操作
// @Description delete / restore / permanent-delete / read / unread
// @Tags Webmail
// @Accept json
// @Produce json
// @Param id path string true "邮件ID"
// @Param request body MessageActionRequest true "操作"
// @Success 200 {object} domain.Message
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /v1/messages/{id} [patch]
func (h *MailHandler) UpdateMessage(c *gin.Context) {
	var req MessageActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	message, err := h.mail.ApplyAction(c.Request.Context(), c.GetString("userID"), c.Param("id"), req.Action)
	if err != nil {
		respondError(c, h.log, err, MsgMessageUpdateFailed)
		return
	}
	if message == nil {
		SuccessWithMsg(c, "邮件已永久删除", nil)
		return
	}
	Success(c, message)
}

// Send godoc
// @Summary 发送邮件
// @Description 发信通道确认成功后保存到已发送
// @Tags Webmail
// @Accept json
// @Produce json
// @Param request body SendRequest true "邮件"
// @Success 201 {object} domain.Message
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Failure 500 {object} Response
// @Router /v1/messages/send [post]
func (h *MailHandler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	message, err := h.mail.Send(c.Request.Context(), service.SendInput{
		UserID:      c.GetString("userID"),
		From:        req.From,
		To:          req.To,
		Subject:     req.Subject,
		Text:        req.Text,
		HTML:        req.HTML,
		Attachments: req.Attachments,
	})
	if err != nil {
		respondError(c, h.log, err, MsgMessageSendFailed)
		return
	}
	CreatedWithMsg(c, "发送成功", message)
}

// UploadAttachment godoc
// @Summary 上传待发送的附件
// @Description 最大 10MB，只允许常见文档与图片类型
// @Tags Webmail
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "附件"
// @Success 201 {object} domain.Attachment
// @Failure 400 {object} Response
// @Failure 413 {object} Response
// @Failure 415 {object} Response
// @Router /v1/attachments [post]
func (h *MailHandler) UploadAttachment(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		BadRequest(c, MsgMissingFile)
		return
	}
	file, err := header.Open()
	if err != nil {
		BadRequest(c, MsgMissingFile)
		return
	}
	defer file.Close()

	attachment, err := h.mail.UploadAttachment(c.Request.Context(),
		header.Filename, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		respondError(c, h.log, err, MsgAttachmentFailed)
		return
	}
	Created(c, attachment)
}
