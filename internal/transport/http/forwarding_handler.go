package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/service"
)

// ForwardingHandler 邮件转发处理器
type ForwardingHandler struct {
	forwarding *service.ForwardingService
	log        *zap.Logger
}

// NewForwardingHandler 创建邮件转发处理器
func NewForwardingHandler(forwarding *service.ForwardingService, log *zap.Logger) *ForwardingHandler {
	return &ForwardingHandler{forwarding: forwarding, log: log}
}

// ForwardingRequest 创建转发规则请求
type ForwardingRequest struct {
	FromEmail     string `json:"fromEmail" binding:"required"`
	ToEmail       string `json:"toEmail" binding:"required"`
	DestinationID string `json:"destinationId"`
}

// DestinationRequest 注册目标地址请求
type DestinationRequest struct {
	Email string `json:"email" binding:"required"`
}

// List godoc
// @Summary 获取转发规则
// @Tags Forwarding
// @Produce json
// @Success 200 {array} domain.ForwardingRule
// @Router /v1/forwarding [get]
func (h *ForwardingHandler) List(c *gin.Context) {
	rules, err := h.forwarding.List(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, h.log, err, MsgForwardingFailed)
		return
	}
	if rules == nil {
		rules = []*domain.ForwardingRule{}
	}
	Success(c, rules)
}

// Create godoc
// @Summary 创建转发规则
// @Description 源地址必须位于已认领的域名下
// @Tags Forwarding
// @Accept json
// @Produce json
// @Param request body ForwardingRequest true "规则"
// @Success 201 {object} domain.ForwardingRule
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /v1/forwarding [post]
func (h *ForwardingHandler) Create(c *gin.Context) {
	var req ForwardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	rule, err := h.forwarding.Create(c.Request.Context(), service.ForwardingInput{
		UserID:        c.GetString("userID"),
		FromEmail:     req.FromEmail,
		ToEmail:       req.ToEmail,
		DestinationID: req.DestinationID,
	})
	if err != nil {
		respondError(c, h.log, err, MsgForwardingFailed)
		return
	}
	Created(c, rule)
}

// Delete godoc
// @Summary 删除转发规则
// @Tags Forwarding
// @Produce json
// @Param ruleId path string true "规则ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /v1/forwarding/{ruleId} [delete]
func (h *ForwardingHandler) Delete(c *gin.Context) {
	if err := h.forwarding.Delete(c.Request.Context(), c.GetString("userID"), c.Param("ruleId")); err != nil {
		respondError(c, h.log, err, MsgForwardingFailed)
		return
	}
	SuccessWithMsg(c, "删除成功", nil)
}

// CreateDestination godoc
// @Summary 注册转发目标地址
// @Description 服务商会向该地址发送验证邮件
// @Tags Forwarding
// @Accept json
// @Produce json
// @Param request body DestinationRequest true "目标地址"
// @Success 201 {object} dns.Destination
// @Failure 400 {object} Response
// @Router /v1/forwarding/destinations [post]
func (h *ForwardingHandler) CreateDestination(c *gin.Context) {
	var req DestinationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	dest, err := h.forwarding.CreateDestination(c.Request.Context(), req.Email)
	if err != nil {
		respondError(c, h.log, err, MsgForwardingFailed)
		return
	}
	Created(c, dest)
}

// DestinationStatus godoc
// @Summary 查询目标地址验证状态
// @Tags Forwarding
// @Produce json
// @Param id path string true "目标地址ID"
// @Success 200 {object} dns.Destination
// @Router /v1/forwarding/destinations/{id} [get]
func (h *ForwardingHandler) DestinationStatus(c *gin.Context) {
	dest, err := h.forwarding.DestinationStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.log, err, MsgForwardingFailed)
		return
	}
	Success(c, dest)
}
