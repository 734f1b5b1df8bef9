package httptransport

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"furrydomains/backend/internal/middleware"
	"furrydomains/backend/internal/service"
	"furrydomains/backend/internal/slackbot"
)

// AccessHandler webmail 访问申请处理器
type AccessHandler struct {
	access *service.AccessService
	log    *zap.Logger
}

// NewAccessHandler 创建访问申请处理器
func NewAccessHandler(access *service.AccessService, log *zap.Logger) *AccessHandler {
	return &AccessHandler{access: access, log: log}
}

// AccessStatusResponse 申请状态；没有申请时 status 为 null
type AccessStatusResponse struct {
	Status        *string    `json:"status"`
	RequestedAt   *time.Time `json:"requestedAt,omitempty"`
	DecidedAt     *time.Time `json:"decidedAt,omitempty"`
	LastRequestAt *time.Time `json:"lastRequestAt,omitempty"`
}

// Request godoc
// @Summary 申请 webmail 访问权限
// @Description 申请会发送到 Slack 管理员频道审批，24 小时内只能申请一次
// @Tags Access
// @Produce json
// @Success 201 {object} domain.AccessRequest
// @Failure 400 {object} Response
// @Failure 429 {object} Response
// @Failure 500 {object} Response
// @Router /v1/access/request [post]
func (h *AccessHandler) Request(c *gin.Context) {
	who := middleware.IdentityFrom(c)
	req, err := h.access.Request(c.Request.Context(), service.Requester{
		UserID:      who.UserID,
		SlackUserID: who.SlackID,
		Name:        who.Name,
		Email:       who.Email,
	})
	if err != nil {
		respondError(c, h.log, err, MsgAccessRequestFailed)
		return
	}
	CreatedWithMsg(c, "申请已提交", req)
}

// Status godoc
// @Summary 查询申请状态
// @Tags Access
// @Produce json
// @Success 200 {object} AccessStatusResponse
// @Router /v1/access/status [get]
func (h *AccessHandler) Status(c *gin.Context) {
	req, err := h.access.Status(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, h.log, err, MsgAccessStatusFailed)
		return
	}
	if req == nil {
		Success(c, AccessStatusResponse{})
		return
	}
	status := string(req.Status)
	requestedAt, lastRequestAt := req.RequestedAt, req.LastRequestAt
	Success(c, AccessStatusResponse{
		Status:        &status,
		RequestedAt:   &requestedAt,
		DecidedAt:     req.DecidedAt,
		LastRequestAt: &lastRequestAt,
	})
}

// QuizStatus godoc
// @Summary 查询测验是否已完成
// @Tags Access
// @Produce json
// @Success 200 {object} map[string]bool
// @Router /v1/access/quiz [get]
func (h *AccessHandler) QuizStatus(c *gin.Context) {
	completed, err := h.access.QuizCompleted(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, h.log, err, MsgAccessStatusFailed)
		return
	}
	Success(c, gin.H{"completed": completed})
}

// CompleteQuiz godoc
// @Summary 完成测验
// @Description 只有审批通过的用户可以完成测验
// @Tags Access
// @Produce json
// @Success 200 {object} map[string]bool
// @Failure 403 {object} Response
// @Router /v1/access/quiz [post]
func (h *AccessHandler) CompleteQuiz(c *gin.Context) {
	if err := h.access.CompleteQuiz(c.Request.Context(), c.GetString("userID")); err != nil {
		respondError(c, h.log, err, MsgAccessStatusFailed)
		return
	}
	Success(c, gin.H{"completed": true})
}

// RequireWebmail 未开通 webmail 的租户返回 403
func (h *AccessHandler) RequireWebmail() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := h.access.RequireWebmail(c.Request.Context(), c.GetString("userID")); err != nil {
			respondError(c, h.log, err, MsgAccessStatusFailed)
			c.Abort()
			return
		}
		c.Next()
	}
}

// SlackHandler Slack 回调处理器
type SlackHandler struct {
	access        *service.AccessService
	signingSecret string
	log           *zap.Logger
}

// NewSlackHandler 创建 Slack 回调处理器
func NewSlackHandler(access *service.AccessService, signingSecret string, log *zap.Logger) *SlackHandler {
	return &SlackHandler{access: access, signingSecret: signingSecret, log: log}
}

// Events godoc
// @Summary Slack 事件与交互回调
// @Description 校验签名后处理 url_verification 与审批按钮
// @Tags Slack
// @Accept x-www-form-urlencoded
// @Produce json
// @Success 200 {object} Response
// @Failure 401 {object} Response
// @Router /slack/events [post]
func (h *SlackHandler) Events(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	if err := slackbot.Verify(c.Request.Header, body, h.signingSecret); err != nil {
		h.log.Warn("slack signature rejected", zap.String("remote_addr", c.ClientIP()), zap.Error(err))
		Unauthorized(c, MsgInvalidSignature)
		return
	}

	if challenge, ok := slackbot.URLVerificationChallenge(body); ok {
		c.JSON(http.StatusOK, gin.H{"challenge": challenge})
		return
	}

	form, err := url.ParseQuery(string(body))
	if err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	decision, err := slackbot.ParseDecision(form.Get("payload"))
	if err != nil {
		if errors.Is(err, slackbot.ErrUnsupportedPayload) {
			c.Status(http.StatusOK)
			return
		}
		BadRequest(c, MsgInvalidRequest)
		return
	}

	req, err := h.access.Decide(c.Request.Context(), service.DecisionInput{
		RequestID:     decision.Value.RequestID,
		Approve:       decision.Approved(),
		AdminID:       decision.AdminID,
		SlackUserID:   decision.Value.SlackUserID,
		ChannelID:     decision.ChannelID,
		MessageTS:     decision.MessageTS,
		RequesterName: decision.RequesterName,
	})
	if err != nil {
		respondError(c, h.log, err, MsgAccessDecisionFailed)
		return
	}
	Success(c, gin.H{"status": req.Status})
}
