package httptransport

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/middleware"
	"furrydomains/backend/internal/service"
)

// ProfileHandler 个人数据与反馈处理器
type ProfileHandler struct {
	profile  *service.ProfileService
	feedback *service.FeedbackService
	log      *zap.Logger
}

// NewProfileHandler 创建个人数据处理器
func NewProfileHandler(profile *service.ProfileService, feedback *service.FeedbackService, log *zap.Logger) *ProfileHandler {
	return &ProfileHandler{profile: profile, feedback: feedback, log: log}
}

// FeedbackRequest 提交反馈请求
type FeedbackRequest struct {
	Feedback string `json:"feedback"`
	Rating   int    `json:"rating"`
	Path     string `json:"path"`
}

// Stats godoc
// @Summary 个人统计
// @Tags Profile
// @Produce json
// @Success 200 {object} domain.ProfileStats
// @Router /v1/profile/stats [get]
func (h *ProfileHandler) Stats(c *gin.Context) {
	stats, err := h.profile.Stats(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, h.log, err, MsgProfileFailed)
		return
	}
	Success(c, stats)
}

// Export godoc
// @Summary 导出个人全部数据
// @Tags Profile
// @Produce json
// @Success 200 {object} domain.ProfileExport
// @Router /v1/profile/export [get]
func (h *ProfileHandler) Export(c *gin.Context) {
	who := middleware.IdentityFrom(c)
	export, err := h.profile.Export(c.Request.Context(), service.ExportIdentity{
		UserID:  who.UserID,
		Email:   who.Email,
		SlackID: who.SlackID,
	})
	if err != nil {
		respondError(c, h.log, err, MsgProfileFailed)
		return
	}
	Success(c, export)
}

// SubmitFeedback godoc
// @Summary 提交反馈
// @Description 评分 1-5，内容至少 20 个字符
// @Tags Feedback
// @Accept json
// @Produce json
// @Param request body FeedbackRequest true "反馈"
// @Success 201 {object} domain.Feedback
// @Failure 400 {object} Response
// @Router /v1/feedback [post]
func (h *ProfileHandler) SubmitFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	feedback, err := h.feedback.Submit(c.Request.Context(), service.FeedbackInput{
		UserID:    c.GetString("userID"),
		Rating:    req.Rating,
		Text:      req.Feedback,
		Path:      req.Path,
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, h.log, err, MsgFeedbackFailed)
		return
	}
	CreatedWithMsg(c, "感谢您的反馈", feedback)
}

// ListFeedback godoc
// @Summary 获取自己提交的反馈
// @Tags Feedback
// @Produce json
// @Success 200 {array} domain.Feedback
// @Router /v1/feedback [get]
func (h *ProfileHandler) ListFeedback(c *gin.Context) {
	items, err := h.feedback.List(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, h.log, err, MsgFeedbackFailed)
		return
	}
	if items == nil {
		items = []*domain.Feedback{}
	}
	Success(c, items)
}
