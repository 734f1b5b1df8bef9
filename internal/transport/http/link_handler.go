package httptransport

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/service"
)

// LinkHandler 短链接处理器
type LinkHandler struct {
	links *service.LinkService
	log   *zap.Logger
}

// NewLinkHandler 创建短链接处理器
func NewLinkHandler(links *service.LinkService, log *zap.Logger) *LinkHandler {
	return &LinkHandler{links: links, log: log}
}

// ShortenRequest 创建短链接请求
type ShortenRequest struct {
	Destination string `json:"destination" binding:"required"`
}

// List godoc
// @Summary 获取短链接列表
// @Tags Links
// @Produce json
// @Success 200 {array} domain.ShortLink
// @Router /v1/links [get]
func (h *LinkHandler) List(c *gin.Context) {
	links, err := h.links.List(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, h.log, err, MsgLinkListFailed)
		return
	}
	if links == nil {
		links = []*domain.ShortLink{}
	}
	Success(c, links)
}

// Shorten godoc
// @Summary 创建短链接
// @Tags Links
// @Accept json
// @Produce json
// @Param request body ShortenRequest true "目标地址"
// @Success 201 {object} service.ShortenResult
// @Failure 400 {object} Response
// @Failure 403 {object} Response
// @Router /v1/links [post]
func (h *LinkHandler) Shorten(c *gin.Context) {
	var req ShortenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, GetErrorMessage(service.ErrDestinationRequired))
		return
	}
	result, err := h.links.Shorten(c.Request.Context(), c.GetString("userID"), req.Destination)
	if err != nil {
		respondError(c, h.log, err, MsgLinkCreateFailed)
		return
	}
	Created(c, result)
}

// Delete godoc
// @Summary 删除短链接
// @Tags Links
// @Produce json
// @Param code path string true "短码"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /v1/links/{code} [delete]
func (h *LinkHandler) Delete(c *gin.Context) {
	if err := h.links.Delete(c.Request.Context(), c.GetString("userID"), c.Param("code")); err != nil {
		respondError(c, h.log, err, MsgLinkDeleteFailed)
		return
	}
	SuccessWithMsg(c, "删除成功", nil)
}

// Resolve godoc
// @Summary 短链接跳转
// @Tags Links
// @Param code path string true "短码"
// @Success 302
// @Failure 404 {object} Response
// @Router /l/{code} [get]
func (h *LinkHandler) Resolve(c *gin.Context) {
	h.redirect(c, c.Param("code"))
}

// NoRoute 未匹配的路由中，形如 /{code} 的路径按短码跳转
func (h *LinkHandler) NoRoute(c *gin.Context) {
	candidate := strings.TrimPrefix(c.Request.URL.Path, "/")
	if c.Request.Method == http.MethodGet && h.links.IsCode(candidate) {
		h.redirect(c, candidate)
		return
	}
	NotFound(c, "接口不存在")
}

func (h *LinkHandler) redirect(c *gin.Context, code string) {
	link, err := h.links.Resolve(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrLinkNotFound) {
			NotFound(c, GetErrorMessage(err))
			return
		}
		respondError(c, h.log, err, MsgInternalError)
		return
	}
	c.Redirect(http.StatusFound, link.Destination)
}
