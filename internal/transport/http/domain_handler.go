package httptransport

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/service"
)

// DomainHandler 子域名 DNS 记录处理器
type DomainHandler struct {
	registry *service.DomainRegistryService
	log      *zap.Logger
}

// NewDomainHandler 创建 DNS 记录处理器
func NewDomainHandler(registry *service.DomainRegistryService, log *zap.Logger) *DomainHandler {
	return &DomainHandler{registry: registry, log: log}
}

// RecordRequest 新增或更新记录请求；template 非空时忽略 recordType 与 content
type RecordRequest struct {
	Domain     string                 `json:"domain" binding:"required"`
	RecordType string                 `json:"recordType"`
	Content    []domain.RecordPayload `json:"content"`
	Template   string                 `json:"template"`
}

func (r *RecordRequest) input(userID string) service.RecordInput {
	return service.RecordInput{
		UserID:     userID,
		Domain:     r.Domain,
		RecordType: r.RecordType,
		Records:    r.Content,
		Template:   r.Template,
	}
}

// List godoc
// @Summary 获取当前用户的 DNS 记录
// @Tags Domains
// @Produce json
// @Success 200 {array} domain.DomainRecord
// @Failure 401 {object} Response
// @Router /v1/domains [get]
func (h *DomainHandler) List(c *gin.Context) {
	records, err := h.registry.List(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, h.log, err, MsgDomainListFailed)
		return
	}
	if records == nil {
		records = []*domain.DomainRecord{}
	}
	Success(c, records)
}

// Add godoc
// @Summary 认领子域名并创建记录
// @Description 先在 DNS 服务商处创建记录，全部成功后保存
// @Tags Domains
// @Accept json
// @Produce json
// @Param request body RecordRequest true "记录"
// @Success 201 {object} domain.DomainRecord
// @Failure 400 {object} Response
// @Failure 409 {object} Response
// @Failure 500 {object} Response
// @Router /v1/domains [post]
func (h *DomainHandler) Add(c *gin.Context) {
	var req RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	record, err := h.registry.Add(c.Request.Context(), req.input(c.GetString("userID")))
	if err != nil {
		respondError(c, h.log, err, MsgDomainAddFailed)
		return
	}
	Created(c, record)
}

// Update godoc
// @Summary 更新已认领的记录
// @Tags Domains
// @Accept json
// @Produce json
// @Param request body RecordRequest true "记录"
// @Success 200 {object} domain.DomainRecord
// @Failure 400 {object} Response
// @Failure 404 {object} Response
// @Router /v1/domains [put]
func (h *DomainHandler) Update(c *gin.Context) {
	var req RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}

	record, err := h.registry.Update(c.Request.Context(), req.input(c.GetString("userID")))
	if err != nil {
		respondError(c, h.log, err, MsgDomainUpdateFailed)
		return
	}
	Success(c, record)
}

// Delete godoc
// @Summary 删除子域名下的记录
// @Tags Domains
// @Produce json
// @Param domain path string true "子域名"
// @Param type query string false "只删除该类型的记录"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /v1/domains/{domain} [delete]
func (h *DomainHandler) Delete(c *gin.Context) {
	err := h.registry.Delete(c.Request.Context(), c.GetString("userID"), c.Param("domain"), c.Query("type"))
	if err != nil {
		respondError(c, h.log, err, MsgDomainDeleteFailed)
		return
	}
	SuccessWithMsg(c, "删除成功", nil)
}

// Templates godoc
// @Summary 内置 DNS 模板
// @Tags Domains
// @Produce json
// @Success 200 {array} service.DNSTemplate
// @Router /v1/domains/templates [get]
func (h *DomainHandler) Templates(c *gin.Context) {
	Success(c, h.registry.Templates())
}

// Zones godoc
// @Summary 可认领的父域名
// @Tags Domains
// @Produce json
// @Success 200 {array} string
// @Router /v1/domains/zones [get]
func (h *DomainHandler) Zones(c *gin.Context) {
	Success(c, h.registry.Zones())
}

// Export godoc
// @Summary 导出记录为 JSON 文件
// @Tags Domains
// @Produce json
// @Success 200 {object} domain.DomainRecordSet
// @Router /v1/domains/export [get]
func (h *DomainHandler) Export(c *gin.Context) {
	set, err := h.registry.Export(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, h.log, err, MsgDomainListFailed)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="domains-backup.json"`)
	c.JSON(http.StatusOK, set)
}
