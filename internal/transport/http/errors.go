package httptransport

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/security"
	"furrydomains/backend/internal/service"
)

// 错误消息映射表（业务错误 -> 中文消息）
var errorMessages = map[error]string{
	// 通用
	service.ErrForbidden: "无权访问该资源",
	service.ErrUpstream:  "外部服务调用失败，请稍后重试",

	// 格式校验
	domain.ErrInvalidEmail:      "邮箱格式无效",
	domain.ErrEmailTooLong:      "邮箱地址过长",
	domain.ErrLocalPartTooLong:  "邮箱前缀过长（最多64个字符）",
	domain.ErrDomainTooLong:     "域名过长",
	domain.ErrInvalidLocalPart:  "邮箱前缀格式无效",
	domain.ErrInvalidDomain:     "域名不在可认领的范围内或格式无效",
	domain.ErrInvalidURL:        "链接必须是完整的 http(s) 地址",
	domain.ErrUnknownRecordType: "不支持的记录类型",

	// DNS 记录
	service.ErrDomainTaken:      "该域名已被其他用户认领",
	service.ErrRecordExists:     "该记录已存在",
	service.ErrProviderConflict: "DNS 服务商处已存在冲突的记录",
	service.ErrRecordNotFound:   "记录不存在",
	service.ErrNoRecords:        "至少需要一条记录",
	service.ErrUnknownTemplate:  "模板不存在",

	// 访问申请
	service.ErrAccessCooldown:        "请在24小时后再次申请",
	service.ErrAccessAlreadyApproved: "您已获得访问权限",
	service.ErrAccessPending:         "您的申请仍在审核中",
	service.ErrNotApproved:           "尚未通过审批",
	service.ErrWebmailLocked:         "尚未开通 webmail，请先申请并完成测验",
	service.ErrAccessRequestNotFound: "申请不存在",
	service.ErrAccessAlreadyDecided:  "申请已处理",
	service.ErrNotAdmin:              "只有管理员可以审批",

	// 收件箱与邮件
	service.ErrInboxTaken:         "该邮箱地址已被占用",
	service.ErrInboxNotFound:      "收件箱不存在",
	service.ErrInboxRequired:      "缺少 inboxId",
	service.ErrInvalidFolder:      "文件夹无效",
	service.ErrMessageNotFound:    "邮件不存在",
	service.ErrInvalidAction:      "不支持的操作",
	service.ErrRecipientRequired:  "缺少收件人",
	service.ErrAttachmentNotFound: "附件不存在",

	// 文件
	service.ErrFileExists:          "同名文件已存在",
	service.ErrFileNotFound:        "文件不存在",
	service.ErrFilenameRequired:    "缺少文件名",
	security.ErrFileTooLarge:       "文件过大",
	security.ErrFileTypeNotAllowed: "不允许的文件类型",
	security.ErrInvalidFilename:    "文件名无效",

	// 短链接
	service.ErrDestinationRequired: "缺少目标地址",
	service.ErrSelfLink:            "不能缩短指向本站的链接",
	service.ErrLinkNotFound:        "短链接不存在",
	service.ErrCodeExhausted:       "短链接生成失败，请重试",

	// 邮件转发
	service.ErrForwardingNotFound:    "转发规则不存在",
	service.ErrDestinationIDRequired: "缺少目标地址 ID",

	// 反馈
	service.ErrInvalidRating:    "评分必须在1到5之间",
	service.ErrFeedbackTooShort: "反馈内容至少20个字符",
	service.ErrFeedbackRequired: "请填写评分和反馈内容",
}

// GetErrorMessage 获取错误的中文消息
func GetErrorMessage(err error) string {
	if msg, ok := errorMessages[err]; ok {
		return msg
	}
	for sentinel, msg := range errorMessages {
		if errors.Is(err, sentinel) {
			return msg
		}
	}
	return err.Error()
}

// statusFor 把业务错误映射为 HTTP 状态码，未知错误返回 0
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrUpstream):
		return http.StatusInternalServerError

	case errors.Is(err, service.ErrAccessCooldown):
		return http.StatusTooManyRequests

	case errors.Is(err, security.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, security.ErrFileTypeNotAllowed):
		return http.StatusUnsupportedMediaType

	case errors.Is(err, service.ErrForbidden),
		errors.Is(err, service.ErrSelfLink),
		errors.Is(err, service.ErrNotApproved),
		errors.Is(err, service.ErrWebmailLocked),
		errors.Is(err, service.ErrNotAdmin):
		return http.StatusForbidden

	case errors.Is(err, service.ErrDomainTaken),
		errors.Is(err, service.ErrRecordExists),
		errors.Is(err, service.ErrProviderConflict),
		errors.Is(err, service.ErrInboxTaken),
		errors.Is(err, service.ErrFileExists),
		errors.Is(err, service.ErrAccessAlreadyDecided):
		return http.StatusConflict

	case errors.Is(err, service.ErrRecordNotFound),
		errors.Is(err, service.ErrInboxNotFound),
		errors.Is(err, service.ErrMessageNotFound),
		errors.Is(err, service.ErrAttachmentNotFound),
		errors.Is(err, service.ErrFileNotFound),
		errors.Is(err, service.ErrLinkNotFound),
		errors.Is(err, service.ErrForwardingNotFound),
		errors.Is(err, service.ErrAccessRequestNotFound):
		return http.StatusNotFound

	case errors.Is(err, domain.ErrInvalidEmail),
		errors.Is(err, domain.ErrEmailTooLong),
		errors.Is(err, domain.ErrLocalPartTooLong),
		errors.Is(err, domain.ErrDomainTooLong),
		errors.Is(err, domain.ErrInvalidLocalPart),
		errors.Is(err, domain.ErrInvalidDomain),
		errors.Is(err, domain.ErrInvalidURL),
		errors.Is(err, domain.ErrUnknownRecordType),
		errors.Is(err, domain.ErrInvalidRecordValue),
		errors.Is(err, service.ErrInvalidRecord),
		errors.Is(err, service.ErrNoRecords),
		errors.Is(err, service.ErrUnknownTemplate),
		errors.Is(err, service.ErrAccessAlreadyApproved),
		errors.Is(err, service.ErrAccessPending),
		errors.Is(err, service.ErrInboxRequired),
		errors.Is(err, service.ErrInvalidFolder),
		errors.Is(err, service.ErrInvalidAction),
		errors.Is(err, service.ErrRecipientRequired),
		errors.Is(err, service.ErrFilenameRequired),
		errors.Is(err, security.ErrInvalidFilename),
		errors.Is(err, service.ErrDestinationRequired),
		errors.Is(err, service.ErrDestinationIDRequired),
		errors.Is(err, service.ErrInvalidRating),
		errors.Is(err, service.ErrFeedbackTooShort),
		errors.Is(err, service.ErrFeedbackRequired):
		return http.StatusBadRequest
	}
	return 0
}

// respondError 根据错误类型写出响应；未识别的错误记录日志并返回 fallback
func respondError(c *gin.Context, log *zap.Logger, err error, fallback string) {
	status := statusFor(err)
	if status == 0 || status == http.StatusInternalServerError {
		log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	switch status {
	case 0:
		InternalError(c, fallback)
	case http.StatusBadRequest:
		// 记录值校验错误带有具体原因
		if errors.Is(err, service.ErrInvalidRecord) || errors.Is(err, domain.ErrInvalidRecordValue) {
			BadRequest(c, err.Error())
			return
		}
		BadRequest(c, GetErrorMessage(err))
	default:
		Error(c, status, GetErrorMessage(err))
	}
}

// 通用错误消息
const (
	// 请求相关
	MsgInvalidRequest = "请求参数格式错误"
	MsgMissingFile    = "缺少上传文件"

	// 认证相关
	MsgAuthRequired     = "需要登录认证"
	MsgPermissionDenied = "权限不足"
	MsgInvalidSignature = "签名校验失败"

	// 操作失败
	MsgDomainListFailed     = "获取记录列表失败"
	MsgDomainAddFailed      = "添加记录失败"
	MsgDomainUpdateFailed   = "更新记录失败"
	MsgDomainDeleteFailed   = "删除记录失败"
	MsgAccessRequestFailed  = "提交申请失败"
	MsgAccessStatusFailed   = "获取申请状态失败"
	MsgAccessDecisionFailed = "处理审批失败"
	MsgInboxListFailed      = "获取收件箱失败"
	MsgInboxCreateFailed    = "创建收件箱失败"
	MsgInboxDeleteFailed    = "删除收件箱失败"
	MsgMessageListFailed    = "获取邮件列表失败"
	MsgMessageGetFailed     = "获取邮件详情失败"
	MsgMessageUpdateFailed  = "更新邮件失败"
	MsgMessageSendFailed    = "发送邮件失败"
	MsgAttachmentFailed     = "上传附件失败"
	MsgInboundFailed        = "接收邮件失败"
	MsgFileListFailed       = "获取文件列表失败"
	MsgFileUploadFailed     = "上传文件失败"
	MsgFileDeleteFailed     = "删除文件失败"
	MsgFileStatsFailed      = "获取使用统计失败"
	MsgLinkListFailed       = "获取短链接失败"
	MsgLinkCreateFailed     = "创建短链接失败"
	MsgLinkDeleteFailed     = "删除短链接失败"
	MsgForwardingFailed     = "处理转发规则失败"
	MsgFeedbackFailed       = "处理反馈失败"
	MsgProfileFailed        = "获取个人数据失败"

	// 服务器错误
	MsgInternalError = "服务器内部错误，请稍后重试"
)
