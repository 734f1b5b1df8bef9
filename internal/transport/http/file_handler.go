package httptransport

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"furrydomains/backend/internal/middleware"
	"furrydomains/backend/internal/service"
)

// FileHandler CDN 文件处理器
type FileHandler struct {
	files         *service.FileService
	presignExpiry time.Duration
	log           *zap.Logger
}

// NewFileHandler 创建文件处理器
func NewFileHandler(files *service.FileService, presignExpiry time.Duration, log *zap.Logger) *FileHandler {
	if presignExpiry <= 0 {
		presignExpiry = time.Hour
	}
	return &FileHandler{files: files, presignExpiry: presignExpiry, log: log}
}

// PresignRequest 预签名上传请求
type PresignRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

// owner 对象 key 前缀优先使用 Slack ID
func owner(c *gin.Context) string {
	who := middleware.IdentityFrom(c)
	if who.SlackID != "" {
		return who.SlackID
	}
	return who.UserID
}

// respondUpload 处理上传错误，同名冲突时返回已有文件
func (h *FileHandler) respondUpload(c *gin.Context, err error) {
	var conflict *service.FileConflictError
	if errors.As(err, &conflict) {
		ConflictWithData(c, GetErrorMessage(service.ErrFileExists), gin.H{
			"existingFile": gin.H{
				"id":         conflict.Existing.ID,
				"url":        conflict.URL,
				"uploadedAt": conflict.Existing.UploadedAt,
			},
		})
		return
	}
	respondError(c, h.log, err, MsgFileUploadFailed)
}

// List godoc
// @Summary 获取文件列表
// @Tags CDN
// @Produce json
// @Success 200 {array} service.FileView
// @Router /v1/cdn/files [get]
func (h *FileHandler) List(c *gin.Context) {
	files, err := h.files.List(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, h.log, err, MsgFileListFailed)
		return
	}
	Success(c, files)
}

// Stats godoc
// @Summary 获取存储与流量统计
// @Tags CDN
// @Produce json
// @Success 200 {object} domain.FileStats
// @Router /v1/cdn/stats [get]
func (h *FileHandler) Stats(c *gin.Context) {
	stats, err := h.files.Stats(c.Request.Context(), c.GetString("userID"))
	if err != nil {
		respondError(c, h.log, err, MsgFileStatsFailed)
		return
	}
	Success(c, stats)
}

// Presign godoc
// @Summary 获取预签名上传地址
// @Description 客户端直接 PUT 到返回的地址
// @Tags CDN
// @Accept json
// @Produce json
// @Param request body PresignRequest true "文件信息"
// @Success 201 {object} service.PresignedUpload
// @Failure 409 {object} Response
// @Failure 413 {object} Response
// @Failure 415 {object} Response
// @Router /v1/cdn/files/upload [post]
func (h *FileHandler) Presign(c *gin.Context) {
	var req PresignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, MsgInvalidRequest)
		return
	}
	upload, err := h.files.PresignUpload(c.Request.Context(), service.UploadInput{
		UserID:      c.GetString("userID"),
		Owner:       owner(c),
		Filename:    req.Filename,
		ContentType: req.ContentType,
		Size:        req.Size,
	}, h.presignExpiry)
	if err != nil {
		h.respondUpload(c, err)
		return
	}
	Created(c, upload)
}

// ProxyUpload godoc
// @Summary 经由服务端上传文件
// @Tags CDN
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "文件"
// @Success 201 {object} service.FileView
// @Failure 409 {object} Response
// @Failure 413 {object} Response
// @Router /v1/cdn/files/upload/proxy [post]
func (h *FileHandler) ProxyUpload(c *gin.Context) {
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

	view, err := h.files.ProxyUpload(c.Request.Context(), service.UploadInput{
		UserID:      c.GetString("userID"),
		Owner:       owner(c),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.respondUpload(c, err)
		return
	}
	Created(c, view)
}

// Delete godoc
// @Summary 删除文件
// @Tags CDN
// @Produce json
// @Param id path string true "文件ID"
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /v1/cdn/files/{id} [delete]
func (h *FileHandler) Delete(c *gin.Context) {
	if err := h.files.Delete(c.Request.Context(), c.GetString("userID"), c.Param("id")); err != nil {
		respondError(c, h.log, err, MsgFileDeleteFailed)
		return
	}
	SuccessWithMsg(c, "删除成功", nil)
}

// Serve godoc
// @Summary 公开访问文件
// @Tags CDN
// @Param key path string true "对象 key"
// @Success 200 {file} binary
// @Failure 404 {object} Response
// @Router /cdn/{key} [get]
func (h *FileHandler) Serve(c *gin.Context) {
	obj, err := h.files.Open(c.Request.Context(), c.Param("key"))
	if err != nil {
		respondError(c, h.log, err, MsgFileListFailed)
		return
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)
	if obj.Size > 0 {
		c.Header("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	if !obj.LastModified.IsZero() {
		c.Header("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	}
	c.Header("Cache-Control", "public, max-age=31536000")
	c.Header("Access-Control-Allow-Origin", "*")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, obj.Body); err != nil {
		h.log.Debug("file stream interrupted", zap.String("key", c.Param("key")), zap.Error(err))
	}
}
