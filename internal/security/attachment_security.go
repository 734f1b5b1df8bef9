package security

import (
	"bytes"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrFileTooLarge 文件超过大小上限（413）
	ErrFileTooLarge = errors.New("file too large")
	// ErrFileTypeNotAllowed 文件类型不允许（415）
	ErrFileTypeNotAllowed = errors.New("file type not allowed")
	// ErrInvalidFilename 文件名非法
	ErrInvalidFilename = errors.New("invalid filename")
)

const (
	// DefaultAttachmentSize 邮件附件上限
	DefaultAttachmentSize = 10 << 20
	maxFilenameLength     = 255
	defaultContentType    = "application/octet-stream"
)

// attachmentMimeTypes 邮件附件允许的类型
var attachmentMimeTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"application/pdf",
	"text/plain",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/vnd.ms-excel",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"application/zip",
}

// UploadPolicy 上传文件检查策略
type UploadPolicy struct {
	// 允许的 MIME 类型，nil 表示不限制
	allowedMimeTypes map[string]bool

	// 最大文件大小（字节）
	maxFileSize int64

	// 危险文件扩展名
	dangerousExtensions map[string]bool
}

// NewAttachmentPolicy 邮件附件策略：固定类型白名单
func NewAttachmentPolicy(maxSize int64) *UploadPolicy {
	if maxSize <= 0 {
		maxSize = DefaultAttachmentSize
	}
	allowed := make(map[string]bool, len(attachmentMimeTypes))
	for _, t := range attachmentMimeTypes {
		allowed[t] = true
	}
	return &UploadPolicy{
		allowedMimeTypes:    allowed,
		maxFileSize:         maxSize,
		dangerousExtensions: dangerousExtensions(),
	}
}

// NewCDNPolicy CDN 文件策略：不限类型，只拒绝可执行文件
func NewCDNPolicy(maxSize int64) *UploadPolicy {
	return &UploadPolicy{
		maxFileSize:         maxSize,
		dangerousExtensions: dangerousExtensions(),
	}
}

func dangerousExtensions() map[string]bool {
	return map[string]bool{
		".exe": true,
		".bat": true,
		".cmd": true,
		".scr": true,
		".pif": true,
		".com": true,
		".vbs": true,
		".msi": true,
		".jar": true,
	}
}

// MaxFileSize 返回大小上限
func (p *UploadPolicy) MaxFileSize() int64 {
	return p.maxFileSize
}

// CheckSize 检查声明的文件大小
func (p *UploadPolicy) CheckSize(size int64) error {
	if p.maxFileSize > 0 && size > p.maxFileSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrFileTooLarge, size, p.maxFileSize)
	}
	return nil
}

// Check 检查文件名、声明类型、大小以及文件头，返回最终使用的内容类型
//
// head 为文件开头的若干字节（不超过 512 即可），为空时跳过内容检查。
func (p *UploadPolicy) Check(filename, mimeType string, size int64, head []byte) (string, error) {
	if err := p.CheckSize(size); err != nil {
		return "", err
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if p.dangerousExtensions[ext] {
		return "", fmt.Errorf("%w: dangerous extension %s", ErrFileTypeNotAllowed, ext)
	}
	if isExecutable(head) {
		return "", fmt.Errorf("%w: executable content", ErrFileTypeNotAllowed)
	}

	contentType := p.resolveContentType(mimeType, head)
	if p.allowedMimeTypes != nil && !p.allowedMimeTypes[contentType] {
		return "", fmt.Errorf("%w: %s", ErrFileTypeNotAllowed, contentType)
	}
	return contentType, nil
}

// resolveContentType 客户端未声明类型时按文件头识别
func (p *UploadPolicy) resolveContentType(mimeType string, head []byte) string {
	if mediaType, _, err := mime.ParseMediaType(mimeType); err == nil && mediaType != defaultContentType {
		return mediaType
	}
	if len(head) > 0 {
		detected, _, _ := mime.ParseMediaType(mimetype.Detect(head).String())
		if detected != "" {
			return detected
		}
	}
	return defaultContentType
}

// isExecutable 检查可执行文件魔数
func isExecutable(header []byte) bool {
	executableSignatures := [][]byte{
		{0x4D, 0x5A},             // PE executable
		{0x7F, 0x45, 0x4C, 0x46}, // ELF executable
		{0xFE, 0xED, 0xFA, 0xCE}, // Mach-O executable
		{0xCE, 0xFA, 0xED, 0xFE}, // Mach-O executable (reverse)
	}
	for _, sig := range executableSignatures {
		if bytes.HasPrefix(header, sig) {
			return true
		}
	}
	return false
}

// SanitizeFilename 校验上传文件名，不允许路径分隔符与控制字符
func SanitizeFilename(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || len(name) > maxFilenameLength {
		return "", ErrInvalidFilename
	}
	if strings.ContainsAny(name, `/\`) {
		return "", ErrInvalidFilename
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return "", ErrInvalidFilename
		}
	}
	return name, nil
}
