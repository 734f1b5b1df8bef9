package domain

import (
	"errors"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
)

// 验证相关的错误定义
var (
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrEmailTooLong     = errors.New("email address too long")
	ErrLocalPartTooLong = errors.New("local part too long (max 64 chars)")
	ErrDomainTooLong    = errors.New("domain too long (max 253 chars)")
	ErrInvalidLocalPart = errors.New("invalid local part format")
	ErrInvalidDomain    = errors.New("invalid domain format")
	ErrInvalidURL       = errors.New("invalid url")
)

// 验证常量
const (
	// RFC 5322 邮箱地址长度限制
	MaxEmailLength     = 254
	MaxLocalPartLength = 64
	MaxDomainLength    = 253
	MaxLabelLength     = 63
)

var (
	localPartRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]*[a-z0-9]$|^[a-z0-9]$`)

	// 子域名标签允许下划线（如 _dmarc、_minecraft._tcp）
	subdomainLabelRegex = regexp.MustCompile(`^[a-z0-9_]([a-z0-9_-]*[a-z0-9_])?$`)

	hostnameLabelRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)
)

// EmailValidator 邮箱验证器
type EmailValidator struct{}

// NewEmailValidator 创建邮箱验证器
func NewEmailValidator() *EmailValidator {
	return &EmailValidator{}
}

// ValidateEmail 完整验证邮箱地址
func (v *EmailValidator) ValidateEmail(email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if len(email) > MaxEmailLength {
		return ErrEmailTooLong
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return ErrInvalidEmail
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return ErrInvalidEmail
	}
	if err := v.ValidateLocalPart(parts[0]); err != nil {
		return err
	}
	if !IsHostname(parts[1]) {
		return ErrInvalidDomain
	}
	return nil
}

// ValidateLocalPart 验证邮箱本地部分
func (v *EmailValidator) ValidateLocalPart(localPart string) error {
	if localPart == "" {
		return ErrInvalidLocalPart
	}
	if len(localPart) > MaxLocalPartLength {
		return ErrLocalPartTooLong
	}
	if !localPartRegex.MatchString(localPart) {
		return ErrInvalidLocalPart
	}
	// 不允许连续的特殊字符
	for _, seq := range []string{"..", ".-", "-.", "--", "__", "_.", "._"} {
		if strings.Contains(localPart, seq) {
			return ErrInvalidLocalPart
		}
	}
	return nil
}

// IsHostname 判断是否为合法主机名（至少两个标签，不允许下划线）。
func IsHostname(host string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" || len(host) > MaxDomainLength {
		return false
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) > MaxLabelLength || !hostnameLabelRegex.MatchString(label) {
			return false
		}
	}
	return true
}

// NormalizeSubdomain 规范化租户提交的域名，并返回它所属的父域名。
//
// 域名必须严格位于 parents 中某个父域名之下；父域名本身不可认领。
func NormalizeSubdomain(name string, parents []string) (string, string, error) {
	name = strings.ToLower(strings.TrimSuffix(strings.TrimSpace(name), "."))
	if name == "" || len(name) > MaxDomainLength {
		return "", "", ErrInvalidDomain
	}
	for _, parent := range parents {
		parent = strings.ToLower(parent)
		suffix := "." + parent
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		sub := strings.TrimSuffix(name, suffix)
		for _, label := range strings.Split(sub, ".") {
			if len(label) > MaxLabelLength || !subdomainLabelRegex.MatchString(label) {
				return "", "", ErrInvalidDomain
			}
		}
		return name, parent, nil
	}
	return "", "", ErrInvalidDomain
}

// ExtractAddress 从 "Name <addr>" 形式中提取邮箱地址。
func ExtractAddress(value string) string {
	if addr, err := mail.ParseAddress(value); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(value)
}

// ValidateDestinationURL 目标地址必须是绝对的 http(s) URL。
func ValidateDestinationURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return nil, ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrInvalidURL
	}
	return u, nil
}
