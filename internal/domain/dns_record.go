package domain

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// RecordType DNS 记录类型
type RecordType string

const (
	RecordTypeA     RecordType = "A"
	RecordTypeAAAA  RecordType = "AAAA"
	RecordTypeCNAME RecordType = "CNAME"
	RecordTypeTXT   RecordType = "TXT"
	RecordTypeMX    RecordType = "MX"
	RecordTypeSRV   RecordType = "SRV"
	RecordTypeNS    RecordType = "NS"
)

// RecordTypes 支持的全部记录类型（按展示顺序）
var RecordTypes = []RecordType{
	RecordTypeA,
	RecordTypeAAAA,
	RecordTypeCNAME,
	RecordTypeTXT,
	RecordTypeMX,
	RecordTypeSRV,
	RecordTypeNS,
}

var (
	ErrUnknownRecordType  = errors.New("unknown record type")
	ErrInvalidRecordValue = errors.New("invalid record value")
)

// ParseRecordType 解析记录类型（大小写不敏感）
func ParseRecordType(value string) (RecordType, error) {
	t := RecordType(strings.ToUpper(strings.TrimSpace(value)))
	for _, known := range RecordTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRecordType, value)
}

// IsInfrastructure 基础设施类记录（MX/TXT）可以与地址类记录共存于同一名称。
func (t RecordType) IsInfrastructure() bool {
	return t == RecordTypeMX || t == RecordTypeTXT
}

// RecordPayload 记录内容的扁平结构，用于 JSON 传输与持久化。
type RecordPayload struct {
	Content  string `json:"content"`
	Priority *int   `json:"priority,omitempty"`
	Weight   *int   `json:"weight,omitempty"`
	Port     *int   `json:"port,omitempty"`
	Service  string `json:"service,omitempty"`
	Protocol string `json:"protocol,omitempty"`
}

// RecordValue 按记录类型区分的记录内容。
//
// 每种记录类型对应一个实现；Payload 返回扁平的传输形式。
type RecordValue interface {
	Type() RecordType
	Payload() RecordPayload
	Validate() error
}

// AValue IPv4 地址记录
type AValue struct {
	Address string
}

func (v AValue) Type() RecordType { return RecordTypeA }

func (v AValue) Payload() RecordPayload { return RecordPayload{Content: v.Address} }

func (v AValue) Validate() error {
	ip := net.ParseIP(v.Address)
	if ip == nil || ip.To4() == nil {
		return fmt.Errorf("%w: A record needs an IPv4 address", ErrInvalidRecordValue)
	}
	return nil
}

// AAAAValue IPv6 地址记录
type AAAAValue struct {
	Address string
}

func (v AAAAValue) Type() RecordType { return RecordTypeAAAA }

func (v AAAAValue) Payload() RecordPayload { return RecordPayload{Content: v.Address} }

func (v AAAAValue) Validate() error {
	ip := net.ParseIP(v.Address)
	if ip == nil || ip.To4() != nil {
		return fmt.Errorf("%w: AAAA record needs an IPv6 address", ErrInvalidRecordValue)
	}
	return nil
}

// CNAMEValue 别名记录
type CNAMEValue struct {
	Target string
}

func (v CNAMEValue) Type() RecordType { return RecordTypeCNAME }

func (v CNAMEValue) Payload() RecordPayload { return RecordPayload{Content: v.Target} }

func (v CNAMEValue) Validate() error {
	if !IsHostname(v.Target) {
		return fmt.Errorf("%w: CNAME target must be a hostname", ErrInvalidRecordValue)
	}
	return nil
}

// TXTValue 文本记录
type TXTValue struct {
	Text string
}

func (v TXTValue) Type() RecordType { return RecordTypeTXT }

func (v TXTValue) Payload() RecordPayload { return RecordPayload{Content: v.Text} }

func (v TXTValue) Validate() error {
	if v.Text == "" || len(v.Text) > 2048 {
		return fmt.Errorf("%w: TXT content must be 1-2048 characters", ErrInvalidRecordValue)
	}
	return nil
}

// MXValue 邮件交换记录
type MXValue struct {
	Host     string
	Priority int
}

func (v MXValue) Type() RecordType { return RecordTypeMX }

func (v MXValue) Payload() RecordPayload {
	priority := v.Priority
	return RecordPayload{Content: v.Host, Priority: &priority}
}

func (v MXValue) Validate() error {
	if !IsHostname(v.Host) {
		return fmt.Errorf("%w: MX host must be a hostname", ErrInvalidRecordValue)
	}
	if v.Priority < 0 || v.Priority > 65535 {
		return fmt.Errorf("%w: MX priority out of range", ErrInvalidRecordValue)
	}
	return nil
}

// SRVValue 服务定位记录
type SRVValue struct {
	Service  string // 如 "_minecraft"
	Protocol string // "_tcp" / "_udp" / "_tls"
	Priority int
	Weight   int
	Port     int
	Target   string
}

func (v SRVValue) Type() RecordType { return RecordTypeSRV }

func (v SRVValue) Payload() RecordPayload {
	priority, weight, port := v.Priority, v.Weight, v.Port
	return RecordPayload{
		Content:  v.Target,
		Priority: &priority,
		Weight:   &weight,
		Port:     &port,
		Service:  v.Service,
		Protocol: v.Protocol,
	}
}

func (v SRVValue) Validate() error {
	if !strings.HasPrefix(v.Service, "_") || len(v.Service) < 2 {
		return fmt.Errorf("%w: SRV service must start with an underscore", ErrInvalidRecordValue)
	}
	switch v.Protocol {
	case "_tcp", "_udp", "_tls":
	default:
		return fmt.Errorf("%w: SRV protocol must be _tcp, _udp or _tls", ErrInvalidRecordValue)
	}
	if v.Port < 1 || v.Port > 65535 {
		return fmt.Errorf("%w: SRV port out of range", ErrInvalidRecordValue)
	}
	if v.Priority < 0 || v.Priority > 65535 || v.Weight < 0 || v.Weight > 65535 {
		return fmt.Errorf("%w: SRV priority/weight out of range", ErrInvalidRecordValue)
	}
	if !IsHostname(v.Target) {
		return fmt.Errorf("%w: SRV target must be a hostname", ErrInvalidRecordValue)
	}
	return nil
}

// NSValue 域名服务器记录
type NSValue struct {
	Host string
}

func (v NSValue) Type() RecordType { return RecordTypeNS }

func (v NSValue) Payload() RecordPayload { return RecordPayload{Content: v.Host} }

func (v NSValue) Validate() error {
	if !IsHostname(v.Host) {
		return fmt.Errorf("%w: NS host must be a hostname", ErrInvalidRecordValue)
	}
	return nil
}

// DecodeRecordValue 根据记录类型把扁平结构转换为具体的记录值。
func DecodeRecordValue(t RecordType, p RecordPayload) (RecordValue, error) {
	content := strings.TrimSpace(p.Content)
	var v RecordValue
	switch t {
	case RecordTypeA:
		v = AValue{Address: content}
	case RecordTypeAAAA:
		v = AAAAValue{Address: content}
	case RecordTypeCNAME:
		v = CNAMEValue{Target: strings.ToLower(strings.TrimSuffix(content, "."))}
	case RecordTypeTXT:
		v = TXTValue{Text: p.Content}
	case RecordTypeMX:
		if p.Priority == nil {
			return nil, fmt.Errorf("%w: MX record needs a priority", ErrInvalidRecordValue)
		}
		v = MXValue{Host: strings.ToLower(strings.TrimSuffix(content, ".")), Priority: *p.Priority}
	case RecordTypeSRV:
		if p.Priority == nil || p.Port == nil {
			return nil, fmt.Errorf("%w: SRV record needs priority and port", ErrInvalidRecordValue)
		}
		weight := 0
		if p.Weight != nil {
			weight = *p.Weight
		}
		v = SRVValue{
			Service:  p.Service,
			Protocol: p.Protocol,
			Priority: *p.Priority,
			Weight:   weight,
			Port:     *p.Port,
			Target:   strings.ToLower(strings.TrimSuffix(content, ".")),
		}
	case RecordTypeNS:
		v = NSValue{Host: strings.ToLower(strings.TrimSuffix(content, "."))}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRecordType, t)
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}
	return v, nil
}

// DomainRecord 租户在共享父域名下认领的一条 (域名, 记录类型) 记录。
//
// 同一 (Domain, RecordType) 在全系统内唯一；Values 可以包含多个值（如 4 条 A 记录）。
type DomainRecord struct {
	ID         string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID     string          `json:"userId" gorm:"type:varchar(64);index;not null"`
	Domain     string          `json:"domain" gorm:"type:varchar(253);uniqueIndex:idx_domain_record_type;not null"`
	RecordType RecordType      `json:"recordType" gorm:"type:varchar(10);uniqueIndex:idx_domain_record_type;not null"`
	Values     []RecordPayload `json:"records" gorm:"column:payloads;serializer:json;type:text"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// TypedValues 把持久化的扁平结构还原为具体记录值。
func (r *DomainRecord) TypedValues() ([]RecordValue, error) {
	values := make([]RecordValue, 0, len(r.Values))
	for _, p := range r.Values {
		v, err := DecodeRecordValue(r.RecordType, p)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// Content 返回第一个值的内容，便于列表展示。
func (r *DomainRecord) Content() string {
	if len(r.Values) == 0 {
		return ""
	}
	return r.Values[0].Content
}

// DomainRecordSet 单个租户的记录集合。
type DomainRecordSet struct {
	UserID  string          `json:"userId"`
	Records []*DomainRecord `json:"domains"`
}

// Names 返回集合中出现过的域名（去重，保持顺序）。
func (s *DomainRecordSet) Names() []string {
	seen := make(map[string]bool, len(s.Records))
	names := make([]string, 0, len(s.Records))
	for _, r := range s.Records {
		if !seen[r.Domain] {
			seen[r.Domain] = true
			names = append(names, r.Domain)
		}
	}
	return names
}

// Owns 判断集合中是否包含该域名（可选限定类型，空类型表示任意类型）。
func (s *DomainRecordSet) Owns(domainName string, t RecordType) bool {
	for _, r := range s.Records {
		if r.Domain == domainName && (t == "" || r.RecordType == t) {
			return true
		}
	}
	return false
}

// PayloadsOf 把记录值转换为扁平结构列表。
func PayloadsOf(values []RecordValue) []RecordPayload {
	out := make([]RecordPayload, 0, len(values))
	for _, v := range values {
		out = append(out, v.Payload())
	}
	return out
}
