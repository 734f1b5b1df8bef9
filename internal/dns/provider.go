package dns

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"furrydomains/backend/internal/domain"
)

// ErrNoZone 名称不属于任何已配置的父域名
var ErrNoZone = errors.New("no zone configured for domain")

// Record 权威 DNS 服务商中的一条记录
type Record struct {
	ID       string
	Type     domain.RecordType
	Name     string
	Content  string
	Proxied  bool
	Priority *int
	Weight   *int
	Port     *int
}

// Provider 权威 DNS 服务商接口
type Provider interface {
	// ListRecords 返回 name 下的记录；recordType 为空表示任意类型。
	// SRV 记录的所有者名称带有 _service._proto 前缀，同样归属 name；
	// 更深层子域名下的 SRV 记录不属于 name。
	ListRecords(ctx context.Context, zoneID, name string, recordType domain.RecordType) ([]Record, error)
	CreateRecord(ctx context.Context, zoneID string, record Record, comment string) (*Record, error)
	UpdateRecord(ctx context.Context, zoneID string, record Record, comment string) error
	DeleteRecord(ctx context.Context, zoneID, recordID string) error
}

// Destination 邮件路由目标地址
type Destination struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
}

// RoutingRule 邮件路由规则
type RoutingRule struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// EmailRouting 服务商的邮件路由接口
type EmailRouting interface {
	CreateDestination(ctx context.Context, email string) (*Destination, error)
	GetDestination(ctx context.Context, id string) (*Destination, error)
	CreateRoutingRule(ctx context.Context, zoneID, from, to string) (*RoutingRule, error)
	DeleteRoutingRule(ctx context.Context, zoneID, ruleID string) error
}

// Zones 父域名到 zone ID 的映射
type Zones map[string]string

// Parents 返回父域名列表，最长的优先
func (z Zones) Parents() []string {
	parents := make([]string, 0, len(z))
	for parent := range z {
		parents = append(parents, parent)
	}
	sort.Slice(parents, func(i, j int) bool {
		if len(parents[i]) == len(parents[j]) {
			return parents[i] < parents[j]
		}
		return len(parents[i]) > len(parents[j])
	})
	return parents
}

// Lookup 按后缀为名称选择 zone
func (z Zones) Lookup(name string) (parent, zoneID string, err error) {
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	for _, p := range z.Parents() {
		if name == p || strings.HasSuffix(name, "."+p) {
			return p, z[p], nil
		}
	}
	return "", "", fmt.Errorf("%w: %s", ErrNoZone, name)
}

// RecordFromPayload 把租户提交的记录值转换为服务商记录
func RecordFromPayload(name string, t domain.RecordType, p domain.RecordPayload) Record {
	r := Record{
		Type:     t,
		Name:     name,
		Content:  p.Content,
		Priority: p.Priority,
	}
	if t == domain.RecordTypeSRV {
		r.Name = fmt.Sprintf("%s.%s.%s", p.Service, p.Protocol, name)
		r.Weight = p.Weight
		r.Port = p.Port
	}
	return r
}

// IsServiceOwner 判断 owner 是否恰好为 name 下的 _service._proto.name
func IsServiceOwner(owner, name string) bool {
	owner = strings.ToLower(strings.TrimSuffix(owner, "."))
	name = strings.ToLower(strings.TrimSuffix(name, "."))
	prefix, ok := strings.CutSuffix(owner, "."+name)
	if !ok {
		return false
	}
	labels := strings.Split(prefix, ".")
	if len(labels) != 2 {
		return false
	}
	for _, l := range labels {
		if len(l) < 2 || l[0] != '_' {
			return false
		}
	}
	return true
}

// Proxiable 只有地址类记录可以走 CDN 代理
func Proxiable(t domain.RecordType) bool {
	return t == domain.RecordTypeA || t == domain.RecordTypeAAAA || t == domain.RecordTypeCNAME
}
