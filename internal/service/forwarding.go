package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"furrydomains/backend/internal/dns"
	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/storage"
)

var (
	// ErrForwardingNotFound 转发规则不存在或不属于当前租户
	ErrForwardingNotFound = errors.New("forwarding rule not found")
	// ErrDestinationIDRequired 未提供目标地址 ID
	ErrDestinationIDRequired = errors.New("destination id is required")
)

// ForwardingService 通过服务商邮件路由把认领域名下的地址转发到外部邮箱
type ForwardingService struct {
	repo    storage.ForwardingRepository
	records storage.DomainRecordRepository
	routing dns.EmailRouting
	zones   dns.Zones
	emails  *domain.EmailValidator
	log     *zap.Logger
}

// NewForwardingService 创建邮件转发服务
func NewForwardingService(
	repo storage.ForwardingRepository,
	records storage.DomainRecordRepository,
	routing dns.EmailRouting,
	zones dns.Zones,
	log *zap.Logger,
) *ForwardingService {
	return &ForwardingService{
		repo:    repo,
		records: records,
		routing: routing,
		zones:   zones,
		emails:  domain.NewEmailValidator(),
		log:     log,
	}
}

// CreateDestination 注册目标地址，服务商会发送验证邮件
func (s *ForwardingService) CreateDestination(ctx context.Context, email string) (*dns.Destination, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !validRecipient(email) {
		return nil, domain.ErrInvalidEmail
	}
	dest, err := s.routing.CreateDestination(ctx, email)
	if err != nil {
		return nil, upstream("create destination", err)
	}
	return dest, nil
}

// DestinationStatus 查询目标地址的验证状态
func (s *ForwardingService) DestinationStatus(ctx context.Context, id string) (*dns.Destination, error) {
	if id == "" {
		return nil, ErrDestinationIDRequired
	}
	dest, err := s.routing.GetDestination(ctx, id)
	if err != nil {
		return nil, upstream("get destination", err)
	}
	return dest, nil
}

// List 返回租户的转发规则
func (s *ForwardingService) List(ctx context.Context, userID string) ([]*domain.ForwardingRule, error) {
	return s.repo.ListForwardingRulesByUser(ctx, userID)
}

// ForwardingInput 新建转发规则的输入
type ForwardingInput struct {
	UserID        string
	FromEmail     string
	ToEmail       string
	DestinationID string
}

// Create 在服务商处创建路由规则，成功后保存
//
// 源地址必须位于租户已认领的域名下。
func (s *ForwardingService) Create(ctx context.Context, in ForwardingInput) (*domain.ForwardingRule, error) {
	from := strings.ToLower(strings.TrimSpace(in.FromEmail))
	to := strings.ToLower(strings.TrimSpace(in.ToEmail))
	if err := s.emails.ValidateEmail(from); err != nil {
		return nil, err
	}
	if !validRecipient(to) {
		return nil, domain.ErrInvalidEmail
	}

	host := from[strings.LastIndexByte(from, '@')+1:]
	parent, zoneID, err := s.zones.Lookup(host)
	if err != nil {
		return nil, domain.ErrInvalidDomain
	}
	if err := s.requireOwnership(ctx, in.UserID, host); err != nil {
		return nil, err
	}

	rule, err := s.routing.CreateRoutingRule(ctx, zoneID, from, to)
	if err != nil {
		s.log.Error("routing rule creation failed", zap.String("from", from), zap.Error(err))
		return nil, upstream("create routing rule", err)
	}

	record := &domain.ForwardingRule{
		ID:            uuid.NewString(),
		UserID:        in.UserID,
		FromEmail:     from,
		ToEmail:       to,
		Domain:        parent,
		RuleID:        rule.ID,
		DestinationID: in.DestinationID,
		Status:        domain.ForwardingActive,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.CreateForwardingRule(ctx, record); err != nil {
		return nil, err
	}

	s.log.Info("forwarding rule created", zap.String("user_id", in.UserID), zap.String("from", from), zap.String("rule_id", rule.ID))
	return record, nil
}

// requireOwnership 租户必须在该名称下认领过记录
func (s *ForwardingService) requireOwnership(ctx context.Context, userID, host string) error {
	records, err := s.records.ListDomainRecordsByName(ctx, host)
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.UserID == userID {
			return nil
		}
	}
	return ErrForbidden
}

// Delete 删除服务商规则，然后删除本地记录
func (s *ForwardingService) Delete(ctx context.Context, userID, ruleID string) error {
	rule, err := s.repo.GetForwardingRule(ctx, ruleID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrForwardingNotFound
		}
		return err
	}
	if rule.UserID != userID {
		return ErrForwardingNotFound
	}

	zoneID, ok := s.zones[rule.Domain]
	if !ok {
		return ErrForwardingNotFound
	}
	if err := s.routing.DeleteRoutingRule(ctx, zoneID, ruleID); err != nil {
		return upstream("delete routing rule", err)
	}
	return s.repo.DeleteForwardingRule(ctx, ruleID)
}
