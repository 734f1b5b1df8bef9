package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"furrydomains/backend/internal/dns"
	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/monitoring"
	"furrydomains/backend/internal/storage"
)

var (
	// ErrDomainTaken 名称已被其他租户认领
	ErrDomainTaken = errors.New("domain already taken")
	// ErrRecordExists 同一 (domain, type) 已存在
	ErrRecordExists = errors.New("record already exists")
	// ErrProviderConflict DNS 服务商处已有冲突记录
	ErrProviderConflict = errors.New("conflicting record exists at dns provider")
	// ErrRecordNotFound 记录不存在或不属于当前租户
	ErrRecordNotFound = errors.New("record not found")
	// ErrNoRecords 未提交任何记录值
	ErrNoRecords = errors.New("at least one record is required")
)

// DomainRegistryService 管理租户在共享父域名下认领的 DNS 记录
//
// 所有写操作都先调用 DNS 服务商，成功后才写本地存储。
type DomainRegistryService struct {
	repo      storage.DomainRecordRepository
	provider  dns.Provider
	zones     dns.Zones
	schema    *RecordSchema
	templates []*DNSTemplate
	metrics   *monitoring.Metrics
	log       *zap.Logger
}

// NewDomainRegistryService 创建 DNS 记录服务
func NewDomainRegistryService(
	repo storage.DomainRecordRepository,
	provider dns.Provider,
	zones dns.Zones,
	schema *RecordSchema,
	templates []*DNSTemplate,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *DomainRegistryService {
	return &DomainRegistryService{
		repo:      repo,
		provider:  provider,
		zones:     zones,
		schema:    schema,
		templates: templates,
		metrics:   metrics,
		log:       log,
	}
}

// RecordInput 新增或更新记录的输入
type RecordInput struct {
	UserID     string
	Domain     string
	RecordType string
	Records    []domain.RecordPayload
	Template   string // 非空时使用模板中的记录类型与记录值
}

// resolvedInput 校验后的输入
type resolvedInput struct {
	name       string
	zoneID     string
	recordType domain.RecordType
	payloads   []domain.RecordPayload
}

// List 返回租户的全部记录
func (s *DomainRegistryService) List(ctx context.Context, userID string) ([]*domain.DomainRecord, error) {
	return s.repo.ListDomainRecordsByUser(ctx, userID)
}

// Export 导出租户的记录集合
func (s *DomainRegistryService) Export(ctx context.Context, userID string) (*domain.DomainRecordSet, error) {
	records, err := s.repo.ListDomainRecordsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &domain.DomainRecordSet{UserID: userID, Records: records}, nil
}

// Templates 返回内置模板
func (s *DomainRegistryService) Templates() []*DNSTemplate {
	return s.templates
}

// Zones 返回可认领的父域名
func (s *DomainRegistryService) Zones() []string {
	return s.zones.Parents()
}

// Add 认领一个 (domain, type) 并在服务商处创建记录
func (s *DomainRegistryService) Add(ctx context.Context, input RecordInput) (*domain.DomainRecord, error) {
	in, err := s.resolve(input)
	if err != nil {
		return nil, err
	}

	// 本地冲突：名称被他人认领，或同类型已存在
	local, err := s.repo.ListDomainRecordsByName(ctx, in.name)
	if err != nil {
		return nil, err
	}
	owned := make(map[domain.RecordType]bool, len(local))
	for _, r := range local {
		if r.UserID != input.UserID {
			return nil, ErrDomainTaken
		}
		if r.RecordType == in.recordType {
			return nil, ErrRecordExists
		}
		owned[r.RecordType] = true
	}

	// 服务商冲突：地址类记录独占名称，基础设施类记录只与同类型冲突。
	// SRV 记录位于 _service._proto 前缀之下，需要按类型单独查询。
	var listType domain.RecordType
	if in.recordType == domain.RecordTypeSRV {
		listType = domain.RecordTypeSRV
	}
	existing, err := s.provider.ListRecords(ctx, in.zoneID, in.name, listType)
	if err != nil {
		return nil, upstream("list dns records", err)
	}
	for _, r := range existing {
		// 租户自己已认领的类型不算冲突
		if owned[r.Type] {
			continue
		}
		if !in.recordType.IsInfrastructure() || r.Type == in.recordType {
			return nil, fmt.Errorf("%w: %s %s", ErrProviderConflict, r.Type, r.Name)
		}
	}

	comment := "Created by user: " + input.UserID
	for _, p := range in.payloads {
		if _, err := s.provider.CreateRecord(ctx, in.zoneID, dns.RecordFromPayload(in.name, in.recordType, p), comment); err != nil {
			s.log.Error("dns record creation failed",
				zap.String("domain", in.name),
				zap.String("type", string(in.recordType)),
				zap.Error(err))
			return nil, upstream("create dns record", err)
		}
	}

	now := time.Now().UTC()
	record := &domain.DomainRecord{
		ID:         uuid.NewString(),
		UserID:     input.UserID,
		Domain:     in.name,
		RecordType: in.recordType,
		Values:     in.payloads,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.CreateDomainRecord(ctx, record); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrRecordExists
		}
		return nil, err
	}

	s.recordChange("create", in.recordType)
	s.log.Info("dns record claimed",
		zap.String("user_id", input.UserID),
		zap.String("domain", in.name),
		zap.String("type", string(in.recordType)),
		zap.Int("values", len(in.payloads)))
	return record, nil
}

// Update 以服务商记录为准，就地更新、补充或删除多余记录，然后覆盖本地值
func (s *DomainRegistryService) Update(ctx context.Context, input RecordInput) (*domain.DomainRecord, error) {
	in, err := s.resolve(input)
	if err != nil {
		return nil, err
	}

	record, err := s.repo.GetDomainRecord(ctx, in.name, in.recordType)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	if record.UserID != input.UserID {
		return nil, ErrRecordNotFound
	}

	existing, err := s.provider.ListRecords(ctx, in.zoneID, in.name, in.recordType)
	if err != nil {
		return nil, upstream("list dns records", err)
	}
	if len(existing) == 0 {
		return nil, ErrRecordNotFound
	}

	comment := "Updated by user: " + input.UserID
	for i, p := range in.payloads {
		desired := dns.RecordFromPayload(in.name, in.recordType, p)
		if i < len(existing) {
			desired.ID = existing[i].ID
			desired.Proxied = existing[i].Proxied
			if err := s.provider.UpdateRecord(ctx, in.zoneID, desired, comment); err != nil {
				return nil, upstream("update dns record", err)
			}
			continue
		}
		if _, err := s.provider.CreateRecord(ctx, in.zoneID, desired, comment); err != nil {
			return nil, upstream("create dns record", err)
		}
	}
	for _, surplus := range existing[min(len(in.payloads), len(existing)):] {
		if err := s.provider.DeleteRecord(ctx, in.zoneID, surplus.ID); err != nil {
			return nil, upstream("delete dns record", err)
		}
	}

	record.Values = in.payloads
	record.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateDomainRecord(ctx, record); err != nil {
		return nil, err
	}

	s.recordChange("update", in.recordType)
	return record, nil
}

// Delete 删除租户在该名称下的记录；recordType 为空时删除全部类型
func (s *DomainRegistryService) Delete(ctx context.Context, userID, name, recordType string) error {
	name, zoneID, err := s.lookupName(name)
	if err != nil {
		return err
	}

	var onlyType domain.RecordType
	if recordType != "" {
		if onlyType, err = domain.ParseRecordType(recordType); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
		}
	}

	local, err := s.repo.ListDomainRecordsByName(ctx, name)
	if err != nil {
		return err
	}
	var owned []*domain.DomainRecord
	for _, r := range local {
		if r.UserID == userID && (onlyType == "" || r.RecordType == onlyType) {
			owned = append(owned, r)
		}
	}
	if len(owned) == 0 {
		return ErrRecordNotFound
	}

	for _, r := range owned {
		existing, err := s.provider.ListRecords(ctx, zoneID, name, r.RecordType)
		if err != nil {
			return upstream("list dns records", err)
		}
		for _, rec := range existing {
			if err := s.provider.DeleteRecord(ctx, zoneID, rec.ID); err != nil {
				return upstream("delete dns record", err)
			}
		}
	}

	if _, err := s.repo.DeleteDomainRecords(ctx, userID, name, onlyType); err != nil {
		return err
	}
	for _, r := range owned {
		s.recordChange("delete", r.RecordType)
	}
	s.log.Info("dns record released",
		zap.String("user_id", userID),
		zap.String("domain", name),
		zap.String("type", string(onlyType)))
	return nil
}

// resolve 校验名称、记录类型与记录值
func (s *DomainRegistryService) resolve(input RecordInput) (*resolvedInput, error) {
	name, zoneID, err := s.lookupName(input.Domain)
	if err != nil {
		return nil, err
	}

	typeName := input.RecordType
	payloads := input.Records
	if input.Template != "" {
		tpl, err := findTemplate(s.templates, input.Template)
		if err != nil {
			return nil, err
		}
		if typeName != "" && !strings.EqualFold(typeName, string(tpl.Type)) {
			return nil, fmt.Errorf("%w: template %s creates %s records", ErrInvalidRecord, tpl.ID, tpl.Type)
		}
		typeName = string(tpl.Type)
		payloads = tpl.Records
	}

	recordType, err := domain.ParseRecordType(typeName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	if len(payloads) == 0 {
		return nil, ErrNoRecords
	}

	normalized := make([]domain.RecordPayload, 0, len(payloads))
	for _, p := range payloads {
		value, err := s.schema.Validate(recordType, p)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, value.Payload())
	}

	return &resolvedInput{
		name:       name,
		zoneID:     zoneID,
		recordType: recordType,
		payloads:   normalized,
	}, nil
}

// lookupName 规范化名称并返回所属 zone；名称必须严格位于某个已配置的父域名之下
func (s *DomainRegistryService) lookupName(name string) (string, string, error) {
	normalized, parent, err := domain.NormalizeSubdomain(name, s.zones.Parents())
	if err != nil {
		return "", "", err
	}
	return normalized, s.zones[parent], nil
}

func (s *DomainRegistryService) recordChange(action string, t domain.RecordType) {
	if s.metrics != nil {
		s.metrics.RecordDNSChange(action, string(t))
	}
}
