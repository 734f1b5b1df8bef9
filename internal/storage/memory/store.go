package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/storage"
)

// Store 使用内存保存全部数据，主要用于开发验证与测试。
type Store struct {
	mu sync.RWMutex

	records      map[string]*domain.DomainRecord // recordKey(domain, type) -> record
	access       map[string]*domain.AccessRequest
	accessByUser map[string]string // userID -> requestID
	mailboxes    map[string]*domain.Mailbox
	byEmail      map[string]string // email -> mailboxID
	messages     map[string]*domain.Message
	files        map[string]*domain.FileAsset
	filesByKey   map[string]string                 // key -> fileID
	links        map[string]*domain.ShortLink      // code -> link
	forwarding   map[string]*domain.ForwardingRule // ruleID -> rule
	feedback     []*domain.Feedback
}

var _ storage.Store = (*Store)(nil)

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		records:      make(map[string]*domain.DomainRecord),
		access:       make(map[string]*domain.AccessRequest),
		accessByUser: make(map[string]string),
		mailboxes:    make(map[string]*domain.Mailbox),
		byEmail:      make(map[string]string),
		messages:     make(map[string]*domain.Message),
		files:        make(map[string]*domain.FileAsset),
		filesByKey:   make(map[string]string),
		links:        make(map[string]*domain.ShortLink),
		forwarding:   make(map[string]*domain.ForwardingRule),
	}
}

func recordKey(name string, recordType domain.RecordType) string {
	return name + "|" + string(recordType)
}

func cloneRecord(r *domain.DomainRecord) *domain.DomainRecord {
	cp := *r
	cp.Values = append([]domain.RecordPayload(nil), r.Values...)
	return &cp
}

// ========== DNS 记录 ==========

// CreateDomainRecord 新建记录，(domain, type) 唯一。
func (s *Store) CreateDomainRecord(_ context.Context, record *domain.DomainRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(record.Domain, record.RecordType)
	if _, exists := s.records[key]; exists {
		return storage.ErrDuplicate
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	s.records[key] = cloneRecord(record)
	return nil
}

// UpdateDomainRecord 覆盖已有记录的值。
func (s *Store) UpdateDomainRecord(_ context.Context, record *domain.DomainRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := recordKey(record.Domain, record.RecordType)
	if _, exists := s.records[key]; !exists {
		return storage.ErrNotFound
	}
	record.UpdatedAt = time.Now().UTC()
	s.records[key] = cloneRecord(record)
	return nil
}

// GetDomainRecord 按名称和类型查询记录。
func (s *Store) GetDomainRecord(_ context.Context, name string, recordType domain.RecordType) (*domain.DomainRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[recordKey(name, recordType)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneRecord(record), nil
}

// ListDomainRecordsByName 返回该名称下的全部记录（任意租户）。
func (s *Store) ListDomainRecordsByName(_ context.Context, name string) ([]*domain.DomainRecord, error) {
	return s.filterRecords(func(r *domain.DomainRecord) bool { return r.Domain == name }), nil
}

// ListDomainRecordsByUser 返回租户的全部记录，按创建时间排序。
func (s *Store) ListDomainRecordsByUser(_ context.Context, userID string) ([]*domain.DomainRecord, error) {
	return s.filterRecords(func(r *domain.DomainRecord) bool { return r.UserID == userID }), nil
}

func (s *Store) filterRecords(match func(*domain.DomainRecord) bool) []*domain.DomainRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.DomainRecord, 0)
	for _, r := range s.records {
		if match(r) {
			result = append(result, cloneRecord(r))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result
}

// DeleteDomainRecords 删除租户在该名称下的记录。
func (s *Store) DeleteDomainRecords(_ context.Context, userID, name string, recordType domain.RecordType) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key, r := range s.records {
		if r.UserID != userID || r.Domain != name {
			continue
		}
		if recordType != "" && r.RecordType != recordType {
			continue
		}
		delete(s.records, key)
		deleted++
	}
	return deleted, nil
}

// ========== 访问申请 ==========

// GetAccessRequest 按 ID 查询申请。
func (s *Store) GetAccessRequest(_ context.Context, id string) (*domain.AccessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	req, ok := s.access[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

// GetAccessRequestByUser 按租户查询申请。
func (s *Store) GetAccessRequestByUser(ctx context.Context, userID string) (*domain.AccessRequest, error) {
	s.mu.RLock()
	id, ok := s.accessByUser[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.GetAccessRequest(ctx, id)
}

// SaveAccessRequest 新建或覆盖申请，每个租户至多一条。
func (s *Store) SaveAccessRequest(_ context.Context, request *domain.AccessRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.accessByUser[request.UserID]; ok && existing != request.ID {
		return storage.ErrDuplicate
	}
	cp := *request
	s.access[request.ID] = &cp
	s.accessByUser[request.UserID] = request.ID
	return nil
}

// DecideAccessRequest 条件更新：仅 pending 状态可被审批。
func (s *Store) DecideAccessRequest(_ context.Context, id string, status domain.AccessStatus, decidedBy string, at time.Time) (*domain.AccessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.access[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if req.Status != domain.AccessPending {
		return nil, storage.ErrNotPending
	}
	decidedAt := at
	req.Status = status
	req.DecidedAt = &decidedAt
	req.DecidedBy = decidedBy
	cp := *req
	return &cp, nil
}

// PurgeDeniedAccessRequests 删除决定时间早于 cutoff 的已拒绝申请。
func (s *Store) PurgeDeniedAccessRequests(_ context.Context, decidedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for id, req := range s.access {
		if req.Stale(decidedBefore) {
			delete(s.access, id)
			delete(s.accessByUser, req.UserID)
			purged++
		}
	}
	return purged, nil
}

// ========== 工具方法 ==========

// Close 内存存储不需要关闭连接
func (s *Store) Close() error {
	return nil
}

// Health 内存存储总是健康的
func (s *Store) Health(context.Context) error {
	return nil
}
