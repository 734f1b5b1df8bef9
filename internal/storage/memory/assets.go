package memory

import (
	"context"
	"sort"
	"time"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/storage"
)

// ========== CDN 文件 ==========

// CreateFileAsset 新建文件元数据，key 唯一。
func (s *Store) CreateFileAsset(_ context.Context, asset *domain.FileAsset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.filesByKey[asset.Key]; exists {
		return storage.ErrDuplicate
	}
	if asset.UploadedAt.IsZero() {
		asset.UploadedAt = time.Now().UTC()
	}
	cp := *asset
	s.files[asset.ID] = &cp
	s.filesByKey[asset.Key] = asset.ID
	return nil
}

// GetFileAsset 根据 ID 获取文件元数据。
func (s *Store) GetFileAsset(_ context.Context, id string) (*domain.FileAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	asset, ok := s.files[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *asset
	return &cp, nil
}

// GetFileAssetByKey 根据对象 key 获取文件元数据（包括已删除的）。
func (s *Store) GetFileAssetByKey(ctx context.Context, key string) (*domain.FileAsset, error) {
	s.mu.RLock()
	id, ok := s.filesByKey[key]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrNotFound
	}
	return s.GetFileAsset(ctx, id)
}

// ListFileAssetsByUser 返回租户未删除的文件。
func (s *Store) ListFileAssetsByUser(_ context.Context, userID string) ([]*domain.FileAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.FileAsset, 0)
	for _, f := range s.files {
		if f.UserID == userID && !f.Deleted {
			cp := *f
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UploadedAt.After(result[j].UploadedAt) })
	return result, nil
}

// MarkFileAssetDeleted 软删除文件。
func (s *Store) MarkFileAssetDeleted(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return storage.ErrNotFound
	}
	deletedAt := at
	f.Deleted = true
	f.DeletedAt = &deletedAt
	return nil
}

// PurgeFileAsset 物理删除文件元数据。
func (s *Store) PurgeFileAsset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.files[id]
	if !ok {
		return storage.ErrNotFound
	}
	delete(s.filesByKey, f.Key)
	delete(s.files, id)
	return nil
}

// RecordFileView 累加访问次数与流量。
func (s *Store) RecordFileView(_ context.Context, key string, bytes int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.filesByKey[key]
	if !ok {
		return storage.ErrNotFound
	}
	f := s.files[id]
	viewedAt := at
	f.Views++
	f.Bandwidth += bytes
	f.LastViewed = &viewedAt
	return nil
}

// FileStatsByUser 统计租户未删除文件的用量。
func (s *Store) FileStatsByUser(_ context.Context, userID string) (*domain.FileStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &domain.FileStats{}
	for _, f := range s.files {
		if f.UserID != userID || f.Deleted {
			continue
		}
		stats.TotalSize += f.Size
		stats.TotalBandwidth += f.Bandwidth
		stats.FileCount++
	}
	return stats, nil
}

// ========== 短链接 ==========

// CreateShortLink 新建短链接，短码唯一。
func (s *Store) CreateShortLink(_ context.Context, link *domain.ShortLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.links[link.Code]; exists {
		return storage.ErrDuplicate
	}
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	cp := *link
	s.links[link.Code] = &cp
	return nil
}

// ShortCodeExists 判断短码是否已被占用。
func (s *Store) ShortCodeExists(_ context.Context, code string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.links[code]
	return exists, nil
}

// ResolveShortLink 增加点击数并返回链接。
func (s *Store) ResolveShortLink(_ context.Context, code string, at time.Time) (*domain.ShortLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[code]
	if !ok {
		return nil, storage.ErrNotFound
	}
	clickedAt := at
	link.Clicks++
	link.LastClickedAt = &clickedAt
	cp := *link
	return &cp, nil
}

// ListShortLinksByUser 返回租户的短链接，最新的在前。
func (s *Store) ListShortLinksByUser(_ context.Context, userID string) ([]*domain.ShortLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ShortLink, 0)
	for _, l := range s.links {
		if l.UserID == userID {
			cp := *l
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// DeleteShortLink 删除租户自己的短链接。
func (s *Store) DeleteShortLink(_ context.Context, userID, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[code]
	if !ok || link.UserID != userID {
		return storage.ErrNotFound
	}
	delete(s.links, code)
	return nil
}

// ========== 转发规则 ==========

// CreateForwardingRule 保存转发规则。
func (s *Store) CreateForwardingRule(_ context.Context, rule *domain.ForwardingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.forwarding[rule.RuleID]; exists {
		return storage.ErrDuplicate
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	cp := *rule
	s.forwarding[rule.RuleID] = &cp
	return nil
}

// GetForwardingRule 根据提供方规则 ID 获取转发规则。
func (s *Store) GetForwardingRule(_ context.Context, ruleID string) (*domain.ForwardingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.forwarding[ruleID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *rule
	return &cp, nil
}

// ListForwardingRulesByUser 返回租户的转发规则。
func (s *Store) ListForwardingRulesByUser(_ context.Context, userID string) ([]*domain.ForwardingRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ForwardingRule, 0)
	for _, r := range s.forwarding {
		if r.UserID == userID {
			cp := *r
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// DeleteForwardingRule 删除转发规则。
func (s *Store) DeleteForwardingRule(_ context.Context, ruleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.forwarding[ruleID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.forwarding, ruleID)
	return nil
}

// ========== 反馈 ==========

// CreateFeedback 保存反馈。
func (s *Store) CreateFeedback(_ context.Context, feedback *domain.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if feedback.CreatedAt.IsZero() {
		feedback.CreatedAt = time.Now().UTC()
	}
	cp := *feedback
	s.feedback = append(s.feedback, &cp)
	return nil
}

// ListFeedbackByUser 返回租户提交的反馈，最新的在前。
func (s *Store) ListFeedbackByUser(_ context.Context, userID string) ([]*domain.Feedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Feedback, 0)
	for i := len(s.feedback) - 1; i >= 0; i-- {
		if s.feedback[i].UserID == userID {
			cp := *s.feedback[i]
			result = append(result, &cp)
		}
	}
	return result, nil
}
