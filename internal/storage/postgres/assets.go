package postgres

import (
	"context"
	"time"

	"gorm.io/gorm"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/storage"
)

// ========== CDN 文件 ==========

// CreateFileAsset 新建文件元数据
func (s *Store) CreateFileAsset(ctx context.Context, asset *domain.FileAsset) error {
	return translate(s.db.WithContext(ctx).Create(asset).Error)
}

// GetFileAsset 根据 ID 获取文件元数据
func (s *Store) GetFileAsset(ctx context.Context, id string) (*domain.FileAsset, error) {
	var asset domain.FileAsset
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&asset).Error; err != nil {
		return nil, translate(err)
	}
	return &asset, nil
}

// GetFileAssetByKey 根据对象 key 获取文件元数据
func (s *Store) GetFileAssetByKey(ctx context.Context, key string) (*domain.FileAsset, error) {
	var asset domain.FileAsset
	if err := s.db.WithContext(ctx).Where("object_key = ?", key).First(&asset).Error; err != nil {
		return nil, translate(err)
	}
	return &asset, nil
}

// ListFileAssetsByUser 返回租户未删除的文件
func (s *Store) ListFileAssetsByUser(ctx context.Context, userID string) ([]*domain.FileAsset, error) {
	var assets []*domain.FileAsset
	err := s.db.WithContext(ctx).Where("user_id = ? AND deleted = ?", userID, false).
		Order("uploaded_at DESC").Find(&assets).Error
	return assets, translate(err)
}

// MarkFileAssetDeleted 软删除文件
func (s *Store) MarkFileAssetDeleted(ctx context.Context, id string, at time.Time) error {
	return s.updateOne(ctx, &domain.FileAsset{}, id, map[string]any{"deleted": true, "deleted_at": at})
}

// PurgeFileAsset 物理删除文件元数据
func (s *Store) PurgeFileAsset(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.FileAsset{})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// RecordFileView 原子累加访问次数与流量
func (s *Store) RecordFileView(ctx context.Context, key string, bytes int64, at time.Time) error {
	result := s.db.WithContext(ctx).Model(&domain.FileAsset{}).Where("object_key = ?", key).
		Updates(map[string]any{
			"views":       gorm.Expr("views + 1"),
			"bandwidth":   gorm.Expr("bandwidth + ?", bytes),
			"last_viewed": at,
		})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FileStatsByUser 聚合租户未删除文件的用量
func (s *Store) FileStatsByUser(ctx context.Context, userID string) (*domain.FileStats, error) {
	var stats domain.FileStats
	err := s.db.WithContext(ctx).Model(&domain.FileAsset{}).
		Select("COALESCE(SUM(size), 0) AS total_size, COALESCE(SUM(bandwidth), 0) AS total_bandwidth, COUNT(*) AS file_count").
		Where("user_id = ? AND deleted = ?", userID, false).
		Scan(&stats).Error
	if err != nil {
		return nil, translate(err)
	}
	return &stats, nil
}

// ========== 短链接 ==========

// CreateShortLink 新建短链接
func (s *Store) CreateShortLink(ctx context.Context, link *domain.ShortLink) error {
	return translate(s.db.WithContext(ctx).Create(link).Error)
}

// ShortCodeExists 判断短码是否已被占用
func (s *Store) ShortCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&domain.ShortLink{}).Where("code = ?", code).Count(&count).Error
	return count > 0, translate(err)
}

// ResolveShortLink 原子增加点击数并返回链接
func (s *Store) ResolveShortLink(ctx context.Context, code string, at time.Time) (*domain.ShortLink, error) {
	result := s.db.WithContext(ctx).Model(&domain.ShortLink{}).Where("code = ?", code).
		Updates(map[string]any{
			"clicks":          gorm.Expr("clicks + 1"),
			"last_clicked_at": at,
		})
	if result.Error != nil {
		return nil, translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, storage.ErrNotFound
	}

	var link domain.ShortLink
	if err := s.db.WithContext(ctx).Where("code = ?", code).First(&link).Error; err != nil {
		return nil, translate(err)
	}
	return &link, nil
}

// ListShortLinksByUser 返回租户的短链接
func (s *Store) ListShortLinksByUser(ctx context.Context, userID string) ([]*domain.ShortLink, error) {
	var links []*domain.ShortLink
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&links).Error
	return links, translate(err)
}

// DeleteShortLink 删除租户自己的短链接
func (s *Store) DeleteShortLink(ctx context.Context, userID, code string) error {
	result := s.db.WithContext(ctx).Where("user_id = ? AND code = ?", userID, code).Delete(&domain.ShortLink{})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ========== 转发规则 ==========

// CreateForwardingRule 保存转发规则
func (s *Store) CreateForwardingRule(ctx context.Context, rule *domain.ForwardingRule) error {
	return translate(s.db.WithContext(ctx).Create(rule).Error)
}

// GetForwardingRule 根据提供方规则 ID 获取转发规则
func (s *Store) GetForwardingRule(ctx context.Context, ruleID string) (*domain.ForwardingRule, error) {
	var rule domain.ForwardingRule
	if err := s.db.WithContext(ctx).Where("rule_id = ?", ruleID).First(&rule).Error; err != nil {
		return nil, translate(err)
	}
	return &rule, nil
}

// ListForwardingRulesByUser 返回租户的转发规则
func (s *Store) ListForwardingRulesByUser(ctx context.Context, userID string) ([]*domain.ForwardingRule, error) {
	var rules []*domain.ForwardingRule
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&rules).Error
	return rules, translate(err)
}

// DeleteForwardingRule 删除转发规则
func (s *Store) DeleteForwardingRule(ctx context.Context, ruleID string) error {
	result := s.db.WithContext(ctx).Where("rule_id = ?", ruleID).Delete(&domain.ForwardingRule{})
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ========== 反馈 ==========

// CreateFeedback 保存反馈
func (s *Store) CreateFeedback(ctx context.Context, feedback *domain.Feedback) error {
	return translate(s.db.WithContext(ctx).Create(feedback).Error)
}

// ListFeedbackByUser 返回租户提交的反馈
func (s *Store) ListFeedbackByUser(ctx context.Context, userID string) ([]*domain.Feedback, error) {
	var feedback []*domain.Feedback
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&feedback).Error
	return feedback, translate(err)
}

func (s *Store) updateOne(ctx context.Context, model any, id string, values map[string]any) error {
	result := s.db.WithContext(ctx).Model(model).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}
