package hybrid

import (
	"context"
	"time"

	"go.uber.org/zap"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/storage"
)

// Cache 混合存储使用的读缓存
type Cache interface {
	CacheFileAsset(ctx context.Context, asset *domain.FileAsset) error
	GetCachedFileAsset(ctx context.Context, key string) (*domain.FileAsset, error)
	DeleteCachedFileAsset(ctx context.Context, key string) error
	CacheMailbox(ctx context.Context, mailbox *domain.Mailbox) error
	GetCachedMailbox(ctx context.Context, email string) (*domain.Mailbox, error)
	DeleteCachedMailbox(ctx context.Context, email string) error
}

// Pinger 可探测的缓存连接
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store 混合存储实现，数据库为权威数据源，Redis 缓存热点查询
//
// 缓存的文件元数据只用于 CDN 访问路径，views/bandwidth 计数以数据库为准。
type Store struct {
	storage.Store
	cache  Cache
	pinger Pinger
	log    *zap.Logger
}

// NewStore 创建混合存储实例
func NewStore(db storage.Store, cache Cache, pinger Pinger, log *zap.Logger) *Store {
	return &Store{Store: db, cache: cache, pinger: pinger, log: log}
}

func (s *Store) cacheFailed(op string, err error) {
	// 缓存失败不影响主流程
	s.log.Warn("cache operation failed", zap.String("op", op), zap.Error(err))
}

// ========== Mailbox ==========

// CreateMailbox 保存收件箱并写入缓存
func (s *Store) CreateMailbox(ctx context.Context, mailbox *domain.Mailbox) error {
	if err := s.Store.CreateMailbox(ctx, mailbox); err != nil {
		return err
	}
	if err := s.cache.CacheMailbox(ctx, mailbox); err != nil {
		s.cacheFailed("cache_mailbox", err)
	}
	return nil
}

// GetMailboxByEmail 先查缓存，未命中时回源数据库
func (s *Store) GetMailboxByEmail(ctx context.Context, email string) (*domain.Mailbox, error) {
	if mailbox, err := s.cache.GetCachedMailbox(ctx, email); err == nil {
		return mailbox, nil
	}

	mailbox, err := s.Store.GetMailboxByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.cache.CacheMailbox(ctx, mailbox); err != nil {
		s.cacheFailed("cache_mailbox", err)
	}
	return mailbox, nil
}

// DeleteMailbox 删除收件箱并清理缓存
func (s *Store) DeleteMailbox(ctx context.Context, id string) error {
	mailbox, err := s.Store.GetMailbox(ctx, id)
	if err != nil {
		return err
	}
	if err := s.Store.DeleteMailbox(ctx, id); err != nil {
		return err
	}
	if err := s.cache.DeleteCachedMailbox(ctx, mailbox.Email); err != nil {
		s.cacheFailed("delete_mailbox", err)
	}
	return nil
}

// ========== FileAsset ==========

// GetFileAssetByKey 先查缓存，未命中时回源数据库
func (s *Store) GetFileAssetByKey(ctx context.Context, key string) (*domain.FileAsset, error) {
	if asset, err := s.cache.GetCachedFileAsset(ctx, key); err == nil {
		return asset, nil
	}

	asset, err := s.Store.GetFileAssetByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.cache.CacheFileAsset(ctx, asset); err != nil {
		s.cacheFailed("cache_file", err)
	}
	return asset, nil
}

// MarkFileAssetDeleted 软删除并清理缓存
func (s *Store) MarkFileAssetDeleted(ctx context.Context, id string, at time.Time) error {
	return s.invalidateFile(ctx, id, func() error {
		return s.Store.MarkFileAssetDeleted(ctx, id, at)
	})
}

// PurgeFileAsset 物理删除并清理缓存
func (s *Store) PurgeFileAsset(ctx context.Context, id string) error {
	return s.invalidateFile(ctx, id, func() error {
		return s.Store.PurgeFileAsset(ctx, id)
	})
}

func (s *Store) invalidateFile(ctx context.Context, id string, mutate func() error) error {
	asset, err := s.Store.GetFileAsset(ctx, id)
	if err != nil {
		return err
	}
	if err := mutate(); err != nil {
		return err
	}
	if err := s.cache.DeleteCachedFileAsset(ctx, asset.Key); err != nil {
		s.cacheFailed("delete_file", err)
	}
	return nil
}

// Health 同时检查数据库与缓存
func (s *Store) Health(ctx context.Context) error {
	if err := s.Store.Health(ctx); err != nil {
		return err
	}
	if s.pinger != nil {
		return s.pinger.Ping(ctx)
	}
	return nil
}
