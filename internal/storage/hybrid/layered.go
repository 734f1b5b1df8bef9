package hybrid

import (
	"context"
	"errors"
	"time"

	"furrydomains/backend/internal/cache"
	"furrydomains/backend/internal/domain"
)

// ErrLocalMiss 本地缓存未命中且没有远端缓存
var ErrLocalMiss = errors.New("local cache miss")

// LayeredCache 两级缓存：进程内 L1 + 可选的 Redis L2
//
// L1 只在本实例内失效，TTL 应保持很短。
type LayeredCache struct {
	files     *cache.LocalCache[*domain.FileAsset]
	mailboxes *cache.LocalCache[*domain.Mailbox]
	remote    Cache
}

var _ Cache = (*LayeredCache)(nil)

// NewLayeredCache 创建两级缓存，remote 为 nil 时只使用本地缓存
func NewLayeredCache(maxEntries int, ttl time.Duration, remote Cache) *LayeredCache {
	return &LayeredCache{
		files:     cache.NewLocalCache[*domain.FileAsset](maxEntries, ttl),
		mailboxes: cache.NewLocalCache[*domain.Mailbox](maxEntries, ttl),
		remote:    remote,
	}
}

// Run 定期清理本地缓存中的过期条目
func (c *LayeredCache) Run(ctx context.Context) {
	go c.mailboxes.Run(ctx, time.Minute)
	c.files.Run(ctx, time.Minute)
}

// CacheFileAsset 写入两级缓存
func (c *LayeredCache) CacheFileAsset(ctx context.Context, asset *domain.FileAsset) error {
	c.files.Set(asset.Key, asset, 0)
	if c.remote == nil {
		return nil
	}
	return c.remote.CacheFileAsset(ctx, asset)
}

// GetCachedFileAsset 先查 L1，再查 L2 并回填 L1
func (c *LayeredCache) GetCachedFileAsset(ctx context.Context, key string) (*domain.FileAsset, error) {
	if asset, ok := c.files.Get(key); ok {
		return asset, nil
	}
	if c.remote == nil {
		return nil, ErrLocalMiss
	}
	asset, err := c.remote.GetCachedFileAsset(ctx, key)
	if err != nil {
		return nil, err
	}
	c.files.Set(key, asset, 0)
	return asset, nil
}

// DeleteCachedFileAsset 同时清理两级缓存
func (c *LayeredCache) DeleteCachedFileAsset(ctx context.Context, key string) error {
	c.files.Delete(key)
	if c.remote == nil {
		return nil
	}
	return c.remote.DeleteCachedFileAsset(ctx, key)
}

// CacheMailbox 写入两级缓存
func (c *LayeredCache) CacheMailbox(ctx context.Context, mailbox *domain.Mailbox) error {
	c.mailboxes.Set(mailbox.Email, mailbox, 0)
	if c.remote == nil {
		return nil
	}
	return c.remote.CacheMailbox(ctx, mailbox)
}

// GetCachedMailbox 先查 L1，再查 L2 并回填 L1
func (c *LayeredCache) GetCachedMailbox(ctx context.Context, email string) (*domain.Mailbox, error) {
	if mailbox, ok := c.mailboxes.Get(email); ok {
		return mailbox, nil
	}
	if c.remote == nil {
		return nil, ErrLocalMiss
	}
	mailbox, err := c.remote.GetCachedMailbox(ctx, email)
	if err != nil {
		return nil, err
	}
	c.mailboxes.Set(email, mailbox, 0)
	return mailbox, nil
}

// DeleteCachedMailbox 同时清理两级缓存
func (c *LayeredCache) DeleteCachedMailbox(ctx context.Context, email string) error {
	c.mailboxes.Delete(email)
	if c.remote == nil {
		return nil
	}
	return c.remote.DeleteCachedMailbox(ctx, email)
}
