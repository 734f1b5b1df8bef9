package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"furrydomains/backend/internal/domain"
)

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("cache miss")

// 新邮件通知频道
const newMailChannel = "furrydomains:new_mail"

// Cache Redis 缓存实现
type Cache struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewCache 创建 Redis 缓存实例
func NewCache(client *Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{client: client.Client(), ttl: ttl}
}

func (c *Cache) setJSON(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) getJSON(ctx context.Context, key string, v interface{}) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return ErrCacheMiss
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// ========== 文件缓存 ==========

func fileKey(key string) string { return fmt.Sprintf("file:%s", key) }

// CacheFileAsset 缓存文件元数据（CDN 访问路径上的热点查询）
func (c *Cache) CacheFileAsset(ctx context.Context, asset *domain.FileAsset) error {
	return c.setJSON(ctx, fileKey(asset.Key), asset)
}

// GetCachedFileAsset 获取缓存的文件元数据
func (c *Cache) GetCachedFileAsset(ctx context.Context, key string) (*domain.FileAsset, error) {
	var asset domain.FileAsset
	if err := c.getJSON(ctx, fileKey(key), &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

// DeleteCachedFileAsset 删除缓存的文件元数据
func (c *Cache) DeleteCachedFileAsset(ctx context.Context, key string) error {
	return c.client.Del(ctx, fileKey(key)).Err()
}

// ========== 邮箱缓存 ==========

func mailboxKey(email string) string { return fmt.Sprintf("mailbox:%s", email) }

// CacheMailbox 缓存收件箱（入站 webhook 按地址查找）
func (c *Cache) CacheMailbox(ctx context.Context, mailbox *domain.Mailbox) error {
	return c.setJSON(ctx, mailboxKey(mailbox.Email), mailbox)
}

// GetCachedMailbox 按地址获取缓存的收件箱
func (c *Cache) GetCachedMailbox(ctx context.Context, email string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	if err := c.getJSON(ctx, mailboxKey(email), &mailbox); err != nil {
		return nil, err
	}
	return &mailbox, nil
}

// DeleteCachedMailbox 删除缓存的收件箱
func (c *Cache) DeleteCachedMailbox(ctx context.Context, email string) error {
	return c.client.Del(ctx, mailboxKey(email)).Err()
}

// ========== 新邮件通知 ==========

// MailNotification 跨实例的新邮件通知
type MailNotification struct {
	UserID  string          `json:"userId"`
	Message *domain.Message `json:"message"`
}

// PublishNewMail 发布新邮件通知
func (c *Cache) PublishNewMail(ctx context.Context, n MailNotification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, newMailChannel, data).Err()
}

// SubscribeNewMail 订阅新邮件通知，直到 ctx 结束
func (c *Cache) SubscribeNewMail(ctx context.Context, handle func(MailNotification)) error {
	sub := c.client.Subscribe(ctx, newMailChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var n MailNotification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				continue
			}
			handle(n)
		}
	}
}
