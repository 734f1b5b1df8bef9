package websocket

import (
	"context"

	"go.uber.org/zap"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/storage/redis"
)

// RedisRelay 通过 Redis pub/sub 在多个实例间转发新邮件通知
type RedisRelay struct {
	cache *redis.Cache
	log   *zap.Logger
}

// NewRedisRelay 创建 Redis 转发
func NewRedisRelay(cache *redis.Cache, log *zap.Logger) *RedisRelay {
	return &RedisRelay{cache: cache, log: log}
}

// Publish 发布通知，所有实例（包括本实例）的订阅者都会收到
func (r *RedisRelay) Publish(ctx context.Context, userID string, message *domain.Message) error {
	return r.cache.PublishNewMail(ctx, redis.MailNotification{UserID: userID, Message: message})
}

// Run 订阅通知并推送到本实例的连接，直到 ctx 结束
func (r *RedisRelay) Run(ctx context.Context, hub *Hub) error {
	r.log.Info("subscribing to new mail notifications")
	return r.cache.SubscribeNewMail(ctx, func(n redis.MailNotification) {
		if n.Message == nil || n.UserID == "" {
			return
		}
		hub.Push(n.UserID, n.Message)
	})
}
