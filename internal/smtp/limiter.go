package smtp

import (
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ConnectionLimiter SMTP 连接限流器：并发上限加新建连接速率
type ConnectionLimiter struct {
	maxConns int64
	current  atomic.Int64
	rate     *rate.Limiter
}

// NewConnectionLimiter 创建连接限流器
//
// 参数:
//   - maxConns: 最大并发连接数
//   - perSecond: 每秒最大新建连接数，同时作为突发容量
func NewConnectionLimiter(maxConns, perSecond int) *ConnectionLimiter {
	return &ConnectionLimiter{
		maxConns: int64(maxConns),
		rate:     rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

// Acquire 获取连接许可
func (l *ConnectionLimiter) Acquire() bool {
	if l.current.Add(1) > l.maxConns {
		l.current.Add(-1)
		return false
	}
	if !l.rate.Allow() {
		l.current.Add(-1)
		return false
	}
	return true
}

// Release 释放连接
func (l *ConnectionLimiter) Release() {
	if l.current.Add(-1) < 0 {
		l.current.Store(0)
	}
}

// Current 当前连接数
func (l *ConnectionLimiter) Current() int {
	return int(l.current.Load())
}

// limitedListener 超出限制的连接直接关闭
type limitedListener struct {
	net.Listener
	limiter *ConnectionLimiter
	log     *zap.Logger
}

func (l *limitedListener) Accept() (net.Conn, error) {
	for {
		conn, err := l.Listener.Accept()
		if err != nil {
			return nil, err
		}
		if l.limiter.Acquire() {
			return &limitedConn{Conn: conn, release: l.limiter.Release}, nil
		}
		l.log.Warn("smtp connection rejected by limiter", zap.String("remote", conn.RemoteAddr().String()))
		_ = conn.Close()
	}
}

type limitedConn struct {
	net.Conn
	once    sync.Once
	release func()
}

func (c *limitedConn) Close() error {
	c.once.Do(c.release)
	return c.Conn.Close()
}
