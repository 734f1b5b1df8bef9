package smtp

import (
	"context"
	"net"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"
)

const (
	defaultMaxConnections = 100
	defaultConnRate       = 10
	defaultMaxRecipients  = 50
	// 附件按 base64 膨胀约三分之一，外加头部与正文
	messageSizeFactor = 2
)

// ServerConfig 内置 SMTP 接收服务的配置
type ServerConfig struct {
	Addr              string
	Domain            string
	MaxAttachmentSize int64
	MaxConnections    int
	ConnectionsPerSec int
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
}

// Server 只接收的 SMTP 服务
type Server struct {
	cfg     ServerConfig
	smtp    *gosmtp.Server
	limiter *ConnectionLimiter
	log     *zap.Logger
}

// NewServer 创建 SMTP 接收服务
func NewServer(cfg ServerConfig, mail Deliverer, log *zap.Logger) *Server {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = defaultMaxConnections
	}
	if cfg.ConnectionsPerSec <= 0 {
		cfg.ConnectionsPerSec = defaultConnRate
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxAttachmentSize <= 0 {
		cfg.MaxAttachmentSize = 10 << 20
	}
	if cfg.Domain == "" {
		cfg.Domain = mail.Domain()
	}
	maxBytes := cfg.MaxAttachmentSize * messageSizeFactor

	srv := gosmtp.NewServer(NewBackend(mail, maxBytes, log))
	srv.Addr = cfg.Addr
	srv.Domain = cfg.Domain
	srv.ReadTimeout = cfg.ReadTimeout
	srv.WriteTimeout = cfg.WriteTimeout
	srv.MaxMessageBytes = maxBytes
	srv.MaxRecipients = defaultMaxRecipients

	return &Server{
		cfg:     cfg,
		smtp:    srv,
		limiter: NewConnectionLimiter(cfg.MaxConnections, cfg.ConnectionsPerSec),
		log:     log,
	}
}

// Serve 在 listener 上服务，直到 ctx 取消
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			if err := s.smtp.Close(); err != nil {
				s.log.Warn("SMTP server close warning", zap.Error(err))
			}
		case <-done:
		}
	}()

	s.log.Info("starting SMTP server",
		zap.String("address", l.Addr().String()),
		zap.String("domain", s.cfg.Domain),
	)
	err := s.smtp.Serve(&limitedListener{Listener: l, limiter: s.limiter, log: s.log})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// ListenAndServe 监听配置的地址并服务，直到 ctx 取消
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.cfg.Addr
	if addr == "" {
		addr = ":25"
	}
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, l)
}
