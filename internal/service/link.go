package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"

	"furrydomains/backend/internal/config"
	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/monitoring"
	"furrydomains/backend/internal/storage"
)

var (
	// ErrDestinationRequired 未提供目标地址
	ErrDestinationRequired = errors.New("destination is required")
	// ErrSelfLink 目标地址指向短链接域名本身
	ErrSelfLink = errors.New("cannot shorten links to this host")
	// ErrLinkNotFound 短链接不存在
	ErrLinkNotFound = errors.New("link not found")
	// ErrCodeExhausted 多次尝试后仍未找到可用短码
	ErrCodeExhausted = errors.New("could not allocate a short code")
)

const (
	codeAlphabet       = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	defaultCodeLength  = 6
	maxCodeGenAttempts = 10
)

// LinkService 短链接服务
type LinkService struct {
	repo       storage.ShortLinkRepository
	host       string
	baseURL    string
	codeLength int
	generate   func() (string, error)
	metrics    *monitoring.Metrics
	log        *zap.Logger
}

// NewLinkService 创建短链接服务
func NewLinkService(repo storage.ShortLinkRepository, cfg config.LinksConfig, metrics *monitoring.Metrics, log *zap.Logger) *LinkService {
	length := cfg.CodeLength
	if length <= 0 {
		length = defaultCodeLength
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" && cfg.Host != "" {
		baseURL = "https://" + cfg.Host
	}
	s := &LinkService{
		repo:       repo,
		host:       strings.ToLower(cfg.Host),
		baseURL:    baseURL,
		codeLength: length,
		metrics:    metrics,
		log:        log,
	}
	s.generate = func() (string, error) {
		return gonanoid.Generate(codeAlphabet, s.codeLength)
	}
	return s
}

// ShortenResult 创建短链接的结果
type ShortenResult struct {
	ShortURL  string `json:"shortUrl"`
	ShortCode string `json:"shortCode"`
}

// Shorten 为目标地址分配一个未使用的随机短码
func (s *LinkService) Shorten(ctx context.Context, userID, destination string) (*ShortenResult, error) {
	destination = strings.TrimSpace(destination)
	if destination == "" {
		return nil, ErrDestinationRequired
	}
	u, err := domain.ValidateDestinationURL(destination)
	if err != nil {
		return nil, err
	}
	if s.isOwnHost(u.Hostname()) {
		return nil, ErrSelfLink
	}

	for attempt := 0; attempt < maxCodeGenAttempts; attempt++ {
		code, err := s.generate()
		if err != nil {
			return nil, err
		}
		exists, err := s.repo.ShortCodeExists(ctx, code)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		link := &domain.ShortLink{
			ID:          uuid.NewString(),
			UserID:      userID,
			Code:        code,
			Destination: u.String(),
			CreatedAt:   time.Now().UTC(),
		}
		if err := s.repo.CreateShortLink(ctx, link); err != nil {
			// 检查与插入之间被占用
			if errors.Is(err, storage.ErrDuplicate) {
				continue
			}
			return nil, err
		}

		if s.metrics != nil {
			s.metrics.LinksCreated.Inc()
		}
		s.log.Info("short link created", zap.String("user_id", userID), zap.String("code", code))
		return &ShortenResult{ShortURL: s.baseURL + "/" + code, ShortCode: code}, nil
	}
	return nil, fmt.Errorf("%w after %d attempts", ErrCodeExhausted, maxCodeGenAttempts)
}

// Resolve 增加点击数并返回目标地址
func (s *LinkService) Resolve(ctx context.Context, code string) (*domain.ShortLink, error) {
	link, err := s.repo.ResolveShortLink(ctx, code, time.Now().UTC())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.LinkClicks.Inc()
	}
	return link, nil
}

// List 返回租户的短链接
func (s *LinkService) List(ctx context.Context, userID string) ([]*domain.ShortLink, error) {
	return s.repo.ListShortLinksByUser(ctx, userID)
}

// Delete 删除租户自己的短链接
func (s *LinkService) Delete(ctx context.Context, userID, code string) error {
	if err := s.repo.DeleteShortLink(ctx, userID, code); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrLinkNotFound
		}
		return err
	}
	return nil
}

// IsCode 判断路径段是否符合短码格式
func (s *LinkService) IsCode(candidate string) bool {
	if len(candidate) != s.codeLength {
		return false
	}
	for _, r := range candidate {
		if !strings.ContainsRune(codeAlphabet, r) {
			return false
		}
	}
	return true
}

func (s *LinkService) isOwnHost(host string) bool {
	if s.host == "" {
		return false
	}
	host = strings.ToLower(host)
	return host == s.host || strings.HasSuffix(host, "."+s.host)
}
