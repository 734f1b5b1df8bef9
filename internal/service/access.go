package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"furrydomains/backend/internal/config"
	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/monitoring"
	"furrydomains/backend/internal/storage"
)

var (
	// ErrAccessCooldown 距上次申请不足冷却时间
	ErrAccessCooldown = errors.New("please wait 24 hours before requesting again")
	// ErrAccessAlreadyApproved 已获得访问权限
	ErrAccessAlreadyApproved = errors.New("you already have access")
	// ErrAccessPending 申请仍在审批中
	ErrAccessPending = errors.New("your request is still pending")
	// ErrNotApproved 申请未通过，不能完成测验
	ErrNotApproved = errors.New("not whitelisted")
	// ErrWebmailLocked 未获批准或未完成测验
	ErrWebmailLocked = errors.New("webmail access not granted")
	// ErrAccessRequestNotFound 申请不存在
	ErrAccessRequestNotFound = errors.New("access request not found")
	// ErrAccessAlreadyDecided 申请已被处理
	ErrAccessAlreadyDecided = errors.New("access request already decided")
	// ErrNotAdmin 只有配置的管理员可以审批
	ErrNotAdmin = errors.New("only the configured admin can decide requests")
)

const (
	defaultAccessCooldown = 24 * time.Hour
	defaultPurgeAge       = 30 * 24 * time.Hour
)

// AccessNotifier 审批通知渠道（Slack）
type AccessNotifier interface {
	PostAccessRequest(ctx context.Context, req *domain.AccessRequest) error
	NotifyRequester(ctx context.Context, slackUserID string, status domain.AccessStatus) error
	UpdateDecisionMessage(ctx context.Context, channelID, ts, name string, status domain.AccessStatus) error
}

// AccessService 管理 webmail 访问申请的状态机
//
// none -> pending -> approved/denied，denied 在冷却期后可以重新申请。
type AccessService struct {
	repo     storage.AccessRequestRepository
	notifier AccessNotifier
	adminID  string
	cooldown time.Duration
	purgeAge time.Duration
	metrics  *monitoring.Metrics
	log      *zap.Logger
	now      func() time.Time
}

// NewAccessService 创建访问申请服务
func NewAccessService(
	repo storage.AccessRequestRepository,
	notifier AccessNotifier,
	accessCfg config.AccessConfig,
	adminID string,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *AccessService {
	cooldown := accessCfg.Cooldown
	if cooldown <= 0 {
		cooldown = defaultAccessCooldown
	}
	purgeAge := accessCfg.PurgeAge
	if purgeAge <= 0 {
		purgeAge = defaultPurgeAge
	}
	return &AccessService{
		repo:     repo,
		notifier: notifier,
		adminID:  adminID,
		cooldown: cooldown,
		purgeAge: purgeAge,
		metrics:  metrics,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Requester 申请人身份
type Requester struct {
	UserID      string
	SlackUserID string
	Name        string
	Email       string
}

// Request 提交访问申请
//
// 先清理过期的拒绝记录，再检查冷却期与当前状态；Slack 通知成功后才保存 pending 状态。
func (s *AccessService) Request(ctx context.Context, who Requester) (*domain.AccessRequest, error) {
	if _, err := s.Purge(ctx); err != nil {
		s.log.Warn("failed to purge stale access requests", zap.Error(err))
	}

	now := s.now()
	req, err := s.repo.GetAccessRequestByUser(ctx, who.UserID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		req = &domain.AccessRequest{
			ID:          uuid.NewString(),
			UserID:      who.UserID,
			RequestedAt: now,
		}
	case err != nil:
		return nil, err
	default:
		if now.Sub(req.LastRequestAt) < s.cooldown {
			return nil, ErrAccessCooldown
		}
		switch req.Status {
		case domain.AccessApproved:
			return nil, ErrAccessAlreadyApproved
		case domain.AccessPending:
			return nil, ErrAccessPending
		}
	}

	req.Status = domain.AccessPending
	req.SlackUserID = who.SlackUserID
	req.Name = who.Name
	req.Email = who.Email
	req.LastRequestAt = now
	req.DecidedAt = nil
	req.DecidedBy = ""

	if err := s.notifier.PostAccessRequest(ctx, req); err != nil {
		return nil, upstream("post access request", err)
	}
	if err := s.repo.SaveAccessRequest(ctx, req); err != nil {
		return nil, err
	}

	s.recordDecision(domain.AccessPending)
	s.log.Info("access requested", zap.String("user_id", who.UserID), zap.String("request_id", req.ID))
	return req, nil
}

// Status 返回租户的申请，没有申请时返回 nil
func (s *AccessService) Status(ctx context.Context, userID string) (*domain.AccessRequest, error) {
	req, err := s.repo.GetAccessRequestByUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return req, err
}

// DecisionInput 管理员的审批决定
type DecisionInput struct {
	RequestID     string
	Approve       bool
	AdminID       string
	SlackUserID   string // 按钮中携带的申请人 Slack ID
	ChannelID     string
	MessageTS     string
	RequesterName string
}

// Decide 条件更新 pending 申请，然后私信申请人并更新管理员消息
//
// 状态已经落库后，Slack 通知失败只记录日志。
func (s *AccessService) Decide(ctx context.Context, in DecisionInput) (*domain.AccessRequest, error) {
	if s.adminID != "" && in.AdminID != s.adminID {
		return nil, ErrNotAdmin
	}

	status := domain.AccessDenied
	if in.Approve {
		status = domain.AccessApproved
	}

	req, err := s.repo.DecideAccessRequest(ctx, in.RequestID, status, in.AdminID, s.now())
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, ErrAccessRequestNotFound
	case errors.Is(err, storage.ErrNotPending):
		return nil, ErrAccessAlreadyDecided
	case err != nil:
		return nil, err
	}

	s.recordDecision(status)
	s.log.Info("access request decided",
		zap.String("request_id", req.ID),
		zap.String("status", string(status)),
		zap.String("admin", in.AdminID))

	slackUserID := req.SlackUserID
	if slackUserID == "" {
		slackUserID = in.SlackUserID
	}
	if slackUserID != "" {
		if err := s.notifier.NotifyRequester(ctx, slackUserID, status); err != nil {
			s.log.Warn("failed to notify requester", zap.String("request_id", req.ID), zap.Error(err))
		}
	}

	name := in.RequesterName
	if name == "" {
		name = req.Name
	}
	if in.ChannelID != "" && in.MessageTS != "" {
		if err := s.notifier.UpdateDecisionMessage(ctx, in.ChannelID, in.MessageTS, name, status); err != nil {
			s.log.Warn("failed to update admin message", zap.String("request_id", req.ID), zap.Error(err))
		}
	}
	return req, nil
}

// CompleteQuiz 记录测验完成时间，只有已批准的申请可以完成
func (s *AccessService) CompleteQuiz(ctx context.Context, userID string) error {
	req, err := s.repo.GetAccessRequestByUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotApproved
	}
	if err != nil {
		return err
	}
	if req.Status != domain.AccessApproved {
		return ErrNotApproved
	}
	now := s.now()
	req.QuizCompletedAt = &now
	return s.repo.SaveAccessRequest(ctx, req)
}

// QuizCompleted 已批准且完成测验时返回 true
func (s *AccessService) QuizCompleted(ctx context.Context, userID string) (bool, error) {
	req, err := s.Status(ctx, userID)
	if err != nil {
		return false, err
	}
	return req != nil && req.Status == domain.AccessApproved && req.QuizCompletedAt != nil, nil
}

// RequireWebmail 未解锁 webmail 时返回 ErrWebmailLocked
func (s *AccessService) RequireWebmail(ctx context.Context, userID string) error {
	req, err := s.Status(ctx, userID)
	if err != nil {
		return err
	}
	if !req.CanUseWebmail() {
		return ErrWebmailLocked
	}
	return nil
}

// Purge 删除决定时间早于保留期的拒绝申请
func (s *AccessService) Purge(ctx context.Context) (int64, error) {
	n, err := s.repo.PurgeDeniedAccessRequests(ctx, s.now().Add(-s.purgeAge))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		if s.metrics != nil {
			s.metrics.AccessRequestsPurged.Add(float64(n))
		}
		s.log.Info("purged denied access requests", zap.Int64("count", n))
	}
	return n, nil
}

// RunPurge 按固定周期清理，直到 ctx 结束
func (s *AccessService) RunPurge(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Purge(ctx); err != nil {
				s.log.Error("access request purge failed", zap.Error(err))
			}
		}
	}
}

func (s *AccessService) recordDecision(status domain.AccessStatus) {
	if s.metrics != nil {
		s.metrics.RecordAccessDecision(string(status))
	}
}
