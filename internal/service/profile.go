package service

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/storage"
)

// ProfileService 汇总租户在各模块中的数据
type ProfileService struct {
	store storage.Store
}

// NewProfileService 创建个人主页服务
func NewProfileService(store storage.Store) *ProfileService {
	return &ProfileService{store: store}
}

// Stats 并行统计各模块的数量，全部完成后返回
func (s *ProfileService) Stats(ctx context.Context, userID string) (*domain.ProfileStats, error) {
	stats := &domain.ProfileStats{}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		inboxes, err := s.store.ListMailboxesByUser(ctx, userID)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(inboxes))
		for _, mb := range inboxes {
			ids = append(ids, mb.ID)
			if mb.Active {
				stats.Inboxes++
			}
		}
		if len(ids) == 0 {
			return nil
		}
		messages, err := s.store.ListMessagesByInboxes(ctx, ids)
		if err != nil {
			return err
		}
		stats.Messages = int64(len(messages))
		return nil
	})
	g.Go(func() error {
		records, err := s.store.ListDomainRecordsByUser(ctx, userID)
		stats.Domains = int64(len(records))
		return err
	})
	g.Go(func() error {
		rules, err := s.store.ListForwardingRulesByUser(ctx, userID)
		stats.ForwardingRules = int64(len(rules))
		return err
	})
	g.Go(func() error {
		links, err := s.store.ListShortLinksByUser(ctx, userID)
		stats.Links = int64(len(links))
		return err
	})
	g.Go(func() error {
		files, err := s.store.FileStatsByUser(ctx, userID)
		if err != nil {
			return err
		}
		stats.Files = files.FileCount
		return nil
	})
	g.Go(func() error {
		feedback, err := s.store.ListFeedbackByUser(ctx, userID)
		if err != nil || len(feedback) == 0 {
			return err
		}
		var total int
		for _, f := range feedback {
			total += f.Rating
		}
		avg := float64(total) / float64(len(feedback))
		stats.AverageRating = &avg
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// ExportIdentity 导出中附带的身份信息
type ExportIdentity struct {
	UserID  string
	Email   string
	SlackID string
}

// Export 导出租户的全部数据
func (s *ProfileService) Export(ctx context.Context, who ExportIdentity) (*domain.ProfileExport, error) {
	userID := who.UserID
	export := &domain.ProfileExport{
		ExportedAt: time.Now().UTC(),
		UserID:     userID,
		Email:      who.Email,
		SlackID:    who.SlackID,
	}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() (err error) {
		export.Domains, err = s.store.ListDomainRecordsByUser(ctx, userID)
		return err
	})
	g.Go(func() error {
		req, err := s.store.GetAccessRequestByUser(ctx, userID)
		if err == nil {
			export.AccessRequest = req
			return nil
		}
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		inboxes, err := s.store.ListMailboxesByUser(ctx, userID)
		if err != nil {
			return err
		}
		export.Inboxes = inboxes
		ids := make([]string, 0, len(inboxes))
		for _, mb := range inboxes {
			ids = append(ids, mb.ID)
		}
		if len(ids) == 0 {
			export.Messages = []*domain.Message{}
			return nil
		}
		export.Messages, err = s.store.ListMessagesByInboxes(ctx, ids)
		return err
	})
	g.Go(func() (err error) {
		export.Files, err = s.store.ListFileAssetsByUser(ctx, userID)
		return err
	})
	g.Go(func() (err error) {
		export.Links, err = s.store.ListShortLinksByUser(ctx, userID)
		return err
	})
	g.Go(func() (err error) {
		export.ForwardingRules, err = s.store.ListForwardingRulesByUser(ctx, userID)
		return err
	})
	g.Go(func() (err error) {
		export.Feedback, err = s.store.ListFeedbackByUser(ctx, userID)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return export, nil
}
