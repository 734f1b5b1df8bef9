package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/storage"
)

var (
	// ErrInvalidRating 评分超出范围
	ErrInvalidRating = fmt.Errorf("rating must be between %d and %d", domain.MinFeedbackRating, domain.MaxFeedbackRating)
	// ErrFeedbackTooShort 反馈内容过短
	ErrFeedbackTooShort = fmt.Errorf("feedback must be at least %d characters long", domain.MinFeedbackLength)
	// ErrFeedbackRequired 未填写反馈或评分
	ErrFeedbackRequired = errors.New("feedback and rating are required")
)

// FeedbackService 用户反馈
type FeedbackService struct {
	repo storage.FeedbackRepository
}

// NewFeedbackService 创建反馈服务
func NewFeedbackService(repo storage.FeedbackRepository) *FeedbackService {
	return &FeedbackService{repo: repo}
}

// FeedbackInput 提交反馈的输入
type FeedbackInput struct {
	UserID    string
	Rating    int
	Text      string
	Path      string
	UserAgent string
}

// Submit 校验并保存反馈
func (s *FeedbackService) Submit(ctx context.Context, in FeedbackInput) (*domain.Feedback, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" || in.Rating == 0 {
		return nil, ErrFeedbackRequired
	}
	if in.Rating < domain.MinFeedbackRating || in.Rating > domain.MaxFeedbackRating {
		return nil, ErrInvalidRating
	}
	if utf8.RuneCountInString(text) < domain.MinFeedbackLength {
		return nil, ErrFeedbackTooShort
	}

	feedback := &domain.Feedback{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Rating:    in.Rating,
		Text:      text,
		Path:      in.Path,
		UserAgent: in.UserAgent,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateFeedback(ctx, feedback); err != nil {
		return nil, err
	}
	return feedback, nil
}

// List 返回租户提交的反馈
func (s *FeedbackService) List(ctx context.Context, userID string) ([]*domain.Feedback, error) {
	return s.repo.ListFeedbackByUser(ctx, userID)
}
