package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/storage/memory"
)

func TestFeedbackService_Submit(t *testing.T) {
	ctx := context.Background()
	longText := strings.Repeat("great ", 5)

	tests := []struct {
		name    string
		input   FeedbackInput
		wantErr error
	}{
		{"有效反馈", FeedbackInput{UserID: "u1", Rating: 5, Text: longText, Path: "/domains"}, nil},
		{"缺少评分", FeedbackInput{UserID: "u1", Text: longText}, ErrFeedbackRequired},
		{"缺少内容", FeedbackInput{UserID: "u1", Rating: 3, Text: "   "}, ErrFeedbackRequired},
		{"评分过高", FeedbackInput{UserID: "u1", Rating: 6, Text: longText}, ErrInvalidRating},
		{"评分为负", FeedbackInput{UserID: "u1", Rating: -1, Text: longText}, ErrInvalidRating},
		{"内容过短", FeedbackInput{UserID: "u1", Rating: 4, Text: "too short"}, ErrFeedbackTooShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewFeedbackService(memory.NewStore())
			fb, err := svc.Submit(ctx, tt.input)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input.Rating, fb.Rating)

			list, err := svc.List(ctx, tt.input.UserID)
			require.NoError(t, err)
			assert.Len(t, list, 1)
		})
	}
}

func TestProfileService(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewProfileService(store)

	t.Run("没有数据", func(t *testing.T) {
		stats, err := svc.Stats(ctx, "u1")
		require.NoError(t, err)
		assert.Zero(t, stats.Inboxes)
		assert.Nil(t, stats.AverageRating)

		export, err := svc.Export(ctx, ExportIdentity{UserID: "u1"})
		require.NoError(t, err)
		assert.Nil(t, export.AccessRequest)
		assert.Empty(t, export.Messages)
	})

	require.NoError(t, store.CreateMailbox(ctx, &domain.Mailbox{ID: "m1", UserID: "u1", Email: "fox@hackclubber.dev", Active: true}))
	require.NoError(t, store.CreateMailbox(ctx, &domain.Mailbox{ID: "m2", UserID: "u1", Email: "old@hackclubber.dev"}))
	require.NoError(t, store.SaveMessage(ctx, &domain.Message{ID: "msg1", InboxID: "m1"}))
	require.NoError(t, store.SaveMessage(ctx, &domain.Message{ID: "msg2", InboxID: "m2"}))
	require.NoError(t, store.CreateDomainRecord(ctx, &domain.DomainRecord{ID: "d1", UserID: "u1", Domain: "fox.is-a-furry.dev", RecordType: domain.RecordTypeA}))
	require.NoError(t, store.CreateShortLink(ctx, &domain.ShortLink{ID: "l1", UserID: "u1", Code: "abcdef", Destination: "https://example.com"}))
	require.NoError(t, store.CreateFileAsset(ctx, &domain.FileAsset{ID: "f1", UserID: "u1", Key: "U1/a.txt", Filename: "a.txt"}))
	require.NoError(t, store.CreateForwardingRule(ctx, &domain.ForwardingRule{ID: "r1", UserID: "u1", RuleID: "rule-1"}))
	require.NoError(t, store.CreateFeedback(ctx, &domain.Feedback{ID: "fb1", UserID: "u1", Rating: 4}))
	require.NoError(t, store.CreateFeedback(ctx, &domain.Feedback{ID: "fb2", UserID: "u1", Rating: 5}))

	t.Run("统计", func(t *testing.T) {
		stats, err := svc.Stats(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.Inboxes)
		assert.Equal(t, int64(2), stats.Messages)
		assert.Equal(t, int64(1), stats.Domains)
		assert.Equal(t, int64(1), stats.Links)
		assert.Equal(t, int64(1), stats.Files)
		assert.Equal(t, int64(1), stats.ForwardingRules)
		require.NotNil(t, stats.AverageRating)
		assert.InDelta(t, 4.5, *stats.AverageRating, 0.001)
	})

	t.Run("导出", func(t *testing.T) {
		export, err := svc.Export(ctx, ExportIdentity{UserID: "u1", SlackID: "U1"})
		require.NoError(t, err)
		assert.Equal(t, "U1", export.SlackID)
		assert.Len(t, export.Inboxes, 2)
		assert.Len(t, export.Messages, 2)
		assert.Len(t, export.Domains, 1)
		assert.Len(t, export.Files, 1)
		assert.Len(t, export.Links, 1)
		assert.Len(t, export.ForwardingRules, 1)
		assert.Len(t, export.Feedback, 2)
		assert.False(t, export.ExportedAt.IsZero())
	})
}
