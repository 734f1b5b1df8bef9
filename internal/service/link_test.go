package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"furrydomains/backend/internal/config"
	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/storage/memory"
)

func newLinkService(t *testing.T) (*LinkService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	cfg := config.LinksConfig{Host: "fur.ly", BaseURL: "https://fur.ly/", CodeLength: 6}
	return NewLinkService(store, cfg, nil, zap.NewNop()), store
}

func TestLinkService_Shorten(t *testing.T) {
	ctx := context.Background()

	t.Run("生成 6 位短码", func(t *testing.T) {
		svc, _ := newLinkService(t)
		res, err := svc.Shorten(ctx, "u1", "https://example.com/page?q=1")
		require.NoError(t, err)
		assert.Len(t, res.ShortCode, 6)
		assert.True(t, svc.IsCode(res.ShortCode))
		assert.Equal(t, "https://fur.ly/"+res.ShortCode, res.ShortURL)
	})

	t.Run("跳过已占用的短码", func(t *testing.T) {
		svc, store := newLinkService(t)
		require.NoError(t, store.CreateShortLink(ctx, &domain.ShortLink{ID: "x", UserID: "u0", Code: "AAAAAA", Destination: "https://a.example"}))

		codes := []string{"AAAAAA", "AAAAAA", "BBBBBB"}
		svc.generate = func() (string, error) {
			code := codes[0]
			codes = codes[1:]
			return code, nil
		}
		res, err := svc.Shorten(ctx, "u1", "https://example.com")
		require.NoError(t, err)
		assert.Equal(t, "BBBBBB", res.ShortCode)
	})

	t.Run("短码耗尽", func(t *testing.T) {
		svc, store := newLinkService(t)
		require.NoError(t, store.CreateShortLink(ctx, &domain.ShortLink{ID: "x", UserID: "u0", Code: "AAAAAA", Destination: "https://a.example"}))
		svc.generate = func() (string, error) { return "AAAAAA", nil }

		_, err := svc.Shorten(ctx, "u1", "https://example.com")
		assert.ErrorIs(t, err, ErrCodeExhausted)
	})

	tests := []struct {
		name        string
		destination string
		wantErr     error
	}{
		{"缺少目标地址", "  ", ErrDestinationRequired},
		{"相对地址", "/path", domain.ErrInvalidURL},
		{"非 http 协议", "ftp://example.com", domain.ErrInvalidURL},
		{"指向短链接域名", "https://fur.ly/abc", ErrSelfLink},
		{"指向短链接子域名", "https://WWW.fur.ly/abc", ErrSelfLink},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newLinkService(t)
			_, err := svc.Shorten(ctx, "u1", tt.destination)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLinkService_ResolveListDelete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newLinkService(t)

	res, err := svc.Shorten(ctx, "u1", "https://example.com")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		link, err := svc.Resolve(ctx, res.ShortCode)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com", link.Destination)
		assert.Equal(t, int64(i+1), link.Clicks)
		assert.NotNil(t, link.LastClickedAt)
	}

	_, err = svc.Resolve(ctx, "zzzzzz")
	assert.ErrorIs(t, err, ErrLinkNotFound)

	links, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, links, 1)

	assert.ErrorIs(t, svc.Delete(ctx, "u2", res.ShortCode), ErrLinkNotFound)
	require.NoError(t, svc.Delete(ctx, "u1", res.ShortCode))
	_, err = svc.Resolve(ctx, res.ShortCode)
	assert.ErrorIs(t, err, ErrLinkNotFound)
}

func TestLinkService_IsCode(t *testing.T) {
	svc, _ := newLinkService(t)
	assert.True(t, svc.IsCode("aB3dE9"))
	assert.False(t, svc.IsCode("aB3dE"))
	assert.False(t, svc.IsCode("aB3-E9"))
	assert.False(t, svc.IsCode("abcdef1"))
}
