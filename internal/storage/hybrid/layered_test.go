package hybrid

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"furrydomains/backend/internal/domain"
)

func TestLayeredCache(t *testing.T) {
	ctx := context.Background()

	t.Run("仅本地缓存", func(t *testing.T) {
		c := NewLayeredCache(10, time.Minute, nil)

		_, err := c.GetCachedMailbox(ctx, "a@hackclubber.dev")
		assert.ErrorIs(t, err, ErrLocalMiss)

		require.NoError(t, c.CacheMailbox(ctx, &domain.Mailbox{ID: "m1", Email: "a@hackclubber.dev"}))
		got, err := c.GetCachedMailbox(ctx, "a@hackclubber.dev")
		require.NoError(t, err)
		assert.Equal(t, "m1", got.ID)

		require.NoError(t, c.DeleteCachedMailbox(ctx, "a@hackclubber.dev"))
		_, err = c.GetCachedMailbox(ctx, "a@hackclubber.dev")
		assert.ErrorIs(t, err, ErrLocalMiss)
	})

	t.Run("远端命中回填本地", func(t *testing.T) {
		remote := newFakeCache()
		require.NoError(t, remote.CacheFileAsset(ctx, &domain.FileAsset{ID: "f1", Key: "U1/a.txt"}))

		c := NewLayeredCache(10, time.Minute, remote)
		_, err := c.GetCachedFileAsset(ctx, "U1/a.txt")
		require.NoError(t, err)
		_, err = c.GetCachedFileAsset(ctx, "U1/a.txt")
		require.NoError(t, err)
		assert.Equal(t, 1, remote.hits)
	})

	t.Run("删除同时清理两级", func(t *testing.T) {
		remote := newFakeCache()
		c := NewLayeredCache(10, time.Minute, remote)
		require.NoError(t, c.CacheFileAsset(ctx, &domain.FileAsset{ID: "f2", Key: "U1/b.txt"}))
		require.NoError(t, c.DeleteCachedFileAsset(ctx, "U1/b.txt"))

		_, err := c.GetCachedFileAsset(ctx, "U1/b.txt")
		assert.ErrorIs(t, err, errMiss)
	})
}
