package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"furrydomains/backend/internal/pool"
	"furrydomains/backend/internal/security"
	"furrydomains/backend/internal/storage/memory"
)

// queuedTasks 记录提交的任务，由测试手动执行
type queuedTasks struct {
	tasks []pool.Task
	full  bool
}

func (q *queuedTasks) TrySubmit(task pool.Task) bool {
	if q.full {
		return false
	}
	q.tasks = append(q.tasks, task)
	return true
}

func newFileService(t *testing.T, tasks TaskSubmitter) (*FileService, *memory.Store, *memoryBlobs) {
	t.Helper()
	store := memory.NewStore()
	blobs := newMemoryBlobs()
	return NewFileService(store, blobs, security.NewCDNPolicy(50<<20), tasks, nil, zap.NewNop()), store, blobs
}

func TestFileService_PresignUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("预留元数据并返回签名地址", func(t *testing.T) {
		svc, store, _ := newFileService(t, nil)
		res, err := svc.PresignUpload(ctx, UploadInput{UserID: "u1", Owner: "U123", Filename: "a.txt", ContentType: "text/plain", Size: 5}, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, "U123/a.txt", res.File.Key)
		assert.Equal(t, "https://cdn.example.com/U123/a.txt", res.File.URL)
		assert.Contains(t, res.UploadURL, "U123/a.txt")
		assert.Equal(t, 3600, res.ExpiresIn)

		saved, err := store.GetFileAssetByKey(ctx, "U123/a.txt")
		require.NoError(t, err)
		assert.Equal(t, "txt", saved.Extension)
	})

	t.Run("同名文件返回 409 并携带已有文件", func(t *testing.T) {
		svc, _, _ := newFileService(t, nil)
		first, err := svc.PresignUpload(ctx, UploadInput{UserID: "u1", Owner: "U123", Filename: "a.txt", Size: 5}, time.Hour)
		require.NoError(t, err)

		_, err = svc.PresignUpload(ctx, UploadInput{UserID: "u1", Owner: "U123", Filename: "a.txt", Size: 5}, time.Hour)
		require.ErrorIs(t, err, ErrFileExists)
		var conflict *FileConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, first.File.ID, conflict.Existing.ID)
		assert.Equal(t, "https://cdn.example.com/U123/a.txt", conflict.URL)
	})

	t.Run("签名失败时删除预留的元数据", func(t *testing.T) {
		svc, store, blobs := newFileService(t, nil)
		blobs.presignErr = errors.New("r2 down")

		_, err := svc.PresignUpload(ctx, UploadInput{UserID: "u1", Owner: "U123", Filename: "a.txt", Size: 5}, time.Hour)
		assert.ErrorIs(t, err, ErrUpstream)
		_, err = store.GetFileAssetByKey(ctx, "U123/a.txt")
		assert.Error(t, err)
	})

	t.Run("文件名校验", func(t *testing.T) {
		svc, _, _ := newFileService(t, nil)
		_, err := svc.PresignUpload(ctx, UploadInput{UserID: "u1", Owner: "U123", Filename: " "}, time.Hour)
		assert.ErrorIs(t, err, ErrFilenameRequired)
		_, err = svc.PresignUpload(ctx, UploadInput{UserID: "u1", Owner: "U123", Filename: "a/b.txt"}, time.Hour)
		assert.ErrorIs(t, err, security.ErrInvalidFilename)
		_, err = svc.PresignUpload(ctx, UploadInput{UserID: "u1", Owner: "U123", Filename: "setup.exe"}, time.Hour)
		assert.ErrorIs(t, err, security.ErrFileTypeNotAllowed)
	})
}

func TestFileService_ProxyUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("写入对象存储并记录哈希", func(t *testing.T) {
		svc, _, blobs := newFileService(t, nil)
		view, err := svc.ProxyUpload(ctx, UploadInput{
			UserID: "u1", Owner: "U123", Filename: "hello.txt", Size: 11, Body: strings.NewReader("hello world"),
		})
		require.NoError(t, err)
		assert.True(t, blobs.has("U123/hello.txt"))
		assert.Len(t, view.Hash, 64)
		assert.Equal(t, "text/plain", view.ContentType)
	})

	t.Run("超过大小限制", func(t *testing.T) {
		svc, _, blobs := newFileService(t, nil)
		_, err := svc.ProxyUpload(ctx, UploadInput{
			UserID: "u1", Owner: "U123", Filename: "big.bin", Size: 51 << 20, Body: strings.NewReader("x"),
		})
		assert.ErrorIs(t, err, security.ErrFileTooLarge)
		assert.False(t, blobs.has("U123/big.bin"))
	})

	t.Run("拒绝可执行文件", func(t *testing.T) {
		svc, _, _ := newFileService(t, nil)
		_, err := svc.ProxyUpload(ctx, UploadInput{
			UserID: "u1", Owner: "U123", Filename: "tool.bin", Size: 4, Body: strings.NewReader("\x7fELF"),
		})
		assert.ErrorIs(t, err, security.ErrFileTypeNotAllowed)
	})

	t.Run("上传失败不写元数据", func(t *testing.T) {
		svc, store, blobs := newFileService(t, nil)
		blobs.putErr = errors.New("r2 down")
		_, err := svc.ProxyUpload(ctx, UploadInput{
			UserID: "u1", Owner: "U123", Filename: "a.txt", Size: 1, Body: strings.NewReader("a"),
		})
		assert.ErrorIs(t, err, ErrUpstream)
		_, err = store.GetFileAssetByKey(ctx, "U123/a.txt")
		assert.Error(t, err)
	})

	t.Run("删除后可以重新上传同名文件", func(t *testing.T) {
		svc, _, _ := newFileService(t, nil)
		first, err := svc.ProxyUpload(ctx, UploadInput{UserID: "u1", Owner: "U123", Filename: "a.txt", Size: 1, Body: strings.NewReader("a")})
		require.NoError(t, err)
		require.NoError(t, svc.Delete(ctx, "u1", first.ID))

		second, err := svc.ProxyUpload(ctx, UploadInput{UserID: "u1", Owner: "U123", Filename: "a.txt", Size: 1, Body: strings.NewReader("b")})
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
	})
}

func TestFileService_DeleteAndServe(t *testing.T) {
	ctx := context.Background()
	tasks := &queuedTasks{}
	svc, store, blobs := newFileService(t, tasks)

	view, err := svc.ProxyUpload(ctx, UploadInput{UserID: "u1", Owner: "U123", Filename: "a.txt", Size: 5, Body: strings.NewReader("hello")})
	require.NoError(t, err)

	t.Run("输出内容并异步记录访问", func(t *testing.T) {
		obj, err := svc.Open(ctx, "/U123/a.txt")
		require.NoError(t, err)
		data, err := io.ReadAll(obj.Body)
		require.NoError(t, err)
		assert.Equal(t, "hello", string(data))

		require.Len(t, tasks.tasks, 1)
		tasks.tasks[0](ctx)
		asset, err := store.GetFileAssetByKey(ctx, "U123/a.txt")
		require.NoError(t, err)
		assert.Equal(t, int64(1), asset.Views)
		assert.Equal(t, int64(5), asset.Bandwidth)

		stats, err := svc.Stats(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, int64(1), stats.FileCount)
		assert.Equal(t, int64(5), stats.TotalSize)
		assert.Equal(t, int64(5), stats.TotalBandwidth)
	})

	t.Run("队列已满时丢弃访问记录", func(t *testing.T) {
		tasks.full = true
		defer func() { tasks.full = false }()
		_, err := svc.Open(ctx, "U123/a.txt")
		assert.NoError(t, err)
	})

	t.Run("不能删除别人的文件", func(t *testing.T) {
		assert.ErrorIs(t, svc.Delete(ctx, "u2", view.ID), ErrFileNotFound)
	})

	t.Run("对象删除失败时保留元数据", func(t *testing.T) {
		blobs.removeErr = errors.New("r2 down")
		defer func() { blobs.removeErr = nil }()
		assert.ErrorIs(t, svc.Delete(ctx, "u1", view.ID), ErrUpstream)
		list, err := svc.List(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("删除后不可访问", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, "u1", view.ID))
		_, err := svc.Open(ctx, "U123/a.txt")
		assert.ErrorIs(t, err, ErrFileNotFound)

		list, err := svc.List(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, list)
		assert.False(t, blobs.has("U123/a.txt"))
	})

	t.Run("未知文件", func(t *testing.T) {
		_, err := svc.Open(ctx, "U999/missing.txt")
		assert.ErrorIs(t, err, ErrFileNotFound)
	})
}
