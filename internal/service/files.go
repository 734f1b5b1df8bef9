package service

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/monitoring"
	"furrydomains/backend/internal/objectstore"
	"furrydomains/backend/internal/pool"
	"furrydomains/backend/internal/security"
	"furrydomains/backend/internal/storage"
)

var (
	// ErrFileExists 同名文件已存在
	ErrFileExists = errors.New("file already exists")
	// ErrFileNotFound 文件不存在、已删除或不属于当前租户
	ErrFileNotFound = errors.New("file not found")
	// ErrFilenameRequired 未提供文件名
	ErrFilenameRequired = errors.New("filename is required")
)

// FileConflictError 携带已存在的同名文件
type FileConflictError struct {
	Existing *domain.FileAsset
	URL      string
}

func (e *FileConflictError) Error() string {
	return fmt.Sprintf("%s: %s", ErrFileExists, e.Existing.Filename)
}

// Is 使 errors.Is(err, ErrFileExists) 成立
func (e *FileConflictError) Is(target error) bool {
	return target == ErrFileExists
}

// TaskSubmitter 异步任务队列
type TaskSubmitter interface {
	TrySubmit(task pool.Task) bool
}

// FileService 管理 CDN 文件：元数据在数据库，内容在对象存储
type FileService struct {
	repo    storage.FileAssetRepository
	blobs   BlobStore
	policy  *security.UploadPolicy
	tasks   TaskSubmitter
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewFileService 创建文件服务；tasks 为 nil 时同步记录访问量
func NewFileService(
	repo storage.FileAssetRepository,
	blobs BlobStore,
	policy *security.UploadPolicy,
	tasks TaskSubmitter,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *FileService {
	return &FileService{
		repo:    repo,
		blobs:   blobs,
		policy:  policy,
		tasks:   tasks,
		metrics: metrics,
		log:     log,
	}
}

// FileView 返回给客户端的文件信息
type FileView struct {
	*domain.FileAsset
	URL string `json:"url"`
}

// View 附带公开访问地址
func (s *FileService) View(asset *domain.FileAsset) *FileView {
	return &FileView{FileAsset: asset, URL: s.blobs.PublicURL(asset.Key)}
}

// List 返回租户未删除的文件
func (s *FileService) List(ctx context.Context, userID string) ([]*FileView, error) {
	assets, err := s.repo.ListFileAssetsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	views := make([]*FileView, 0, len(assets))
	for _, a := range assets {
		views = append(views, s.View(a))
	}
	return views, nil
}

// Stats 返回租户的用量统计
func (s *FileService) Stats(ctx context.Context, userID string) (*domain.FileStats, error) {
	return s.repo.FileStatsByUser(ctx, userID)
}

// UploadInput 上传输入；Owner 为对象 key 的前缀（Slack ID）
type UploadInput struct {
	UserID      string
	Owner       string
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader // 仅代理上传使用
}

// PresignedUpload 预签名上传结果
type PresignedUpload struct {
	File      *FileView `json:"file"`
	UploadURL string    `json:"uploadUrl"`
	ExpiresIn int       `json:"expiresIn"`
}

// PresignUpload 先预留元数据，再生成预签名 PUT 地址；签名失败时删除预留的元数据
func (s *FileService) PresignUpload(ctx context.Context, in UploadInput, expiry time.Duration) (*PresignedUpload, error) {
	asset, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	contentType, err := s.policy.Check(asset.Filename, in.ContentType, in.Size, nil)
	if err != nil {
		return nil, err
	}
	asset.ContentType = contentType

	if err := s.repo.CreateFileAsset(ctx, asset); err != nil {
		return nil, s.conflictOrErr(ctx, asset.Key, err)
	}

	uploadURL, err := s.blobs.PresignPut(ctx, asset.Key)
	if err != nil {
		if purgeErr := s.repo.PurgeFileAsset(ctx, asset.ID); purgeErr != nil {
			s.log.Error("failed to release reserved file", zap.String("key", asset.Key), zap.Error(purgeErr))
		}
		return nil, upstream("presign upload", err)
	}

	s.recordUpload("presigned")
	return &PresignedUpload{
		File:      s.View(asset),
		UploadURL: uploadURL,
		ExpiresIn: int(expiry.Seconds()),
	}, nil
}

// ProxyUpload 校验并把内容写入对象存储，成功后保存元数据
//
// 写入后插入元数据时遇到并发的同名上传视为成功。
func (s *FileService) ProxyUpload(ctx context.Context, in UploadInput) (*FileView, error) {
	asset, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	if err := s.policy.CheckSize(in.Size); err != nil {
		return nil, err
	}

	br := bufio.NewReaderSize(in.Body, 512)
	head, _ := br.Peek(512)
	contentType, err := s.policy.Check(asset.Filename, in.ContentType, in.Size, head)
	if err != nil {
		return nil, err
	}
	asset.ContentType = contentType

	hasher, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	body := io.TeeReader(br, hasher)
	if err := s.blobs.Put(ctx, asset.Key, body, in.Size, contentType); err != nil {
		return nil, upstream("upload object", err)
	}
	asset.Hash = hex.EncodeToString(hasher.Sum(nil))

	if err := s.repo.CreateFileAsset(ctx, asset); err != nil {
		if !errors.Is(err, storage.ErrDuplicate) {
			return nil, err
		}
		existing, getErr := s.repo.GetFileAssetByKey(ctx, asset.Key)
		if getErr != nil {
			return nil, getErr
		}
		s.log.Info("concurrent upload of same file", zap.String("key", asset.Key))
		return s.View(existing), nil
	}

	s.recordUpload("proxy")
	s.log.Info("file uploaded",
		zap.String("user_id", in.UserID),
		zap.String("key", asset.Key),
		zap.Int64("size", asset.Size))
	return s.View(asset), nil
}

// prepare 校验文件名并检查同名文件；已删除的同名记录会被清除
func (s *FileService) prepare(ctx context.Context, in UploadInput) (*domain.FileAsset, error) {
	if strings.TrimSpace(in.Filename) == "" {
		return nil, ErrFilenameRequired
	}
	filename, err := security.SanitizeFilename(in.Filename)
	if err != nil {
		return nil, err
	}
	owner := in.Owner
	if owner == "" {
		owner = in.UserID
	}
	key := domain.FileKey(owner, filename)

	existing, err := s.repo.GetFileAssetByKey(ctx, key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, err
	case !existing.Deleted:
		return nil, &FileConflictError{Existing: existing, URL: s.blobs.PublicURL(key)}
	default:
		if err := s.repo.PurgeFileAsset(ctx, existing.ID); err != nil {
			return nil, err
		}
	}

	return &domain.FileAsset{
		ID:         uuid.NewString(),
		UserID:     in.UserID,
		Key:        key,
		Filename:   filename,
		Extension:  domain.FileExtension(filename),
		Size:       in.Size,
		UploadedAt: time.Now().UTC(),
	}, nil
}

func (s *FileService) conflictOrErr(ctx context.Context, key string, err error) error {
	if !errors.Is(err, storage.ErrDuplicate) {
		return err
	}
	existing, getErr := s.repo.GetFileAssetByKey(ctx, key)
	if getErr != nil {
		return ErrFileExists
	}
	return &FileConflictError{Existing: existing, URL: s.blobs.PublicURL(key)}
}

// Delete 先删除对象，再软删除元数据
func (s *FileService) Delete(ctx context.Context, userID, fileID string) error {
	asset, err := s.repo.GetFileAsset(ctx, fileID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrFileNotFound
		}
		return err
	}
	if asset.UserID != userID || asset.Deleted {
		return ErrFileNotFound
	}

	if err := s.blobs.Remove(ctx, asset.Key); err != nil {
		return upstream("remove object", err)
	}
	if err := s.repo.MarkFileAssetDeleted(ctx, asset.ID, time.Now().UTC()); err != nil {
		return err
	}
	s.log.Info("file deleted", zap.String("user_id", userID), zap.String("key", asset.Key))
	return nil
}

// Open 打开文件内容用于 CDN 输出，并异步记录访问量与流量
func (s *FileService) Open(ctx context.Context, key string) (*objectstore.Object, error) {
	key = strings.TrimPrefix(key, "/")
	asset, err := s.repo.GetFileAssetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	if asset.Deleted {
		return nil, ErrFileNotFound
	}

	obj, err := s.blobs.Get(ctx, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, upstream("get object", err)
	}

	s.recordView(key, obj.Size)
	return obj, nil
}

func (s *FileService) recordView(key string, size int64) {
	if s.metrics != nil {
		s.metrics.FileBytesServed.Add(float64(size))
	}
	task := func(ctx context.Context) {
		if err := s.repo.RecordFileView(ctx, key, size, time.Now().UTC()); err != nil {
			s.log.Warn("failed to record file view", zap.String("key", key), zap.Error(err))
		}
	}
	if s.tasks == nil {
		task(context.Background())
		return
	}
	if !s.tasks.TrySubmit(task) {
		s.log.Warn("view accounting queue full, dropping", zap.String("key", key))
	}
}

func (s *FileService) recordUpload(mode string) {
	if s.metrics != nil {
		s.metrics.FilesUploaded.WithLabelValues(mode).Inc()
	}
}
