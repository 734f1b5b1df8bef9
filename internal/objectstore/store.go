package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"furrydomains/backend/internal/config"
	"furrydomains/backend/internal/monitoring"
)

const (
	serviceName          = "objectstore"
	defaultPresignExpiry = time.Hour
	defaultContentType   = "application/octet-stream"
)

var (
	// ErrNotConfigured 未配置对象存储
	ErrNotConfigured = errors.New("object store not configured")
	// ErrObjectNotFound 对象不存在
	ErrObjectNotFound = errors.New("object not found")
)

// Object 读取到的对象，调用方负责关闭 Body
type Object struct {
	Body         io.ReadCloser
	ContentType  string
	Size         int64
	LastModified time.Time
}

// Store S3 兼容对象存储（Cloudflare R2）
type Store struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
	presignExpiry time.Duration
	observer      monitoring.UpstreamObserver
	log           *zap.Logger
}

// New 创建对象存储客户端
//
// R2 只支持 path-style 访问，region 固定为 "auto"。
func New(cfg config.ObjectStoreConfig, observer monitoring.UpstreamObserver, log *zap.Logger) (*Store, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	endpoint := strings.TrimPrefix(strings.TrimPrefix(cfg.Endpoint, "https://"), "http://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       cfg.UseSSL,
		Region:       region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	if observer == nil {
		observer = monitoring.NopObserver
	}

	log.Info("object store configured",
		zap.String("endpoint", endpoint),
		zap.String("bucket", cfg.Bucket))

	return &Store{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
		presignExpiry: expiry,
		observer:      observer,
		log:           log,
	}, nil
}

// Put 上传对象，size 未知时传 -1
func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (err error) {
	defer func(start time.Time) { s.observer.ObserveUpstream(serviceName, "put", start, err) }(time.Now())

	if contentType == "" {
		contentType = defaultContentType
	}
	_, err = s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Get 读取对象内容
func (s *Store) Get(ctx context.Context, key string) (obj *Object, err error) {
	defer func(start time.Time) { s.observer.ObserveUpstream(serviceName, "get", start, err) }(time.Now())

	o, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	// GetObject 是惰性的，Stat 才会真正发出请求
	info, err := o.Stat()
	if err != nil {
		_ = o.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrObjectNotFound
		}
		return nil, fmt.Errorf("stat object %s: %w", key, err)
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = defaultContentType
	}
	return &Object{
		Body:         o,
		ContentType:  contentType,
		Size:         info.Size,
		LastModified: info.LastModified,
	}, nil
}

// Remove 删除对象；对象不存在时 S3 同样返回成功
func (s *Store) Remove(ctx context.Context, key string) (err error) {
	defer func(start time.Time) { s.observer.ObserveUpstream(serviceName, "remove", start, err) }(time.Now())

	if err = s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

// PresignPut 生成带签名的 PUT 上传地址
func (s *Store) PresignPut(ctx context.Context, key string) (u string, err error) {
	defer func(start time.Time) { s.observer.ObserveUpstream(serviceName, "presign", start, err) }(time.Now())

	signed, err := s.client.PresignedPutObject(ctx, s.bucket, key, s.presignExpiry)
	if err != nil {
		return "", fmt.Errorf("presign put %s: %w", key, err)
	}
	return signed.String(), nil
}

// PublicURL 返回对象的公开访问地址；未配置公开域名时返回空字符串
func (s *Store) PublicURL(key string) string {
	if s.publicBaseURL == "" {
		return ""
	}
	return s.publicBaseURL + "/" + escapeKey(key)
}

// PresignExpiry 签名地址有效期
func (s *Store) PresignExpiry() time.Duration {
	return s.presignExpiry
}

// escapeKey 逐段转义，保留 key 中的 "/"
func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
