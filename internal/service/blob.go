package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"

	"furrydomains/backend/internal/objectstore"
)

// BlobStore 对象存储（R2/S3）
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (*objectstore.Object, error)
	Remove(ctx context.Context, key string) error
	PresignPut(ctx context.Context, key string) (string, error)
	PublicURL(key string) string
}

// randomHex 返回 n 字节随机数的十六进制表示
func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
