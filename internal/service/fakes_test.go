package service

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"furrydomains/backend/internal/objectstore"
)

// memoryBlobs 内存中的对象存储
type memoryBlobs struct {
	mu         sync.Mutex
	objects    map[string][]byte
	types      map[string]string
	putErr     error
	presignErr error
	removeErr  error
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{objects: map[string][]byte{}, types: map[string]string{}}
}

func (b *memoryBlobs) Put(_ context.Context, key string, body io.Reader, _ int64, contentType string) error {
	if b.putErr != nil {
		return b.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	b.types[key] = contentType
	return nil
}

func (b *memoryBlobs) Get(_ context.Context, key string) (*objectstore.Object, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, objectstore.ErrObjectNotFound
	}
	return &objectstore.Object{
		Body:         io.NopCloser(bytes.NewReader(data)),
		ContentType:  b.types[key],
		Size:         int64(len(data)),
		LastModified: time.Now(),
	}, nil
}

func (b *memoryBlobs) Remove(_ context.Context, key string) error {
	if b.removeErr != nil {
		return b.removeErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *memoryBlobs) PresignPut(_ context.Context, key string) (string, error) {
	if b.presignErr != nil {
		return "", b.presignErr
	}
	return "https://r2.example.com/bucket/" + key + "?X-Amz-Expires=3600", nil
}

func (b *memoryBlobs) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func (b *memoryBlobs) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}
