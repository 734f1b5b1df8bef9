package service

import (
	"errors"
	"fmt"
)

// 跨服务共用的错误
var (
	// ErrUpstream 外部服务调用失败，不重试
	ErrUpstream = errors.New("upstream service failed")
	// ErrForbidden 无权访问该资源
	ErrForbidden = errors.New("forbidden")
)

// upstream 用 ErrUpstream 包装外部服务错误，保留原始错误链
func upstream(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrUpstream, op, err)
}
