package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"furrydomains/backend/internal/config"
	"furrydomains/backend/internal/monitoring"
)

const (
	defaultAPIBase = "https://api.cloudflare.com/client/v4"
	defaultTimeout = 10 * time.Second
	perPage        = 100
)

// APIError Cloudflare 返回的失败响应
type APIError struct {
	StatusCode int
	Errors     []ResponseError
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cloudflare API error (status %d): %s", e.StatusCode, formatErrors(e.Errors))
}

// ResponseError 单条错误
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type envelope struct {
	Success bool            `json:"success"`
	Errors  []ResponseError `json:"errors"`
	Result  json.RawMessage `json:"result"`
}

// Client Cloudflare API 客户端，同时实现 DNS 与邮件路由接口
type Client struct {
	baseURL   string
	accountID string
	apiToken  string
	proxied   bool
	http      *http.Client
	observer  monitoring.UpstreamObserver
	log       *zap.Logger
}

// NewClient 创建 Cloudflare 客户端
func NewClient(cfg config.CloudflareConfig, observer monitoring.UpstreamObserver, log *zap.Logger) *Client {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	if base == "" {
		base = defaultAPIBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if observer == nil {
		observer = monitoring.NopObserver
	}
	return &Client{
		baseURL:   base,
		accountID: cfg.AccountID,
		apiToken:  cfg.APIToken,
		proxied:   cfg.Proxied,
		http:      &http.Client{Timeout: timeout},
		observer:  observer,
		log:       log,
	}
}

// do 发送请求并把 result 解码到 out
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out interface{}) (err error) {
	start := time.Now()
	defer func() { c.observer.ObserveUpstream("cloudflare", op, start, err) }()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Success || resp.StatusCode >= http.StatusBadRequest {
		c.log.Warn("cloudflare request failed",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.String("errors", formatErrors(env.Errors)),
		)
		return &APIError{StatusCode: resp.StatusCode, Errors: env.Errors}
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return fmt.Errorf("failed to parse result: %w", err)
		}
	}
	return nil
}

// formatErrors formats Cloudflare API errors into a readable string
func formatErrors(errs []ResponseError) string {
	if len(errs) == 0 {
		return "unknown error"
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, fmt.Sprintf("[%d] %s", e.Code, e.Message))
	}
	return strings.Join(msgs, "; ")
}
