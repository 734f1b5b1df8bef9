package httptransport

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"furrydomains/backend/internal/config"
	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/middleware"
	"furrydomains/backend/internal/security"
	"furrydomains/backend/internal/service"
	"furrydomains/backend/internal/storage/memory"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

// asUser 模拟已通过 JWT 认证的请求
func asUser(userID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, userID)
		c.Set(middleware.ContextName, "Fox")
		c.Set(middleware.ContextSlackID, "U"+userID)
		c.Next()
	}
}

func jsonRequest(method, path string, body any) *http.Request {
	raw, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"上游失败", fmt.Errorf("create record: %w", service.ErrUpstream), http.StatusInternalServerError},
		{"冷却期", service.ErrAccessCooldown, http.StatusTooManyRequests},
		{"文件过大", security.ErrFileTooLarge, http.StatusRequestEntityTooLarge},
		{"文件类型", security.ErrFileTypeNotAllowed, http.StatusUnsupportedMediaType},
		{"域名被占用", service.ErrDomainTaken, http.StatusConflict},
		{"同名文件", &service.FileConflictError{Existing: &domain.FileAsset{}}, http.StatusConflict},
		{"自身链接", service.ErrSelfLink, http.StatusForbidden},
		{"webmail 未开通", service.ErrWebmailLocked, http.StatusForbidden},
		{"收件箱不存在", service.ErrInboxNotFound, http.StatusNotFound},
		{"邮箱格式", domain.ErrInvalidEmail, http.StatusBadRequest},
		{"未知错误", errors.New("boom"), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestGetErrorMessage(t *testing.T) {
	assert.Equal(t, "该域名已被其他用户认领", GetErrorMessage(service.ErrDomainTaken))
	assert.Equal(t, "该域名已被其他用户认领", GetErrorMessage(fmt.Errorf("wrapped: %w", service.ErrDomainTaken)))
	assert.Equal(t, "boom", GetErrorMessage(errors.New("boom")))
}

func newLinkRouter() *gin.Engine {
	links := service.NewLinkService(memory.NewStore(), config.LinksConfig{
		Host:    "furry.ink",
		BaseURL: "https://furry.ink",
	}, nil, zap.NewNop())
	h := NewLinkHandler(links, zap.NewNop())

	router := gin.New()
	router.GET("/l/:code", h.Resolve)
	router.NoRoute(h.NoRoute)
	for _, user := range []string{"alice", "bob"} {
		g := router.Group("/" + user + "/v1", asUser(user))
		g.GET("/links", h.List)
		g.POST("/links", h.Shorten)
		g.DELETE("/links/:code", h.Delete)
	}
	return router
}

func TestLinkHandler(t *testing.T) {
	router := newLinkRouter()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/alice/v1/links", gin.H{"destination": "https://example.com/a"}))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created service.ShortenResult
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &created))
	require.Len(t, created.ShortCode, 6)
	assert.Equal(t, "https://furry.ink/"+created.ShortCode, created.ShortURL)

	t.Run("跳转", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/l/"+created.ShortCode, nil))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "https://example.com/a", rec.Header().Get("Location"))
	})

	t.Run("根路径短码跳转", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/"+created.ShortCode, nil))
		assert.Equal(t, http.StatusFound, rec.Code)
	})

	t.Run("未知路径", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/not/a/route", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("不存在的短码", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/l/zzzzzz", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("指向本站的链接", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/alice/v1/links", gin.H{"destination": "https://furry.ink/x"}))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("缺少目标地址", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/alice/v1/links", gin.H{}))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "缺少目标地址", decode(t, rec).Msg)
	})

	t.Run("不能删除他人的链接", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/bob/v1/links/"+created.ShortCode, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("删除自己的链接", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/alice/v1/links/"+created.ShortCode, nil))
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/alice/v1/links", nil))
		assert.JSONEq(t, `[]`, string(decode(t, rec).Data))
	})
}

func TestFeedbackHandler(t *testing.T) {
	store := memory.NewStore()
	h := NewProfileHandler(service.NewProfileService(store), service.NewFeedbackService(store), zap.NewNop())
	router := gin.New()
	router.Use(asUser("alice"))
	router.GET("/v1/feedback", h.ListFeedback)
	router.POST("/v1/feedback", h.SubmitFeedback)

	tests := []struct {
		name string
		body gin.H
		code int
		msg  string
	}{
		{"缺少内容", gin.H{"rating": 5}, http.StatusBadRequest, "请填写评分和反馈内容"},
		{"评分越界", gin.H{"rating": 6, "feedback": strings.Repeat("好", 30)}, http.StatusBadRequest, "评分必须在1到5之间"},
		{"内容过短", gin.H{"rating": 4, "feedback": "too short"}, http.StatusBadRequest, "反馈内容至少20个字符"},
		{"提交成功", gin.H{"rating": 4, "feedback": "the dns editor works really well", "path": "/domains"}, http.StatusCreated, "感谢您的反馈"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, jsonRequest(http.MethodPost, "/v1/feedback", tt.body))
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.msg, decode(t, rec).Msg)
		})
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/feedback", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var items []*domain.Feedback
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "/domains", items[0].Path)
}

type recordingNotifier struct {
	posted []*domain.AccessRequest
}

func (n *recordingNotifier) PostAccessRequest(_ context.Context, req *domain.AccessRequest) error {
	n.posted = append(n.posted, req)
	return nil
}

func (n *recordingNotifier) NotifyRequester(context.Context, string, domain.AccessStatus) error {
	return nil
}

func (n *recordingNotifier) UpdateDecisionMessage(context.Context, string, string, string, domain.AccessStatus) error {
	return nil
}

func TestAccessHandler(t *testing.T) {
	notifier := &recordingNotifier{}
	access := service.NewAccessService(memory.NewStore(), notifier, config.AccessConfig{}, "UADMIN", nil, zap.NewNop())
	h := NewAccessHandler(access, zap.NewNop())

	router := gin.New()
	router.Use(asUser("alice"))
	router.POST("/v1/access/request", h.Request)
	router.GET("/v1/access/status", h.Status)
	router.GET("/v1/inboxes", h.RequireWebmail(), func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("没有申请时状态为空", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/access/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":null}`, string(decode(t, rec).Data))
	})

	t.Run("提交申请", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/access/request", nil))
		assert.Equal(t, http.StatusCreated, rec.Code)
		require.Len(t, notifier.posted, 1)
		assert.Equal(t, "Ualice", notifier.posted[0].SlackUserID)
	})

	t.Run("冷却期内再次申请", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/access/request", nil))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Len(t, notifier.posted, 1)
	})

	t.Run("未审批时无法使用 webmail", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/inboxes", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func slackSign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestSlackEvents(t *testing.T) {
	const secret = "slack-signing-secret"
	access := service.NewAccessService(memory.NewStore(), &recordingNotifier{}, config.AccessConfig{}, "UADMIN", nil, zap.NewNop())
	h := NewSlackHandler(access, secret, zap.NewNop())
	router := gin.New()
	router.POST("/slack/events", h.Events)

	body := []byte(`{"token":"t","challenge":"abc123","type":"url_verification"}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	t.Run("签名错误", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader(body))
		req.Header.Set("X-Slack-Request-Timestamp", ts)
		req.Header.Set("X-Slack-Signature", slackSign("wrong", ts, body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("URL 验证", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader(body))
		req.Header.Set("X-Slack-Request-Timestamp", ts)
		req.Header.Set("X-Slack-Signature", slackSign(secret, ts, body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"challenge":"abc123"}`, rec.Body.String())
	})

	t.Run("没有 event 的事件回调", func(t *testing.T) {
		callback := []byte(`{"token":"t","type":"event_callback"}`)
		req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader(callback))
		req.Header.Set("X-Slack-Request-Timestamp", ts)
		req.Header.Set("X-Slack-Signature", slackSign(secret, ts, callback))
		rec := httptest.NewRecorder()
		require.NotPanics(t, func() { router.ServeHTTP(rec, req) })
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestCORSConfig(t *testing.T) {
	t.Run("允许所有来源时关闭凭证", func(t *testing.T) {
		cfg := corsConfig([]string{"*"})
		assert.True(t, cfg.AllowAllOrigins)
		assert.False(t, cfg.AllowCredentials)
	})

	t.Run("指定来源", func(t *testing.T) {
		cfg := corsConfig([]string{"https://furrydomains.dev"})
		assert.Equal(t, []string{"https://furrydomains.dev"}, cfg.AllowOrigins)
		assert.True(t, cfg.AllowCredentials)
	})
}
