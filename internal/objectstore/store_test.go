package objectstore

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"furrydomains/backend/internal/config"
)

func testConfig(endpoint string) config.ObjectStoreConfig {
	return config.ObjectStoreConfig{
		Endpoint:        endpoint,
		AccessKeyID:     "access",
		SecretAccessKey: "secret",
		Bucket:          "cdn-bucket",
		Region:          "auto",
		PresignExpiry:   time.Hour,
		PublicBaseURL:   "https://cdn.example.com/",
	}
}

func TestNew(t *testing.T) {
	t.Run("缺少配置", func(t *testing.T) {
		_, err := New(config.ObjectStoreConfig{}, nil, zap.NewNop())
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("去掉协议前缀", func(t *testing.T) {
		s, err := New(testConfig("https://acct.r2.cloudflarestorage.com"), nil, zap.NewNop())
		require.NoError(t, err)
		assert.Equal(t, "acct.r2.cloudflarestorage.com", s.client.EndpointURL().Host)
		assert.Equal(t, time.Hour, s.PresignExpiry())
	})
}

func TestStore_PresignPut(t *testing.T) {
	s, err := New(testConfig("localhost:9000"), nil, zap.NewNop())
	require.NoError(t, err)

	raw, err := s.PresignPut(t.Context(), "U123/a.txt")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/cdn-bucket/U123/a.txt", u.Path)
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestStore_PublicURL(t *testing.T) {
	s, err := New(testConfig("localhost:9000"), nil, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, "https://cdn.example.com/U123/my%20file.txt", s.PublicURL("U123/my file.txt"))

	s.publicBaseURL = ""
	assert.Empty(t, s.PublicURL("U123/a.txt"))
}

func TestStore_PutAndRemove(t *testing.T) {
	var (
		mu       sync.Mutex
		requests []string
		bodies   []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, r.Method+" "+r.URL.Path)
		bodies = append(bodies, string(body))
		mu.Unlock()

		switch r.Method {
		case http.MethodPut:
			w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	defer server.Close()

	cfg := testConfig(strings.TrimPrefix(server.URL, "http://"))
	s, err := New(cfg, nil, zap.NewNop())
	require.NoError(t, err)

	content := "hello world"
	require.NoError(t, s.Put(t.Context(), "U123/a.txt", strings.NewReader(content), int64(len(content)), "text/plain"))
	require.NoError(t, s.Remove(t.Context(), "U123/a.txt"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"PUT /cdn-bucket/U123/a.txt", "DELETE /cdn-bucket/U123/a.txt"}, requests)
	assert.Contains(t, bodies[0], content)
}
