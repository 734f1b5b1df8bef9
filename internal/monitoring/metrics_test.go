package monitoring

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	// 每个实例使用独立注册表，可以重复创建
	m := NewMetrics()
	_ = NewMetrics()

	t.Run("外部调用按结果分类", func(t *testing.T) {
		m.ObserveUpstream("cloudflare", "create_record", time.Now(), nil)
		m.ObserveUpstream("cloudflare", "create_record", time.Now(), errors.New("boom"))
		m.ObserveUpstream("cloudflare", "create_record", time.Now(), nil)

		assert.Equal(t, 2.0, testutil.ToFloat64(m.UpstreamCalls.WithLabelValues("cloudflare", "create_record", "ok")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamCalls.WithLabelValues("cloudflare", "create_record", "error")))
	})

	t.Run("HTTP 请求计数", func(t *testing.T) {
		m.RecordHTTPRequest("GET", "/v1/domains", "200", 10*time.Millisecond)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/v1/domains", "200")))
	})

	t.Run("暴露指标", func(t *testing.T) {
		m.RecordDNSChange("create", "A")
		rec := httptest.NewRecorder()
		m.HTTPHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "furrydomains_dns_record_changes_total")
	})
}
