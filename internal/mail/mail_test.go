package mail

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"io"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"furrydomains/backend/internal/config"
	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/monitoring"
)

func TestBuildMessage(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("纯文本", func(t *testing.T) {
		data, err := buildMessage(&OutboundMessage{
			From: "fox@hackclubber.dev", To: []string{"a@example.com"}, Subject: "Hi", Text: "hello",
		}, "id-1@hackclubber.dev", now)
		require.NoError(t, err)

		s := string(data)
		assert.Contains(t, s, "Message-ID: <id-1@hackclubber.dev>\r\n")
		assert.Contains(t, s, "Content-Type: text/plain; charset=utf-8")
		assert.True(t, strings.HasSuffix(s, "\r\n\r\nhello"))
	})

	t.Run("HTML 与附件", func(t *testing.T) {
		data, err := buildMessage(&OutboundMessage{
			From: "fox@hackclubber.dev", To: []string{"a@example.com", "b@example.com"}, Subject: "Hällo",
			Text: "plain", HTML: "<b>rich</b>",
			Attachments: []*domain.Attachment{{Filename: "a.txt", ContentType: "text/plain", Content: []byte("abc")}},
		}, "id-2@hackclubber.dev", now)
		require.NoError(t, err)

		s := string(data)
		assert.Contains(t, s, "To: a@example.com, b@example.com")
		assert.Contains(t, s, "Subject: =?utf-8?q?")
		assert.Contains(t, s, "multipart/mixed")
		assert.Contains(t, s, "multipart/alternative")
		assert.Contains(t, s, "<b>rich</b>")
		assert.Contains(t, s, `filename=a.txt`)
		assert.Contains(t, s, "YWJj") // base64("abc")
	})
}

func signWebhook(key, timestamp, token string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(timestamp + token))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookVerifier(t *testing.T) {
	key := "webhook-signing-key"
	v := NewWebhookVerifier(config.MailConfig{MailgunDomain: "mg.example.com", MailgunAPIKey: "api-key", WebhookSigningKey: key})
	valid := signWebhook(key, "1700000000", "token-1")

	tests := []struct {
		name      string
		timestamp string
		token     string
		signature string
		wantErr   bool
	}{
		{name: "有效签名", timestamp: "1700000000", token: "token-1", signature: valid},
		{name: "篡改 token", timestamp: "1700000000", token: "token-2", signature: valid, wantErr: true},
		{name: "缺少签名", timestamp: "1700000000", token: "token-1", wantErr: true},
		{name: "用 API key 签名", timestamp: "1700000000", token: "token-1", signature: signWebhook("api-key", "1700000000", "token-1"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(tt.timestamp, tt.token, tt.signature)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidWebhookSignature)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWebhookVerifierFallsBackToAPIKey(t *testing.T) {
	v := NewWebhookVerifier(config.MailConfig{MailgunDomain: "mg.example.com", MailgunAPIKey: "api-key"})
	assert.NoError(t, v.Verify("1700000000", "token-1", signWebhook("api-key", "1700000000", "token-1")))
	assert.ErrorIs(t, v.Verify("1700000000", "token-1", signWebhook("other", "1700000000", "token-1")), ErrInvalidWebhookSignature)
}

func TestParseInbound(t *testing.T) {
	form := map[string]string{
		"sender":           "Fox <Fox@Example.com>",
		"recipient":        "Me@Hackclubber.dev, other@hackclubber.dev",
		"subject":          "Hello",
		"body-plain":       "text",
		"body-html":        "<p>text</p>",
		"Message-Id":       "<abc@example.com>",
		"attachment-count": "2",
	}
	get := func(k string) string { return form[k] }

	in := ParseInbound(get)
	assert.Equal(t, "Fox@Example.com", in.Sender)
	assert.Equal(t, "me@hackclubber.dev", in.Recipient)
	assert.Equal(t, "abc@example.com", in.MessageID)
	assert.Equal(t, 2, AttachmentCount(get))
}

func TestMailgunTransport(t *testing.T) {
	var gotPath, gotFrom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = r.ParseMultipartForm(1 << 20)
		gotFrom = r.FormValue("from")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"<20240101.abc@mg.example.com>","message":"Queued. Thank you."}`))
	}))
	defer server.Close()

	tr := NewMailgunTransport(config.MailConfig{
		MailgunDomain:  "mg.example.com",
		MailgunAPIKey:  "key-test",
		MailgunAPIBase: server.URL + "/v3",
	}, monitoring.NopObserver, zap.NewNop())

	id, err := tr.Send(t.Context(), &OutboundMessage{From: "fox@hackclubber.dev", To: []string{"a@example.com"}, Subject: "Hi", Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "20240101.abc@mg.example.com", id)
	assert.Equal(t, "/v3/mg.example.com/messages", gotPath)
	assert.Equal(t, "fox@hackclubber.dev", gotFrom)
}

// 记录收到邮件的测试 SMTP 中继
type relayBackend struct {
	mu       sync.Mutex
	from     string
	to       []string
	data     string
	username string
}

func (b *relayBackend) NewSession(*smtp.Conn) (smtp.Session, error) {
	return &relaySession{b: b}, nil
}

type relaySession struct{ b *relayBackend }

func (s *relaySession) AuthMechanisms() []string { return []string{sasl.Plain} }

func (s *relaySession) Auth(string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(identity, username, password string) error {
		if password != "secret" {
			return smtp.ErrAuthFailed
		}
		s.b.mu.Lock()
		s.b.username = username
		s.b.mu.Unlock()
		return nil
	}), nil
}

func (s *relaySession) Mail(from string, _ *smtp.MailOptions) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.from = from
	return nil
}

func (s *relaySession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.to = append(s.b.to, to)
	return nil
}

func (s *relaySession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	s.b.data = string(data)
	return nil
}

func (s *relaySession) Reset() {}

func (s *relaySession) Logout() error { return nil }

// selfSignedTLS 生成 127.0.0.1 的自签名证书，返回服务端配置与信任该证书的客户端配置
func selfSignedTLS(t *testing.T) (*tls.Config, *tls.Config) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "relay.test"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pool := x509.NewCertPool()
	pool.AddCert(cert)
	server := &tls.Config{Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}}}
	client := &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	return server, client
}

// startRelay 启动测试 SMTP 中继；tlsConfig 非空时通告 STARTTLS
func startRelay(t *testing.T, tlsConfig *tls.Config) (*relayBackend, string) {
	t.Helper()
	backend := &relayBackend{}
	server := smtp.NewServer(backend)
	server.Domain = "localhost"
	server.TLSConfig = tlsConfig
	server.AllowInsecureAuth = tlsConfig == nil

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = server.Serve(l) }()
	t.Cleanup(func() { _ = server.Close() })
	return backend, l.Addr().String()
}

func TestRelayTransport(t *testing.T) {
	send := func(t *testing.T, tr *RelayTransport) (string, error) {
		return tr.Send(t.Context(), &OutboundMessage{
			From: "fox@hackclubber.dev", To: []string{"a@example.com"}, Subject: "Hi", Text: "hello",
		})
	}

	t.Run("STARTTLS 升级后认证并签名", func(t *testing.T) {
		serverTLS, clientTLS := selfSignedTLS(t)
		backend, addr := startRelay(t, serverTLS)

		tr, err := NewRelayTransport(config.MailConfig{
			Domain:        "hackclubber.dev",
			RelayAddr:     addr,
			RelayUsername: "relay-user",
			RelayPassword: "secret",
		}, monitoring.NopObserver, zap.NewNop())
		require.NoError(t, err)

		key, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		tr.WithSigner(NewSigner(key, "hackclubber.dev", "mail")).WithTLSConfig(clientTLS)

		id, err := send(t, tr)
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(id, "@hackclubber.dev"))

		backend.mu.Lock()
		defer backend.mu.Unlock()
		assert.Equal(t, "relay-user", backend.username)
		assert.Equal(t, "fox@hackclubber.dev", backend.from)
		assert.Equal(t, []string{"a@example.com"}, backend.to)
		assert.Contains(t, backend.data, "DKIM-Signature:")
		assert.Contains(t, backend.data, "Message-ID: <"+id+">")
	})

	t.Run("中继不支持 STARTTLS 时拒绝明文发送", func(t *testing.T) {
		backend, addr := startRelay(t, nil)
		tr, err := NewRelayTransport(config.MailConfig{
			Domain: "hackclubber.dev", RelayAddr: addr, RelayUsername: "relay-user", RelayPassword: "secret",
		}, monitoring.NopObserver, zap.NewNop())
		require.NoError(t, err)

		_, err = send(t, tr)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "STARTTLS")

		backend.mu.Lock()
		defer backend.mu.Unlock()
		assert.Empty(t, backend.from)
	})

	t.Run("显式关闭 TLS 使用明文中继", func(t *testing.T) {
		backend, addr := startRelay(t, nil)
		tr, err := NewRelayTransport(config.MailConfig{
			Domain: "hackclubber.dev", RelayAddr: addr, RelayUsername: "relay-user", RelayPassword: "secret", RelayInsecure: true,
		}, monitoring.NopObserver, zap.NewNop())
		require.NoError(t, err)

		_, err = send(t, tr)
		require.NoError(t, err)

		backend.mu.Lock()
		defer backend.mu.Unlock()
		assert.Equal(t, "relay-user", backend.username)
		assert.Equal(t, []string{"a@example.com"}, backend.to)
	})
}

func TestNewTransport(t *testing.T) {
	_, err := NewTransport(config.MailConfig{Transport: "carrier-pigeon"}, nil, zap.NewNop())
	assert.ErrorIs(t, err, ErrUnknownTransport)

	_, err = NewTransport(config.MailConfig{Transport: "smtp"}, nil, zap.NewNop())
	assert.Error(t, err)
}
