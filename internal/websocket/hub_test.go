package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"furrydomains/backend/internal/auth/jwt"
	"furrydomains/backend/internal/domain"
	"furrydomains/backend/internal/monitoring"
)

type failingRelay struct{ calls int }

func (r *failingRelay) Publish(context.Context, string, *domain.Message) error {
	r.calls++
	return errors.New("redis down")
}

func setupHub(t *testing.T) (*Hub, *jwt.Manager, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := jwt.NewManager("test-secret", "furrydomains", time.Hour)
	hub := NewHub(tokens, nil, monitoring.NewMetrics(), zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	router := gin.New()
	router.GET("/v1/ws", HandleWebSocket(hub))
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, tokens, "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"
}

func dial(t *testing.T, tokens *jwt.Manager, url, userID string) *websocket.Conn {
	t.Helper()
	token, err := tokens.Issue(jwt.Identity{UserID: userID, Email: userID + "@example.com"})
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(url+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_NotifyNewMail(t *testing.T) {
	hub, tokens, url := setupHub(t)
	fox := dial(t, tokens, url, "u1")
	dial(t, tokens, url, "u2")

	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.NotifyNewMail(context.Background(), "u1", &domain.Message{
		ID: "msg1", InboxID: "inbox1", From: "a@example.com", Subject: "hello",
		Text: strings.Repeat("é", 150),
	})

	msg := readMessage(t, fox)
	assert.Equal(t, MessageTypeNewMail, msg.Type)
	var data NewMailData
	require.NoError(t, json.Unmarshal(msg.Data, &data))
	assert.Equal(t, "msg1", data.MessageID)
	assert.Equal(t, "inbox1", data.InboxID)
	assert.Equal(t, "hello", data.Subject)
	assert.Equal(t, 100, len([]rune(data.Preview)))
}

func TestHub_PingPong(t *testing.T) {
	_, tokens, url := setupHub(t)
	conn := dial(t, tokens, url, "u1")

	require.NoError(t, conn.WriteJSON(Message{Type: MessageTypePing}))
	assert.Equal(t, MessageTypePong, readMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Message{Type: "subscribe"}))
	assert.Equal(t, MessageTypeError, readMessage(t, conn).Type)
}

func TestHub_Authentication(t *testing.T) {
	_, _, url := setupHub(t)

	tests := []struct {
		name  string
		query string
	}{
		{"缺少 token", ""},
		{"无效 token", "?token=not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(url+tt.query, nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestHub_RelayFallback(t *testing.T) {
	hub, tokens, url := setupHub(t)
	relay := &failingRelay{}
	hub.SetRelay(relay)
	conn := dial(t, tokens, url, "u1")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.NotifyNewMail(context.Background(), "u1", &domain.Message{ID: "msg1"})

	assert.Equal(t, 1, relay.calls)
	assert.Equal(t, MessageTypeNewMail, readMessage(t, conn).Type)
}

func TestHub_Unregister(t *testing.T) {
	hub, tokens, url := setupHub(t)
	conn := dial(t, tokens, url, "u1")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
