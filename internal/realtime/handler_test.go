package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startServer serves the websocket handler and closes everything on cleanup.
func startServer(t *testing.T) (*Registry, string) {
	t.Helper()
	reg := newTestRegistry()
	srv := httptest.NewServer(NewHandler(reg, time.Second, nil))
	t.Cleanup(func() {
		srv.Close()
		require.Eventually(t, func() bool { return reg.ConnectionCount() == 0 },
			2*time.Second, 10*time.Millisecond)
	})
	return reg, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readServerMessage(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHandler_SubscribeAndReceiveBroadcast(t *testing.T) {
	reg, url := startServer(t)
	conn := dial(t, url+"?clientId=c1")

	require.Eventually(t, func() bool { return reg.ConnectionCount() == 1 },
		time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ClientMessage{EventType: EventSubscribe, Topic: "alerts-7"}))
	reply := readServerMessage(t, conn)
	assert.Equal(t, EventConfirmsSubscription, reply.EventType)
	assert.Equal(t, "alerts-7", reply.Topic)
	assert.Equal(t, []string{"c1"}, reg.GetMembersFromTopicID("alerts-7"))

	require.NoError(t, reg.BroadcastToTopic(t.Context(), "alerts-7", map[string]string{"eventType": "Ping"}))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got map[string]string
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, "Ping", got["eventType"])

	require.NoError(t, conn.WriteJSON(ClientMessage{EventType: EventUnsubscribe, Topic: "alerts-7"}))
	reply = readServerMessage(t, conn)
	assert.Equal(t, EventConfirmsUnsubscription, reply.EventType)
	assert.Empty(t, reg.GetMembersFromTopicID("alerts-7"))
}

func TestHandler_ErrorFrames(t *testing.T) {
	_, url := startServer(t)
	conn := dial(t, url+"?clientId=c2")

	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"invalid json", `{not json`, "invalid message"},
		{"missing topic", `{"eventType":"ClientWantsToSubscribeToTopic"}`, "topic is required"},
		{"unknown event", `{"eventType":"Dance","topic":"t"}`, "unknown event type Dance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)))
			reply := readServerMessage(t, conn)
			assert.Equal(t, EventError, reply.EventType)
			assert.Equal(t, tt.want, reply.Message)
		})
	}
}

func TestHandler_DisconnectScrubsRegistry(t *testing.T) {
	reg, url := startServer(t)
	conn := dial(t, url+"?clientId=c3")

	require.NoError(t, conn.WriteJSON(ClientMessage{EventType: EventSubscribe, Topic: "t"}))
	readServerMessage(t, conn)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return reg.ConnectionCount() == 0 },
		2*time.Second, 10*time.Millisecond)
	assert.Empty(t, reg.GetMembersFromTopicID("t"))
}

func TestHandler_ReconnectReplacesSocket(t *testing.T) {
	reg, url := startServer(t)
	first := dial(t, url+"?clientId=same")
	require.NoError(t, first.WriteJSON(ClientMessage{EventType: EventSubscribe, Topic: "t"}))
	readServerMessage(t, first)

	second := dial(t, url+"?clientId=same")
	require.NoError(t, second.WriteJSON(ClientMessage{EventType: EventSubscribe, Topic: "u"}))
	readServerMessage(t, second)

	// The old connection can no longer change the client's subscriptions.
	require.NoError(t, first.WriteJSON(ClientMessage{EventType: EventUnsubscribe, Topic: "t"}))
	reply := readServerMessage(t, first)
	assert.Equal(t, EventError, reply.EventType)
	assert.Equal(t, "connection was replaced", reply.Message)

	require.NoError(t, first.Close())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, reg.ConnectionCount())
	assert.Equal(t, []string{"t", "u"}, reg.GetTopicsFromMemberID("same"))
}

func TestHandler_RejectsCrossOrigin(t *testing.T) {
	_, url := startServer(t)
	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestSameOriginOrNone(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "http://leafwatch.local/ws", nil)
	assert.True(t, sameOriginOrNone(req))

	req.Header.Set("Origin", "http://leafwatch.local")
	assert.True(t, sameOriginOrNone(req))

	req.Header.Set("Origin", "https://other.local")
	assert.False(t, sameOriginOrNone(req))
}

func TestWSSocket_SendAfterClose(t *testing.T) {
	reg, url := startServer(t)
	dial(t, url+"?clientId=c4")
	require.Eventually(t, func() bool { return reg.ConnectionCount() == 1 },
		time.Second, 10*time.Millisecond)

	s, err := reg.GetSocketFromClientID("c4")
	require.NoError(t, err)
	ws, ok := s.(*WSSocket)
	require.True(t, ok)
	require.True(t, ws.IsAvailable())

	require.NoError(t, ws.Close())
	require.NoError(t, ws.Close(), "close is idempotent")
	assert.False(t, ws.IsAvailable())
	assert.ErrorIs(t, ws.Send(t.Context(), []byte(`{}`)), ErrSocketClosed)
}
