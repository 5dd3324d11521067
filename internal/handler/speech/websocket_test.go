package speech

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yyc3/yunshu/backend/internal/logger"
)

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialWebSocket(t *testing.T, f fixture) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(f.router)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/dialogs/" + f.dialog.ID() + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(map[string]any{"type": typ, "data": json.RawMessage(payload)}))
}

// waitFor reads until a message of the given type arrives.
func waitFor(t *testing.T, conn *websocket.Conn, typ string) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg received
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func TestWebSocketUnknownDialog(t *testing.T) {
	f := setup(t, fakeCapability{})
	server := httptest.NewServer(f.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/dialogs/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestWebSocketTextRoundTrip(t *testing.T) {
	f := setup(t, fakeCapability{})
	conn := dialWebSocket(t, f)

	connected := waitFor(t, conn, "connected")
	assert.Contains(t, string(connected.Data), `"open":true`)

	send(t, conn, "text", map[string]string{"text": "写一首诗"})
	msg := waitFor(t, conn, "message")
	assert.Contains(t, string(msg.Data), "写一首诗")

	// 回复揭示完成后出现助手消息
	for {
		msg = waitFor(t, conn, "message")
		if strings.Contains(string(msg.Data), `"role":"assistant"`) {
			break
		}
	}
}

func TestWebSocketConfigAndErrors(t *testing.T) {
	f := setup(t, fakeCapability{})
	conn := dialWebSocket(t, f)
	waitFor(t, conn, "connected")

	send(t, conn, "config", map[string]any{"pitch": 0.1})
	cfg := waitFor(t, conn, "config")
	assert.Contains(t, string(cfg.Data), `"pitch":0.5`)

	send(t, conn, "bogus", map[string]any{})
	errMsg := waitFor(t, conn, "error")
	assert.Contains(t, string(errMsg.Data), "unsupported message type")

	send(t, conn, "text", map[string]string{"text": "  "})
	errMsg = waitFor(t, conn, "error")
	assert.Contains(t, string(errMsg.Data), `"status":400`)
}

func TestWebSocketAudioTranscript(t *testing.T) {
	f := setup(t, fakeCapability{})
	conn := dialWebSocket(t, f)
	waitFor(t, conn, "connected")

	send(t, conn, "audio", map[string]any{"audioData": []byte{1, 2}, "format": "webm"})
	send(t, conn, "audio", map[string]any{"audioData": []byte{3}, "isFinal": true})

	// 事件转发与识别结果来自不同 goroutine，顺序不固定
	seen := map[string]string{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for seen["transcript.partial"] == "" || seen["transcript"] == "" {
		var msg received
		require.NoError(t, conn.ReadJSON(&msg))
		seen[msg.Type] = string(msg.Data)
	}
	assert.Contains(t, seen["transcript.partial"], "你好")
	assert.Contains(t, seen["transcript"], "你好世界")
}

func TestWebSocketDisconnectReleasesSubscription(t *testing.T) {
	f := setup(t, fakeCapability{})
	conn := dialWebSocket(t, f)
	waitFor(t, conn, "connected")
	assert.Equal(t, 1, f.dialog.Snapshot().Subscribers)

	send(t, conn, "text", map[string]string{"text": "写一首诗"})
	waitFor(t, conn, "message")

	// 回复仍在揭示时断开
	require.NoError(t, conn.NetConn().Close())
	require.Eventually(t, func() bool {
		return f.dialog.Snapshot().Subscribers == 0
	}, 5*time.Second, time.Millisecond)
}

func TestWriteLoopFailureCancelsConnection(t *testing.T) {
	h := NewWebSocketHandler(nil, logger.Nop())
	accepted := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- conn
	}))
	defer server.Close()

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	var conn *websocket.Conn
	select {
	case conn = <-accepted:
	case <-time.After(5 * time.Second):
		t.Fatal("server never accepted the connection")
	}
	require.NoError(t, conn.NetConn().Close())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	outbox := make(chan outgoingMessage, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(ctx, cancel, conn, outbox, logger.Nop())
	}()

	outbox <- outgoingMessage{Type: "message"}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writeLoop kept running after a failed write")
	}
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
