package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/yyc3/yunshu/backend/internal/handler/common"
	model "github.com/yyc3/yunshu/backend/internal/model/voice"
	"github.com/yyc3/yunshu/backend/internal/service/dialog"
	"github.com/yyc3/yunshu/backend/internal/service/voice"
)

const (
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	writeWait    = 10 * time.Second
	outboxSize   = 64
)

// WebSocketHandler WebSocket语音处理器
type WebSocketHandler struct {
	dialogs  common.Dialogs
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(dialogs common.Dialogs, log zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		dialogs: dialogs,
		log:     log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterWebSocketRoutes 注册WebSocket路由
func (h *WebSocketHandler) RegisterWebSocketRoutes(r chi.Router) {
	r.Get(common.DialogPath+"/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// AudioMessage 音频消息，isFinal 为 true 时开始识别
type AudioMessage struct {
	AudioData []byte `json:"audioData"`
	Format    string `json:"format"`
	Language  string `json:"language"`
	IsFinal   bool   `json:"isFinal"`
}

// TextMessage 文本消息
type TextMessage struct {
	Text string `json:"text"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	DialogID  string `json:"dialogId,omitempty"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// connectionState 单个连接的状态，读循环独占
type connectionState struct {
	dialog   *dialog.Dialog
	outbox   chan outgoingMessage
	language string
	format   string
	buffer   bytes.Buffer
	listens  sync.WaitGroup
}

// handleWebSocket 处理WebSocket连接
func (h *WebSocketHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	d, ok := common.LoadDialog(w, r, h.dialogs)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.log.With().Str("dialog", d.ID()).Logger()
	log.Info().Msg("websocket connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	state := &connectionState{
		dialog:   d,
		outbox:   make(chan outgoingMessage, outboxSize),
		language: "zh-CN",
	}

	events, unsubscribe := d.Subscribe()
	defer unsubscribe()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, cancel, conn, state.outbox, log)
	}()
	go h.forwardEvents(ctx, state, events)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	h.send(ctx, state, outgoingMessage{Type: "connected", Data: d.Snapshot()})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("websocket read error")
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg inboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.sendError(ctx, state, "invalid message", nil)
			continue
		}
		h.handleMessage(ctx, state, &msg)
	}

	// 取消 ctx 同时中断仍在进行的识别
	cancel()
	state.listens.Wait()
	<-writerDone
	log.Info().Msg("websocket closed")
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, state *connectionState, msg *inboundMessage) {
	switch msg.Type {
	case "text":
		h.handleTextMessage(ctx, state, msg.Data)
	case "audio":
		h.handleAudioMessage(ctx, state, msg.Data)
	case "config":
		h.handleConfigMessage(ctx, state, msg.Data)
	case "speak":
		h.handleSpeakMessage(ctx, state, msg.Data)
	case "stop":
		speaking := state.dialog.StopSpeaking()
		listening := state.dialog.StopListening()
		h.send(ctx, state, outgoingMessage{Type: "stopped", Data: map[string]bool{
			"speaking":  speaking,
			"listening": listening,
		}})
	default:
		h.sendError(ctx, state, "unsupported message type: "+msg.Type, nil)
	}
}

func (h *WebSocketHandler) handleTextMessage(ctx context.Context, state *connectionState, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		h.sendError(ctx, state, "invalid text payload", nil)
		return
	}
	if _, err := state.dialog.Submit(text.Text); err != nil {
		h.sendError(ctx, state, err.Error(), err)
	}
}

func (h *WebSocketHandler) handleAudioMessage(ctx context.Context, state *connectionState, raw json.RawMessage) {
	var audio AudioMessage
	if err := json.Unmarshal(raw, &audio); err != nil {
		h.sendError(ctx, state, "invalid audio payload", nil)
		return
	}

	state.buffer.Write(audio.AudioData)
	if audio.Format != "" {
		state.format = audio.Format
	}
	if audio.Language != "" {
		state.language = audio.Language
	}
	if !audio.IsFinal {
		return
	}

	req := model.TranscribeRequest{
		AudioData: bytes.Clone(state.buffer.Bytes()),
		Format:    state.format,
		Language:  state.language,
	}
	state.buffer.Reset()

	// 识别期间继续读取消息，stop 可以中断识别
	state.listens.Add(1)
	go func() {
		defer state.listens.Done()
		transcript, err := state.dialog.Listen(ctx, req)
		if err != nil {
			var verr *voice.Error
			if !errors.As(err, &verr) {
				h.sendError(ctx, state, err.Error(), err)
			}
			return
		}
		h.send(ctx, state, outgoingMessage{Type: "transcript", Data: transcript})
	}()
}

func (h *WebSocketHandler) handleConfigMessage(ctx context.Context, state *connectionState, raw json.RawMessage) {
	var patch model.SettingsPatch
	if err := json.Unmarshal(raw, &patch); err != nil {
		h.sendError(ctx, state, "invalid config payload", nil)
		return
	}
	h.send(ctx, state, outgoingMessage{Type: "config", Data: state.dialog.UpdateSettings(patch)})
}

func (h *WebSocketHandler) handleSpeakMessage(ctx context.Context, state *connectionState, raw json.RawMessage) {
	var text TextMessage
	if err := json.Unmarshal(raw, &text); err != nil {
		h.sendError(ctx, state, "invalid speak payload", nil)
		return
	}
	if err := state.dialog.Speak(text.Text); err != nil {
		var verr *voice.Error
		if errors.As(err, &verr) {
			// 已经作为 voice.error 事件下发
			return
		}
		h.sendError(ctx, state, err.Error(), err)
	}
}

func (h *WebSocketHandler) forwardEvents(ctx context.Context, state *connectionState, events <-chan dialog.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			h.send(ctx, state, outgoingMessage{Type: string(e.Type), Data: e})
		}
	}
}

func (h *WebSocketHandler) send(ctx context.Context, state *connectionState, msg outgoingMessage) {
	msg.DialogID = state.dialog.ID()
	msg.Timestamp = time.Now().Unix()
	select {
	case state.outbox <- msg:
	case <-ctx.Done():
	}
}

func (h *WebSocketHandler) sendError(ctx context.Context, state *connectionState, message string, err error) {
	data := map[string]any{"message": message}
	if err != nil {
		data["status"] = common.StatusFor(err)
	}
	h.send(ctx, state, outgoingMessage{Type: "error", Data: data})
}

// writeLoop 独占连接写端，定期发送ping消息。退出时取消 ctx 并关闭连接，
// 阻塞在 send 上的调用和读循环都会随之返回。
func (h *WebSocketHandler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, outbox <-chan outgoingMessage, log zerolog.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer conn.Close()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case msg := <-outbox:
			payload, err := sonic.Marshal(msg)
			if err != nil {
				log.Error().Err(err).Str("type", msg.Type).Msg("encode websocket message failed")
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Debug().Err(err).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
