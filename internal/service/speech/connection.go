package speech

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/yyc3/yunshu/backend/internal/service/voice"
)

const defaultHandshakeTimeout = 30 * time.Second

// dialer 建立到语音服务的 WebSocket 连接，并把握手失败映射为语音错误
type dialer struct {
	ws      *websocket.Dialer
	timeout time.Duration
	log     zerolog.Logger
}

func newDialer(timeoutSeconds int, log zerolog.Logger) *dialer {
	timeout := defaultHandshakeTimeout
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	return &dialer{
		ws:      &websocket.Dialer{HandshakeTimeout: timeout, Proxy: http.ProxyFromEnvironment},
		timeout: timeout,
		log:     log,
	}
}

func (d *dialer) dial(ctx context.Context, url string, header http.Header) (*websocket.Conn, error) {
	conn, resp, err := d.ws.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, handshakeError(resp.StatusCode, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", voice.ErrNetwork, err)
	}
	if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
		d.log.Debug().Str("logid", logid).Str("url", url).Msg("connected")
	}

	// 读超时随每次收包刷新
	_ = conn.SetReadDeadline(time.Now().Add(d.timeout))
	return conn, nil
}

func handshakeError(status int, err error) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: handshake status %d: %v", voice.ErrPermissionDenied, status, err)
	case status == http.StatusTooManyRequests || status >= 500:
		return fmt.Errorf("%w: handshake status %d: %v", voice.ErrServiceUnavailable, status, err)
	}
	return fmt.Errorf("handshake status %d: %w", status, err)
}

// readFrame 读取并解析一帧，同时刷新读超时
func (d *dialer) readFrame(conn *websocket.Conn) (*Frame, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseNormalClosure {
			return nil, fmt.Errorf("%w: connection closed before final result", voice.ErrServiceUnavailable)
		}
		return nil, fmt.Errorf("%w: %v", voice.ErrNetwork, err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(d.timeout))
	return DecodeFrame(data)
}

func writeFrame(conn *websocket.Conn, f *Frame) error {
	if err := conn.WriteMessage(websocket.BinaryMessage, f.Encode()); err != nil {
		return fmt.Errorf("%w: %v", voice.ErrNetwork, err)
	}
	return nil
}

// closeOnCancel 在 ctx 取消时关闭连接，使阻塞的读写立即返回
func closeOnCancel(ctx context.Context, conn *websocket.Conn) (stop func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	return func() { close(done) }
}
