package voice

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/gorilla/websocket"
)

// Kind classifies voice failures for user-facing messages.
type Kind string

const (
	KindUnsupported         Kind = "unsupported"
	KindPermissionDenied    Kind = "permission-denied"
	KindNoSpeech            Kind = "no-speech"
	KindDeviceUnavailable   Kind = "device-unavailable"
	KindServiceUnavailable  Kind = "service-unavailable"
	KindLanguageUnsupported Kind = "language-unsupported"
	KindNetwork             Kind = "network"
	KindCancelled           Kind = "cancelled"
	KindUnknown             Kind = "unknown"
)

// Sentinel errors returned by capability implementations.
var (
	ErrUnsupported         = errors.New("speech capability unsupported")
	ErrPermissionDenied    = errors.New("speech permission denied")
	ErrNoSpeech            = errors.New("no speech detected")
	ErrNoAudio             = errors.New("no audio data")
	ErrServiceUnavailable  = errors.New("speech service unavailable")
	ErrLanguageUnsupported = errors.New("language not supported")
	ErrNetwork             = errors.New("network unavailable")
)

var messages = map[Kind]string{
	KindUnsupported:         "当前环境不支持语音功能，请使用文字输入",
	KindPermissionDenied:    "语音服务拒绝访问，请检查授权配置",
	KindNoSpeech:            "没有检测到语音，请重试",
	KindDeviceUnavailable:   "没有收到音频数据，请检查麦克风",
	KindServiceUnavailable:  "语音服务暂时不可用，请稍后再试",
	KindLanguageUnsupported: "不支持当前语言，请切换语言后重试",
	KindNetwork:             "网络连接失败，请检查网络后手动重试",
	KindCancelled:           "语音操作已取消",
	KindUnknown:             "语音处理失败，请重试",
}

// RetryingMessage is surfaced before an automatic retry.
const RetryingMessage = "网络不稳定，正在重试…"

// Error is a classified voice failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Message returns the short text shown to the user.
func (e *Error) Message() string {
	return MessageFor(e.Kind)
}

// MessageFor returns the user-facing text for kind.
func MessageFor(kind Kind) string {
	if msg, ok := messages[kind]; ok {
		return msg
	}
	return messages[KindUnknown]
}

// Classify maps any error to a voice Error. nil stays nil.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	return &Error{Kind: kindOf(err), Err: err}
}

func kindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrNoSpeech):
		return KindNoSpeech
	case errors.Is(err, ErrNoAudio):
		return KindDeviceUnavailable
	case errors.Is(err, ErrServiceUnavailable):
		return KindServiceUnavailable
	case errors.Is(err, ErrLanguageUnsupported):
		return KindLanguageUnsupported
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return KindNetwork
	}

	if errors.Is(err, websocket.ErrBadHandshake) {
		return KindServiceUnavailable
	}
	if websocket.IsCloseError(err, websocket.CloseAbnormalClosure, websocket.CloseGoingAway) {
		return KindNetwork
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection reset"), strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "no such host"), strings.Contains(msg, "i/o timeout"):
		return KindNetwork
	}
	return KindUnknown
}

// Retryable reports whether err is a transient network failure.
func Retryable(err error) bool {
	c := Classify(err)
	return c != nil && c.Kind == KindNetwork
}
