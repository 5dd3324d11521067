package speech

import (
	"fmt"
	"strings"

	"github.com/yyc3/yunshu/backend/internal/service/voice"
)

// 服务端状态码
const (
	asrSuccessCode = 20000000
	ttsSuccessCode = 3000
)

// serverError 把服务端返回码映射为语音错误
func serverError(service string, code int, message string) error {
	lowered := strings.ToLower(message)
	var cause error
	switch {
	case strings.Contains(lowered, "language"):
		cause = voice.ErrLanguageUnsupported
	case strings.Contains(lowered, "unauthorized"), strings.Contains(lowered, "permission"),
		strings.Contains(lowered, "access denied"), strings.Contains(lowered, "invalid token"):
		cause = voice.ErrPermissionDenied
	case code == 45000002:
		cause = voice.ErrNoAudio
	case code == 3003 || code == 3005 || code/1000000 == 55:
		cause = voice.ErrServiceUnavailable
	}
	if cause == nil {
		return fmt.Errorf("%s API error %d: %s", service, code, message)
	}
	return fmt.Errorf("%w: %s API error %d: %s", cause, service, code, message)
}

// frameError 解析 ErrorMessage 帧
func frameError(service string, f *Frame) error {
	payload, err := decompress(f.Payload, f.Header.Compression)
	if err != nil {
		payload = f.Payload
	}
	return serverError(service, int(f.ErrorCode), string(payload))
}
