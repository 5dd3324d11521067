package speech

import (
	"errors"
	"fmt"
	"strings"

	model "github.com/yyc3/yunshu/backend/internal/model/voice"
)

// ErrMissingCredentials 未配置 AppID 或 AccessToken
var ErrMissingCredentials = errors.New("火山引擎语音配置缺少 AppID 或 AccessToken")

// resolveCredentials 返回规范化后的 AppID 与 AccessToken
func resolveCredentials(cfg *model.EngineConfig) (string, string, error) {
	if cfg == nil {
		return "", "", fmt.Errorf("火山引擎语音配置未初始化")
	}

	appID := strings.TrimSpace(cfg.AppID)
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		token = strings.TrimSpace(cfg.APIKey)
	}
	if appID == "" || token == "" {
		return "", "", ErrMissingCredentials
	}
	return appID, token, nil
}

// Configured reports whether cfg carries usable credentials.
func Configured(cfg *model.EngineConfig) bool {
	_, _, err := resolveCredentials(cfg)
	return err == nil
}
