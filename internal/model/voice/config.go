package voice

// EngineConfig 火山引擎语音服务配置
type EngineConfig struct {
	AppID          string `json:"appId"`
	AccessToken    string `json:"accessToken"`
	APIKey         string `json:"apiKey,omitempty"` // 兼容旧配置
	ConcurrentMode bool   `json:"concurrentMode"` // ASR并发版资源

	ASRLanguage string `json:"asrLanguage"`

	TTSVoice    string  `json:"ttsVoice"`
	TTSSpeed    float32 `json:"ttsSpeed"`
	TTSVolume   float32 `json:"ttsVolume"`
	TTSLanguage string  `json:"ttsLanguage"`

	Timeout int `json:"timeout"` // seconds

	// 为空时使用官方地址
	ASRURL string `json:"asrUrl,omitempty"`
	TTSURL string `json:"ttsUrl,omitempty"`
}
