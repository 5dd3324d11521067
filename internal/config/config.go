package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	model "github.com/yyc3/yunshu/backend/internal/model/voice"
	"github.com/yyc3/yunshu/backend/internal/service/dialog"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	Dialog DialogConfig
	Speech SpeechConfig
	Log    LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	dialog, err := loadDialogConfig()
	if err != nil {
		return nil, err
	}

	speech, err := loadSpeechConfig()
	if err != nil {
		return nil, err
	}

	log, err := loadLogConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Dialog: dialog, Speech: speech, Log: log}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	shutdown, err := parseDurationEnv("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, ShutdownTimeout: shutdown}, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, ShutdownTimeout: shutdown}, nil
}

// DialogConfig 对话节奏与语音策略。
type DialogConfig struct {
	ThinkingDelay  time.Duration
	RevealInterval time.Duration
	AutoSpeak      bool
	SegmentLength  int
	RetryDelay     time.Duration
	MaxRetries     int
}

func loadDialogConfig() (DialogConfig, error) {
	thinking, err := parseDurationEnv("DIALOG_THINKING_DELAY", time.Second)
	if err != nil {
		return DialogConfig{}, err
	}
	interval, err := parseDurationEnv("DIALOG_REVEAL_INTERVAL", 50*time.Millisecond)
	if err != nil {
		return DialogConfig{}, err
	}
	if interval <= 0 {
		return DialogConfig{}, fmt.Errorf("invalid DIALOG_REVEAL_INTERVAL value %q: must be positive", os.Getenv("DIALOG_REVEAL_INTERVAL"))
	}
	autoSpeak, err := parseBoolEnv("DIALOG_AUTO_SPEAK", false)
	if err != nil {
		return DialogConfig{}, err
	}
	segment, err := parseIntEnv("VOICE_SEGMENT_LENGTH", 120)
	if err != nil {
		return DialogConfig{}, err
	}
	retryDelay, err := parseDurationEnv("VOICE_RETRY_DELAY", time.Second)
	if err != nil {
		return DialogConfig{}, err
	}
	retries, err := parseIntEnv("VOICE_MAX_RETRIES", 2)
	if err != nil {
		return DialogConfig{}, err
	}
	if retries < 0 {
		retries = 0
	}

	return DialogConfig{
		ThinkingDelay:  thinking,
		RevealInterval: interval,
		AutoSpeak:      autoSpeak,
		SegmentLength:  segment,
		RetryDelay:     retryDelay,
		MaxRetries:     retries,
	}, nil
}

// Options 将对话配置写入 base。零值按字面生效：0 次重试即不重试，0 延迟即立即回复。
func (c DialogConfig) Options(base dialog.Options) dialog.Options {
	base.ThinkingDelay = c.ThinkingDelay
	base.RevealInterval = c.RevealInterval
	base.AutoSpeak = c.AutoSpeak
	base.SegmentLength = c.SegmentLength
	base.RetryDelay = c.RetryDelay
	base.MaxRetries = c.MaxRetries
	return base
}

// SpeechConfig 描述语音服务相关配置
type SpeechConfig struct {
	AppID          string
	AccessToken    string
	APIKey         string
	ConcurrentMode bool
	ASRLanguage    string
	TTSVoice       string
	TTSSpeed       float32
	TTSVolume      float32
	TTSLanguage    string
	Timeout        int
	ASRURL         string
	TTSURL         string
}

// Enabled 表示是否提供了必需的密钥。
func (c SpeechConfig) Enabled() bool {
	return c.AppID != "" && c.AccessToken != ""
}

// Engine 转换为语音引擎配置
func (c SpeechConfig) Engine() model.EngineConfig {
	return model.EngineConfig{
		AppID:          c.AppID,
		AccessToken:    c.AccessToken,
		APIKey:         c.APIKey,
		ConcurrentMode: c.ConcurrentMode,
		ASRLanguage:    c.ASRLanguage,
		TTSVoice:       c.TTSVoice,
		TTSSpeed:       c.TTSSpeed,
		TTSVolume:      c.TTSVolume,
		TTSLanguage:    c.TTSLanguage,
		Timeout:        c.Timeout,
		ASRURL:         c.ASRURL,
		TTSURL:         c.TTSURL,
	}
}

func loadSpeechConfig() (SpeechConfig, error) {
	timeout, err := parseIntEnv("SPEECH_TIMEOUT", 30)
	if err != nil {
		return SpeechConfig{}, err
	}

	// 解析TTS速度和音量
	speed, err := parseFloat32Env("SPEECH_TTS_SPEED", 1.0)
	if err != nil {
		return SpeechConfig{}, err
	}
	volume, err := parseFloat32Env("SPEECH_TTS_VOLUME", 1.0)
	if err != nil {
		return SpeechConfig{}, err
	}

	concurrent, err := parseBoolEnv("SPEECH_ASR_CONCURRENT", false)
	if err != nil {
		return SpeechConfig{}, err
	}

	accessToken := strings.TrimSpace(os.Getenv("SPEECH_ACCESS_TOKEN"))
	apiKey := strings.TrimSpace(os.Getenv("SPEECH_API_KEY"))
	if accessToken == "" {
		accessToken = apiKey
	}

	return SpeechConfig{
		AppID:          strings.TrimSpace(os.Getenv("SPEECH_APP_ID")),
		AccessToken:    accessToken,
		APIKey:         apiKey,
		ConcurrentMode: concurrent,
		ASRLanguage:    getEnvOrDefault("SPEECH_ASR_LANGUAGE", "zh-CN"),
		TTSVoice:       getEnvOrDefault("SPEECH_TTS_VOICE", "zh_female_vv_uranus_bigtts"),
		TTSSpeed:       speed,
		TTSVolume:      volume,
		TTSLanguage:    getEnvOrDefault("SPEECH_TTS_LANGUAGE", "zh-CN"),
		Timeout:        timeout,
		ASRURL:         getEnvOrDefault("SPEECH_ASR_URL", ""),
		TTSURL:         getEnvOrDefault("SPEECH_TTS_URL", ""),
	}, nil
}

// LogConfig 日志输出配置
type LogConfig struct {
	Level  string
	Pretty bool
}

func loadLogConfig() (LogConfig, error) {
	pretty, err := parseBoolEnv("LOG_PRETTY", false)
	if err != nil {
		return LogConfig{}, err
	}
	level := strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info"))
	switch level {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return LogConfig{}, fmt.Errorf("invalid LOG_LEVEL value %q", level)
	}
	return LogConfig{Level: level, Pretty: pretty}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseFloat32Env(key string, defaultValue float32) (float32, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseFloat(raw, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return float32(val), nil
}

// parseDurationEnv 支持 "1s"、"250ms" 等格式，纯数字按毫秒处理
func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	if ms, err := strconv.Atoi(raw); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}
