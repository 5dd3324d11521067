// Package speech implements the voice capability on top of the volcengine
// streaming ASR and TTS WebSocket APIs.
package speech

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	model "github.com/yyc3/yunshu/backend/internal/model/voice"
	"github.com/yyc3/yunshu/backend/internal/service/voice"
)

// Bridge 语音能力的火山引擎实现
type Bridge struct {
	asr *ASRClient
	tts *TTSClient
	log zerolog.Logger
}

var _ voice.Capability = (*Bridge)(nil)

// BridgeOption customises a Bridge.
type BridgeOption func(*Bridge)

// WithChunkInterval 调整音频分包发送间隔，测试中设为0
func WithChunkInterval(d time.Duration) BridgeOption {
	return func(b *Bridge) { b.asr.interval = d }
}

// NewBridge 创建语音桥；缺少凭证时返回 ErrMissingCredentials
func NewBridge(cfg model.EngineConfig, log zerolog.Logger, opts ...BridgeOption) (*Bridge, error) {
	if _, _, err := resolveCredentials(&cfg); err != nil {
		return nil, err
	}
	b := &Bridge{
		asr: NewASRClient(&cfg, log.With().Str("engine", "asr").Logger()),
		tts: NewTTSClient(&cfg, log.With().Str("engine", "tts").Logger()),
		log: log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// NewCapability 有凭证时返回 Bridge，否则返回 voice.Unsupported
func NewCapability(cfg model.EngineConfig, log zerolog.Logger) voice.Capability {
	b, err := NewBridge(cfg, log)
	if err != nil {
		log.Warn().Err(err).Msg("speech disabled, running text-only")
		return voice.Unsupported{}
	}
	return b
}

// Supported 有凭证即视为可用
func (b *Bridge) Supported() bool { return true }

// Transcribe 语音转文字
func (b *Bridge) Transcribe(ctx context.Context, req model.TranscribeRequest, onPartial func(string)) (model.Transcript, error) {
	start := time.Now()
	transcript, err := b.asr.Transcribe(ctx, req, onPartial)
	if err != nil {
		return model.Transcript{}, voice.Classify(err)
	}
	b.log.Debug().Dur("took", time.Since(start)).Int("chars", len([]rune(transcript.Text))).Msg("transcribed")
	return transcript, nil
}

// Synthesize 文字转语音
func (b *Bridge) Synthesize(ctx context.Context, text string, settings model.Settings) (model.Audio, error) {
	audio, err := b.tts.Synthesize(ctx, text, settings.Clamp())
	if err != nil {
		return model.Audio{}, voice.Classify(err)
	}
	return audio, nil
}

// Voices 可选音色
func (b *Bridge) Voices(context.Context) []model.Info { return Voices() }
