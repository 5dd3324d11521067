package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	model "github.com/yyc3/yunshu/backend/internal/model/voice"
	"github.com/yyc3/yunshu/backend/internal/service/voice"
)

const defaultTTSURL = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

// errResourceMismatch 音色与资源 ID 不匹配，换下一个候选重试
var errResourceMismatch = errors.New("resource ID is mismatched with speaker related resource")

// TTSClient 火山引擎单向流式语音合成客户端
type TTSClient struct {
	cfg    *model.EngineConfig
	url    string
	dialer *dialer
	log    zerolog.Logger
}

// NewTTSClient 创建合成客户端
func NewTTSClient(cfg *model.EngineConfig, log zerolog.Logger) *TTSClient {
	url := strings.TrimSpace(cfg.TTSURL)
	if url == "" {
		url = defaultTTSURL
	}
	return &TTSClient{cfg: cfg, url: url, dialer: newDialer(cfg.Timeout, log), log: log}
}

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string         `json:"speaker"`
		Text        string         `json:"text"`
		AudioParams ttsAudioParams `json:"audio_params"`
		Additions   string         `json:"additions,omitempty"`
		Language    string         `json:"language,omitempty"`
	} `json:"req_params"`
}

type ttsAudioParams struct {
	Format          string  `json:"format"`
	SampleRate      int     `json:"sample_rate"`
	EnableTimestamp bool    `json:"enable_timestamp"`
	SpeedRatio      float64 `json:"speed_ratio,omitempty"`
	VolumeRatio     float64 `json:"volume_ratio,omitempty"`
	PitchRatio      float64 `json:"pitch_ratio,omitempty"`
}

type ttsResponse struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition"`
}

// Synthesize 依次尝试候选音色与资源 ID，返回第一个成功的音频。
// 音量为 0 时不请求服务端（其音量比例下限为 0.1），直接返回空音频。
func (c *TTSClient) Synthesize(ctx context.Context, text string, settings model.Settings) (model.Audio, error) {
	if strings.TrimSpace(text) == "" {
		return model.Audio{}, fmt.Errorf("TTS text is empty")
	}
	if settings.Volume <= 0 {
		return model.Audio{Format: "mp3"}, nil
	}
	appID, token, err := resolveCredentials(c.cfg)
	if err != nil {
		return model.Audio{}, fmt.Errorf("%w: %v", voice.ErrPermissionDenied, err)
	}

	speakers := speakerCandidates(settings.Voice, c.cfg.TTSVoice)
	var lastErr error
	for _, speaker := range speakers {
		for _, resourceID := range resourceCandidates(speaker) {
			audio, err := c.synthesize(ctx, text, settings, appID, token, speaker, resourceID)
			if err == nil {
				return audio, nil
			}
			if !errors.Is(err, errResourceMismatch) {
				return model.Audio{}, err
			}
			c.log.Debug().Str("speaker", speaker).Str("resource", resourceID).Msg("resource mismatch, trying next")
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no speaker candidates for voice %q", settings.Voice)
	}
	return model.Audio{}, fmt.Errorf("%w: %v", voice.ErrLanguageUnsupported, lastErr)
}

func (c *TTSClient) synthesize(ctx context.Context, text string, settings model.Settings, appID, token, speaker, resourceID string) (model.Audio, error) {
	connectID := uuid.NewString()
	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, err := c.dialer.dial(ctx, c.url, header)
	if err != nil {
		return model.Audio{}, err
	}
	defer conn.Close()
	defer closeOnCancel(ctx, conn)()

	payload, err := sonic.Marshal(c.buildRequest(connectID, text, speaker, settings))
	if err != nil {
		return model.Audio{}, fmt.Errorf("marshal TTS request: %w", err)
	}
	if err := writeFrame(conn, requestFrame(payload, NoCompression)); err != nil {
		return model.Audio{}, err
	}

	audio, err := c.receive(conn, connectID)
	if err != nil && ctx.Err() != nil {
		return model.Audio{}, ctx.Err()
	}
	return audio, err
}

func (c *TTSClient) buildRequest(uid, text, speaker string, settings model.Settings) *ttsRequest {
	r := &ttsRequest{}
	r.User.UID = uid
	r.ReqParams.Speaker = speaker
	r.ReqParams.Text = text
	r.ReqParams.AudioParams = ttsAudioParams{
		Format:          "mp3",
		SampleRate:      24000,
		EnableTimestamp: true,
	}

	// SPEECH_TTS_SPEED / SPEECH_TTS_VOLUME 作为整体增益与用户设置相乘
	if speed := settings.Rate * gain(c.cfg.TTSSpeed); speed > 0 && speed != 1 {
		r.ReqParams.AudioParams.SpeedRatio = speed
	}
	if volume := settings.Volume * gain(c.cfg.TTSVolume); volume > 0 && volume != 1 {
		r.ReqParams.AudioParams.VolumeRatio = max(volume, minVolumeRatio)
	}

	if settings.Pitch > 0 && settings.Pitch != 1 {
		r.ReqParams.AudioParams.PitchRatio = settings.Pitch
	}

	if lang := strings.TrimSpace(c.cfg.TTSLanguage); lang != "" {
		r.ReqParams.Language = lang
	}
	r.ReqParams.Additions = `{"disable_markdown_filter":false}`
	return r
}

// 服务端音量比例下限
const minVolumeRatio = 0.1

func gain(v float32) float64 {
	if v <= 0 {
		return 1
	}
	return float64(v)
}

func (c *TTSClient) receive(conn *websocket.Conn, connectID string) (model.Audio, error) {
	var (
		buf      bytes.Buffer
		reqID    string
		duration int64
	)
	for {
		f, err := c.dialer.readFrame(conn)
		if err != nil {
			return model.Audio{}, err
		}

		switch f.Header.Type {
		case ErrorMessage:
			err := frameError("TTS", f)
			if strings.Contains(err.Error(), errResourceMismatch.Error()) {
				return model.Audio{}, fmt.Errorf("%w: %v", errResourceMismatch, err)
			}
			return model.Audio{}, err

		case AudioOnlyServerResponse:
			chunk, err := decompress(f.Payload, f.Header.Compression)
			if err != nil {
				return model.Audio{}, fmt.Errorf("decompress audio chunk: %w", err)
			}
			buf.Write(chunk)

		case FullServerResponse:
			payload, err := decompress(f.Payload, f.Header.Compression)
			if err != nil {
				return model.Audio{}, fmt.Errorf("decompress TTS payload: %w", err)
			}
			var resp ttsResponse
			if len(payload) > 0 {
				if err := sonic.Unmarshal(payload, &resp); err != nil {
					c.log.Warn().Err(err).Msg("unreadable TTS response")
				} else {
					if resp.Code != 0 && resp.Code != ttsSuccessCode {
						if strings.Contains(resp.Message, errResourceMismatch.Error()) {
							return model.Audio{}, fmt.Errorf("%w: code %d", errResourceMismatch, resp.Code)
						}
						return model.Audio{}, serverError("TTS", resp.Code, resp.Message)
					}
					if resp.ReqID != "" {
						reqID = resp.ReqID
					}
					if ms, err := strconv.ParseInt(resp.Addition.Duration, 10, 64); err == nil {
						duration = ms
					}
					if resp.Data != "" {
						chunk, err := base64.StdEncoding.DecodeString(resp.Data)
						if err != nil {
							return model.Audio{}, fmt.Errorf("decode base64 audio: %w", err)
						}
						buf.Write(chunk)
					}
				}
			}

			finished := f.hasEvent() && f.Event == EventSessionFinished
			if finished || f.Last() || resp.Sequence < 0 {
				if buf.Len() == 0 {
					return model.Audio{}, fmt.Errorf("%w: TTS audio is empty", voice.ErrServiceUnavailable)
				}
				if reqID == "" {
					reqID = connectID
				}
				return model.Audio{
					Data:      buf.Bytes(),
					Format:    "mp3",
					Duration:  duration,
					RequestID: reqID,
					CreatedAt: time.Now(),
				}, nil
			}
		}
	}
}
