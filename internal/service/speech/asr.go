package speech

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	model "github.com/yyc3/yunshu/backend/internal/model/voice"
	"github.com/yyc3/yunshu/backend/internal/service/voice"
)

const (
	defaultASRURL = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_nostream"

	// 16kHz 16bit 单声道 200ms
	asrChunkSize     = 6400
	asrChunkInterval = 200 * time.Millisecond
)

// ASRClient 火山引擎流式语音识别客户端
type ASRClient struct {
	cfg      *model.EngineConfig
	url      string
	dialer   *dialer
	interval time.Duration
	log      zerolog.Logger
}

// NewASRClient 创建识别客户端
func NewASRClient(cfg *model.EngineConfig, log zerolog.Logger) *ASRClient {
	url := strings.TrimSpace(cfg.ASRURL)
	if url == "" {
		url = defaultASRURL
	}
	return &ASRClient{
		cfg:      cfg,
		url:      url,
		dialer:   newDialer(cfg.Timeout, log),
		interval: asrChunkInterval,
		log:      log,
	}
}

type asrRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type asrUtterance struct {
	Text     string `json:"text"`
	Definite bool   `json:"definite"`
}

type asrResponse struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string         `json:"text"`
		Utterances []asrUtterance `json:"utterances,omitempty"`
	} `json:"result"`
	AudioInfo struct {
		Duration int64 `json:"duration"`
	} `json:"audio_info"`
}

func (r *asrResponse) text() string {
	if r.Result.Text != "" {
		return r.Result.Text
	}
	parts := make([]string, 0, len(r.Result.Utterances))
	for _, u := range r.Result.Utterances {
		if u.Text != "" {
			parts = append(parts, u.Text)
		}
	}
	return strings.Join(parts, " ")
}

// Transcribe 发送整段音频并等待最终结果，中间结果通过 onPartial 回调
func (c *ASRClient) Transcribe(ctx context.Context, req model.TranscribeRequest, onPartial func(string)) (model.Transcript, error) {
	if len(req.AudioData) == 0 {
		return model.Transcript{}, voice.ErrNoAudio
	}
	appID, token, err := resolveCredentials(c.cfg)
	if err != nil {
		return model.Transcript{}, fmt.Errorf("%w: %v", voice.ErrPermissionDenied, err)
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	resourceID := "volc.bigasr.sauc.duration"
	if c.cfg.ConcurrentMode {
		resourceID = "volc.bigasr.sauc.concurrent"
	}
	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", sessionID)

	conn, err := c.dialer.dial(ctx, c.url, header)
	if err != nil {
		return model.Transcript{}, err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer closeOnCancel(ctx, conn)()

	payload, err := sonic.Marshal(c.buildRequest(req, sessionID))
	if err != nil {
		return model.Transcript{}, fmt.Errorf("marshal ASR request: %w", err)
	}
	if payload, err = compress(payload, GzipCompression); err != nil {
		return model.Transcript{}, err
	}
	if err := writeFrame(conn, requestFrame(payload, GzipCompression)); err != nil {
		return model.Transcript{}, err
	}

	// 发送与接收并发进行，服务端提前报错时可以立即停止发送
	sendErr := make(chan error, 1)
	go func() {
		sendErr <- c.sendAudio(ctx, conn, req.AudioData)
	}()

	transcript, err := c.receive(conn, sessionID, onPartial)
	cancel()
	if err != nil {
		if sendFailure := <-sendErr; sendFailure != nil && ctx.Err() == nil {
			c.log.Debug().Err(sendFailure).Msg("audio upload stopped")
		}
		return model.Transcript{}, err
	}
	return transcript, nil
}

func (c *ASRClient) buildRequest(req model.TranscribeRequest, sessionID string) *asrRequest {
	r := &asrRequest{}
	r.User.UID = sessionID

	r.Audio.Format = req.Format
	if r.Audio.Format == "" {
		r.Audio.Format = "wav"
	}
	r.Audio.Language = req.Language
	if r.Audio.Language == "" {
		r.Audio.Language = c.cfg.ASRLanguage
	}
	if r.Audio.Language == "" {
		r.Audio.Language = "zh-CN"
	}
	r.Audio.Codec = "raw"
	r.Audio.Rate = 16000
	r.Audio.Bits = 16
	r.Audio.Channel = 1

	r.Request.ModelName = "bigmodel"
	r.Request.EnableITN = true
	r.Request.EnablePunc = true
	r.Request.ShowUtterances = true
	r.Request.ResultType = "full"
	r.Request.EndWindowSize = 800
	return r
}

func (c *ASRClient) sendAudio(ctx context.Context, conn *websocket.Conn, audio []byte) error {
	// 首帧占用序号1，音频从2开始
	seq := int32(2)
	for i := 0; i < len(audio); i += asrChunkSize {
		end := min(i+asrChunkSize, len(audio))
		last := end == len(audio)

		chunk, err := compress(audio[i:end], GzipCompression)
		if err != nil {
			return err
		}
		if err := writeFrame(conn, audioFrame(chunk, seq, last, GzipCompression)); err != nil {
			return err
		}
		if last {
			return nil
		}
		seq++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.interval):
		}
	}
	return nil
}

func (c *ASRClient) receive(conn *websocket.Conn, sessionID string, onPartial func(string)) (model.Transcript, error) {
	var (
		text     string
		duration int64
	)
	for {
		f, err := c.dialer.readFrame(conn)
		if err != nil {
			return model.Transcript{}, err
		}

		switch f.Header.Type {
		case ErrorMessage:
			return model.Transcript{}, frameError("ASR", f)

		case FullServerResponse:
			payload, err := decompress(f.Payload, f.Header.Compression)
			if err != nil {
				return model.Transcript{}, fmt.Errorf("decompress ASR payload: %w", err)
			}
			var resp asrResponse
			if err := sonic.Unmarshal(payload, &resp); err != nil {
				c.log.Warn().Err(err).Msg("unreadable ASR response")
				continue
			}
			if resp.Code != 0 && resp.Code != asrSuccessCode {
				return model.Transcript{}, serverError("ASR", resp.Code, resp.Message)
			}
			if candidate := resp.text(); candidate != "" && candidate != text {
				text = candidate
				if onPartial != nil && !f.Last() && resp.Sequence >= 0 {
					onPartial(text)
				}
			}
			if resp.AudioInfo.Duration > 0 {
				duration = resp.AudioInfo.Duration
			}

			if f.Last() || resp.Sequence < 0 {
				if strings.TrimSpace(text) == "" {
					return model.Transcript{}, voice.ErrNoSpeech
				}
				return model.Transcript{
					SessionID:  sessionID,
					Text:       text,
					Confidence: 0.95,
					Duration:   duration,
					RequestID:  sessionID,
					CreatedAt:  time.Now(),
				}, nil
			}
		}
	}
}
