package speech

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/yyc3/yunshu/backend/internal/handler/common"
	model "github.com/yyc3/yunshu/backend/internal/model/voice"
	"github.com/yyc3/yunshu/backend/internal/service/voice"
	"github.com/yyc3/yunshu/backend/pkg/utils"
)

const (
	maxUploadBytes = 32 << 20 // 32MB max
	maxChunkBytes  = 4 << 20
)

// Handler 语音服务的HTTP处理器
type Handler struct {
	capability voice.Capability
	dialogs    common.Dialogs
	log        zerolog.Logger
}

// New 创建语音处理器
func New(capability voice.Capability, dialogs common.Dialogs, log zerolog.Logger) *Handler {
	if capability == nil {
		capability = voice.Unsupported{}
	}
	return &Handler{capability: capability, dialogs: dialogs, log: log}
}

// RegisterRoutes 注册语音相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	base := common.DialogPath

	r.Get("/voices", h.handleVoices)

	r.Get(base+"/voice-settings", h.handleGetSettings)
	r.Put(base+"/voice-settings", h.handleUpdateSettings)

	r.Post(base+"/speak", h.handleSpeak)
	r.Delete(base+"/speak", h.handleStopSpeaking)
	r.Post(base+"/transcribe", h.handleTranscribe)
	r.Delete(base+"/transcribe", h.handleStopListening)

	r.Get(base+"/recording", h.handleRecordingStatus)
	r.Post(base+"/recording", h.handleStartRecording)
	r.Post(base+"/recording/chunks", h.handleRecordingChunk)
	r.Post(base+"/recording/save", h.handleSaveRecording)
	r.Delete(base+"/recording", h.handleDiscardRecording)
	r.Get(base+"/custom-voices", h.handleCustomVoices)
}

// handleVoices 返回语音能力与内置音色
func (h *Handler) handleVoices(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"supported": h.capability.Supported(),
		"voices":    h.capability.Voices(r.Context()),
	}
	if !h.capability.Supported() {
		resp["message"] = voice.MessageFor(voice.KindUnsupported)
	}
	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	d, ok := common.LoadDialog(w, r, h.dialogs)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, d.Settings())
}

// handleUpdateSettings 越界数值会被夹到允许范围内
func (h *Handler) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	d, ok := common.LoadDialog(w, r, h.dialogs)
	if !ok {
		return
	}
	var patch model.SettingsPatch
	if err := utils.DecodeJSON(r, &patch); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	utils.RespondJSON(w, http.StatusOK, d.UpdateSettings(patch))
}

// handleSpeak 音频分段通过事件流下发
func (h *Handler) handleSpeak(w http.ResponseWriter, r *http.Request) {
	d, ok := common.LoadDialog(w, r, h.dialogs)
	if !ok {
		return
	}
	var payload struct {
		Text string `json:"text"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := d.Speak(payload.Text); err != nil {
		common.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]bool{"speaking": true})
}

func (h *Handler) handleStopSpeaking(w http.ResponseWriter, r *http.Request) {
	d, ok := common.LoadDialog(w, r, h.dialogs)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"stopped": d.StopSpeaking()})
}

// handleTranscribe 识别上传的音频，结果只返回给客户端填入输入框
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	d, ok := common.LoadDialog(w, r, h.dialogs)
	if !ok {
		return
	}
	if !d.VoiceSupported() {
		common.RespondServiceError(w, voice.Classify(voice.ErrUnsupported))
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "audio file is required")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read audio")
		return
	}

	language := r.FormValue("language")
	if language == "" {
		language = "zh-CN"
	}

	transcript, err := d.Listen(r.Context(), model.TranscribeRequest{
		AudioData: audio,
		Format:    inferAudioFormat(header.Filename),
		Language:  language,
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dialog", d.ID()).Msg("transcription failed")
		common.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, transcript)
}

func (h *Handler) handleStopListening(w http.ResponseWriter, r *http.Request) {
	d, ok := common.LoadDialog(w, r, h.dialogs)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"stopped": d.StopListening()})
}

func (h *Handler) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	d, ok := common.LoadDialog(w, r, h.dialogs)
	if !ok {
		return
	}
	seconds, recording := d.RecordingSeconds()
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"recording":       recording,
		"durationSeconds": seconds,
	})
}

func (h *Handler) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	d, ok := common.LoadDialog(w, r, h.dialogs)
	if !ok {
		return
	}
	if err := d.StartRecording(); err != nil {
		common.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, map[string]bool{"recording": true})
}

// handleRecordingChunk 请求体为原始音频字节
func (h *Handler) handleRecordingChunk(w http.ResponseWriter, r *http.Request) {
	d, ok := common.LoadDialog(w, r, h.dialogs)
	if !ok {
		return
	}
	chunk, err := io.ReadAll(io.LimitReader(r.Body, maxChunkBytes))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read chunk")
		return
	}
	if len(chunk) == 0 {
		utils.RespondError(w, http.StatusBadRequest, "chunk is empty")
		return
	}
	if err := d.AppendRecording(chunk); err != nil {
		common.RespondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSaveRecording(w http.ResponseWriter, r *http.Request) {
	d, ok := common.LoadDialog(w, r, h.dialogs)
	if !ok {
		return
	}
	var payload struct {
		Name string `json:"name"`
	}
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cv, err := d.SaveRecording(payload.Name)
	if err != nil {
		common.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, cv)
}

func (h *Handler) handleDiscardRecording(w http.ResponseWriter, r *http.Request) {
	d, ok := common.LoadDialog(w, r, h.dialogs)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]bool{"discarded": d.DiscardRecording()})
}

func (h *Handler) handleCustomVoices(w http.ResponseWriter, r *http.Request) {
	d, ok := common.LoadDialog(w, r, h.dialogs)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, d.CustomVoices())
}

// inferAudioFormat 从文件名推断音频格式
func inferAudioFormat(filename string) string {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".mp3", ".wav", ".webm", ".m4a", ".aac", ".ogg", ".pcm":
		return strings.TrimPrefix(ext, ".")
	default:
		return "wav"
	}
}
