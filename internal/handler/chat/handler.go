package chat

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/yyc3/yunshu/backend/internal/handler/common"
	"github.com/yyc3/yunshu/backend/internal/model/chat"
	"github.com/yyc3/yunshu/backend/internal/service/dialog"
	"github.com/yyc3/yunshu/backend/pkg/utils"
)

// maxAttachmentBytes 附件只读取文件名与大小，表单上限 32MB
const maxAttachmentBytes = 32 << 20

// DialogService 抽象对话注册表，便于测试
type DialogService interface {
	Create(ctx context.Context) *dialog.Dialog
	Get(ctx context.Context, id string) (*dialog.Dialog, error)
	Remove(ctx context.Context, id string) error
}

// Handler 对话服务的HTTP处理器
type Handler struct {
	dialogs DialogService
	log     zerolog.Logger
}

// New 创建对话处理器
func New(dialogs DialogService, log zerolog.Logger) *Handler {
	return &Handler{dialogs: dialogs, log: log}
}

// RegisterRoutes 注册对话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	base := common.DialogPath

	r.Post("/dialogs", h.handleCreate)
	r.Get(base, h.handleSnapshot)
	r.Delete(base, h.handleDelete)
	r.Post(base+"/open", h.handleOpen)
	r.Post(base+"/close", h.handleClose)
	r.Get(base+"/messages", h.handleListMessages)
	r.Post(base+"/messages", h.handleSubmit)
	r.Post(base+"/attachments", h.handleAttach)
}

type createResponse struct {
	ID       string        `json:"id"`
	Snapshot chat.Snapshot `json:"snapshot"`
}

// handleCreate 创建并打开对话
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	d := h.dialogs.Create(r.Context())
	h.log.Info().Str("dialog", d.ID()).Msg("dialog created")
	utils.RespondJSON(w, http.StatusCreated, createResponse{ID: d.ID(), Snapshot: d.Snapshot()})
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	d, ok := common.LoadDialog(w, r, h.dialogs)
	if !ok {
		return
	}
	utils.RespondJSON(w, http.StatusOK, d.Snapshot())
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.dialogs.Remove(r.Context(), chi.URLParam(r, common.DialogParam)); err != nil {
		common.RespondServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	d, ok := common.LoadDialog(w, r, h.dialogs)
	if !ok {
		return
	}
	d.Open()
	utils.RespondJSON(w, http.StatusOK, d.Snapshot())
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	d, ok := common.LoadDialog(w, r, h.dialogs)
	if !ok {
		return
	}
	d.Close()
	utils.RespondJSON(w, http.StatusOK, d.Snapshot())
}

// handleListMessages 返回消息列表；带 q 参数时返回匹配结果及高亮区间
func (h *Handler) handleListMessages(w http.ResponseWriter, r *http.Request) {
	d, ok := common.LoadDialog(w, r, h.dialogs)
	if !ok {
		return
	}
	query := r.URL.Query().Get("q")
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"results": d.SearchResults(query),
	})
}

// handleSubmit 提交用户输入，回复通过事件流异步送达
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
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

	msg, err := d.Submit(payload.Text)
	if err != nil {
		common.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, msg)
}

// handleAttach 只记录文件名，返回填入输入框的提示文本
func (h *Handler) handleAttach(w http.ResponseWriter, r *http.Request) {
	d, ok := common.LoadDialog(w, r, h.dialogs)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(maxAttachmentBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "file is required")
		return
	}
	file.Close()

	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"text": d.AttachFile(header.Filename, header.Size),
	})
}
