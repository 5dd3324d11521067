package stream

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/yyc3/yunshu/backend/internal/handler/common"
	"github.com/yyc3/yunshu/backend/pkg/utils"
)

const heartbeatInterval = 8 * time.Second

// Handler pushes dialog events to clients via Server-Sent Events.
type Handler struct {
	dialogs   common.Dialogs
	heartbeat time.Duration
	log       zerolog.Logger
}

// New creates a new stream handler
func New(dialogs common.Dialogs, log zerolog.Logger) *Handler {
	return &Handler{dialogs: dialogs, heartbeat: heartbeatInterval, log: log}
}

// RegisterRoutes 注册事件流路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get(common.DialogPath+"/events", h.handleEvents)
}

// handleEvents 先发送当前快照，随后转发对话事件直到客户端断开
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	d, ok := common.LoadDialog(w, r, h.dialogs)
	if !ok {
		return
	}

	events, unsubscribe := d.Subscribe()
	defer unsubscribe()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	log := h.log.With().Str("dialog", d.ID()).Logger()
	log.Debug().Msg("event stream opened")
	defer log.Debug().Msg("event stream closed")

	if err := utils.SendSSEEvent(w, flusher, "snapshot", d.Snapshot()); err != nil {
		log.Warn().Err(err).Msg("send snapshot failed")
		return
	}

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := utils.SendSSEEvent(w, flusher, string(e.Type), e); err != nil {
				log.Debug().Err(err).Msg("event stream write failed")
				return
			}
		case t := <-ticker.C:
			if err := utils.SendSSEComment(w, flusher, "heartbeat "+t.UTC().Format(time.RFC3339)); err != nil {
				return
			}
		}
	}
}
