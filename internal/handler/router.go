package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/yyc3/yunshu/backend/internal/handler/chat"
	"github.com/yyc3/yunshu/backend/internal/handler/speech"
	"github.com/yyc3/yunshu/backend/internal/handler/stream"
	"github.com/yyc3/yunshu/backend/internal/logger"
	chatService "github.com/yyc3/yunshu/backend/internal/service/chat"
	"github.com/yyc3/yunshu/backend/internal/service/voice"
	"github.com/yyc3/yunshu/backend/pkg/utils"
)

// Dependencies carries the services the router exposes.
type Dependencies struct {
	Dialogs    *chatService.Service
	Capability voice.Capability
	Gatherer   prometheus.Gatherer // nil disables /metrics
	Logger     zerolog.Logger
}

// NewRouter wires HTTP routes to core services.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logger.Middleware(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors)

	chatHandler := chat.New(deps.Dialogs, logger.Component(deps.Logger, "chat"))
	speechHandler := speech.New(deps.Capability, deps.Dialogs, logger.Component(deps.Logger, "speech"))
	wsHandler := speech.NewWebSocketHandler(deps.Dialogs, logger.Component(deps.Logger, "websocket"))
	streamHandler := stream.New(deps.Dialogs, logger.Component(deps.Logger, "stream"))

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		speechHandler.RegisterRoutes(api)
		wsHandler.RegisterWebSocketRoutes(api)
		streamHandler.RegisterRoutes(api)
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]any{
			"status":  "ok",
			"dialogs": deps.Dialogs.Len(),
		})
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// cors 允许任意来源访问接口
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
