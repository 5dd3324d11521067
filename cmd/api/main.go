package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/yyc3/yunshu/backend/internal/config"
	"github.com/yyc3/yunshu/backend/internal/handler"
	"github.com/yyc3/yunshu/backend/internal/logger"
	"github.com/yyc3/yunshu/backend/internal/metrics"
	"github.com/yyc3/yunshu/backend/internal/service/ai"
	"github.com/yyc3/yunshu/backend/internal/service/chat"
	"github.com/yyc3/yunshu/backend/internal/service/dialog"
	"github.com/yyc3/yunshu/backend/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		bootstrap := logger.New(logger.Config{})
		bootstrap.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	if envErr != nil {
		log.Warn().Err(envErr).Msg("failed to load .env file, continuing with system environment variables only")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 未配置凭证时语音降级为不可用，文字对话不受影响
	capability := speech.NewCapability(cfg.Speech.Engine(), logger.Component(log, "speech"))
	if capability.Supported() {
		log.Info().Str("voice", cfg.Speech.TTSVoice).Msg("speech bridge initialized")
	} else {
		log.Info().Msg("语音服务凭证未配置，语音功能不可用")
	}

	aiService, err := ai.NewService(ctx, nil, logger.Component(log, "ai"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize reply service")
	}

	opts := cfg.Dialog.Options(dialog.DefaultOptions())
	opts.Responder = dialog.ResponderFunc(aiService.Respond)
	opts.Capability = capability
	opts.DefaultVoice = cfg.Speech.TTSVoice
	opts.Metrics = m
	opts.Logger = logger.Component(log, "dialog")

	dialogs := chat.NewService(opts)
	defer dialogs.Shutdown()

	router := handler.NewRouter(handler.Dependencies{
		Dialogs:    dialogs,
		Capability: capability,
		Gatherer:   reg,
		Logger:     log,
	})

	startServer(ctx, cfg.Server, router, log)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, log zerolog.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("yunshu backend listening")
	if err := runServer(ctx, srv, serverCfg.ShutdownTimeout); err != nil {
		log.Error().Err(err).Msg("server error")
		return
	}
	log.Info().Msg("server stopped")
}

func runServer(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
