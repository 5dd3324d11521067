package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/yyc3/yunshu/backend/internal/config"
	"github.com/yyc3/yunshu/backend/internal/logger"
	model "github.com/yyc3/yunshu/backend/internal/model/voice"
	"github.com/yyc3/yunshu/backend/internal/service/speech"
	"github.com/yyc3/yunshu/backend/internal/service/voice"
)

func main() {
	log := logger.New(logger.Config{Level: "debug", Pretty: true})

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("无法加载 .env，改用系统环境变量")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("配置加载失败")
	}

	mode := flag.String("mode", "", "测试模式: asr、tts 或 voices")
	audioPath := flag.String("audio", "", "ASR 输入音频文件路径")
	text := flag.String("text", "", "TTS 输入文本")
	outputPath := flag.String("out", "", "TTS 输出音频文件路径 (默认根据时间生成)")
	format := flag.String("format", "", "ASR 输入音频格式，默认取文件扩展名")
	language := flag.String("lang", "", "语言代码，默认使用配置中的语言")
	voiceID := flag.String("voice", "", "TTS 声音 ID 或别名，默认使用配置中的 TTSVoice")
	rate := flag.Float64("rate", 1, "TTS 语速 (0.5-2.0)")
	timeout := flag.Duration("timeout", 45*time.Second, "请求超时时间")

	flag.Parse()

	if *mode == "voices" {
		for _, info := range speech.Voices() {
			fmt.Printf("%-12s %-8s %s\n", info.ID, info.Language, info.Name)
		}
		return
	}
	if *mode != "asr" && *mode != "tts" {
		flag.Usage()
		log.Fatal().Msg("请通过 -mode=asr、-mode=tts 或 -mode=voices 指定测试模式")
	}

	if !cfg.Speech.Enabled() {
		log.Fatal().Msg("语音服务未启用，请先在环境变量中配置 SPEECH_APP_ID 与 SPEECH_ACCESS_TOKEN")
	}

	bridge, err := speech.NewBridge(cfg.Speech.Engine(), logger.Component(log, "speech"))
	if err != nil {
		log.Fatal().Err(err).Msg("语音桥接初始化失败")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "asr":
		runASR(ctx, bridge, cfg, log, *audioPath, *format, *language)
	case "tts":
		voiceName := *voiceID
		if voiceName == "" {
			voiceName = cfg.Speech.TTSVoice
		}
		settings := model.DefaultSettings(speech.NormalizeVoiceAlias(voiceName))
		settings.Rate = *rate
		runTTS(ctx, bridge, log, *text, settings.Clamp(), *outputPath)
	}
}

func runASR(ctx context.Context, bridge *speech.Bridge, cfg *config.Config, log zerolog.Logger, audioPath, format, language string) {
	if audioPath == "" {
		log.Fatal().Msg("ASR 模式需要通过 -audio 指定音频文件路径")
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatal().Err(err).Msg("读取音频文件失败")
	}

	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(audioPath)), ".")
		if format == "" {
			format = "wav"
		}
	}
	if language == "" {
		language = cfg.Speech.ASRLanguage
	}

	listener := voice.NewListener(bridge,
		voice.WithMaxRetries(cfg.Dialog.MaxRetries),
		voice.WithRetryDelay(cfg.Dialog.RetryDelay),
		voice.WithListenerLogger(log),
	)

	req := model.TranscribeRequest{
		SessionID: fmt.Sprintf("manual-%d", time.Now().UnixNano()),
		AudioData: audio,
		Format:    format,
		Language:  language,
	}
	log.Info().Str("format", format).Str("language", language).Int("bytes", len(audio)).Msg("开始进行 ASR 测试")

	transcript, err := listener.Transcribe(ctx, req,
		func(partial string) {
			log.Debug().Str("partial", partial).Msg("中间结果")
		},
		func(attempt int, cause *voice.Error) {
			log.Warn().Int("attempt", attempt).Str("kind", string(cause.Kind)).Msg(voice.RetryingMessage)
		},
	)
	if err != nil {
		log.Fatal().Err(err).Str("message", voice.Classify(err).Message()).Msg("ASR 调用失败")
	}

	log.Info().
		Str("text", transcript.Text).
		Float64("confidence", transcript.Confidence).
		Int64("duration_ms", transcript.Duration).
		Msg("ASR 识别成功")
}

// runTTS 按分段依次合成，拼接为一个音频文件
func runTTS(ctx context.Context, bridge *speech.Bridge, log zerolog.Logger, text string, settings model.Settings, outputPath string) {
	if strings.TrimSpace(text) == "" {
		log.Fatal().Msg("TTS 模式需要通过 -text 提供待合成文本")
	}

	segments := voice.Segment(text, voice.DefaultSegmentLength)
	log.Info().Str("voice", settings.Voice).Int("segments", len(segments)).Msg("开始进行 TTS 测试")

	var (
		out    bytes.Buffer
		format = "mp3"
	)
	for i, segment := range segments {
		audio, err := bridge.Synthesize(ctx, segment, settings)
		if err != nil {
			log.Fatal().Err(err).Int("segment", i+1).Str("message", voice.Classify(err).Message()).Msg("TTS 调用失败")
		}
		if audio.Format != "" {
			format = audio.Format
		}
		out.Write(audio.Data)
		log.Debug().Int("segment", i+1).Int("bytes", len(audio.Data)).Msg("分段合成完成")
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.%s", time.Now().Unix(), format)
	}
	if err := os.WriteFile(outputPath, out.Bytes(), 0o644); err != nil {
		log.Fatal().Err(err).Msg("写入音频文件失败")
	}

	log.Info().Str("output", outputPath).Int("bytes", out.Len()).Msg("TTS 合成成功")
}
