// Package dialog implements the assistant conversation state machine:
// idle → thinking → responding → idle, with listening and speaking tracked
// independently.
package dialog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/yyc3/yunshu/backend/internal/analysis/reply"
	"github.com/yyc3/yunshu/backend/internal/analysis/search"
	"github.com/yyc3/yunshu/backend/internal/metrics"
	"github.com/yyc3/yunshu/backend/internal/model/chat"
	model "github.com/yyc3/yunshu/backend/internal/model/voice"
	"github.com/yyc3/yunshu/backend/internal/service/reveal"
	"github.com/yyc3/yunshu/backend/internal/service/voice"
)

var (
	ErrEmptyInput = errors.New("input is empty")
	ErrClosed     = errors.New("dialog is closed")
	ErrBusy       = errors.New("dialog is busy")
)

// respondTimeout bounds a single Responder call.
const respondTimeout = 30 * time.Second

// Dialog is one assistant conversation.
type Dialog struct {
	id        string
	opts      Options
	store     Store
	scheduler *reveal.Scheduler
	speaker   *voice.Speaker
	listener  *voice.Listener
	metrics   *metrics.Metrics
	log       zerolog.Logger

	mu         sync.Mutex
	gen        uint64 // bumped by Open/Close; callbacks from older generations are ignored
	open       bool
	status     chat.Status
	processing bool
	typing     string
	think      *time.Timer
	thinkStop  context.CancelFunc

	listening    bool
	listenCancel context.CancelFunc
	speaking     bool
	settings     model.Settings

	recording    *model.Recording
	recordStop   chan struct{}
	customVoices []model.CustomVoice

	subsMu  sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// New creates a closed dialog writing to store.
func New(id string, store Store, opts Options) *Dialog {
	opts = opts.normalize()
	log := opts.Logger.With().Str("dialog", id).Logger()

	return &Dialog{
		id:        id,
		opts:      opts,
		store:     store,
		scheduler: reveal.NewScheduler(opts.RevealInterval),
		speaker:   voice.NewSpeaker(opts.Capability, opts.SegmentLength, opts.Metrics, log),
		listener: voice.NewListener(opts.Capability,
			voice.WithMaxRetries(opts.MaxRetries),
			voice.WithRetryDelay(opts.RetryDelay),
			voice.WithListenerMetrics(opts.Metrics),
			voice.WithListenerLogger(log),
		),
		metrics:  opts.Metrics,
		log:      log,
		status:   chat.StatusIdle,
		settings: model.DefaultSettings(opts.DefaultVoice),
		subs:     make(map[int]chan Event),
	}
}

// ID returns the dialog identifier.
func (d *Dialog) ID() string { return d.id }

// Open resets the transcript and reveals the welcome text. Opening an open
// dialog does nothing.
func (d *Dialog) Open() {
	d.mu.Lock()
	if d.open {
		d.mu.Unlock()
		return
	}
	d.open = true
	d.gen++
	gen := d.gen
	d.store.Reset()
	d.processing = true
	d.typing = ""
	d.publish(Event{Type: EventReset})
	d.setStatus(chat.StatusResponding)
	d.mu.Unlock()

	d.metrics.DialogsOpened.Inc()
	d.log.Info().Msg("dialog opened")
	d.reveal(gen, reply.Welcome, false)
}

// Close cancels every pending timer, reveal, transcription, playback and
// recording. The dialog can be opened again.
func (d *Dialog) Close() {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return
	}
	d.open = false
	d.gen++
	gen := d.gen
	d.processing = false
	d.typing = ""
	if d.think != nil {
		d.think.Stop()
		d.think = nil
	}
	thinkStop := d.thinkStop
	d.thinkStop = nil
	listenCancel := d.listenCancel
	d.listenCancel = nil
	if d.listening {
		d.listening = false
		d.publish(Event{Type: EventListening})
	}
	if d.speaking {
		d.speaking = false
		d.publish(Event{Type: EventSpeaking})
	}
	recordStop := d.stopRecordingLocked()
	d.setStatus(chat.StatusIdle)
	d.mu.Unlock()

	// 以下调用可能等待回调结束，不能持有 d.mu。
	// 若其间已重新打开，新的揭示已替换旧的，不再取消。
	if d.scheduler.CancelIf(func() bool { return d.current(gen) }) {
		d.metrics.Reveals.WithLabelValues("cancelled").Inc()
	}
	d.speaker.Cancel()
	if thinkStop != nil {
		thinkStop()
	}
	if listenCancel != nil {
		listenCancel()
	}
	if recordStop != nil {
		close(recordStop)
	}
	d.log.Info().Msg("dialog closed")
}

// Submit appends the user's text and schedules the assistant reply.
func (d *Dialog) Submit(text string) (chat.Message, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return chat.Message{}, ErrEmptyInput
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.open {
		return chat.Message{}, ErrClosed
	}
	if d.processing {
		return chat.Message{}, ErrBusy
	}

	msg := d.appendLocked(chat.RoleUser, trimmed)
	d.processing = true
	d.setStatus(chat.StatusThinking)

	gen := d.gen
	history := d.store.All()
	ctx, cancel := context.WithTimeout(context.Background(), respondTimeout+d.opts.ThinkingDelay)
	d.thinkStop = cancel
	d.think = time.AfterFunc(d.opts.ThinkingDelay, func() {
		d.respond(ctx, gen, history[:len(history)-1], trimmed)
	})
	return msg, nil
}

func (d *Dialog) respond(ctx context.Context, gen uint64, history []chat.Message, input string) {
	text, err := d.opts.Responder.Respond(ctx, history, input)
	rule := reply.RuleName(input)
	if err != nil || strings.TrimSpace(text) == "" {
		if ctx.Err() != nil && !d.current(gen) {
			return
		}
		d.log.Warn().Err(err).Msg("responder failed, using fallback reply")
		text = reply.Fallback
		rule = reply.FallbackRule
	}

	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		return
	}
	d.think = nil
	if d.thinkStop != nil {
		d.thinkStop()
		d.thinkStop = nil
	}
	d.typing = ""
	d.setStatus(chat.StatusResponding)
	d.mu.Unlock()

	d.metrics.ReplyRules.WithLabelValues(rule).Inc()
	d.reveal(gen, text, true)
}

// reveal types text out and appends it as an assistant message when done.
// Must be called without d.mu held.
func (d *Dialog) reveal(gen uint64, text string, speak bool) {
	// 代次检查与替换在调度器锁内完成，过期的回复不会取消新一代的揭示
	d.scheduler.RevealIf(func() bool { return d.current(gen) }, text,
		func(prefix string) { d.onPrefix(gen, prefix) },
		func() { d.onRevealDone(gen, text, speak) },
	)
}

func (d *Dialog) onPrefix(gen uint64, prefix string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen != gen {
		return
	}
	d.typing = prefix
	d.publish(Event{Type: EventTyping, Text: prefix})
}

func (d *Dialog) onRevealDone(gen uint64, text string, speak bool) {
	d.mu.Lock()
	if d.gen != gen {
		d.mu.Unlock()
		return
	}
	d.appendLocked(chat.RoleAssistant, text)
	d.typing = ""
	d.processing = false
	d.setStatus(chat.StatusIdle)
	autoSpeak := speak && d.opts.AutoSpeak && d.opts.Capability.Supported()
	d.mu.Unlock()

	d.metrics.Reveals.WithLabelValues("completed").Inc()
	if autoSpeak {
		// 回调中不能同步等待，播放放到独立 goroutine
		go func() {
			if err := d.Speak(text); err != nil {
				d.log.Debug().Err(err).Msg("auto speak skipped")
			}
		}()
	}
}

func (d *Dialog) current(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.gen == gen
}

func (d *Dialog) appendLocked(role chat.Role, text string) chat.Message {
	msg := d.store.Append(chat.Message{Role: role, Text: text})
	d.metrics.MessagesAppended.WithLabelValues(string(role)).Inc()
	d.publish(Event{Type: EventMessage, Message: &msg})
	return msg
}

func (d *Dialog) setStatus(status chat.Status) {
	if d.status == status {
		return
	}
	d.status = status
	d.publish(Event{Type: EventStatus, Status: status})
}

// Messages returns the transcript in display order.
func (d *Dialog) Messages() []chat.Message {
	return d.store.All()
}

// Search returns the messages containing query, case-insensitively. A blank
// query returns the whole transcript.
func (d *Dialog) Search(query string) []chat.Message {
	return search.Filter(d.store.All(), query)
}

// SearchResults is Search with highlight spans.
func (d *Dialog) SearchResults(query string) []search.Result {
	return search.Results(d.store.All(), query)
}

// Snapshot reports the current observable state.
func (d *Dialog) Snapshot() chat.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return chat.Snapshot{
		ID:          d.id,
		Open:        d.open,
		Status:      d.status,
		Listening:   d.listening,
		Speaking:    d.speaking,
		Recording:   d.recording != nil,
		Typing:      d.typing,
		Messages:    d.store.Len(),
		VoiceReady:  d.opts.Capability.Supported(),
		Subscribers: d.subscriberCount(),
	}
}

// Settings returns the current voice settings.
func (d *Dialog) Settings() model.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings
}

// UpdateSettings applies patch, clamping values into range.
func (d *Dialog) UpdateSettings(patch model.SettingsPatch) model.Settings {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.settings = d.settings.Apply(patch)
	return d.settings
}

// AttachFile returns the input text announcing an uploaded file. File
// contents are never read.
func (d *Dialog) AttachFile(name string, size int64) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "未命名文件"
	}
	d.log.Debug().Str("file", name).Int64("size", size).Msg("file attached")
	return "已上传文件：" + name + "，请告诉我需要如何处理？"
}
