package dialog

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/yyc3/yunshu/backend/internal/analysis/reply"
	"github.com/yyc3/yunshu/backend/internal/metrics"
	"github.com/yyc3/yunshu/backend/internal/model/chat"
	"github.com/yyc3/yunshu/backend/internal/service/reveal"
	"github.com/yyc3/yunshu/backend/internal/service/voice"
)

// Defaults applied by Options.normalize.
const (
	DefaultThinkingDelay = time.Second
	DefaultRecordingTick = time.Second
)

// Responder produces the assistant reply for a user input.
type Responder interface {
	Respond(ctx context.Context, history []chat.Message, input string) (string, error)
}

// ResponderFunc adapts a plain function to Responder.
type ResponderFunc func(ctx context.Context, history []chat.Message, input string) (string, error)

// Respond calls f.
func (f ResponderFunc) Respond(ctx context.Context, history []chat.Message, input string) (string, error) {
	return f(ctx, history, input)
}

// KeywordResponder answers with the canned keyword replies.
var KeywordResponder Responder = ResponderFunc(func(_ context.Context, _ []chat.Message, input string) (string, error) {
	return reply.Generate(input), nil
})

// Store is the transcript a dialog writes to.
type Store interface {
	Append(chat.Message) chat.Message
	All() []chat.Message
	Len() int
	Reset()
}

// Options configures a dialog. ThinkingDelay, MaxRetries and RetryDelay are
// taken as given, so zero disables them; start from DefaultOptions for the
// standard pacing. Other zero values fall back to defaults.
type Options struct {
	Responder      Responder
	Capability     voice.Capability
	ThinkingDelay  time.Duration
	RevealInterval time.Duration
	RecordingTick  time.Duration
	AutoSpeak      bool
	SegmentLength  int
	MaxRetries     int
	RetryDelay     time.Duration
	DefaultVoice   string
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
}

// DefaultOptions returns the standard pacing: 1s thinking delay and two
// network retries one second apart.
func DefaultOptions() Options {
	return Options{
		ThinkingDelay:  DefaultThinkingDelay,
		RevealInterval: reveal.DefaultInterval,
		RecordingTick:  DefaultRecordingTick,
		SegmentLength:  voice.DefaultSegmentLength,
		MaxRetries:     voice.DefaultMaxRetries,
		RetryDelay:     voice.DefaultRetryDelay,
	}
}

func (o Options) normalize() Options {
	if o.Responder == nil {
		o.Responder = KeywordResponder
	}
	if o.Capability == nil {
		o.Capability = voice.Unsupported{}
	}
	if o.ThinkingDelay < 0 {
		o.ThinkingDelay = 0
	}
	if o.RevealInterval <= 0 {
		o.RevealInterval = reveal.DefaultInterval
	}
	if o.RecordingTick <= 0 {
		o.RecordingTick = DefaultRecordingTick
	}
	if o.SegmentLength <= 0 {
		o.SegmentLength = voice.DefaultSegmentLength
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.Metrics == nil {
		o.Metrics = metrics.Discard()
	}
	return o
}
