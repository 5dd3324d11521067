package voice

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/yyc3/yunshu/backend/internal/metrics"
	model "github.com/yyc3/yunshu/backend/internal/model/voice"
)

const (
	// DefaultMaxRetries bounds automatic retries after network failures.
	DefaultMaxRetries = 2
	// DefaultRetryDelay is the pause before each retry.
	DefaultRetryDelay = time.Second
)

// Listener runs transcriptions with bounded retry on network failures.
type Listener struct {
	capability Capability
	maxRetries int
	delay      time.Duration
	metrics    *metrics.Metrics
	log        zerolog.Logger
}

// ListenerOption customises a Listener.
type ListenerOption func(*Listener)

// WithMaxRetries overrides the retry bound. Negative values disable retry.
func WithMaxRetries(n int) ListenerOption {
	return func(l *Listener) {
		if n < 0 {
			n = 0
		}
		l.maxRetries = n
	}
}

// WithRetryDelay overrides the pause before a retry.
func WithRetryDelay(d time.Duration) ListenerOption {
	return func(l *Listener) {
		if d >= 0 {
			l.delay = d
		}
	}
}

// WithListenerMetrics records retries and failures.
func WithListenerMetrics(m *metrics.Metrics) ListenerOption {
	return func(l *Listener) {
		if m != nil {
			l.metrics = m
		}
	}
}

// WithListenerLogger sets the logger.
func WithListenerLogger(log zerolog.Logger) ListenerOption {
	return func(l *Listener) { l.log = log }
}

// NewListener wraps capability.
func NewListener(capability Capability, opts ...ListenerOption) *Listener {
	if capability == nil {
		capability = Unsupported{}
	}
	l := &Listener{
		capability: capability,
		maxRetries: DefaultMaxRetries,
		delay:      DefaultRetryDelay,
		metrics:    metrics.Discard(),
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RetryFunc is notified before each automatic retry, attempt counting from 1.
type RetryFunc func(attempt int, cause *Error)

// Transcribe runs one transcription. Network failures are retried up to the
// configured bound; every failure is returned as *Error.
func (l *Listener) Transcribe(ctx context.Context, req model.TranscribeRequest, onPartial func(string), onRetry RetryFunc) (model.Transcript, error) {
	if !l.capability.Supported() {
		return model.Transcript{}, l.fail(Classify(ErrUnsupported))
	}
	if len(req.AudioData) == 0 {
		return model.Transcript{}, l.fail(Classify(ErrNoAudio))
	}

	for attempt := 0; ; attempt++ {
		transcript, err := l.capability.Transcribe(ctx, req, onPartial)
		if err == nil {
			return transcript, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Transcript{}, &Error{Kind: KindCancelled, Err: ctxErr}
		}

		cause := Classify(err)
		if !Retryable(cause) || attempt >= l.maxRetries {
			return model.Transcript{}, l.fail(cause)
		}

		l.metrics.VoiceRetries.Inc()
		l.log.Warn().Err(err).Int("attempt", attempt+1).Msg("transcription failed, retrying")
		if onRetry != nil {
			onRetry(attempt+1, cause)
		}

		if err := sleep(ctx, l.delay); err != nil {
			return model.Transcript{}, &Error{Kind: KindCancelled, Err: err}
		}
	}
}

func (l *Listener) fail(e *Error) *Error {
	l.metrics.VoiceFailures.WithLabelValues(string(e.Kind)).Inc()
	return e
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
