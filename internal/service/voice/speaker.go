package voice

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yyc3/yunshu/backend/internal/metrics"
	model "github.com/yyc3/yunshu/backend/internal/model/voice"
)

// Chunk is one synthesised segment of a speak request.
type Chunk struct {
	Index int
	Total int
	Text  string
	Audio model.Audio
}

// Speaker plays text one segment at a time. At most one speak is active;
// starting a new one cancels the previous.
type Speaker struct {
	capability Capability
	maxRunes   int
	metrics    *metrics.Metrics
	log        zerolog.Logger

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// NewSpeaker creates a speaker splitting text into maxRunes chunks.
func NewSpeaker(capability Capability, maxRunes int, m *metrics.Metrics, log zerolog.Logger) *Speaker {
	if capability == nil {
		capability = Unsupported{}
	}
	if maxRunes <= 0 {
		maxRunes = DefaultSegmentLength
	}
	if m == nil {
		m = metrics.Discard()
	}
	return &Speaker{capability: capability, maxRunes: maxRunes, metrics: m, log: log}
}

// Speak cancels any active speak and starts synthesising text. sink receives
// each chunk in order. onDone runs once after the last chunk, or with the
// classified error when synthesis fails; a cancelled speak never calls it.
func (s *Speaker) Speak(ctx context.Context, text string, settings model.Settings, sink func(Chunk), onDone func(error)) {
	segments := Segment(text, s.maxRunes)
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	prev := s.cancel
	s.seq++
	id := s.seq
	s.cancel = cancel
	s.mu.Unlock()

	if prev != nil {
		prev()
	}
	go s.run(runCtx, id, segments, settings, sink, onDone)
}

// Cancel stops the active speak. It reports whether one was running.
func (s *Speaker) Cancel() bool {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.seq++
	s.mu.Unlock()

	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Speaking reports whether a speak is in progress.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Speaker) run(ctx context.Context, id uint64, segments []string, settings model.Settings, sink func(Chunk), onDone func(error)) {
	for i, seg := range segments {
		audio, err := s.capability.Synthesize(ctx, seg, settings.Clamp())
		if !s.current(ctx, id) {
			return
		}
		if err != nil {
			cause := Classify(err)
			s.metrics.VoiceFailures.WithLabelValues(string(cause.Kind)).Inc()
			s.log.Warn().Err(err).Int("segment", i).Msg("synthesis failed")
			s.finish(id, onDone, cause)
			return
		}
		s.metrics.SegmentsSpoken.Inc()
		if sink != nil {
			sink(Chunk{Index: i, Total: len(segments), Text: seg, Audio: audio})
		}
	}
	s.finish(id, onDone, nil)
}

func (s *Speaker) current(ctx context.Context, id uint64) bool {
	if ctx.Err() != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq == id
}

func (s *Speaker) finish(id uint64, onDone func(error), err error) {
	s.mu.Lock()
	if s.seq != id {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if onDone != nil {
		onDone(err)
	}
}
