// Package voice wraps optional speech capabilities behind a single interface
// and owns the retry, segmentation and exclusivity policies around them.
package voice

import (
	"context"

	model "github.com/yyc3/yunshu/backend/internal/model/voice"
)

// Capability 语音能力抽象，具体实现可能不可用
type Capability interface {
	// Supported reports whether speech services are available at all.
	Supported() bool
	// Transcribe converts audio to text. onPartial, when non-nil, receives
	// intermediate transcripts before the final result.
	Transcribe(ctx context.Context, req model.TranscribeRequest, onPartial func(text string)) (model.Transcript, error)
	// Synthesize renders text to audio using the given settings.
	Synthesize(ctx context.Context, text string, settings model.Settings) (model.Audio, error)
	// Voices lists the voices the capability can speak with.
	Voices(ctx context.Context) []model.Info
}

// Unsupported is the capability used when no speech backend is configured.
type Unsupported struct{}

// Supported always reports false.
func (Unsupported) Supported() bool { return false }

// Transcribe always fails with ErrUnsupported.
func (Unsupported) Transcribe(context.Context, model.TranscribeRequest, func(string)) (model.Transcript, error) {
	return model.Transcript{}, ErrUnsupported
}

// Synthesize always fails with ErrUnsupported.
func (Unsupported) Synthesize(context.Context, string, model.Settings) (model.Audio, error) {
	return model.Audio{}, ErrUnsupported
}

// Voices returns nothing.
func (Unsupported) Voices(context.Context) []model.Info { return nil }
