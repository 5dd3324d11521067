package dialog

import (
	"context"
	"errors"
	"strings"

	model "github.com/yyc3/yunshu/backend/internal/model/voice"
	"github.com/yyc3/yunshu/backend/internal/service/voice"
)

// VoiceSupported reports whether speech input and output are available.
func (d *Dialog) VoiceSupported() bool {
	return d.opts.Capability.Supported()
}

// Voices lists built-in voices followed by the dialog's custom voices.
func (d *Dialog) Voices(ctx context.Context) []model.Info {
	voices := d.opts.Capability.Voices(ctx)
	for _, cv := range d.CustomVoices() {
		voices = append(voices, model.Info{ID: cv.ID, Name: cv.Name, Custom: true})
	}
	return voices
}

// Listen transcribes audio. Partial and final transcripts, retries and
// failures are published as events; the final text is returned for the
// caller to place into the input, it is not submitted.
func (d *Dialog) Listen(ctx context.Context, req model.TranscribeRequest) (model.Transcript, error) {
	if !d.opts.Capability.Supported() {
		err := voice.Classify(voice.ErrUnsupported)
		d.publishVoiceError(err)
		return model.Transcript{}, err
	}

	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return model.Transcript{}, ErrClosed
	}
	if d.listening {
		d.mu.Unlock()
		return model.Transcript{}, ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	gen := d.gen
	d.listening = true
	d.listenCancel = cancel
	d.publish(Event{Type: EventListening, Active: true})
	d.mu.Unlock()

	defer func() {
		cancel()
		d.mu.Lock()
		if d.gen == gen && d.listening {
			d.listening = false
			d.listenCancel = nil
			d.publish(Event{Type: EventListening})
		}
		d.mu.Unlock()
	}()

	if req.SessionID == "" {
		req.SessionID = d.id
	}
	transcript, err := d.listener.Transcribe(ctx, req,
		func(partial string) {
			d.publishIfCurrent(gen, Event{Type: EventTranscriptPartial, Text: partial})
		},
		func(attempt int, cause *voice.Error) {
			d.publishIfCurrent(gen, Event{Type: EventVoiceRetrying, Kind: cause.Kind, Attempt: attempt, Text: voice.RetryingMessage})
		},
	)
	if err != nil {
		var verr *voice.Error
		if errors.As(err, &verr) && verr.Kind != voice.KindCancelled && d.current(gen) {
			d.publishVoiceError(verr)
		}
		return model.Transcript{}, err
	}

	d.publishIfCurrent(gen, Event{Type: EventTranscriptFinal, Text: transcript.Text})
	return transcript, nil
}

// StopListening cancels an in-flight transcription, including any pending
// retry delay.
func (d *Dialog) StopListening() bool {
	d.mu.Lock()
	cancel := d.listenCancel
	d.mu.Unlock()
	if cancel == nil {
		return false
	}
	cancel()
	return true
}

// Speak reads text aloud with the current settings, replacing any speech in
// progress. Audio is published segment by segment.
func (d *Dialog) Speak(text string) error {
	if !d.opts.Capability.Supported() {
		err := voice.Classify(voice.ErrUnsupported)
		d.publishVoiceError(err)
		return err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}

	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return ErrClosed
	}
	gen := d.gen
	settings := d.settings
	if d.isCustomVoiceLocked(settings.Voice) {
		// 自定义音色只保存录音，合成时回退到默认音色
		settings.Voice = d.opts.DefaultVoice
	}
	if !d.speaking {
		d.speaking = true
		d.publish(Event{Type: EventSpeaking, Active: true})
	}
	d.mu.Unlock()

	d.speaker.Speak(context.Background(), text, settings,
		func(c voice.Chunk) {
			d.publishIfCurrent(gen, Event{
				Type:     EventAudio,
				Audio:    c.Audio.Data,
				Format:   c.Audio.Format,
				Text:     c.Text,
				Segment:  c.Index,
				Segments: c.Total,
			})
		},
		func(err error) {
			d.mu.Lock()
			defer d.mu.Unlock()
			if d.gen != gen {
				return
			}
			if err != nil {
				d.publishVoiceError(voice.Classify(err))
			}
			if d.speaking {
				d.speaking = false
				d.publish(Event{Type: EventSpeaking})
			}
		},
	)
	return nil
}

// StopSpeaking cancels playback. It reports whether anything was playing.
func (d *Dialog) StopSpeaking() bool {
	stopped := d.speaker.Cancel()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.speaking {
		d.speaking = false
		d.publish(Event{Type: EventSpeaking})
	}
	return stopped
}

func (d *Dialog) publishIfCurrent(gen uint64, e Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.gen == gen {
		d.publish(e)
	}
}

func (d *Dialog) publishVoiceError(err *voice.Error) {
	d.publish(Event{Type: EventVoiceError, Kind: err.Kind, Text: err.Message()})
}
