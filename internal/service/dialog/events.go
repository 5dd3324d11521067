package dialog

import (
	"time"

	"github.com/yyc3/yunshu/backend/internal/model/chat"
	"github.com/yyc3/yunshu/backend/internal/service/voice"
)

// EventType names what changed.
type EventType string

const (
	EventStatus            EventType = "status"
	EventTyping            EventType = "typing"
	EventMessage           EventType = "message"
	EventListening         EventType = "listening"
	EventTranscriptPartial EventType = "transcript.partial"
	EventTranscriptFinal   EventType = "transcript.final"
	EventVoiceRetrying     EventType = "voice.retrying"
	EventVoiceError        EventType = "voice.error"
	EventSpeaking          EventType = "speaking"
	EventAudio             EventType = "audio"
	EventRecording         EventType = "recording"
	EventReset             EventType = "reset"
)

// Event is broadcast to subscribers whenever the dialog changes.
type Event struct {
	Type     EventType     `json:"type"`
	DialogID string        `json:"dialogId"`
	Status   chat.Status   `json:"status,omitempty"`
	Text     string        `json:"text,omitempty"`
	Message  *chat.Message `json:"message,omitempty"`
	Active   bool          `json:"active,omitempty"`
	Kind     voice.Kind    `json:"kind,omitempty"`
	Attempt  int           `json:"attempt,omitempty"`
	Audio    []byte        `json:"audio,omitempty"`
	Format   string        `json:"format,omitempty"`
	Segment  int           `json:"segment,omitempty"`
	Segments int           `json:"segments,omitempty"`
	Seconds  int           `json:"seconds,omitempty"`
	At       time.Time     `json:"at"`
}

const subscriberBuffer = 256

// Subscribe returns a channel receiving every subsequent event and a function
// that unsubscribes and closes it. Slow subscribers drop events.
func (d *Dialog) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	d.subsMu.Lock()
	id := d.nextSub
	d.nextSub++
	d.subs[id] = ch
	d.subsMu.Unlock()

	var cancelled bool
	return ch, func() {
		d.subsMu.Lock()
		defer d.subsMu.Unlock()
		if cancelled {
			return
		}
		cancelled = true
		delete(d.subs, id)
		close(ch)
	}
}

func (d *Dialog) subscriberCount() int {
	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	return len(d.subs)
}

func (d *Dialog) publish(e Event) {
	e.DialogID = d.id
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	d.subsMu.Lock()
	defer d.subsMu.Unlock()
	for _, ch := range d.subs {
		select {
		case ch <- e:
		default:
			d.log.Debug().Str("event", string(e.Type)).Msg("subscriber full, event dropped")
		}
	}
}
