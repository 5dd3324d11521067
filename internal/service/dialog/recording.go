package dialog

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	model "github.com/yyc3/yunshu/backend/internal/model/voice"
)

var (
	ErrNotRecording   = errors.New("no recording in progress")
	ErrEmptyRecording = errors.New("recording has no audio")
)

// StartRecording begins capturing a custom voice sample. A running
// recording is discarded first.
func (d *Dialog) StartRecording() error {
	d.mu.Lock()
	if !d.open {
		d.mu.Unlock()
		return ErrClosed
	}
	prev := d.stopRecordingLocked()
	stop := make(chan struct{})
	d.recording = &model.Recording{}
	d.recordStop = stop
	d.publish(Event{Type: EventRecording, Active: true})
	d.mu.Unlock()

	if prev != nil {
		close(prev)
	}
	go d.tickRecording(stop)
	return nil
}

// tickRecording 每秒累加录音时长，直到 stop 关闭
func (d *Dialog) tickRecording(stop chan struct{}) {
	ticker := time.NewTicker(d.opts.RecordingTick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		d.mu.Lock()
		if d.recordStop != stop || d.recording == nil {
			d.mu.Unlock()
			return
		}
		d.recording.DurationSeconds++
		d.publish(Event{Type: EventRecording, Active: true, Seconds: d.recording.DurationSeconds})
		d.mu.Unlock()
	}
}

// AppendRecording adds an audio chunk to the running recording.
func (d *Dialog) AppendRecording(chunk []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.recording == nil {
		return ErrNotRecording
	}
	d.recording.Chunks = append(d.recording.Chunks, bytes.Clone(chunk))
	return nil
}

// RecordingSeconds returns the elapsed recording time.
func (d *Dialog) RecordingSeconds() (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.recording == nil {
		return 0, false
	}
	return d.recording.DurationSeconds, true
}

// SaveRecording stops the recording and keeps it as a custom voice.
func (d *Dialog) SaveRecording(name string) (model.CustomVoice, error) {
	d.mu.Lock()
	rec := d.recording
	if rec == nil {
		d.mu.Unlock()
		return model.CustomVoice{}, ErrNotRecording
	}
	if len(rec.Chunks) == 0 {
		d.mu.Unlock()
		return model.CustomVoice{}, ErrEmptyRecording
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("自定义语音 %d", len(d.customVoices)+1)
	}
	cv := model.CustomVoice{
		ID:              uuid.Must(uuid.NewV7()).String(),
		Name:            name,
		AudioData:       bytes.Join(rec.Chunks, nil),
		DurationSeconds: rec.DurationSeconds,
		CreatedAt:       time.Now().UTC(),
	}
	d.customVoices = append(d.customVoices, cv)
	stop := d.stopRecordingLocked()
	d.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	d.log.Info().Str("voice", cv.ID).Int("seconds", cv.DurationSeconds).Msg("custom voice saved")
	return cv, nil
}

// DiscardRecording drops the running recording. It reports whether one existed.
func (d *Dialog) DiscardRecording() bool {
	d.mu.Lock()
	stop := d.stopRecordingLocked()
	d.mu.Unlock()

	if stop == nil {
		return false
	}
	close(stop)
	return true
}

// CustomVoices returns the saved recordings.
func (d *Dialog) CustomVoices() []model.CustomVoice {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]model.CustomVoice, len(d.customVoices))
	copy(out, d.customVoices)
	return out
}

func (d *Dialog) isCustomVoiceLocked(id string) bool {
	if id == "" {
		return false
	}
	for _, cv := range d.customVoices {
		if cv.ID == id {
			return true
		}
	}
	return false
}

// stopRecordingLocked clears the recording and returns its stop channel for
// the caller to close after releasing d.mu.
func (d *Dialog) stopRecordingLocked() chan struct{} {
	stop := d.recordStop
	if d.recording != nil {
		d.publish(Event{Type: EventRecording})
	}
	d.recording = nil
	d.recordStop = nil
	return stop
}
