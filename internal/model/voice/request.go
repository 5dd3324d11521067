package voice

import "time"

// TranscribeRequest 语音识别请求
type TranscribeRequest struct {
	SessionID string `json:"sessionId"`
	AudioData []byte `json:"-"`
	Format    string `json:"format"`   // wav, pcm, webm ...
	Language  string `json:"language"` // zh-CN, en-US ...
}

// Transcript 语音识别结果
type Transcript struct {
	SessionID  string    `json:"sessionId"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Duration   int64     `json:"duration"` // milliseconds
	RequestID  string    `json:"requestId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Audio 语音合成结果
type Audio struct {
	Data      []byte    `json:"-"`
	Format    string    `json:"format"`
	Duration  int64     `json:"duration"` // milliseconds
	RequestID string    `json:"requestId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Info describes one selectable voice.
type Info struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Custom   bool   `json:"custom,omitempty"`
}

// Recording is an in-progress custom voice capture.
type Recording struct {
	Chunks          [][]byte `json:"-"`
	DurationSeconds int      `json:"durationSeconds"`
}

// CustomVoice is a saved recording.
type CustomVoice struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	AudioData       []byte    `json:"-"`
	DurationSeconds int       `json:"durationSeconds"`
	CreatedAt       time.Time `json:"createdAt"`
}
