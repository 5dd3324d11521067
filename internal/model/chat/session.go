package chat

// Status 对话当前所处的处理阶段。
type Status string

const (
	StatusIdle       Status = "idle"
	StatusThinking   Status = "thinking"
	StatusResponding Status = "responding"
)

// Snapshot captures the observable state of a dialog at one instant.
// Listening and Speaking are orthogonal to Status.
type Snapshot struct {
	ID         string `json:"id"`
	Open       bool   `json:"open"`
	Status     Status `json:"status"`
	Listening  bool   `json:"listening"`
	Speaking   bool   `json:"speaking"`
	Recording  bool   `json:"recording"`
	Typing     string `json:"typing,omitempty"`
	Messages   int    `json:"messages"`
	VoiceReady bool   `json:"voiceReady"`
	// 当前事件订阅数（SSE 与 WebSocket 连接）
	Subscribers int `json:"subscribers"`
}
