package dialog_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yyc3/yunshu/backend/internal/analysis/reply"
	"github.com/yyc3/yunshu/backend/internal/metrics"
	model "github.com/yyc3/yunshu/backend/internal/model/chat"
	voicemodel "github.com/yyc3/yunshu/backend/internal/model/voice"
	"github.com/yyc3/yunshu/backend/internal/service/chat"
	"github.com/yyc3/yunshu/backend/internal/service/dialog"
	"github.com/yyc3/yunshu/backend/internal/service/voice"
)

const waitTimeout = 5 * time.Second

type fakeVoice struct {
	mu          sync.Mutex
	failures    int
	transcribed int
	synthesized []string
}

func (f *fakeVoice) Supported() bool { return true }

func (f *fakeVoice) Transcribe(_ context.Context, _ voicemodel.TranscribeRequest, onPartial func(string)) (voicemodel.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcribed++
	if f.failures > 0 {
		f.failures--
		return voicemodel.Transcript{}, voice.ErrNetwork
	}
	onPartial("帮我")
	return voicemodel.Transcript{Text: "帮我翻译"}, nil
}

func (f *fakeVoice) Synthesize(_ context.Context, text string, _ voicemodel.Settings) (voicemodel.Audio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synthesized = append(f.synthesized, text)
	return voicemodel.Audio{Data: []byte(text), Format: "mp3"}, nil
}

func (f *fakeVoice) Voices(context.Context) []voicemodel.Info {
	return []voicemodel.Info{{ID: "default", Name: "默认"}}
}

func (f *fakeVoice) spoken() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.synthesized...)
}

func fastOptions() dialog.Options {
	return dialog.Options{
		ThinkingDelay:  time.Millisecond,
		RevealInterval: time.Millisecond,
		RecordingTick:  5 * time.Millisecond,
		MaxRetries:     voice.DefaultMaxRetries,
		RetryDelay:     time.Millisecond,
	}
}

func newDialog(opts dialog.Options) *dialog.Dialog {
	return dialog.New("test", chat.NewStore(), opts)
}

func waitIdle(t *testing.T, d *dialog.Dialog) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := d.Snapshot()
		return s.Status == model.StatusIdle && s.Typing == ""
	}, waitTimeout, time.Millisecond)
}

func openAndWait(t *testing.T, d *dialog.Dialog) {
	t.Helper()
	d.Open()
	require.Eventually(t, func() bool { return len(d.Messages()) == 1 }, waitTimeout, time.Millisecond)
	waitIdle(t, d)
}

func TestOpenRevealsWelcomeOnce(t *testing.T) {
	d := newDialog(fastOptions())
	defer d.Close()

	events, unsubscribe := d.Subscribe()
	defer unsubscribe()

	openAndWait(t, d)

	msgs := d.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, model.RoleAssistant, msgs[0].Role)
	assert.Equal(t, reply.Welcome, msgs[0].Text)

	var typing int
	var last string
	for len(events) > 0 {
		e := <-events
		if e.Type == dialog.EventTyping {
			typing++
			assert.Greater(t, len([]rune(e.Text)), len([]rune(last)))
			last = e.Text
		}
	}
	assert.Equal(t, len([]rune(reply.Welcome)), typing)
	assert.Equal(t, reply.Welcome, last)

	d.Open()
	assert.Len(t, d.Messages(), 1)
}

func TestSubmitProducesKeywordReply(t *testing.T) {
	d := newDialog(fastOptions())
	defer d.Close()
	openAndWait(t, d)

	msg, err := d.Submit("  帮我翻译一段话 ")
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, msg.Role)
	assert.Equal(t, "帮我翻译一段话", msg.Text)
	assert.True(t, d.Snapshot().Status != model.StatusIdle)

	require.Eventually(t, func() bool { return len(d.Messages()) == 3 }, waitTimeout, time.Millisecond)
	waitIdle(t, d)

	msgs := d.Messages()
	assert.Equal(t, model.RoleUser, msgs[1].Role)
	assert.Equal(t, model.RoleAssistant, msgs[2].Role)
	assert.Equal(t, reply.Generate("帮我翻译一段话"), msgs[2].Text)
}

func TestSubmitStatusSequence(t *testing.T) {
	d := newDialog(fastOptions())
	defer d.Close()
	openAndWait(t, d)

	events, unsubscribe := d.Subscribe()
	defer unsubscribe()

	_, err := d.Submit("你好")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(d.Messages()) == 3 }, waitTimeout, time.Millisecond)
	waitIdle(t, d)

	var statuses []model.Status
	for len(events) > 0 {
		if e := <-events; e.Type == dialog.EventStatus {
			statuses = append(statuses, e.Status)
		}
	}
	assert.Equal(t, []model.Status{model.StatusThinking, model.StatusResponding, model.StatusIdle}, statuses)
}

func TestSubmitRejections(t *testing.T) {
	opts := fastOptions()
	opts.RevealInterval = 20 * time.Millisecond
	d := newDialog(opts)

	_, err := d.Submit("hello")
	assert.ErrorIs(t, err, dialog.ErrClosed)

	d.Open()
	_, err = d.Submit("   ")
	assert.ErrorIs(t, err, dialog.ErrEmptyInput)

	// 欢迎语仍在输出
	_, err = d.Submit("hello")
	assert.ErrorIs(t, err, dialog.ErrBusy)

	d.Close()
	assert.Empty(t, d.Messages())
}

func TestCloseCancelsReveal(t *testing.T) {
	opts := fastOptions()
	opts.RevealInterval = 5 * time.Millisecond
	d := newDialog(opts)

	d.Open()
	require.Eventually(t, func() bool { return d.Snapshot().Typing != "" }, waitTimeout, time.Millisecond)
	d.Close()

	snap := d.Snapshot()
	assert.False(t, snap.Open)
	assert.Equal(t, model.StatusIdle, snap.Status)
	assert.Empty(t, snap.Typing)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, d.Messages())
	assert.Empty(t, d.Snapshot().Typing)

	// 重新打开会清空并重新输出欢迎语
	openAndWait(t, d)
	assert.Len(t, d.Messages(), 1)
	d.Close()
}

func TestCloseDuringThinkingDropsReply(t *testing.T) {
	opts := fastOptions()
	opts.ThinkingDelay = time.Hour
	d := newDialog(opts)
	openAndWait(t, d)

	_, err := d.Submit("云枢")
	require.NoError(t, err)
	assert.Equal(t, model.StatusThinking, d.Snapshot().Status)

	d.Close()
	assert.Equal(t, model.StatusIdle, d.Snapshot().Status)
	assert.Len(t, d.Messages(), 2)
}

func TestResponderFailureFallsBack(t *testing.T) {
	opts := fastOptions()
	opts.Responder = dialog.ResponderFunc(func(context.Context, []model.Message, string) (string, error) {
		return "", errors.New("boom")
	})
	d := newDialog(opts)
	defer d.Close()
	openAndWait(t, d)

	_, err := d.Submit("anything")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(d.Messages()) == 3 }, waitTimeout, time.Millisecond)
	assert.Equal(t, reply.Fallback, d.Messages()[2].Text)
}

func TestFallbackReplyCountedAsFallbackRule(t *testing.T) {
	require.NotEqual(t, reply.FallbackRule, reply.RuleName("云枢"))

	opts := fastOptions()
	opts.Metrics = metrics.New(prometheus.NewRegistry())
	opts.Responder = dialog.ResponderFunc(func(context.Context, []model.Message, string) (string, error) {
		return "", errors.New("boom")
	})
	d := newDialog(opts)
	defer d.Close()
	openAndWait(t, d)

	_, err := d.Submit("云枢")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(d.Messages()) == 3 }, waitTimeout, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(opts.Metrics.ReplyRules.WithLabelValues(reply.FallbackRule)))
	assert.Zero(t, testutil.ToFloat64(opts.Metrics.ReplyRules.WithLabelValues(reply.RuleName("云枢"))))
}

func TestReopenWhileRespondingKeepsWelcome(t *testing.T) {
	release := make(chan struct{})
	called := make(chan struct{}, 1)
	opts := fastOptions()
	opts.Responder = dialog.ResponderFunc(func(context.Context, []model.Message, string) (string, error) {
		called <- struct{}{}
		<-release
		return "迟到的回复", nil
	})
	d := newDialog(opts)
	defer d.Close()
	openAndWait(t, d)

	_, err := d.Submit("云枢")
	require.NoError(t, err)
	select {
	case <-called:
	case <-time.After(waitTimeout):
		t.Fatal("responder never called")
	}

	d.Close()
	d.Open()
	close(release)

	require.Eventually(t, func() bool { return len(d.Messages()) == 1 }, waitTimeout, time.Millisecond)
	waitIdle(t, d)
	msgs := d.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, reply.Welcome, msgs[0].Text)
}

func TestSearch(t *testing.T) {
	d := newDialog(fastOptions())
	defer d.Close()
	openAndWait(t, d)

	_, err := d.Submit("医疗咨询")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(d.Messages()) == 3 }, waitTimeout, time.Millisecond)

	assert.Len(t, d.Search(""), 3)
	assert.Empty(t, d.Search("不存在的内容xyz"))
	found := d.Search("医疗")
	require.NotEmpty(t, found)
	assert.Equal(t, "医疗咨询", found[0].Text)

	results := d.SearchResults("医疗")
	require.NotEmpty(t, results)
	assert.NotEmpty(t, results[0].Highlights)
	assert.Len(t, d.Messages(), 3)
}

func TestUpdateSettingsClamps(t *testing.T) {
	d := newDialog(fastOptions())
	rate, volume := 5.0, -1.0
	voiceID := "calm-male"
	got := d.UpdateSettings(voicemodel.SettingsPatch{Rate: &rate, Volume: &volume, Voice: &voiceID})
	assert.Equal(t, voicemodel.MaxRate, got.Rate)
	assert.Equal(t, voicemodel.MinVolume, got.Volume)
	assert.Equal(t, 1.0, got.Pitch)
	assert.Equal(t, "calm-male", got.Voice)
	assert.Equal(t, got, d.Settings())
}

func TestRecordingSaveAndDiscard(t *testing.T) {
	d := newDialog(fastOptions())
	defer d.Close()
	assert.ErrorIs(t, d.StartRecording(), dialog.ErrClosed)
	openAndWait(t, d)

	assert.ErrorIs(t, d.AppendRecording([]byte{1}), dialog.ErrNotRecording)
	require.NoError(t, d.StartRecording())
	assert.True(t, d.Snapshot().Recording)

	_, err := d.SaveRecording("x")
	assert.ErrorIs(t, err, dialog.ErrEmptyRecording)

	require.NoError(t, d.AppendRecording([]byte{1, 2}))
	require.NoError(t, d.AppendRecording([]byte{3}))
	require.Eventually(t, func() bool {
		secs, ok := d.RecordingSeconds()
		return ok && secs >= 2
	}, waitTimeout, time.Millisecond)

	cv, err := d.SaveRecording("  ")
	require.NoError(t, err)
	assert.Equal(t, "自定义语音 1", cv.Name)
	assert.Equal(t, []byte{1, 2, 3}, cv.AudioData)
	assert.GreaterOrEqual(t, cv.DurationSeconds, 2)
	assert.False(t, d.Snapshot().Recording)
	assert.Len(t, d.CustomVoices(), 1)

	require.NoError(t, d.StartRecording())
	assert.True(t, d.DiscardRecording())
	assert.False(t, d.DiscardRecording())
	assert.Len(t, d.CustomVoices(), 1)

	voices := d.Voices(context.Background())
	require.Len(t, voices, 1)
	assert.True(t, voices[0].Custom)
}

func TestListenUnsupported(t *testing.T) {
	d := newDialog(fastOptions())
	defer d.Close()
	openAndWait(t, d)

	events, unsubscribe := d.Subscribe()
	defer unsubscribe()

	_, err := d.Listen(context.Background(), voicemodel.TranscribeRequest{AudioData: []byte{1}})
	var verr *voice.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, voice.KindUnsupported, verr.Kind)

	e := <-events
	assert.Equal(t, dialog.EventVoiceError, e.Type)
	assert.Equal(t, voice.MessageFor(voice.KindUnsupported), e.Text)
	assert.False(t, d.Snapshot().Listening)
	assert.ErrorAs(t, d.Speak("hi"), &verr)
}

func TestListenRetriesThenReturnsTranscript(t *testing.T) {
	fake := &fakeVoice{failures: 2}
	opts := fastOptions()
	opts.Capability = fake
	d := newDialog(opts)
	defer d.Close()
	openAndWait(t, d)

	events, unsubscribe := d.Subscribe()
	defer unsubscribe()

	got, err := d.Listen(context.Background(), voicemodel.TranscribeRequest{AudioData: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, "帮我翻译", got.Text)
	assert.Equal(t, 3, fake.transcribed)
	assert.False(t, d.Snapshot().Listening)
	// 识别结果不会自动发送
	assert.Len(t, d.Messages(), 1)

	var types []dialog.EventType
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	assert.Equal(t, []dialog.EventType{
		dialog.EventListening,
		dialog.EventVoiceRetrying,
		dialog.EventVoiceRetrying,
		dialog.EventTranscriptPartial,
		dialog.EventTranscriptFinal,
		dialog.EventListening,
	}, types)
}

func TestListenGivesUpAfterTwoRetries(t *testing.T) {
	fake := &fakeVoice{failures: 5}
	opts := fastOptions()
	opts.Capability = fake
	d := newDialog(opts)
	defer d.Close()
	openAndWait(t, d)

	_, err := d.Listen(context.Background(), voicemodel.TranscribeRequest{AudioData: []byte{1}})
	var verr *voice.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, voice.KindNetwork, verr.Kind)
	assert.Equal(t, 3, fake.transcribed)
}

func TestZeroMaxRetriesTranscribesOnce(t *testing.T) {
	fake := &fakeVoice{failures: 5}
	opts := fastOptions()
	opts.Capability = fake
	opts.MaxRetries = 0
	d := newDialog(opts)
	defer d.Close()
	openAndWait(t, d)

	_, err := d.Listen(context.Background(), voicemodel.TranscribeRequest{AudioData: []byte{1}})
	require.Error(t, err)
	assert.Equal(t, 1, fake.transcribed)
}

func TestAutoSpeakReadsReply(t *testing.T) {
	fake := &fakeVoice{}
	opts := fastOptions()
	opts.Capability = fake
	opts.AutoSpeak = true
	d := newDialog(opts)
	defer d.Close()
	openAndWait(t, d)
	assert.Empty(t, fake.spoken())

	_, err := d.Submit("社区")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(fake.spoken()) > 0 }, waitTimeout, time.Millisecond)
	require.Eventually(t, func() bool { return !d.Snapshot().Speaking }, waitTimeout, time.Millisecond)
	assert.Contains(t, reply.Generate("社区"), fake.spoken()[0])
}

func TestAttachFile(t *testing.T) {
	d := newDialog(fastOptions())
	assert.Equal(t, "已上传文件：report.pdf，请告诉我需要如何处理？", d.AttachFile("report.pdf", 1024))
}
