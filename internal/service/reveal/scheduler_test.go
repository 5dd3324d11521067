package reveal

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu        sync.Mutex
	prefixes  []string
	completes int
}

func (r *recorder) prefix(p string) {
	r.mu.Lock()
	r.prefixes = append(r.prefixes, p)
	r.mu.Unlock()
}

func (r *recorder) complete() {
	r.mu.Lock()
	r.completes++
	r.mu.Unlock()
}

func (r *recorder) snapshot() ([]string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.prefixes...), r.completes
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("reveal did not finish")
	}
}

func TestRevealEmitsIncreasingPrefixes(t *testing.T) {
	s := NewScheduler(time.Millisecond)
	rec := &recorder{}

	text := "云枢 AI"
	h := s.Reveal(text, rec.prefix, rec.complete)
	waitDone(t, h)

	prefixes, completes := rec.snapshot()
	require.Equal(t, []string{"云", "云枢", "云枢 ", "云枢 A", "云枢 AI"}, prefixes)
	assert.Equal(t, 1, completes)
	assert.True(t, h.Completed())
	assert.False(t, h.Cancel(), "cancel after completion reports nothing pending")
}

func TestRevealEmptyTextCompletes(t *testing.T) {
	s := NewScheduler(time.Millisecond)
	rec := &recorder{}

	h := s.Reveal("", rec.prefix, rec.complete)
	waitDone(t, h)

	prefixes, completes := rec.snapshot()
	assert.Empty(t, prefixes)
	assert.Equal(t, 1, completes)
}

func TestCancelSuppressesCompletion(t *testing.T) {
	s := NewScheduler(5 * time.Millisecond)
	rec := &recorder{}

	h := s.Reveal("a fairly long reply that will not finish", rec.prefix, rec.complete)
	time.Sleep(12 * time.Millisecond)
	require.True(t, h.Cancel())

	prefixesAtCancel, _ := rec.snapshot()
	waitDone(t, h)
	time.Sleep(20 * time.Millisecond)

	prefixes, completes := rec.snapshot()
	assert.Equal(t, prefixesAtCancel, prefixes, "no prefixes after cancel")
	assert.Equal(t, 0, completes)
	assert.False(t, h.Completed())
}

func TestNewRevealCancelsInFlight(t *testing.T) {
	s := NewScheduler(2 * time.Millisecond)
	first := &recorder{}
	second := &recorder{}

	h1 := s.Reveal("first reply that is rather long", first.prefix, first.complete)
	time.Sleep(5 * time.Millisecond)
	h2 := s.Reveal("second", second.prefix, second.complete)

	waitDone(t, h1)
	waitDone(t, h2)

	_, firstCompletes := first.snapshot()
	prefixes, secondCompletes := second.snapshot()
	assert.Equal(t, 0, firstCompletes)
	assert.Equal(t, 1, secondCompletes)
	assert.Equal(t, "second", prefixes[len(prefixes)-1])
}

func TestSchedulerCancelWithoutReveal(t *testing.T) {
	s := NewScheduler(0)
	assert.Equal(t, DefaultInterval, s.Interval())
	s.Cancel()
}

func TestRevealIfRejectedKeepsInFlight(t *testing.T) {
	s := NewScheduler(time.Millisecond)
	current, stale := &recorder{}, &recorder{}

	h := s.Reveal("欢迎", current.prefix, current.complete)
	assert.Nil(t, s.RevealIf(func() bool { return false }, "过期回复", stale.prefix, stale.complete))
	assert.False(t, s.CancelIf(func() bool { return false }))
	waitDone(t, h)

	_, completes := current.snapshot()
	assert.Equal(t, 1, completes)
	prefixes, staleCompletes := stale.snapshot()
	assert.Empty(t, prefixes)
	assert.Zero(t, staleCompletes)
}

func TestRevealIfAcceptedReplacesInFlight(t *testing.T) {
	s := NewScheduler(5 * time.Millisecond)
	first, second := &recorder{}, &recorder{}

	h1 := s.Reveal("a fairly long reply that will not finish", first.prefix, first.complete)
	h2 := s.RevealIf(func() bool { return true }, "ok", second.prefix, second.complete)
	require.NotNil(t, h2)
	waitDone(t, h1)
	waitDone(t, h2)

	_, completes := first.snapshot()
	assert.Zero(t, completes)
	_, completes = second.snapshot()
	assert.Equal(t, 1, completes)
}
