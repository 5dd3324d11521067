package chat

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yyc3/yunshu/backend/internal/metrics"
	"github.com/yyc3/yunshu/backend/internal/service/dialog"
)

// ErrDialogNotFound is returned for unknown dialog ids.
var ErrDialogNotFound = errors.New("dialog not found")

// Service keeps the live dialogs.
type Service struct {
	opts    dialog.Options
	metrics *metrics.Metrics
	log     zerolog.Logger

	mu      sync.RWMutex
	dialogs map[string]*dialog.Dialog
}

// NewService creates a registry whose dialogs share opts.
func NewService(opts dialog.Options) *Service {
	m := opts.Metrics
	if m == nil {
		m = metrics.Discard()
		opts.Metrics = m
	}
	return &Service{
		opts:    opts,
		metrics: m,
		log:     opts.Logger,
		dialogs: make(map[string]*dialog.Dialog),
	}
}

// Create registers a new dialog and opens it.
func (s *Service) Create(_ context.Context) *dialog.Dialog {
	d := dialog.New(NewID(), NewStore(), s.opts)

	s.mu.Lock()
	s.dialogs[d.ID()] = d
	s.mu.Unlock()

	s.metrics.ActiveDialogs.Inc()
	d.Open()
	return d
}

// Get looks up a dialog.
func (s *Service) Get(_ context.Context, id string) (*dialog.Dialog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.dialogs[id]
	if !ok {
		return nil, ErrDialogNotFound
	}
	return d, nil
}

// Remove closes and forgets a dialog.
func (s *Service) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	d, ok := s.dialogs[id]
	delete(s.dialogs, id)
	s.mu.Unlock()

	if !ok {
		return ErrDialogNotFound
	}
	s.metrics.ActiveDialogs.Dec()
	d.Close()
	return nil
}

// Len returns the number of registered dialogs.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.dialogs)
}

// Shutdown closes every dialog.
func (s *Service) Shutdown() {
	s.mu.Lock()
	dialogs := s.dialogs
	s.dialogs = make(map[string]*dialog.Dialog)
	s.mu.Unlock()

	for _, d := range dialogs {
		d.Close()
	}
	s.metrics.ActiveDialogs.Set(0)
	s.log.Info().Int("dialogs", len(dialogs)).Msg("dialogs closed")
}
