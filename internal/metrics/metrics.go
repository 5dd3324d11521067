// Package metrics exposes Prometheus collectors for dialogs and voice.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors used by the dialog service.
type Metrics struct {
	DialogsOpened    prometheus.Counter
	MessagesAppended *prometheus.CounterVec
	ReplyRules       *prometheus.CounterVec
	Reveals          *prometheus.CounterVec
	VoiceFailures    *prometheus.CounterVec
	VoiceRetries     prometheus.Counter
	SegmentsSpoken   prometheus.Counter
	ActiveDialogs    prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil registerer
// leaves them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DialogsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yunshu",
			Name:      "dialogs_opened_total",
			Help:      "Number of times a dialog was opened.",
		}),
		MessagesAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yunshu",
			Name:      "messages_appended_total",
			Help:      "Messages appended to dialog stores, by role.",
		}, []string{"role"}),
		ReplyRules: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yunshu",
			Name:      "reply_rule_hits_total",
			Help:      "Canned reply selections, by rule.",
		}, []string{"rule"}),
		Reveals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yunshu",
			Name:      "reveals_total",
			Help:      "Reveal runs, by outcome.",
		}, []string{"outcome"}),
		VoiceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yunshu",
			Name:      "voice_failures_total",
			Help:      "Voice bridge failures, by kind.",
		}, []string{"kind"}),
		VoiceRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yunshu",
			Name:      "voice_retries_total",
			Help:      "Automatic transcription retries after network failures.",
		}),
		SegmentsSpoken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "yunshu",
			Name:      "voice_segments_spoken_total",
			Help:      "Text segments synthesised.",
		}),
		ActiveDialogs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "yunshu",
			Name:      "dialogs_active",
			Help:      "Dialogs currently registered.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.DialogsOpened,
			m.MessagesAppended,
			m.ReplyRules,
			m.Reveals,
			m.VoiceFailures,
			m.VoiceRetries,
			m.SegmentsSpoken,
			m.ActiveDialogs,
		)
	}
	return m
}

// Discard returns unregistered collectors.
func Discard() *Metrics {
	return New(nil)
}
