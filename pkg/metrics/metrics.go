package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "wadispatch"

var (
	CampaignsClaimed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "campaigns_claimed_total",
		Help:      "Campaigns claimed by the scheduler.",
	})

	CampaignsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "campaigns_finished_total",
		Help:      "Campaign runs that ended, by resulting status.",
	}, []string{"status"})

	CampaignsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "campaigns_active",
		Help:      "Campaigns currently processed by this process.",
	})

	MessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_total",
		Help:      "Outbound campaign messages by outcome.",
	}, []string{"outcome"})

	SendRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "send_retries_total",
		Help:      "Send attempts retried after a provider rate limit.",
	})

	DuplicatesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "duplicates_skipped_total",
		Help:      "Contacts skipped because their phone key was already sent to in the run.",
	})

	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_transitions_total",
		Help:      "Chat session state transitions by target state.",
	}, []string{"state"})

	AdmissionQueued = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "admission_queued",
		Help:      "Session bring-ups waiting for an admission slot.",
	})

	AdmissionActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "admission_active",
		Help:      "Session bring-ups currently running.",
	})

	AutoReplies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auto_replies_total",
		Help:      "Inbound messages handled by the auto-responder, by result.",
	}, []string{"result"})
)
