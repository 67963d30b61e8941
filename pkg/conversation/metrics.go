// Copyright 2024-2026 Aiku AI

package conversation

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the dispatch counters.
type Metrics struct {
	Mentions    *prometheus.CounterVec
	Deliveries  *prometheus.CounterVec
	Submissions *prometheus.CounterVec
}

// NewMetrics creates the dispatch collectors and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Mentions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threadtag",
			Name:      "mentions_total",
			Help:      "Mention tokens seen in dispatched content, by resolution result.",
		}, []string{"result"}),
		Deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threadtag",
			Name:      "deliveries_total",
			Help:      "Notification delivery attempts, by outcome.",
		}, []string{"outcome"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "threadtag",
			Name:      "submissions_total",
			Help:      "Post and reply submissions, by kind and outcome.",
		}, []string{"kind", "outcome"}),
	}
	if reg != nil {
		reg.MustRegister(m.Mentions, m.Deliveries, m.Submissions)
	}
	return m
}
