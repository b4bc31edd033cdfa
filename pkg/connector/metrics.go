// Copyright 2024-2026 Aiku AI

package connector

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the relay's prometheus collectors. All counters are labeled
// by account so a multi-account deployment can tell its puppets apart.
type Metrics struct {
	MessagesRelayed   *prometheus.CounterVec
	EchoesSuppressed  *prometheus.CounterVec
	DuplicatesDropped *prometheus.CounterVec
	DeliveryFailures  *prometheus.CounterVec
	Reconnects        *prometheus.CounterVec
	AccountsConnected prometheus.Gauge
}

// NewMetrics creates and registers the relay collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesRelayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skypebridge",
			Name:      "messages_relayed_total",
			Help:      "Messages relayed, by account and direction.",
		}, []string{"account_id", "direction"}),
		EchoesSuppressed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skypebridge",
			Name:      "echoes_suppressed_total",
			Help:      "Remote echoes of local sends swallowed by the deduplicator.",
		}, []string{"account_id"}),
		DuplicatesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skypebridge",
			Name:      "duplicates_dropped_total",
			Help:      "Repeat remote notifications dropped by the handled-id set.",
		}, []string{"account_id"}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skypebridge",
			Name:      "delivery_failures_total",
			Help:      "Relay operations that failed, by account and direction.",
		}, []string{"account_id", "direction"}),
		Reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "skypebridge",
			Name:      "reconnects_total",
			Help:      "Reconnect attempts after a transient connection error.",
		}, []string{"account_id"}),
		AccountsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "skypebridge",
			Name:      "accounts_connected",
			Help:      "Accounts currently in the connected state.",
		}),
	}
	reg.MustRegister(
		m.MessagesRelayed,
		m.EchoesSuppressed,
		m.DuplicatesDropped,
		m.DeliveryFailures,
		m.Reconnects,
		m.AccountsConnected,
	)
	return m
}

const (
	directionToHome   = "to_home"
	directionToRemote = "to_remote"
)
