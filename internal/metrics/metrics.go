// SPDX-License-Identifier: MIT

// Package metrics holds the service's package-level Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AdmissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenlight_admissions_total",
		Help: "Admission decisions by outcome",
	}, []string{"outcome"})

	RelocationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenlight_relocations_total",
		Help: "Visitors promoted from waiting to ready, by action group",
	}, []string{"action_group"})

	RelocationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenlight_relocation_failures_total",
		Help: "Per-visitor relocation failures, by action group and step",
	}, []string{"action_group", "step"})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "greenlight_queue_depth",
		Help: "Current ordered-set cardinality, by action group and status",
	}, []string{"action_group", "status"})

	BroadcastDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenlight_broadcast_drops_total",
		Help: "Status updates dropped because a subscriber sink was full",
	}, []string{"reason"})

	BroadcastSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "greenlight_broadcast_subscribers",
		Help: "Currently registered status subscriptions",
	})

	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "greenlight_events_dropped_total",
		Help: "Best-effort analytics events dropped, by reason",
	}, []string{"reason"})
)

// IncAdmission records one admission decision outcome.
func IncAdmission(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	AdmissionsTotal.WithLabelValues(outcome).Inc()
}
