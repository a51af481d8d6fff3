package businessflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Contacts created by import, partitioned by source kind
	contactsImportedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_contacts_imported_total",
			Help: "Contacts created through the import pipeline",
		},
		[]string{"source"},
	)

	// Import rows rejected by validation or duplicate checks
	importRowErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_import_row_errors_total",
			Help: "Import rows that were skipped with an error",
		},
		[]string{"source"},
	)

	// Campaign status transitions
	campaignTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_campaign_transitions_total",
			Help: "Campaign status transitions",
		},
		[]string{"from", "to"},
	)

	// Delivery outcomes applied from sender results and webhooks
	deliveryOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexus_delivery_outcomes_total",
			Help: "Per-recipient delivery status changes",
		},
		[]string{"status"},
	)

	// Batches aborted by a transport failure
	dispatchFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nexus_dispatch_failures_total",
			Help: "Campaign dispatches paused by a transport failure",
		},
	)
)

func observeTransition(from, to string) {
	campaignTransitionsTotal.WithLabelValues(from, to).Inc()
}
