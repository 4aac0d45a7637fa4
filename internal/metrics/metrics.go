// Package metrics registers the Prometheus collectors exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesReceived counts field reports accepted by the webhook or CLI.
	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agro_messages_received_total",
		Help: "Total number of field reports received.",
	})

	// ParseOutcomes counts completions by the parser stage that produced them.
	ParseOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agro_parse_outcomes_total",
		Help: "Total number of completions by parse outcome.",
	}, []string{"outcome"})

	// Fallbacks counts placeholder records emitted for unreadable completions.
	Fallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agro_fallback_records_total",
		Help: "Total number of placeholder records emitted.",
	})

	// RecordsAppended counts body rows written to ledger snapshots.
	RecordsAppended = promauto.NewCounter(prometheus.CounterOpts{
		Name: "agro_ledger_records_appended_total",
		Help: "Total number of records appended to the ledger.",
	})

	// FlaggedCells counts highlighted ledger cells by flag.
	FlaggedCells = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agro_ledger_flagged_cells_total",
		Help: "Total number of ledger cells flagged for review or inferred.",
	}, []string{"flag"})

	// JobsProcessed counts finished queue jobs by final status.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agro_jobs_processed_total",
		Help: "Total number of processed jobs by status.",
	}, []string{"status"})
)
