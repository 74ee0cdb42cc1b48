package retriever

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ItemsSucceeded counts items whose protocol completed with new files.
	ItemsSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelgrab_items_succeeded_total",
		Help: "The total number of items retrieved successfully.",
	})
	// ItemsFailed counts items that exhausted their retries.
	ItemsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelgrab_items_failed_total",
		Help: "The total number of items that failed after all attempts.",
	})
	// ItemsSkipped counts items skipped via the ledger dedup check.
	ItemsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelgrab_items_skipped_total",
		Help: "The total number of items skipped because they were already retrieved.",
	})
	// ProtocolRetries counts protocol re-attempts after a failure.
	ProtocolRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelgrab_protocol_retries_total",
		Help: "The total number of single-item protocol retries.",
	})
	// SessionsCreated counts browser sessions launched for pools.
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelgrab_sessions_created_total",
		Help: "The total number of automation sessions created.",
	})
	// BatchesRun counts orchestrator batch invocations.
	BatchesRun = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelgrab_batches_total",
		Help: "The total number of batches executed.",
	})
	// ProfileLinksFound counts links collected during profile enumeration.
	ProfileLinksFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelgrab_profile_links_found_total",
		Help: "The total number of content links collected from profiles.",
	})
)
