// Package retriever defines the core types and interfaces for the media
// retrieval engine: items, ledger records, batch aggregates, and the
// contracts between the orchestrator and its collaborators.
package retriever

import "time"

// Kind distinguishes the two content forms the resolution surfaces handle.
type Kind string

// Item kinds.
const (
	KindVideo Kind = "video"
	KindPhoto Kind = "photo"
)

// ItemStatus is the lifecycle state of an item, as persisted in the ledger.
type ItemStatus string

// Item status values.
const (
	StatusPending ItemStatus = "pending"
	StatusSuccess ItemStatus = "success"
	StatusFailed  ItemStatus = "failed"
)

// Item is one unit of retrieval work, derived from a source link.
type Item struct {
	ID     string
	Link   string
	Kind   Kind
	Owner  string
	Status ItemStatus
}

// Record is the persisted outcome tuple for one item. The ledger keys on ID
// with insert-or-replace semantics, so a retry that eventually succeeds
// overwrites an earlier failed row.
type Record struct {
	ID         string
	Owner      string
	Link       string
	Status     ItemStatus
	Timestamp  time.Time
	OutputPath string
}

// Recipient is the append-only registration row for a notification target.
type Recipient struct {
	ID          string
	DisplayName string
	FirstSeenAt time.Time
}

// Stats aggregates terminal outcomes across the whole ledger.
type Stats struct {
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
}

// BatchSummary is the in-memory aggregate over one submitted list of items.
// It is created per orchestrator invocation and discarded after the final
// notification; it is never persisted.
type BatchSummary struct {
	Total       int      `json:"total"`
	Succeeded   int      `json:"succeeded"`
	Failed      int      `json:"failed"`
	FailedLinks []string `json:"failed_links,omitempty"`
}
