package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"reelgrab/internal/retriever"
)

// BatchState is the lifecycle of a submitted batch.
type BatchState string

const (
	// BatchRunning means the batch goroutine is still executing.
	BatchRunning BatchState = "running"
	// BatchDone means the final summary is available.
	BatchDone BatchState = "done"
)

// BatchRecord is the registry's view of one submission.
type BatchRecord struct {
	ID          string                  `json:"batch_id"`
	State       BatchState              `json:"state"`
	Kind        string                  `json:"kind"`
	RecipientID string                  `json:"recipient_id,omitempty"`
	Submitted   time.Time               `json:"submitted_at"`
	Finished    *time.Time              `json:"finished_at,omitempty"`
	Summary     *retriever.BatchSummary `json:"summary,omitempty"`
}

// registry tracks batch submissions in memory. State is not durable; the
// ledger holds the per-item outcomes that matter across restarts.
type registry struct {
	mu      sync.RWMutex
	batches map[string]*BatchRecord
}

func newRegistry() *registry {
	return &registry{batches: make(map[string]*BatchRecord)}
}

func (r *registry) create(kind, recipientID string) *BatchRecord {
	rec := &BatchRecord{
		ID:          uuid.NewString(),
		State:       BatchRunning,
		Kind:        kind,
		RecipientID: recipientID,
		Submitted:   time.Now().UTC(),
	}
	r.mu.Lock()
	r.batches[rec.ID] = rec
	r.mu.Unlock()
	return rec
}

func (r *registry) finish(id string, summary retriever.BatchSummary) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.batches[id]
	if !ok {
		return
	}
	rec.State = BatchDone
	rec.Finished = &now
	rec.Summary = &summary
}

func (r *registry) get(id string) (BatchRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.batches[id]
	if !ok {
		return BatchRecord{}, false
	}
	return *rec, true
}
