// Package orchestrator owns batch execution: ledger dedup, the session
// pool, static round-robin assignment, throttled submission, retries, and
// progress notifications.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"reelgrab/internal/retriever"
	"reelgrab/internal/session"
)

// Config controls batch behavior.
type Config struct {
	// MaxWorkers is the pool size; at most this many protocols run at once.
	MaxWorkers int
	// Throttle is the minimum interval between successive protocol starts,
	// independent of completion rate.
	Throttle time.Duration
	// ScrollCount bounds profile enumeration.
	ScrollCount int
	// DownloadRoot is the base directory; each owner gets a subdirectory.
	DownloadRoot string
	// ProgressEvery emits a progress notification every Nth success.
	ProgressEvery int
	// ArchivePrefix prefixes blob paths when an archive store is wired.
	ArchivePrefix string
	// Retry overrides the default per-item retry policy when MaxAttempts > 0.
	Retry retriever.RetryPolicy
}

// Orchestrator coordinates one batch at a time per invocation. Notifier,
// expander, and archive are optional collaborators; a nil value disables
// that concern.
type Orchestrator struct {
	ledger   retriever.Ledger
	factory  retriever.SessionFactory
	resolver retriever.Resolver
	notifier retriever.Notifier
	expander retriever.LinkExpander
	archive  retriever.BlobStore
	retry    retriever.RetryPolicy
	cfg      Config
	logger   *zap.Logger
}

// New constructs an Orchestrator.
func New(
	ledger retriever.Ledger,
	factory retriever.SessionFactory,
	resolver retriever.Resolver,
	notifier retriever.Notifier,
	expander retriever.LinkExpander,
	archive retriever.BlobStore,
	cfg Config,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 2
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 5
	}
	if cfg.ScrollCount <= 0 {
		cfg.ScrollCount = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry = retriever.DefaultRetryPolicy()
	}
	return &Orchestrator{
		ledger:   ledger,
		factory:  factory,
		resolver: resolver,
		notifier: notifier,
		expander: expander,
		archive:  archive,
		retry:    retry,
		cfg:      cfg,
		logger:   logger,
	}
}

type job struct {
	item retriever.Item
}

type outcome struct {
	item  retriever.Item
	files []string
	dir   string
	err   error
}

// RunBatch retrieves every link, skipping items the ledger already marks as
// success, and returns the batch aggregates. Exactly one final summary
// notification is sent when a notifier is wired, regardless of internal
// failures.
func (o *Orchestrator) RunBatch(ctx context.Context, links []string, recipientID string) retriever.BatchSummary {
	retriever.BatchesRun.Inc()
	summary := retriever.BatchSummary{Total: len(links)}

	pending := o.prepare(ctx, links, &summary)
	if len(pending) > 0 {
		o.execute(ctx, pending, recipientID, &summary)
	}

	o.notify(ctx, recipientID, fmt.Sprintf(
		"Batch complete: %d succeeded / %d failed", summary.Succeeded, summary.Failed,
	))
	o.logger.Info("batch finished",
		zap.Int("total", summary.Total),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)
	return summary
}

// RunProfile enumerates a creator's profile on a dedicated session and runs
// the collected links as a batch. Enumeration failure is reported as "no
// items found", never as a batch failure.
func (o *Orchestrator) RunProfile(ctx context.Context, handle, recipientID string) retriever.BatchSummary {
	ses, err := o.factory.NewSession(ctx)
	if err != nil {
		o.logger.Warn("profile session unavailable", zap.String("handle", handle), zap.Error(err))
		o.notify(ctx, recipientID, fmt.Sprintf("No items found for %s", retriever.NormalizeHandle(handle)))
		return retriever.BatchSummary{}
	}
	links := o.resolver.Enumerate(ctx, ses, handle, o.cfg.ScrollCount)
	ses.Close()

	if len(links) == 0 {
		o.notify(ctx, recipientID, fmt.Sprintf("No items found for %s", retriever.NormalizeHandle(handle)))
		return retriever.BatchSummary{}
	}
	o.notify(ctx, recipientID, fmt.Sprintf(
		"Found %d items for %s, starting retrieval", len(links), retriever.NormalizeHandle(handle),
	))
	return o.RunBatch(ctx, links, recipientID)
}

// prepare parses and dedups the submitted links. Items already recorded as
// success count as succeeded without any protocol work; a ledger read error
// degrades to "not done" so work is redone rather than wrongly skipped.
func (o *Orchestrator) prepare(ctx context.Context, links []string, summary *retriever.BatchSummary) []retriever.Item {
	pending := make([]retriever.Item, 0, len(links))
	for _, link := range links {
		link = o.expand(ctx, link)
		item, err := retriever.ParseItem(link)
		if err != nil {
			summary.Failed++
			summary.FailedLinks = append(summary.FailedLinks, link)
			o.logger.Warn("unparseable link", zap.String("link", link), zap.Error(err))
			continue
		}
		done, err := o.ledger.IsDone(ctx, item.ID)
		if err != nil {
			o.logger.Warn("ledger read failed, treating item as pending",
				zap.String("id", item.ID), zap.Error(err))
		}
		if done {
			summary.Succeeded++
			retriever.ItemsSkipped.Inc()
			continue
		}
		pending = append(pending, item)
	}
	return pending
}

// execute runs pending items over an eagerly created pool. Assignment is
// static round-robin: the item at submission index i always runs on session
// i mod poolSize, for its full retry sequence. Per-session FIFO queues keep
// a session owned by exactly one goroutine.
func (o *Orchestrator) execute(ctx context.Context, pending []retriever.Item, recipientID string, summary *retriever.BatchSummary) {
	pool, err := session.Acquire(ctx, o.factory, o.cfg.MaxWorkers, o.logger)
	if err != nil {
		// The assignment model needs the full pool; abort before any item runs.
		o.logger.Error("pool acquisition failed, aborting batch", zap.Error(err))
		for _, item := range pending {
			summary.Failed++
			summary.FailedLinks = append(summary.FailedLinks, item.Link)
		}
		return
	}
	defer pool.Release()

	queues := make([][]job, pool.Size())
	for i, item := range pending {
		queues[i%pool.Size()] = append(queues[i%pool.Size()], job{item: item})
	}

	results := make(chan outcome, len(pending))
	gate := newStartGate(o.cfg.Throttle)

	var wg sync.WaitGroup
	for w := 0; w < pool.Size(); w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ses := pool.Get(w)
			for _, jb := range queues[w] {
				gate.Wait(ctx)
				files, dir, err := o.resolveWithRetry(ctx, ses, jb.item)
				results <- outcome{item: jb.item, files: files, dir: dir, err: err}
			}
		}(w)
	}

	// Aggregate in completion order.
	for range pending {
		out := <-results
		if out.err != nil {
			o.recordFailure(ctx, out, summary)
			continue
		}
		o.recordSuccess(ctx, out, recipientID, summary)
	}
	wg.Wait()
}

func (o *Orchestrator) recordSuccess(ctx context.Context, out outcome, recipientID string, summary *retriever.BatchSummary) {
	summary.Succeeded++
	retriever.ItemsSucceeded.Inc()
	rec := retriever.Record{
		ID:         out.item.ID,
		Owner:      out.item.Owner,
		Link:       out.item.Link,
		Status:     retriever.StatusSuccess,
		OutputPath: out.dir,
	}
	if err := o.ledger.Record(ctx, rec); err != nil {
		o.logger.Warn("ledger write failed", zap.String("id", out.item.ID), zap.Error(err))
	}
	o.archiveFiles(ctx, out)
	if summary.Succeeded%o.cfg.ProgressEvery == 0 {
		o.notify(ctx, recipientID, fmt.Sprintf(
			"Progress: %d of %d retrieved", summary.Succeeded, summary.Total,
		))
	}
}

func (o *Orchestrator) recordFailure(ctx context.Context, out outcome, summary *retriever.BatchSummary) {
	summary.Failed++
	summary.FailedLinks = append(summary.FailedLinks, out.item.Link)
	retriever.ItemsFailed.Inc()
	o.logger.Error("item failed",
		zap.String("id", out.item.ID),
		zap.String("link", out.item.Link),
		zap.Error(out.err),
	)
	rec := retriever.Record{
		ID:     out.item.ID,
		Owner:  out.item.Owner,
		Link:   out.item.Link,
		Status: retriever.StatusFailed,
	}
	if err := o.ledger.Record(ctx, rec); err != nil {
		o.logger.Warn("ledger write failed", zap.String("id", out.item.ID), zap.Error(err))
	}
}

// resolveWithRetry runs the whole protocol sequence as a retryable unit on
// the item's assigned session.
func (o *Orchestrator) resolveWithRetry(ctx context.Context, ses retriever.Session, item retriever.Item) ([]string, string, error) {
	outputDir := filepath.Join(o.cfg.DownloadRoot, item.Owner)
	attempts := 0
	for {
		files, err := o.resolver.Resolve(ctx, ses, item, outputDir)
		attempts++
		if err == nil {
			return files, outputDir, nil
		}
		if !o.retry.ShouldRetry(err, attempts) {
			return nil, outputDir, fmt.Errorf("after %d attempts: %w", attempts, err)
		}
		retriever.ProtocolRetries.Inc()
		o.logger.Warn("protocol attempt failed, retrying",
			zap.String("id", item.ID),
			zap.Int("attempt", attempts),
			zap.Error(err),
		)
		if waitErr := sleepCtx(ctx, o.retry.Backoff(attempts)); waitErr != nil {
			return nil, outputDir, err
		}
	}
}

// archiveFiles pushes freshly deposited files to the blob store.
// Best-effort: archival failure never affects batch accounting.
func (o *Orchestrator) archiveFiles(ctx context.Context, out outcome) {
	if o.archive == nil {
		return
	}
	for _, file := range out.files {
		uri, err := putFile(ctx, o.archive, o.cfg.ArchivePrefix, out.item.Owner, file)
		if err != nil {
			o.logger.Warn("archive upload failed", zap.String("file", file), zap.Error(err))
			continue
		}
		o.logger.Debug("archived", zap.String("file", file), zap.String("uri", uri))
	}
}

func (o *Orchestrator) notify(ctx context.Context, recipientID, text string) {
	if o.notifier == nil || recipientID == "" {
		return
	}
	if err := o.notifier.Notify(ctx, recipientID, text); err != nil {
		o.logger.Warn("notification failed", zap.String("recipient", recipientID), zap.Error(err))
	}
}

// startGate enforces the global minimum interval between protocol starts.
type startGate struct {
	mu       sync.Mutex
	next     time.Time
	interval time.Duration
}

func newStartGate(interval time.Duration) *startGate {
	return &startGate{interval: interval}
}

// Wait blocks until this caller's start slot arrives. Slots are spaced
// interval apart across all workers.
func (g *startGate) Wait(ctx context.Context) {
	if g.interval <= 0 {
		return
	}
	g.mu.Lock()
	now := time.Now()
	if g.next.Before(now) {
		g.next = now
	}
	wait := g.next.Sub(now)
	g.next = g.next.Add(g.interval)
	g.mu.Unlock()
	_ = sleepCtx(ctx, wait)
}

func (o *Orchestrator) expand(ctx context.Context, link string) string {
	if o.expander == nil {
		return link
	}
	expanded, err := o.expander.Expand(ctx, link)
	if err != nil {
		o.logger.Debug("link expansion failed", zap.String("link", link), zap.Error(err))
		return link
	}
	return expanded
}

func putFile(ctx context.Context, store retriever.BlobStore, prefix, owner, file string) (string, error) {
	f, err := os.Open(file)
	if err != nil {
		return "", fmt.Errorf("open archive source: %w", err)
	}
	defer f.Close()
	blobPath := path.Join(prefix, owner, filepath.Base(file))
	uri, err := store.PutObject(ctx, blobPath, "application/octet-stream", f)
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return uri, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
