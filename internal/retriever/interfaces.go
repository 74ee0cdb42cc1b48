package retriever

import (
	"context"
	"io"
	"time"
)

// Ledger persists per-item outcomes and recipient metadata. Implementations
// must be safe for concurrent use; errors are returned to the caller so the
// orchestrator can apply its degraded-mode handling instead of the store
// swallowing failures.
type Ledger interface {
	// IsDone reports whether id has a record with status success.
	IsDone(ctx context.Context, id string) (bool, error)
	// Record upserts the outcome row keyed by id.
	Record(ctx context.Context, rec Record) error
	// Stats scans aggregate success/failure counts.
	Stats(ctx context.Context) (Stats, error)
	// UpsertRecipient inserts the recipient if absent; it never overwrites
	// the first-seen timestamp.
	UpsertRecipient(ctx context.Context, recipientID, displayName string) error
}

// Notifier delivers progress text to a recipient. Best-effort: the
// orchestrator logs failures and never retries them.
type Notifier interface {
	Notify(ctx context.Context, recipientID, text string) error
}

// Session is one automation-capable browser handle. It exposes the opaque
// interaction surface the resolver drives; every operation is bounded by the
// session's configured step timeout. A Session is owned by exactly one task
// at a time and is never shared between concurrently running protocols.
type Session interface {
	Navigate(ctx context.Context, url string) error
	// WaitVisible blocks until the selector is present, or the step timeout
	// elapses. Selectors starting with "//" are treated as XPath.
	WaitVisible(ctx context.Context, sel string) error
	Click(ctx context.Context, sel string) error
	// SetValue writes value into the input and dispatches input/change
	// events so client-side listeners fire.
	SetValue(ctx context.Context, sel, value string) error
	// TypeChars submits text one character at a time with the given pacing,
	// for inputs whose listeners expect incremental typing.
	TypeChars(ctx context.Context, sel, text string, pace time.Duration) error
	// SubmitEnter sends a keyboard Enter to the element.
	SubmitEnter(ctx context.Context, sel string) error
	ScrollBottom(ctx context.Context) error
	OuterHTML(ctx context.Context) (string, error)
	// SetDownloadDir points the browser's download sink at dir.
	SetDownloadDir(ctx context.Context, dir string) error
	Close()
}

// SessionFactory creates automation sessions. The pool calls it eagerly at
// batch start.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// Resolver executes the two interaction protocols against a session.
type Resolver interface {
	// Resolve runs the single-item protocol and returns the paths of files
	// newly deposited into outputDir. It fails when no new file appeared.
	Resolve(ctx context.Context, s Session, item Item, outputDir string) ([]string, error)
	// Enumerate collects content links from a creator profile. It never
	// returns an error; a failure mid-loop yields whatever was collected.
	Enumerate(ctx context.Context, s Session, handle string, scrollCount int) []string
}

// LinkExpander canonicalizes share links (redirect-following) so item IDs
// stay stable across shortened URLs.
type LinkExpander interface {
	Expand(ctx context.Context, link string) (string, error)
}

// BlobStore writes archived artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
