// Package probe resolves shortened share links to their canonical item URL
// before batch parsing, so dedup keys stay stable across link variants.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"reelgrab/internal/retriever"
)

const defaultTimeout = 10 * time.Second

// Expander follows HTTP redirects on share links and returns the canonical
// final URL. Links already pointing at a content item pass through without a
// network round trip.
type Expander struct {
	timeout   time.Duration
	userAgent string
	logger    *zap.Logger
}

var _ retriever.LinkExpander = (*Expander)(nil)

// New constructs an Expander. Zero timeout selects the default.
func New(timeout time.Duration, userAgent string, logger *zap.Logger) *Expander {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Expander{timeout: timeout, userAgent: userAgent, logger: logger}
}

// Expand returns the canonical URL the link ultimately lands on.
func (e *Expander) Expand(ctx context.Context, link string) (string, error) {
	if retriever.IsItemLink(link) {
		return retriever.CanonicalLink(link), nil
	}

	opts := []colly.CollectorOption{colly.MaxDepth(1)}
	if e.userAgent != "" {
		opts = append(opts, colly.UserAgent(e.userAgent))
	}
	c := colly.NewCollector(opts...)

	timeout := e.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	c.SetRequestTimeout(timeout)

	var final string
	c.OnResponse(func(r *colly.Response) {
		final = r.Request.URL.String()
	})

	if err := c.Visit(link); err != nil {
		return "", fmt.Errorf("expand %s: %w", link, err)
	}
	c.Wait()

	if final == "" {
		return "", fmt.Errorf("expand %s: no response", link)
	}
	canonical := retriever.CanonicalLink(final)
	e.logger.Debug("link expanded", zap.String("from", link), zap.String("to", canonical))
	return canonical, nil
}
