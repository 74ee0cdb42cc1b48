package resolver

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"reelgrab/internal/retriever"
)

// Enumerate collects content links from a creator's public profile. It
// performs scrollCount rounds of collect-then-scroll, deduplicating by
// canonical URL in first-seen order. Any failure mid-loop stops the walk and
// yields whatever was collected so far; enumeration never reports an error.
func (r *WebResolver) Enumerate(ctx context.Context, s retriever.Session, handle string, scrollCount int) []string {
	handle = retriever.NormalizeHandle(handle)
	if handle == "" {
		return nil
	}
	profileURL := strings.TrimSuffix(r.cfg.ProfileBaseURL, "/") + "/" + handle

	var ordered []string
	seen := make(map[string]struct{})

	if err := s.Navigate(ctx, profileURL); err != nil {
		r.logger.Warn("profile navigation failed", zap.String("handle", handle), zap.Error(err))
		return ordered
	}
	if err := pause(ctx, r.cfg.PageSettle); err != nil {
		return ordered
	}

	for i := 0; i < scrollCount; i++ {
		html, err := s.OuterHTML(ctx)
		if err != nil {
			r.logger.Warn("profile snapshot failed", zap.String("handle", handle), zap.Error(err))
			return ordered
		}
		for _, link := range extractItemLinks(html, profileURL) {
			if _, ok := seen[link]; ok {
				continue
			}
			seen[link] = struct{}{}
			ordered = append(ordered, link)
		}
		if err := s.ScrollBottom(ctx); err != nil {
			r.logger.Warn("profile scroll failed", zap.String("handle", handle), zap.Error(err))
			return ordered
		}
		if err := pause(ctx, r.cfg.ScrollSettle); err != nil {
			return ordered
		}
	}

	retriever.ProfileLinksFound.Add(float64(len(ordered)))
	r.logger.Info("profile enumerated",
		zap.String("handle", handle),
		zap.Int("links", len(ordered)),
		zap.Int("scrolls", scrollCount),
	)
	return ordered
}

// extractItemLinks parses rendered markup and returns canonical content-item
// URLs in document order. Relative hrefs are resolved against base.
func extractItemLinks(html, base string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || !retriever.IsItemLink(href) {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		links = append(links, retriever.CanonicalLink(baseURL.ResolveReference(ref).String()))
	})
	return links
}
