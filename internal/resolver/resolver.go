// Package resolver implements the two interaction protocols against the
// external resolution surfaces: the single-item retrieval state machine and
// the profile enumeration scroll loop.
package resolver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"reelgrab/internal/retriever"
)

// Config controls the resolution surfaces and pacing. The two service URLs
// form a fixed two-branch protocol keyed by item kind, not a pluggable
// per-link registry.
type Config struct {
	VideoServiceURL string
	PhotoServiceURL string
	ProfileBaseURL  string

	// PageSettle is the wait after navigating to a surface, SubmitSettle
	// the wait after injecting the link, FetchSettle the wait after
	// triggering the download, ScrollSettle the wait after each profile
	// scroll. TypePace spaces the photo branch's per-character input.
	PageSettle   time.Duration
	SubmitSettle time.Duration
	FetchSettle  time.Duration
	ScrollSettle time.Duration
	TypePace     time.Duration
}

const (
	defaultVideoServiceURL = "https://www.tikwm.com/originalDownloader.html"
	defaultPhotoServiceURL = "https://imaiger.com/tool/tiktok-slideshow-downloader"
	defaultProfileBaseURL  = "https://www.tiktok.com"

	videoInputSel   = "input#url, .form-control"
	videoSubmitSel  = "button#search_btn"
	videoTriggerSel = `//a[contains(@class, 'download') and contains(@href, 'tikwm.com')]`

	photoInputSel   = "input"
	photoSubmitSel  = `//button[contains(., 'Load')]`
	photoTriggerSel = `//button[contains(text(), 'Download All')]`
)

// WebResolver drives the web-based resolution surfaces through a Session.
type WebResolver struct {
	cfg    Config
	logger *zap.Logger
}

var _ retriever.Resolver = (*WebResolver)(nil)

// New builds a WebResolver, filling zero config fields with production
// defaults.
func New(cfg Config, logger *zap.Logger) *WebResolver {
	if cfg.VideoServiceURL == "" {
		cfg.VideoServiceURL = defaultVideoServiceURL
	}
	if cfg.PhotoServiceURL == "" {
		cfg.PhotoServiceURL = defaultPhotoServiceURL
	}
	if cfg.ProfileBaseURL == "" {
		cfg.ProfileBaseURL = defaultProfileBaseURL
	}
	if cfg.PageSettle <= 0 {
		cfg.PageSettle = 6 * time.Second
	}
	if cfg.SubmitSettle <= 0 {
		cfg.SubmitSettle = 2 * time.Second
	}
	if cfg.FetchSettle <= 0 {
		cfg.FetchSettle = 6 * time.Second
	}
	if cfg.ScrollSettle <= 0 {
		cfg.ScrollSettle = 3 * time.Second
	}
	if cfg.TypePace <= 0 {
		cfg.TypePace = 10 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebResolver{cfg: cfg, logger: logger}
}

// Resolve runs the snapshot/dispatch/submit/fetch/verify sequence for one
// item and returns the files newly deposited into outputDir. Success is
// detected by comparing the directory listing before and after: the external
// surface pushes files into the session's download directory and offers no
// more precise completion signal.
func (r *WebResolver) Resolve(ctx context.Context, s retriever.Session, item retriever.Item, outputDir string) ([]string, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	before, err := listFiles(outputDir)
	if err != nil {
		return nil, fmt.Errorf("snapshot output dir: %w", err)
	}

	if err := s.SetDownloadDir(ctx, outputDir); err != nil {
		return nil, fmt.Errorf("set download dir: %w", err)
	}

	switch item.Kind {
	case retriever.KindPhoto:
		err = r.resolvePhoto(ctx, s, item.Link)
	default:
		err = r.resolveVideo(ctx, s, item.Link)
	}
	if err != nil {
		return nil, err
	}

	after, err := listFiles(outputDir)
	if err != nil {
		return nil, fmt.Errorf("verify output dir: %w", err)
	}
	if len(after) <= len(before) {
		return nil, fmt.Errorf("no new file in %s after protocol run", outputDir)
	}

	fresh := diffFiles(before, after)
	paths := make([]string, 0, len(fresh))
	for _, name := range fresh {
		paths = append(paths, filepath.Join(outputDir, name))
	}
	return paths, nil
}

func (r *WebResolver) resolveVideo(ctx context.Context, s retriever.Session, link string) error {
	if err := s.Navigate(ctx, r.cfg.VideoServiceURL); err != nil {
		return fmt.Errorf("video dispatch: %w", err)
	}
	if err := s.SetValue(ctx, videoInputSel, link); err != nil {
		return fmt.Errorf("video submit: %w", err)
	}
	if err := pause(ctx, r.cfg.SubmitSettle); err != nil {
		return err
	}
	if err := s.Click(ctx, videoSubmitSel); err != nil {
		return fmt.Errorf("video submit: %w", err)
	}
	if err := s.WaitVisible(ctx, videoTriggerSel); err != nil {
		return fmt.Errorf("video fetch: %w", err)
	}
	if err := s.Click(ctx, videoTriggerSel); err != nil {
		return fmt.Errorf("video fetch: %w", err)
	}
	return pause(ctx, r.cfg.FetchSettle)
}

func (r *WebResolver) resolvePhoto(ctx context.Context, s retriever.Session, link string) error {
	if err := s.Navigate(ctx, r.cfg.PhotoServiceURL); err != nil {
		return fmt.Errorf("photo dispatch: %w", err)
	}
	if err := pause(ctx, r.cfg.PageSettle); err != nil {
		return err
	}
	if err := s.WaitVisible(ctx, photoInputSel); err != nil {
		return fmt.Errorf("photo submit: %w", err)
	}
	if err := s.TypeChars(ctx, photoInputSel, link, r.cfg.TypePace); err != nil {
		return fmt.Errorf("photo submit: %w", err)
	}
	// The dedicated trigger is not always rendered; fall back to a
	// keyboard submit when it cannot be found.
	if err := s.Click(ctx, photoSubmitSel); err != nil {
		if err := s.SubmitEnter(ctx, photoInputSel); err != nil {
			return fmt.Errorf("photo submit: %w", err)
		}
	}
	if err := pause(ctx, r.cfg.SubmitSettle); err != nil {
		return err
	}
	if err := s.WaitVisible(ctx, photoTriggerSel); err != nil {
		return fmt.Errorf("photo fetch: %w", err)
	}
	if err := s.Click(ctx, photoTriggerSel); err != nil {
		return fmt.Errorf("photo fetch: %w", err)
	}
	return pause(ctx, r.cfg.FetchSettle)
}

// listFiles returns the names of completed files in dir. In-progress
// browser downloads keep a .crdownload suffix and must not count as
// deposited output.
func listFiles(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]struct{}{}, nil
		}
		return nil, err
	}
	names := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasSuffix(e.Name(), ".crdownload") {
			continue
		}
		names[e.Name()] = struct{}{}
	}
	return names, nil
}

func diffFiles(before, after map[string]struct{}) []string {
	fresh := make([]string, 0, len(after)-len(before))
	for name := range after {
		if _, ok := before[name]; !ok {
			fresh = append(fresh, name)
		}
	}
	return fresh
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("pause canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
