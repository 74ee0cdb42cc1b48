// Package browser implements the automation Session on top of chromedp and
// headless Chrome. Each session owns its own browser process so download
// directories and page state never leak between pooled sessions.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"reelgrab/internal/retriever"
)

// Config controls session creation.
type Config struct {
	StepTimeout time.Duration
	Headless    bool
	ProxyServer string
	UserAgent   string
}

// Factory creates chromedp-backed sessions.
type Factory struct {
	cfg    Config
	logger *zap.Logger
}

// NewFactory builds a Factory. A nil logger falls back to a no-op.
func NewFactory(cfg Config, logger *zap.Logger) *Factory {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 25 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Factory{cfg: cfg, logger: logger}
}

// NewSession launches a browser and returns a ready Session. The browser is
// started eagerly so pool acquisition fails fast when Chrome is unavailable.
func (f *Factory) NewSession(ctx context.Context) (retriever.Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-popup-blocking", true),
		chromedp.Flag("enable-automation", false),
	)
	if f.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(f.cfg.UserAgent))
	}
	if f.cfg.ProxyServer != "" {
		opts = append(opts, chromedp.ProxyServer(f.cfg.ProxyServer))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	// Run a no-op action to force the browser process to start now.
	if err := chromedp.Run(taskCtx); err != nil {
		taskCancel()
		allocCancel()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	retriever.SessionsCreated.Inc()
	f.logger.Debug("browser session launched")

	return &Session{
		cfg:         f.cfg,
		taskCtx:     taskCtx,
		taskCancel:  taskCancel,
		allocCancel: allocCancel,
	}, nil
}

// Session is one live browser handle.
type Session struct {
	cfg         Config
	taskCtx     context.Context
	taskCancel  context.CancelFunc
	allocCancel context.CancelFunc
}

var _ retriever.Session = (*Session)(nil)

// Close tears the browser down. Safe to call once per session.
func (s *Session) Close() {
	s.taskCancel()
	s.allocCancel()
}

// Navigate loads url and waits for the document body to be ready.
func (s *Session) Navigate(ctx context.Context, url string) error {
	return s.run(ctx, "navigate",
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// WaitVisible blocks until sel is visible or the step timeout elapses.
func (s *Session) WaitVisible(ctx context.Context, sel string) error {
	return s.run(ctx, "wait visible", chromedp.WaitVisible(sel, byOpt(sel)))
}

// Click dispatches a click on sel via the page's own event handling.
func (s *Session) Click(ctx context.Context, sel string) error {
	return s.run(ctx, "click",
		chromedp.WaitReady(sel, byOpt(sel)),
		chromedp.Click(sel, byOpt(sel)),
	)
}

// SetValue writes value into sel and dispatches input and change events so
// framework-bound listeners observe the edit.
func (s *Session) SetValue(ctx context.Context, sel, value string) error {
	return s.run(ctx, "set value",
		chromedp.WaitReady(sel, byOpt(sel)),
		chromedp.SetValue(sel, value, byOpt(sel)),
		chromedp.Evaluate(dispatchEventsJS(sel), nil),
	)
}

// TypeChars clears sel, focuses it, and sends text one keystroke at a time
// with pace between characters.
func (s *Session) TypeChars(ctx context.Context, sel, text string, pace time.Duration) error {
	actions := []chromedp.Action{
		chromedp.WaitReady(sel, byOpt(sel)),
		chromedp.SetValue(sel, "", byOpt(sel)),
		chromedp.Focus(sel, byOpt(sel)),
	}
	for _, r := range text {
		actions = append(actions,
			chromedp.SendKeys(sel, string(r), byOpt(sel)),
			chromedp.Sleep(pace),
		)
	}
	return s.run(ctx, "type chars", actions...)
}

// SubmitEnter sends a keyboard Enter to sel.
func (s *Session) SubmitEnter(ctx context.Context, sel string) error {
	return s.run(ctx, "submit enter", chromedp.SendKeys(sel, "\r", byOpt(sel)))
}

// ScrollBottom triggers an end-of-viewport scroll so lazy content loads.
func (s *Session) ScrollBottom(ctx context.Context) error {
	return s.run(ctx, "scroll bottom",
		chromedp.Evaluate("window.scrollTo(0, document.body.scrollHeight);", nil),
	)
}

// OuterHTML returns the rendered document markup.
func (s *Session) OuterHTML(ctx context.Context) (string, error) {
	var html string
	if err := s.run(ctx, "outer html", chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// SetDownloadDir points the browser's download behavior at dir via CDP.
func (s *Session) SetDownloadDir(ctx context.Context, dir string) error {
	return s.run(ctx, "set download dir",
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(dir),
	)
}

func (s *Session) run(ctx context.Context, op string, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(s.taskCtx, s.cfg.StepTimeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(stepCtx, actions...)
	}()
	select {
	case <-ctx.Done():
		cancel()
		<-done
		return fmt.Errorf("%s canceled: %w", op, ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}
}

// byOpt picks the selector strategy: XPath for //-prefixed selectors, CSS
// otherwise.
func byOpt(sel string) chromedp.QueryOption {
	if strings.HasPrefix(sel, "//") {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}

func dispatchEventsJS(sel string) string {
	quoted := strings.ReplaceAll(sel, `'`, `\'`)
	return fmt.Sprintf(
		`(() => { const el = document.querySelector('%s'); if (el) { el.dispatchEvent(new Event('input', { bubbles: true })); el.dispatchEvent(new Event('change', { bubbles: true })); } })()`,
		quoted,
	)
}
