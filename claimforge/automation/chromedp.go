package automation

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

const defaultOpTimeout = 15 * time.Second

// ChromeBrowser launches one dedicated Chrome process per page, so sessions
// never share cookies, storage, or login state. The process count is bounded
// by the Limiter, not here.
type ChromeBrowser struct {
	opts      []chromedp.ExecAllocatorOption
	opTimeout time.Duration
	logger    *slog.Logger
}

func NewChromeBrowser(headless bool, userAgent string) *ChromeBrowser {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	opts = append(opts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-first-run", true),
	)

	return &ChromeBrowser{
		opts:      opts,
		opTimeout: defaultOpTimeout,
		logger:    slog.With(slog.String("service", "chrome_browser")),
	}
}

func (b *ChromeBrowser) NewPage(ctx context.Context) (Page, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, b.opts...)
	pageCtx, pageCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	// Force the browser process to start so launch failures surface here,
	// not in the middle of a session.
	if err := chromedp.Run(pageCtx); err != nil {
		pageCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &chromePage{
		ctx:       pageCtx,
		opTimeout: b.opTimeout,
		cancels:   []context.CancelFunc{pageCancel, allocCancel},
		logger:    b.logger,
	}, nil
}

func (b *ChromeBrowser) Close() error {
	return nil
}

type chromePage struct {
	ctx       context.Context
	opTimeout time.Duration
	cancels   []context.CancelFunc
	logger    *slog.Logger
}

// opCtx derives a bounded context for one automation call. chromedp actions
// must run on the page's own context chain; the caller ctx only gates entry.
func (p *chromePage) opCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	tctx, cancel := context.WithTimeout(p.ctx, timeout)
	return tctx, cancel, nil
}

func (p *chromePage) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	tctx, cancel, err := p.opCtx(ctx, timeout)
	if err != nil {
		return err
	}
	defer cancel()

	err = chromedp.Run(tctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (p *chromePage) QueryAll(ctx context.Context, selector string) ([]Element, error) {
	tctx, cancel, err := p.opCtx(ctx, p.opTimeout)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var nodes []*cdp.Node
	if err := chromedp.Run(tctx, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("query %q failed: %w", selector, err)
	}

	elements := make([]Element, len(nodes))
	for i, n := range nodes {
		elements[i] = n
	}
	return elements, nil
}

func (p *chromePage) node(el Element) (*cdp.Node, error) {
	n, ok := el.(*cdp.Node)
	if !ok || n == nil {
		return nil, fmt.Errorf("element is not a chrome node")
	}
	return n, nil
}

func (p *chromePage) ReadText(ctx context.Context, el Element) (string, error) {
	n, err := p.node(el)
	if err != nil {
		return "", err
	}
	tctx, cancel, err := p.opCtx(ctx, p.opTimeout)
	if err != nil {
		return "", err
	}
	defer cancel()

	var text string
	if err := chromedp.Run(tctx, chromedp.Text(n.FullXPath(), &text, chromedp.BySearch)); err != nil {
		return "", fmt.Errorf("failed to read element text: %w", err)
	}
	return text, nil
}

func (p *chromePage) IsEnabled(ctx context.Context, el Element) (bool, error) {
	n, err := p.node(el)
	if err != nil {
		return false, err
	}
	tctx, cancel, err := p.opCtx(ctx, p.opTimeout)
	if err != nil {
		return false, err
	}
	defer cancel()

	var disabled string
	var hasDisabled bool
	if err := chromedp.Run(tctx, chromedp.AttributeValue(n.FullXPath(), "disabled", &disabled, &hasDisabled, chromedp.BySearch)); err != nil {
		return false, fmt.Errorf("failed to read disabled attribute: %w", err)
	}
	if hasDisabled {
		return false, nil
	}

	var ariaDisabled string
	var hasAria bool
	if err := chromedp.Run(tctx, chromedp.AttributeValue(n.FullXPath(), "aria-disabled", &ariaDisabled, &hasAria, chromedp.BySearch)); err != nil {
		return false, fmt.Errorf("failed to read aria-disabled attribute: %w", err)
	}
	return !(hasAria && ariaDisabled == "true"), nil
}

func (p *chromePage) ScrollIntoView(ctx context.Context, el Element) error {
	n, err := p.node(el)
	if err != nil {
		return err
	}
	tctx, cancel, err := p.opCtx(ctx, p.opTimeout)
	if err != nil {
		return err
	}
	defer cancel()

	if err := chromedp.Run(tctx, chromedp.ScrollIntoView(n.FullXPath(), chromedp.BySearch)); err != nil {
		return fmt.Errorf("failed to scroll element into view: %w", err)
	}
	return nil
}

func (p *chromePage) Click(ctx context.Context, el Element) error {
	n, err := p.node(el)
	if err != nil {
		return err
	}
	tctx, cancel, err := p.opCtx(ctx, p.opTimeout)
	if err != nil {
		return err
	}
	defer cancel()

	if err := chromedp.Run(tctx, chromedp.Click(n.FullXPath(), chromedp.BySearch)); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	return nil
}

func (p *chromePage) Fill(ctx context.Context, el Element, text string) error {
	n, err := p.node(el)
	if err != nil {
		return err
	}
	tctx, cancel, err := p.opCtx(ctx, p.opTimeout)
	if err != nil {
		return err
	}
	defer cancel()

	err = chromedp.Run(tctx,
		chromedp.Clear(n.FullXPath(), chromedp.BySearch),
		chromedp.SendKeys(n.FullXPath(), text, chromedp.BySearch),
	)
	if err != nil {
		return fmt.Errorf("failed to fill element: %w", err)
	}
	return nil
}

func (p *chromePage) Screenshot(ctx context.Context, path string) error {
	tctx, cancel, err := p.opCtx(ctx, p.opTimeout)
	if err != nil {
		return err
	}
	defer cancel()

	var buf []byte
	if err := chromedp.Run(tctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return fmt.Errorf("failed to capture screenshot: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create screenshot dir: %w", err)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write screenshot: %w", err)
	}

	p.logger.Debug("Checkpoint screenshot captured", slog.String("path", path))
	return nil
}

func (p *chromePage) Close() error {
	for _, cancel := range p.cancels {
		cancel()
	}
	return nil
}
