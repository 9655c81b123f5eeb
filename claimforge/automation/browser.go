package automation

import (
	"context"
	"time"
)

// Element is an opaque handle to one DOM node, only meaningful to the Page
// that produced it.
type Element any

// Page is the headless-browser capability a claim session consumes. Every
// method is a suspension point; implementations must honor ctx cancellation.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	QueryAll(ctx context.Context, selector string) ([]Element, error)
	ReadText(ctx context.Context, el Element) (string, error)
	IsEnabled(ctx context.Context, el Element) (bool, error)
	ScrollIntoView(ctx context.Context, el Element) error
	Click(ctx context.Context, el Element) error
	Fill(ctx context.Context, el Element, text string) error
	Screenshot(ctx context.Context, path string) error
	Close() error
}

// Browser hands out isolated, independently closable pages. One page maps to
// one claim session; pages never share cookies or storage.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}
