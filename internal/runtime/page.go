// Package runtime executes test steps against a live page. The Page
// interface is the capability surface the improvement engine depends on; the
// chromedp session in internal/browser implements it.
package runtime

import (
	"context"
	"time"

	"github.com/copyleftdev/uitest/internal/locator"
)

// ElementState is a read of the first element a query resolves to.
type ElementState struct {
	Visible bool   `json:"visible"`
	Enabled bool   `json:"enabled"`
	Checked bool   `json:"checked"`
	Value   string `json:"value"`
	Text    string `json:"text"`
}

// Page is a single browser tab. Element operations act on the unique element
// a query resolves to; the executor enforces uniqueness and visibility
// before calling them.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)

	Count(ctx context.Context, q locator.Query) (int, error)
	Inspect(ctx context.Context, q locator.Query) (ElementState, error)
	Attribute(ctx context.Context, q locator.Query, name string) (string, bool, error)
	OuterHTML(ctx context.Context, q locator.Query) (string, error)

	Click(ctx context.Context, q locator.Query) error
	Fill(ctx context.Context, q locator.Query, text string) error
	Press(ctx context.Context, q locator.Query, key string) error
	SetChecked(ctx context.Context, q locator.Query, checked bool) error
	Hover(ctx context.Context, q locator.Query) error
	SelectOption(ctx context.Context, q locator.Query, value string) error

	// AriaSnapshot renders the accessibility tree as "- role "name"" lines.
	// A nil query snapshots the whole page.
	AriaSnapshot(ctx context.Context, q *locator.Query) (string, error)

	// WaitForNetworkIdle returns once no requests have been in flight for
	// the idle window, or ctx expires.
	WaitForNetworkIdle(ctx context.Context, idle time.Duration) error
}

// Tracer records a trace of page activity between Start and Stop.
type Tracer interface {
	StartTracing(ctx context.Context) error
	StopTracing(ctx context.Context, path string) error
}
