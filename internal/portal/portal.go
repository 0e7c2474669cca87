// Package portal defines the small browser surface the login and claim
// workflows drive. internal/browser implements it on top of Playwright;
// portaltest provides an in-memory fake.
package portal

import (
	"context"
	"errors"
)

// ErrNotFound is returned by waits that give up before a selector appears.
var ErrNotFound = errors.New("portal: element not found")

// Browser hands out pages that share one authenticated session.
type Browser interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is a single tab on the shared session.
type Page interface {
	Goto(ctx context.Context, url string) error

	// WaitForAny blocks until at least one selector matches and returns the
	// index of the first matching selector in argument order.
	WaitForAny(ctx context.Context, selectors ...string) (int, error)
	WaitFor(ctx context.Context, selector string) (Element, error)

	// Query returns nil, nil when nothing matches.
	Query(ctx context.Context, selector string) (Element, error)
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	// Activate clicks el. ActivateAndSettle clicks el and waits until the
	// navigation it triggers has gone network idle.
	Activate(ctx context.Context, el Element) error
	ActivateAndSettle(ctx context.Context, el Element) error

	Close() error
}

// Element is a handle to a node on a Page.
type Element interface {
	Text(ctx context.Context) (string, error)
	Query(ctx context.Context, selector string) (Element, error)
	Fill(ctx context.Context, value string) error
}
