// Package browser implements portal.Browser with Playwright driving a
// single Chromium context, so every page shares one set of cookies.
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/example/slotclaim/internal/portal"
)

const DefaultTimeout = 30 * time.Second

type Options struct {
	Headless bool
	// Timeout bounds every wait and navigation.
	Timeout time.Duration
	// State, when set, restores the session on launch and saves it on Close.
	State  *StateStore
	Logger *slog.Logger
}

type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext

	timeout float64
	state   *StateStore
	logger  *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Launch installs the Playwright driver if needed, starts Chromium and opens
// the shared context.
func Launch(ctx context.Context, opts Options) (*Browser, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("install playwright: %w", err)
	}
	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	contextOpts := playwright.BrowserNewContextOptions{}
	cleanup := func() {}
	if opts.State != nil {
		path, done, err := opts.State.Unsealed()
		if err != nil {
			// a stale or foreign state file only costs a fresh login
			opts.Logger.Warn("ignoring stored browser state", "path", opts.State.Path, "err", err)
		} else if path != "" {
			contextOpts.StorageStatePath = playwright.String(path)
			cleanup = done
			opts.Logger.Info("restoring browser state", "path", opts.State.Path)
		}
	}
	bctx, err := browser.NewContext(contextOpts)
	cleanup()
	if err != nil {
		_ = browser.Close()
		_ = pw.Stop()
		return nil, fmt.Errorf("create context: %w", err)
	}

	timeout := float64(opts.Timeout / time.Millisecond)
	bctx.SetDefaultTimeout(timeout)
	bctx.SetDefaultNavigationTimeout(timeout)

	return &Browser{
		pw:      pw,
		browser: browser,
		context: bctx,
		timeout: timeout,
		state:   opts.State,
		logger:  opts.Logger,
	}, nil
}

func (b *Browser) NewPage(ctx context.Context) (portal.Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := b.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("new page: %w", err)
	}
	return &page{p: p, timeout: b.timeout}, nil
}

// SaveState writes the context's current storage state to the state store.
func (b *Browser) SaveState() error {
	if b.state == nil {
		return nil
	}
	st, err := b.context.StorageState()
	if err != nil {
		return fmt.Errorf("read storage state: %w", err)
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return b.state.Save(raw)
}

// Close saves the session state, then tears down the context, Chromium and
// the driver. It is safe to call more than once.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		var errs []error
		if err := b.SaveState(); err != nil {
			b.logger.Warn("save browser state", "err", err)
		}
		if err := b.context.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := b.browser.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, err)
		}
		b.closeErr = errors.Join(errs...)
	})
	return b.closeErr
}

type page struct {
	p       playwright.Page
	timeout float64
}

func (pg *page) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	waitUntil := playwright.WaitUntilStateDomcontentloaded
	if _, err := pg.p.Goto(url, playwright.PageGotoOptions{WaitUntil: waitUntil}); err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}
	return nil
}

func (pg *page) WaitForAny(ctx context.Context, selectors ...string) (int, error) {
	if len(selectors) == 0 {
		return -1, errors.New("no selectors")
	}
	if _, err := pg.WaitFor(ctx, strings.Join(selectors, ", ")); err != nil {
		return -1, err
	}
	for i, sel := range selectors {
		el, err := pg.p.QuerySelector(sel)
		if err != nil {
			return -1, fmt.Errorf("query %s: %w", sel, err)
		}
		if el != nil {
			return i, nil
		}
	}
	return -1, fmt.Errorf("wait for any of %q: %w", selectors, portal.ErrNotFound)
}

func (pg *page) WaitFor(ctx context.Context, selector string) (portal.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	el, err := pg.p.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(pg.timeout),
	})
	if errors.Is(err, playwright.ErrTimeout) {
		return nil, fmt.Errorf("wait for %s: %w", selector, portal.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", selector, err)
	}
	if el == nil {
		return nil, fmt.Errorf("wait for %s: %w", selector, portal.ErrNotFound)
	}
	return element{el}, nil
}

func (pg *page) Query(ctx context.Context, selector string) (portal.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	el, err := pg.p.QuerySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	if el == nil {
		return nil, nil
	}
	return element{el}, nil
}

func (pg *page) QueryAll(ctx context.Context, selector string) ([]portal.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	els, err := pg.p.QuerySelectorAll(selector)
	if err != nil {
		return nil, fmt.Errorf("query all %s: %w", selector, err)
	}
	out := make([]portal.Element, 0, len(els))
	for _, el := range els {
		out = append(out, element{el})
	}
	return out, nil
}

func (pg *page) Activate(ctx context.Context, el portal.Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h, err := handle(el)
	if err != nil {
		return err
	}
	// a DOM click ignores overlays that would swallow a pointer click
	if _, err := h.Evaluate("el => el.click()"); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
}

func (pg *page) ActivateAndSettle(ctx context.Context, el portal.Element) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h, err := handle(el)
	if err != nil {
		return err
	}
	_, err = pg.p.ExpectNavigation(func() error {
		_, err := h.Evaluate("el => el.click()")
		return err
	}, playwright.PageExpectNavigationOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(pg.timeout),
	})
	if err != nil {
		return fmt.Errorf("click and wait for navigation: %w", err)
	}
	return nil
}

func (pg *page) Close() error { return pg.p.Close() }

type element struct{ h playwright.ElementHandle }

func handle(el portal.Element) (playwright.ElementHandle, error) {
	e, ok := el.(element)
	if !ok {
		return nil, fmt.Errorf("element %T does not belong to this browser", el)
	}
	return e.h, nil
}

func (e element) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.h.TextContent()
}

func (e element) Query(ctx context.Context, selector string) (portal.Element, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	el, err := e.h.QuerySelector(selector)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	if el == nil {
		return nil, nil
	}
	return element{el}, nil
}

func (e element) Fill(ctx context.Context, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.h.Fill(value)
}
