// Package portaltest is an in-memory portal.Browser for tests. Selectors are
// matched as literal map keys; waits never block.
package portaltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/example/slotclaim/internal/portal"
)

// Node is a fake element. Children are keyed by selector.
type Node struct {
	Name     string
	Text     string
	Value    string
	Children map[string][]*Node

	// OnActivate runs when the node is clicked, typically to reveal the
	// next stage of a form on the page.
	OnActivate func(p *Page)
}

func (n *Node) Add(selector string, children ...*Node) *Node {
	if n.Children == nil {
		n.Children = map[string][]*Node{}
	}
	n.Children[selector] = append(n.Children[selector], children...)
	return n
}

type element struct{ n *Node }

func (e element) Text(context.Context) (string, error) { return e.n.Text, nil }

func (e element) Query(_ context.Context, selector string) (portal.Element, error) {
	if kids := e.n.Children[selector]; len(kids) > 0 {
		return element{kids[0]}, nil
	}
	return nil, nil
}

func (e element) Fill(_ context.Context, value string) error {
	e.n.Value = value
	return nil
}

// Page is a fake tab. Nodes are keyed by selector.
type Page struct {
	mu sync.Mutex

	Nodes   map[string][]*Node
	GotoErr error

	Visited     []string
	Activations []*Node
	Settles     int
	Closed      bool
}

func NewPage() *Page { return &Page{Nodes: map[string][]*Node{}} }

func (p *Page) Add(selector string, nodes ...*Node) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Nodes[selector] = append(p.Nodes[selector], nodes...)
	return p
}

func (p *Page) Goto(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Visited = append(p.Visited, url)
	return p.GotoErr
}

func (p *Page) WaitForAny(_ context.Context, selectors ...string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, s := range selectors {
		if len(p.Nodes[s]) > 0 {
			return i, nil
		}
	}
	return -1, fmt.Errorf("wait for %q: %w", selectors, portal.ErrNotFound)
}

func (p *Page) WaitFor(ctx context.Context, selector string) (portal.Element, error) {
	if _, err := p.WaitForAny(ctx, selector); err != nil {
		return nil, err
	}
	return p.Query(ctx, selector)
}

func (p *Page) Query(_ context.Context, selector string) (portal.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if nodes := p.Nodes[selector]; len(nodes) > 0 {
		return element{nodes[0]}, nil
	}
	return nil, nil
}

func (p *Page) QueryAll(_ context.Context, selector string) ([]portal.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]portal.Element, 0, len(p.Nodes[selector]))
	for _, n := range p.Nodes[selector] {
		out = append(out, element{n})
	}
	return out, nil
}

func (p *Page) Activate(_ context.Context, el portal.Element) error {
	n := el.(element).n
	p.mu.Lock()
	p.Activations = append(p.Activations, n)
	p.mu.Unlock()
	if n.OnActivate != nil {
		n.OnActivate(p)
	}
	return nil
}

func (p *Page) ActivateAndSettle(ctx context.Context, el portal.Element) error {
	if err := p.Activate(ctx, el); err != nil {
		return err
	}
	p.mu.Lock()
	p.Settles++
	p.mu.Unlock()
	return nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return nil
}

// Browser returns pages from Factory, in order, and remembers them.
type Browser struct {
	mu      sync.Mutex
	Factory func() *Page
	Pages   []*Page
	Closed  bool
}

func (b *Browser) NewPage(context.Context) (portal.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.Factory()
	b.Pages = append(b.Pages, p)
	return p, nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Closed = true
	return nil
}

// ActivationCount sums clicks across every page the browser handed out.
func (b *Browser) ActivationCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, p := range b.Pages {
		p.mu.Lock()
		n += len(p.Activations)
		p.mu.Unlock()
	}
	return n
}
