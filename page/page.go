// Package page models a snapshot of the host page's DOM plus the stream of
// structural changes and UI events the detection pipeline consumes.
//
// The host page is third-party territory: nothing here mutates host nodes to
// carry extension state. Every element gets a stable NodeID in a side table
// keyed by node identity, and all attribution state lives outside the tree.
package page

import (
	"fmt"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// NodeID identifies an element node for the lifetime of the page.
type NodeID int

// Event is a page-context event delivered synchronously to subscribers in
// subscription order. Exactly one of the kinds applies.
type Event struct {
	Kind   EventKind
	Target Node   // Added subtree root for mutations, event target otherwise
	Key    string // Key events only
	Mod    bool   // Key events only: platform modifier held
}

// EventKind discriminates page events.
type EventKind int

const (
	// Mutation fires when a new subtree is attached to the document.
	Mutation EventKind = iota
	// Click fires on pointer activation of an element.
	Click
	// Keydown fires on a key press with focus on an element.
	Keydown
)

// Page holds a parsed document, the identity side table, and subscribers.
//
// Dispatch is cooperative: events are delivered inline from the call that
// produced them, in subscription order, mirroring how the host environment
// schedules handlers. The document and the side table are guarded by one
// lock so timer-driven rescans can query the page from other goroutines;
// the lock is never held across handler dispatch, so handlers are free to
// query the page themselves.
type Page struct {
	url      string
	handlers []func(Event)

	mu     sync.Mutex
	doc    *goquery.Document
	ids    map[*html.Node]NodeID
	nextID NodeID
}

// Load parses a full HTML document into a Page.
func Load(pageURL, rawHTML string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &Page{
		doc:    doc,
		url:    pageURL,
		ids:    make(map[*html.Node]NodeID),
		nextID: 1,
	}, nil
}

// URL returns the page's current location.
func (p *Page) URL() string { return p.url }

// SetURL records a navigation without replacing the document, the way the
// host app rewrites history on client-side route changes.
func (p *Page) SetURL(u string) { p.url = u }

// Subscribe registers a handler for all subsequent page events. Handlers
// must be registered before events start flowing.
func (p *Page) Subscribe(h func(Event)) {
	p.handlers = append(p.handlers, h)
}

func (p *Page) dispatch(ev Event) {
	for _, h := range p.handlers {
		h(ev)
	}
}

// node wraps n, assigning an ID on first sight of an element. Caller holds
// p.mu.
func (p *Page) node(n *html.Node) Node {
	var id NodeID
	if n != nil && n.Type == html.ElementNode {
		var ok bool
		if id, ok = p.ids[n]; !ok {
			id = p.nextID
			p.ids[n] = id
			p.nextID++
		}
	}
	return Node{page: p, n: n, id: id}
}

// Find returns all elements in the document matching the selector.
func (p *Page) Find(selector string) []Node {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel := p.doc.Find(selector)
	nodes := make([]Node, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, p.node(s.Get(0)))
	})
	return nodes
}

// First returns the first element matching the selector.
func (p *Page) First(selector string) (Node, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel := p.doc.Find(selector).First()
	if sel.Length() == 0 {
		return Node{}, false
	}
	return p.node(sel.Get(0)), true
}

// Apply parses fragmentHTML and appends it under the first element matching
// parentSelector, dispatching one Mutation event per added element subtree.
// It returns the added subtree roots.
func (p *Page) Apply(parentSelector, fragmentHTML string) ([]Node, error) {
	p.mu.Lock()
	parentSel := p.doc.Find(parentSelector).First()
	if parentSel.Length() == 0 {
		p.mu.Unlock()
		return nil, fmt.Errorf("apply: no element matches %q", parentSelector)
	}
	parent := parentSel.Get(0)

	ctx := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	frags, err := html.ParseFragment(strings.NewReader(fragmentHTML), ctx)
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("parse fragment: %w", err)
	}

	var added []Node
	for _, f := range frags {
		parent.AppendChild(f)
		if f.Type != html.ElementNode {
			continue
		}
		added = append(added, p.node(f))
	}
	p.mu.Unlock()

	for _, nd := range added {
		p.dispatch(Event{Kind: Mutation, Target: nd})
	}
	return added, nil
}

// Remove detaches the node's subtree from the document. Identity entries for
// detached nodes are kept; stale IDs are harmless to the side tables above.
func (p *Page) Remove(nd Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if nd.n == nil || nd.n.Parent == nil {
		return
	}
	nd.n.Parent.RemoveChild(nd.n)
}

// Click dispatches a pointer activation on the node.
func (p *Page) Click(nd Node) {
	p.dispatch(Event{Kind: Click, Target: nd})
}

// KeydownOn dispatches a key press with focus on the node.
func (p *Page) KeydownOn(nd Node, key string, mod bool) {
	p.dispatch(Event{Kind: Keydown, Target: nd, Key: key, Mod: mod})
}

// Node is a handle on a single element in the page. The ID is captured at
// creation, so handles stay usable without touching the page.
type Node struct {
	page *Page
	n    *html.Node
	id   NodeID
}

// Valid reports whether the handle points at a real element.
func (nd Node) Valid() bool { return nd.n != nil }

// ID returns the node's stable identity.
func (nd Node) ID() NodeID { return nd.id }

// selection returns a goquery selection over this single node. Caller holds
// nd.page.mu.
func (nd Node) selection() *goquery.Selection {
	return nd.page.doc.FindNodes(nd.n)
}

// Is reports whether the node itself matches the selector.
func (nd Node) Is(selector string) bool {
	if nd.n == nil {
		return false
	}
	nd.page.mu.Lock()
	defer nd.page.mu.Unlock()
	return nd.selection().Is(selector)
}

// Has reports whether any descendant matches the selector. This is the cheap
// containment check run before anything more expensive.
func (nd Node) Has(selector string) bool {
	if nd.n == nil {
		return false
	}
	nd.page.mu.Lock()
	defer nd.page.mu.Unlock()
	return nd.selection().Find(selector).Length() > 0
}

// Find returns descendants matching the selector.
func (nd Node) Find(selector string) []Node {
	if nd.n == nil {
		return nil
	}
	nd.page.mu.Lock()
	defer nd.page.mu.Unlock()
	sel := nd.selection().Find(selector)
	nodes := make([]Node, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		nodes = append(nodes, nd.page.node(s.Get(0)))
	})
	return nodes
}

// Closest returns the nearest ancestor (or the node itself) matching the
// selector.
func (nd Node) Closest(selector string) (Node, bool) {
	if nd.n == nil {
		return Node{}, false
	}
	nd.page.mu.Lock()
	defer nd.page.mu.Unlock()
	sel := nd.selection().Closest(selector)
	if sel.Length() == 0 {
		return Node{}, false
	}
	return nd.page.node(sel.Get(0)), true
}

// Text returns the node's rendered text content.
func (nd Node) Text() string {
	if nd.n == nil {
		return ""
	}
	nd.page.mu.Lock()
	defer nd.page.mu.Unlock()
	return nd.selection().Text()
}

// Attr returns the value of the named attribute, if present.
func (nd Node) Attr(name string) (string, bool) {
	if nd.n == nil {
		return "", false
	}
	nd.page.mu.Lock()
	defer nd.page.mu.Unlock()
	return nd.selection().Attr(name)
}

// Contains reports whether other is nd or a descendant of nd.
func (nd Node) Contains(other Node) bool {
	if nd.n == nil || other.n == nil {
		return false
	}
	nd.page.mu.Lock()
	defer nd.page.mu.Unlock()
	for n := other.n; n != nil; n = n.Parent {
		if n == nd.n {
			return true
		}
	}
	return false
}

// Page returns the owning page.
func (nd Node) Page() *Page { return nd.page }
