package dom

import (
	"fmt"
	"io"

	"golang.org/x/net/html"
)

// MutationRecord describes one structural change under Target
type MutationRecord struct {
	Target  *html.Node
	Added   []*html.Node
	Removed []*html.Node
}

// MutationCallback receives one batch of records, in mutation order
type MutationCallback func(records []MutationRecord)

// Observer is a subscription to structural changes under one node
type Observer struct {
	doc      *Document
	target   *html.Node
	callback MutationCallback
	active   bool
}

// Disconnect stops delivery. Safe to call more than once.
func (o *Observer) Disconnect() {
	if !o.active {
		return
	}
	o.active = false
	o.doc.removeObserver(o)
}

// Active reports whether the observer still receives batches
func (o *Observer) Active() bool {
	return o.active
}

// Document is the host's live tree. Structural changes go through Mutate so
// that observers are notified; it is not safe for concurrent use.
type Document struct {
	root      *html.Node
	observers []*Observer
}

// NewDocument wraps an already parsed tree
func NewDocument(root *html.Node) *Document {
	return &Document{root: root}
}

// Parse reads HTML markup into a new Document
func Parse(r io.Reader) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return NewDocument(root), nil
}

// Root returns the document node
func (d *Document) Root() *html.Node {
	return d.root
}

// Attached reports whether n is still part of the document
func (d *Document) Attached(n *html.Node) bool {
	return Contains(d.root, n)
}

// Observe subscribes cb to changes whose target is n or a descendant of n
func (d *Document) Observe(n *html.Node, cb MutationCallback) *Observer {
	o := &Observer{doc: d, target: n, callback: cb, active: true}
	d.observers = append(d.observers, o)
	return o
}

// ObserverCount returns the number of active observers
func (d *Document) ObserverCount() int {
	return len(d.observers)
}

func (d *Document) removeObserver(o *Observer) {
	for i, cur := range d.observers {
		if cur == o {
			d.observers = append(d.observers[:i], d.observers[i+1:]...)
			return
		}
	}
}

// Mutate runs fn and then delivers the recorded batch to every observer
// whose node contains the record targets.
func (d *Document) Mutate(fn func(tx *Tx)) {
	tx := &Tx{}
	fn(tx)
	if len(tx.records) == 0 {
		return
	}

	observers := append([]*Observer(nil), d.observers...)
	for _, o := range observers {
		if !o.active {
			continue
		}
		var batch []MutationRecord
		for _, rec := range tx.records {
			if Contains(o.target, rec.Target) {
				batch = append(batch, rec)
			}
		}
		if len(batch) > 0 {
			o.callback(batch)
		}
	}
}

// Tx collects the structural operations of one Mutate call
type Tx struct {
	records []MutationRecord
}

// AppendChild adds child as the last child of parent
func (tx *Tx) AppendChild(parent, child *html.Node) {
	detach(child)
	parent.AppendChild(child)
	tx.records = append(tx.records, MutationRecord{Target: parent, Added: []*html.Node{child}})
}

// InsertBefore adds child before ref; a nil ref appends
func (tx *Tx) InsertBefore(parent, child, ref *html.Node) {
	detach(child)
	parent.InsertBefore(child, ref)
	tx.records = append(tx.records, MutationRecord{Target: parent, Added: []*html.Node{child}})
}

// RemoveChild detaches child from parent
func (tx *Tx) RemoveChild(parent, child *html.Node) {
	parent.RemoveChild(child)
	tx.records = append(tx.records, MutationRecord{Target: parent, Removed: []*html.Node{child}})
}

// ReplaceChild swaps old for child at the same position
func (tx *Tx) ReplaceChild(parent, child, old *html.Node) {
	detach(child)
	parent.InsertBefore(child, old)
	parent.RemoveChild(old)
	tx.records = append(tx.records, MutationRecord{
		Target:  parent,
		Added:   []*html.Node{child},
		Removed: []*html.Node{old},
	})
}

// ReplaceChildren removes every child of parent and appends children
func (tx *Tx) ReplaceChildren(parent *html.Node, children ...*html.Node) {
	rec := MutationRecord{Target: parent}
	for c := parent.FirstChild; c != nil; {
		next := c.NextSibling
		parent.RemoveChild(c)
		rec.Removed = append(rec.Removed, c)
		c = next
	}
	for _, c := range children {
		detach(c)
		parent.AppendChild(c)
		rec.Added = append(rec.Added, c)
	}
	tx.records = append(tx.records, rec)
}

func detach(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}
