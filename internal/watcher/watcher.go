// Package watcher follows structural changes of the host's navigation tree
// and queues a subtree scan for every inserted element.
package watcher

import (
	"log/slog"

	"github.com/pbaille/localrename/internal/dom"
	"github.com/pbaille/localrename/internal/scanner"
	"golang.org/x/net/html"
)

// DefaultRootSelectors are the navigation container guesses, tried in order
var DefaultRootSelectors = []string{
	`[class*="sidebar"] [class*="content"]`,
	`[class*="channels"]`,
	`[role="navigation"]`,
	`[data-list-id="channels"]`,
	`[class*="channelList"]`,
	`[class*="guild-channels"]`,
}

// State is the watcher lifecycle position
type State int

const (
	// Unattached means no root container has been found yet
	Unattached State = iota
	// Attached means mutations under the root container are observed
	Attached
	// Detached is terminal
	Detached
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Unattached:
		return "unattached"
	case Attached:
		return "attached"
	case Detached:
		return "detached"
	default:
		return "unknown"
	}
}

// Scheduler queues work on the event loop
type Scheduler interface {
	Post(fn func()) bool
}

// SubtreeScanner scans one inserted subtree
type SubtreeScanner interface {
	ScanSubtree(root *html.Node) scanner.Report
}

// Forgetter drops cached state for removed nodes
type Forgetter interface {
	Forget(removed *html.Node)
}

// Watcher is the ChangeWatcher. Methods run on the event loop.
type Watcher struct {
	roots    []dom.Matcher
	sched    Scheduler
	scan     SubtreeScanner
	forget   Forgetter
	logger   *slog.Logger
	state    State
	doc      *dom.Document
	root     *html.Node
	observer *dom.Observer
}

// New creates an Unattached watcher. forget may be nil.
func New(roots []dom.Matcher, sched Scheduler, scan SubtreeScanner, forget Forgetter, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		roots:  roots,
		sched:  sched,
		scan:   scan,
		forget: forget,
		logger: logger,
	}
}

// State returns the current lifecycle state
func (w *Watcher) State() State {
	return w.state
}

// Root returns the observed container, nil unless Attached
func (w *Watcher) Root() *html.Node {
	return w.root
}

// Attach looks for the navigation container and subscribes to it. It may be
// retried while Unattached and reports whether the watcher is Attached.
func (w *Watcher) Attach(doc *dom.Document) bool {
	switch w.state {
	case Attached:
		return true
	case Detached:
		return false
	}

	for i, m := range w.roots {
		root := dom.QueryFirst(doc.Root(), m)
		if root == nil {
			continue
		}
		w.doc = doc
		w.root = root
		w.observer = doc.Observe(root, w.onMutations)
		w.state = Attached
		w.logger.Info("watching navigation tree", "selector", i, "tag", root.Data)
		return true
	}

	w.logger.Info("navigation tree not found; relying on full scans")
	return false
}

// Detach unsubscribes. The watcher cannot be attached again.
func (w *Watcher) Detach() {
	if w.observer != nil {
		w.observer.Disconnect()
		w.observer = nil
	}
	w.root = nil
	w.state = Detached
}

func (w *Watcher) onMutations(records []dom.MutationRecord) {
	var removed []*html.Node
	for _, rec := range records {
		removed = append(removed, rec.Removed...)
		for _, n := range rec.Added {
			if n.Type != html.ElementNode {
				continue
			}
			w.enqueue(n)
		}
	}

	// A move shows up as a removal plus an insertion of the same node; only
	// nodes still out of the tree once the batch is done are forgotten.
	if w.forget == nil {
		return
	}
	for _, n := range removed {
		if !w.doc.Attached(n) {
			w.forget.Forget(n)
		}
	}
}

func (w *Watcher) enqueue(n *html.Node) {
	w.sched.Post(func() {
		if w.state != Attached || !w.doc.Attached(n) {
			return
		}
		rep := w.scan.ScanSubtree(n)
		if rep.Renamed > 0 {
			w.logger.Debug("inserted subtree renamed", "items", rep.Examined, "renamed", rep.Renamed)
		}
	})
}
