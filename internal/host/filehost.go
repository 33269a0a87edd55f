// Package host stands in for the host application: it keeps a live Document
// rendered from an HTML file and re-renders it whenever the file changes,
// mutating only the parts of the tree that actually differ.
package host

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pbaille/localrename/internal/dom"
	"github.com/pbaille/localrename/internal/eventloop"
	"golang.org/x/net/html"
)

// Options configures a FileHost
type Options struct {
	// Debounce is how long to wait for more file events before reloading
	Debounce time.Duration

	Logger *slog.Logger
}

// FileHost owns a live Document backed by a file. Tree access happens on
// the event loop.
type FileHost struct {
	path     string
	loop     *eventloop.Loop
	doc      *dom.Document
	source   *html.Node // last parsed file contents, never attached to doc
	debounce time.Duration
	logger   *slog.Logger
}

// Open parses path into a new live Document
func Open(path string, loop *eventloop.Loop, opts Options) (*FileHost, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	doc, err := dom.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	source, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	return &FileHost{
		path:     path,
		loop:     loop,
		doc:      doc,
		source:   source,
		debounce: debounce,
		logger:   logger,
	}, nil
}

// Document returns the live tree
func (h *FileHost) Document() *dom.Document {
	return h.doc
}

// Reload re-reads the file and patches the live tree to match it
func (h *FileHost) Reload(ctx context.Context) error {
	data, err := os.ReadFile(h.path)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	next, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse html: %w", err)
	}

	return h.loop.Do(ctx, func() {
		var stats patchStats
		h.doc.Mutate(func(tx *dom.Tx) {
			stats = patch(tx, h.doc.Root(), h.source, next)
		})
		h.source = next
		h.logger.Debug("source reloaded", "inserted", stats.inserted, "removed", stats.removed)
	})
}

// Render writes the live tree as HTML
func (h *FileHost) Render(ctx context.Context, w io.Writer) error {
	var buf bytes.Buffer
	var renderErr error
	if err := h.loop.Do(ctx, func() {
		renderErr = dom.Render(&buf, h.doc.Root())
	}); err != nil {
		return err
	}
	if renderErr != nil {
		return fmt.Errorf("render document: %w", renderErr)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Watch reloads the document after the file changes, until ctx is done.
// Editors often replace files on save, so the parent directory is watched.
func (h *FileHost) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	defer fw.Close()

	dir := filepath.Dir(h.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	name := filepath.Base(h.path)
	h.logger.Info("watching source", "path", h.path)

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(h.debounce)
			} else {
				timer.Reset(h.debounce)
			}
			pending = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			h.logger.Warn("file watcher error", "error", err)

		case <-pending:
			pending = nil
			if err := h.Reload(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				h.logger.Warn("reload failed", "path", h.path, "error", err)
			}
		}
	}
}

type patchStats struct {
	inserted int
	removed  int
}

// patch makes the children of live match next. old is what live was
// rendered from; live may differ from old only by rewritten label text.
func patch(tx *dom.Tx, live, old, next *html.Node) patchStats {
	var st patchStats
	if !patchChildren(tx, live, old, next, &st) {
		clones := make([]*html.Node, 0)
		for c := next.FirstChild; c != nil; c = c.NextSibling {
			clones = append(clones, dom.Clone(c))
		}
		st.removed += len(dom.Children(live))
		st.inserted += len(clones)
		tx.ReplaceChildren(live, clones...)
	}
	return st
}

// patchChildren reports false when the change cannot be expressed below
// live, i.e. a meaningful text node differs; the caller then replaces live.
func patchChildren(tx *dom.Tx, live, old, next *html.Node, st *patchStats) bool {
	lc, oc, nc := dom.Children(live), dom.Children(old), dom.Children(next)
	if len(lc) != len(oc) {
		return false
	}

	common := min(len(oc), len(nc))
	for i := 0; i < common; i++ {
		if (isText(oc[i]) || isText(nc[i])) && !dom.Equal(oc[i], nc[i]) {
			return false
		}
	}
	for _, n := range oc[common:] {
		if isText(n) {
			return false
		}
	}
	for _, n := range nc[common:] {
		if isText(n) {
			return false
		}
	}

	for i := 0; i < common; i++ {
		o, n, l := oc[i], nc[i], lc[i]
		if dom.Equal(o, n) {
			continue
		}
		if sameElement(o, n) && patchChildren(tx, l, o, n, st) {
			continue
		}
		tx.ReplaceChild(live, dom.Clone(n), l)
		st.inserted++
		st.removed++
	}
	for _, l := range lc[common:] {
		tx.RemoveChild(live, l)
		st.removed++
	}
	for _, n := range nc[common:] {
		tx.AppendChild(live, dom.Clone(n))
		st.inserted++
	}
	return true
}

// isText is true for text that can carry a label; whitespace between
// elements does not count
func isText(n *html.Node) bool {
	return n.Type == html.TextNode && strings.TrimSpace(n.Data) != ""
}

func sameElement(a, b *html.Node) bool {
	if a.Type != html.ElementNode || b.Type != html.ElementNode {
		return false
	}
	if a.Data != b.Data || a.Namespace != b.Namespace || len(a.Attr) != len(b.Attr) {
		return false
	}
	for i := range a.Attr {
		if a.Attr[i] != b.Attr[i] {
			return false
		}
	}
	return true
}
