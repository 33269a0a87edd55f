package watcher

import (
	"strings"
	"testing"

	"github.com/pbaille/localrename/internal/dom"
	"github.com/pbaille/localrename/internal/resolver"
	"github.com/pbaille/localrename/internal/rewrite"
	"github.com/pbaille/localrename/internal/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type queue struct {
	fns []func()
}

func (q *queue) Post(fn func()) bool {
	q.fns = append(q.fns, fn)
	return true
}

func (q *queue) drain() {
	for len(q.fns) > 0 {
		fn := q.fns[0]
		q.fns = q.fns[1:]
		fn()
	}
}

type mapLookup map[string]string

func (m mapLookup) Get(id string) (string, bool) {
	label, ok := m[id]
	return label, ok
}

type fixture struct {
	doc     *dom.Document
	queue   *queue
	scanner *scanner.Scanner
	watcher *Watcher
}

func newFixture(t *testing.T, markup string, aliases mapLookup) *fixture {
	t.Helper()
	doc, err := dom.Parse(strings.NewReader(markup))
	require.NoError(t, err)

	selectors, err := dom.CompileAll(scanner.DefaultSelectors)
	require.NoError(t, err)
	rw := rewrite.New()
	sc, err := scanner.New(aliases, resolver.New(""), rw, scanner.Options{
		ItemAttribute: scanner.DefaultItemAttribute,
		Selectors:     selectors,
	})
	require.NoError(t, err)

	roots, err := dom.CompileAll(DefaultRootSelectors)
	require.NoError(t, err)
	q := &queue{}
	return &fixture{
		doc:     doc,
		queue:   q,
		scanner: sc,
		watcher: New(roots, q, sc, rw, nil),
	}
}

func fragment(t *testing.T, markup string) *html.Node {
	t.Helper()
	nodes, err := html.ParseFragment(strings.NewReader(markup), &html.Node{Type: html.ElementNode, DataAtom: atom.Ul, Data: "ul"})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	return nodes[0]
}

const page = `<html><body><div role="navigation"><ul id="list"></ul></div></body></html>`

func TestAttachUsesFirstResolvingSelector(t *testing.T) {
	f := newFixture(t, `<html><body>
<div data-list-id="channels"></div>
<div role="navigation" id="nav"></div>
</body></html>`, mapLookup{})

	require.True(t, f.watcher.Attach(f.doc))
	assert.Equal(t, Attached, f.watcher.State())
	assert.Equal(t, "nav", dom.Attr(f.watcher.Root(), "id"))
	assert.Equal(t, 1, f.doc.ObserverCount())

	// Attaching again is a no-op
	assert.True(t, f.watcher.Attach(f.doc))
	assert.Equal(t, 1, f.doc.ObserverCount())
}

func TestAttachWithoutRootStaysUnattached(t *testing.T) {
	f := newFixture(t, `<html><body><main></main></body></html>`, mapLookup{})

	assert.False(t, f.watcher.Attach(f.doc))
	assert.Equal(t, Unattached, f.watcher.State())
	assert.Equal(t, 0, f.doc.ObserverCount())
}

func TestInsertedSubtreeIsRenamed(t *testing.T) {
	f := newFixture(t, page, mapLookup{"111111111111111111": "General Chat"})
	require.True(t, f.watcher.Attach(f.doc))
	list := dom.QueryFirst(f.doc.Root(), dom.MustCompile("#list"))

	item := fragment(t, `<li><div data-channel-id="111111111111111111"><div class="name_a">general</div></div></li>`)
	f.doc.Mutate(func(tx *dom.Tx) { tx.AppendChild(list, item) })
	require.Len(t, f.queue.fns, 1)
	f.queue.drain()

	assert.Equal(t, "General Chat", dom.TextContent(item))
}

func TestRemovedNodesAreForgotten(t *testing.T) {
	f := newFixture(t, page, mapLookup{"111111111111111111": "General Chat"})
	require.True(t, f.watcher.Attach(f.doc))
	list := dom.QueryFirst(f.doc.Root(), dom.MustCompile("#list"))

	item := fragment(t, `<li data-channel-id="111111111111111111"><span>general</span></li>`)
	f.doc.Mutate(func(tx *dom.Tx) { tx.AppendChild(list, item) })
	f.queue.drain()
	require.Equal(t, 1, f.scanner.Rewriter().Len())

	f.doc.Mutate(func(tx *dom.Tx) { tx.RemoveChild(list, item) })
	assert.Equal(t, 0, f.scanner.Rewriter().Len())
}

func TestMovedItemKeepsOriginalLabel(t *testing.T) {
	aliases := mapLookup{"111111111111111111": "General Chat"}
	f := newFixture(t, page, aliases)
	require.True(t, f.watcher.Attach(f.doc))
	list := dom.QueryFirst(f.doc.Root(), dom.MustCompile("#list"))

	item := fragment(t, `<li data-channel-id="111111111111111111"><span>general</span></li>`)
	f.doc.Mutate(func(tx *dom.Tx) { tx.AppendChild(list, item) })
	f.queue.drain()
	require.Equal(t, "General Chat", dom.TextContent(item))

	// The host reorders the list by taking the item out and putting it back
	f.doc.Mutate(func(tx *dom.Tx) {
		tx.RemoveChild(list, item)
		tx.AppendChild(list, item)
	})
	f.queue.drain()
	assert.Equal(t, 1, f.scanner.Rewriter().Len())
	assert.Equal(t, "General Chat", dom.TextContent(item))

	delete(aliases, "111111111111111111")
	f.scanner.ScanWhole(f.doc.Root())
	assert.Equal(t, "general", dom.TextContent(item))
}

func TestScanSkipsNodeRemovedBeforeItRuns(t *testing.T) {
	f := newFixture(t, page, mapLookup{"111111111111111111": "General Chat"})
	require.True(t, f.watcher.Attach(f.doc))
	list := dom.QueryFirst(f.doc.Root(), dom.MustCompile("#list"))

	item := fragment(t, `<li data-channel-id="111111111111111111"><span>general</span></li>`)
	f.doc.Mutate(func(tx *dom.Tx) { tx.AppendChild(list, item) })
	f.doc.Mutate(func(tx *dom.Tx) { tx.RemoveChild(list, item) })
	f.queue.drain()

	assert.Equal(t, "general", dom.TextContent(item))
	assert.Equal(t, 0, f.scanner.Rewriter().Len())
}

func TestDetachIsTerminal(t *testing.T) {
	f := newFixture(t, page, mapLookup{"111111111111111111": "General Chat"})
	require.True(t, f.watcher.Attach(f.doc))

	f.watcher.Detach()
	assert.Equal(t, Detached, f.watcher.State())
	assert.Equal(t, 0, f.doc.ObserverCount())
	assert.False(t, f.watcher.Attach(f.doc))
	assert.Equal(t, Detached, f.watcher.State())

	list := dom.QueryFirst(f.doc.Root(), dom.MustCompile("#list"))
	f.doc.Mutate(func(tx *dom.Tx) {
		tx.AppendChild(list, fragment(t, `<li data-channel-id="111111111111111111"><span>general</span></li>`))
	})
	assert.Empty(t, f.queue.fns)
}

func TestQueuedScanDroppedAfterDetach(t *testing.T) {
	f := newFixture(t, page, mapLookup{"111111111111111111": "General Chat"})
	require.True(t, f.watcher.Attach(f.doc))
	list := dom.QueryFirst(f.doc.Root(), dom.MustCompile("#list"))

	item := fragment(t, `<li data-channel-id="111111111111111111"><span>general</span></li>`)
	f.doc.Mutate(func(tx *dom.Tx) { tx.AppendChild(list, item) })
	f.watcher.Detach()
	f.queue.drain()

	assert.Equal(t, "general", dom.TextContent(item))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unattached", Unattached.String())
	assert.Equal(t, "attached", Attached.String())
	assert.Equal(t, "detached", Detached.String())
	assert.Equal(t, "unknown", State(9).String())
}
