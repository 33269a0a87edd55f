// Package rewrite swaps the displayed label of a rendered item and puts the
// original back when the alias goes away.
package rewrite

import (
	"strings"

	"github.com/pbaille/localrename/internal/dom"
	"golang.org/x/net/html"
)

// Text-bearing element candidates, in preference order
var textTargets = []dom.Matcher{
	dom.MustCompile(`[class*="name"]`),
	dom.MustCompile("span"),
	dom.MustCompile("div"),
}

// Rewriter owns the original-label cache: the trimmed text each text
// element showed the first time it was seen. Entries are keyed by the live
// element and are never overwritten while that element lives, except that an
// empty original is captured again once the host fills the element in.
type Rewriter struct {
	originals map[*html.Node]*cached
}

type cached struct {
	original string
	shown    string // last text written by Apply
}

// New returns an empty Rewriter
func New() *Rewriter {
	return &Rewriter{originals: make(map[*html.Node]*cached)}
}

// TextTarget picks the element whose text represents the item's label
func TextTarget(item *html.Node) *html.Node {
	if item == nil {
		return nil
	}
	for _, m := range textTargets {
		if n := dom.QueryFirst(item, m); n != nil {
			return n
		}
	}
	return item
}

// Apply shows label on item, or the cached original when label is empty.
// It returns the text element it worked on and whether the text changed.
func (r *Rewriter) Apply(item *html.Node, label string) (*html.Node, bool) {
	target := TextTarget(item)
	if target == nil {
		return nil, false
	}

	current := dom.TextContent(target)
	c, ok := r.originals[target]
	if !ok {
		c = &cached{original: strings.TrimSpace(current)}
		r.originals[target] = c
	} else if c.original == "" {
		if text := strings.TrimSpace(current); text != "" && current != c.shown {
			c.original = text
		}
	}

	want := label
	if want == "" {
		want = c.original
	}
	if want == "" || want == current {
		return target, false
	}
	dom.SetTextContent(target, want)
	c.shown = want
	return target, true
}

// Restore puts back the original label of item if one was ever captured
func (r *Rewriter) Restore(item *html.Node) bool {
	target := TextTarget(item)
	if _, ok := r.originals[target]; !ok {
		return false
	}
	_, changed := r.Apply(item, "")
	return changed
}

// RestoreExcept restores every cached text element under root that is not
// in keep, and returns how many changed.
func (r *Rewriter) RestoreExcept(root *html.Node, keep map[*html.Node]bool) int {
	restored := 0
	for target, c := range r.originals {
		if keep[target] || !dom.Contains(root, target) {
			continue
		}
		if c.original != "" && dom.TextContent(target) != c.original {
			dom.SetTextContent(target, c.original)
			c.shown = c.original
			restored++
		}
	}
	return restored
}

// Original returns the cached original label of item's text element
func (r *Rewriter) Original(item *html.Node) (string, bool) {
	c, ok := r.originals[TextTarget(item)]
	if !ok {
		return "", false
	}
	return c.original, true
}

// Forget evicts every cache entry inside a removed subtree
func (r *Rewriter) Forget(removed *html.Node) {
	if len(r.originals) == 0 {
		return
	}
	dom.Walk(removed, func(n *html.Node) {
		delete(r.originals, n)
	})
}

// Len returns the number of cached originals
func (r *Rewriter) Len() int {
	return len(r.originals)
}
