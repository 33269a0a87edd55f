// Package dom models the host's live tree: an HTML node tree that only the
// host mutates structurally, plus the query and text helpers the rewrite
// engine reads it with.
package dom

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
)

// Matcher is a compiled selector
type Matcher = goquery.Matcher

// Compile parses a CSS selector (groups allowed)
func Compile(selector string) (Matcher, error) {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil, fmt.Errorf("compile selector %q: %w", selector, err)
	}
	return sel, nil
}

// MustCompile is Compile for selectors known at build time
func MustCompile(selector string) Matcher {
	m, err := Compile(selector)
	if err != nil {
		panic(err)
	}
	return m
}

// QueryAll returns the descendants of root matching m, in document order.
// root itself is never part of the result.
func QueryAll(root *html.Node, m Matcher) []*html.Node {
	if root == nil {
		return nil
	}
	return goquery.NewDocumentFromNode(root).FindMatcher(m).Nodes
}

// QueryFirst returns the first descendant of root matching m, or nil
func QueryFirst(root *html.Node, m Matcher) *html.Node {
	nodes := QueryAll(root, m)
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

// Matches reports whether n itself matches m
func Matches(n *html.Node, m Matcher) bool {
	return n != nil && n.Type == html.ElementNode && m.Match(n)
}

// Attr returns the value of attribute key, or "" when absent
func Attr(n *html.Node, key string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

// TextContent concatenates every text node under n
func TextContent(n *html.Node) string {
	if n == nil {
		return ""
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			sb.WriteString(c.Data)
			return
		}
		for cc := c.FirstChild; cc != nil; cc = cc.NextSibling {
			walk(cc)
		}
	}
	walk(n)
	return sb.String()
}

// SetTextContent replaces all children of n with a single text node.
// An empty string leaves n without children.
func SetTextContent(n *html.Node, text string) {
	if n.Type == html.TextNode {
		n.Data = text
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}

// Contains reports whether n is ancestor itself or one of its descendants
func Contains(ancestor, n *html.Node) bool {
	for c := n; c != nil; c = c.Parent {
		if c == ancestor {
			return true
		}
	}
	return false
}

// Walk visits n and all its descendants in document order
func Walk(n *html.Node, fn func(*html.Node)) {
	if n == nil {
		return
	}
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		Walk(c, fn)
	}
}

// Clone deep-copies n; the copy has no parent or siblings
func Clone(n *html.Node) *html.Node {
	out := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out.AppendChild(Clone(c))
	}
	return out
}

// Equal reports whether two subtrees have the same shape, attributes and text
func Equal(a, b *html.Node) bool {
	if a.Type != b.Type || a.Data != b.Data || a.Namespace != b.Namespace {
		return false
	}
	if len(a.Attr) != len(b.Attr) {
		return false
	}
	for i := range a.Attr {
		if a.Attr[i] != b.Attr[i] {
			return false
		}
	}
	ac, bc := a.FirstChild, b.FirstChild
	for ac != nil && bc != nil {
		if !Equal(ac, bc) {
			return false
		}
		ac, bc = ac.NextSibling, bc.NextSibling
	}
	return ac == nil && bc == nil
}

// Children returns the direct children of n
func Children(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, c)
	}
	return out
}

// Render writes the subtree at n as HTML
func Render(w io.Writer, n *html.Node) error {
	return html.Render(w, n)
}

// CompileAll compiles selectors in order, failing on the first bad one
func CompileAll(selectors []string) ([]Matcher, error) {
	out := make([]Matcher, 0, len(selectors))
	for _, s := range selectors {
		m, err := Compile(s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}
