// Package resolver recovers a stable item identifier from a rendered node.
//
// The host's markup is versioned and obfuscated, so no single attribute is
// guaranteed to be present. Resolve walks an ordered chain of strategies,
// from explicit identifier attributes down to loose text heuristics, and
// returns the first hit.
package resolver

import (
	"regexp"
	"strings"

	"github.com/pbaille/localrename/internal/dom"
	"golang.org/x/net/html"
)

// DefaultNamespace is the list-item id prefix the host uses for channel rows
const DefaultNamespace = "channels"

const separator = "___"

var (
	linkPattern     = regexp.MustCompile(`/channels/\d+/(\d+)`)
	digitRunPattern = regexp.MustCompile(`(\d{15,20})`)
	digitOnly       = regexp.MustCompile(`^\d{15,20}$`)
	hashWordPattern = regexp.MustCompile(`#(\w+)`)
)

// Strategy extracts an identifier from a node, or returns "" when it does not apply
type Strategy struct {
	Name string
	Func func(n *html.Node) string
}

// Resolver runs its strategies in order
type Resolver struct {
	strategies []Strategy
}

// New returns a resolver with the standard chain. An empty namespace uses
// DefaultNamespace.
func New(namespace string) *Resolver {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Resolver{strategies: Strategies(namespace)}
}

// Strategies returns the standard chain in priority order
func Strategies(namespace string) []Strategy {
	return []Strategy{
		{"channel-id", attrStrategy("data-channel-id")},
		{"item-id", attrStrategy("data-item-id")},
		{"dnd-name", attrStrategy("data-dnd-name")},
		{"list-item-namespace", namespacedListItem(namespace + separator)},
		{"href", hrefStrategy},
		{"id-digits", idDigits},
		{"class-digits", classDigits},
		{"list-item-any", anyNamespaceListItem},
		{"text-hash", textHash},
	}
}

// Resolve returns the first identifier any strategy recovers
func (r *Resolver) Resolve(n *html.Node) (string, bool) {
	id, _, ok := r.ResolveWithStrategy(n)
	return id, ok
}

// ResolveWithStrategy is Resolve that also names the strategy that matched.
// Resolution has no side effects.
func (r *Resolver) ResolveWithStrategy(n *html.Node) (id, strategy string, ok bool) {
	if n == nil || n.Type != html.ElementNode {
		return "", "", false
	}
	for _, s := range r.strategies {
		if id := s.Func(n); id != "" {
			return id, s.Name, true
		}
	}
	return "", "", false
}

func attrStrategy(key string) func(*html.Node) string {
	return func(n *html.Node) string {
		return dom.Attr(n, key)
	}
}

func namespacedListItem(prefix string) func(*html.Node) string {
	return func(n *html.Node) string {
		v := dom.Attr(n, "data-list-item-id")
		if !strings.HasPrefix(v, prefix) {
			return ""
		}
		return strings.TrimPrefix(v, prefix)
	}
}

func hrefStrategy(n *html.Node) string {
	if m := linkPattern.FindStringSubmatch(dom.Attr(n, "href")); m != nil {
		return m[1]
	}
	return ""
}

func idDigits(n *html.Node) string {
	if m := digitRunPattern.FindStringSubmatch(dom.Attr(n, "id")); m != nil {
		return m[1]
	}
	return ""
}

func classDigits(n *html.Node) string {
	for _, token := range strings.Fields(dom.Attr(n, "class")) {
		if m := digitRunPattern.FindStringSubmatch(token); m != nil {
			return m[1]
		}
	}
	return ""
}

// anyNamespaceListItem covers prefixes other than the known one, e.g. private-channels___<id>
func anyNamespaceListItem(n *html.Node) string {
	v := dom.Attr(n, "data-list-item-id")
	if !strings.Contains(v, separator) {
		return ""
	}
	parts := strings.Split(v, separator)
	if last := parts[len(parts)-1]; digitOnly.MatchString(last) {
		return last
	}
	return ""
}

func textHash(n *html.Node) string {
	if m := hashWordPattern.FindStringSubmatch(dom.TextContent(n)); m != nil {
		return m[1]
	}
	return ""
}
