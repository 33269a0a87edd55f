package resolver

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func element(t *testing.T, markup string) *html.Node {
	t.Helper()
	nodes, err := html.ParseFragment(strings.NewReader(markup), &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div"})
	require.NoError(t, err)
	require.NotEmpty(t, nodes)
	return nodes[0]
}

func TestResolveStrategies(t *testing.T) {
	tests := []struct {
		desc     string
		markup   string
		id       string
		strategy string
	}{
		{"channel id attribute", `<div data-channel-id="123456789012345">x</div>`, "123456789012345", "channel-id"},
		{"item id attribute", `<div data-item-id="42">x</div>`, "42", "item-id"},
		{"drag and drop name", `<div data-dnd-name="general">x</div>`, "general", "dnd-name"},
		{"known namespace", `<li data-list-item-id="channels___123456789012345">x</li>`, "123456789012345", "list-item-namespace"},
		{"channel link", `<a href="/channels/111/222333">x</a>`, "222333", "href"},
		{"id digit run", `<div id="chan-1234567890123456-row">x</div>`, "1234567890123456", "id-digits"},
		{"class digit run", `<div class="wrapper c123456789012345">x</div>`, "123456789012345", "class-digits"},
		{"other namespace", `<li data-list-item-id="private-channels___123456789012345678">x</li>`, "123456789012345678", "list-item-any"},
		{"hash word in text", `<div><span>#random</span></div>`, "random", "text-hash"},
	}

	r := New("")
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			id, strategy, ok := r.ResolveWithStrategy(element(t, test.markup))
			require.True(t, ok)
			assert.Equal(t, test.id, id)
			assert.Equal(t, test.strategy, strategy)
		})
	}
}

func TestResolveNoMatch(t *testing.T) {
	tests := []struct {
		desc   string
		markup string
	}{
		{"plain element", `<div class="item">general</div>`},
		{"empty channel id", `<div data-channel-id="">general</div>`},
		{"empty namespace remainder", `<li data-list-item-id="channels___">x</li>`},
		{"dm link", `<a href="/channels/@me/123456789012345">x</a>`},
		{"short class digits", `<div class="c12345678901234">x</div>`},
		{"non numeric other namespace", `<li data-list-item-id="guilds___abc">x</li>`},
	}

	r := New("")
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			_, ok := r.Resolve(element(t, test.markup))
			assert.False(t, ok)
		})
	}
}

func TestResolveDirectAttributeWins(t *testing.T) {
	n := element(t, `<div data-channel-id="123456789012345" class="c999999999999999">x</div>`)
	id, ok := New("").Resolve(n)
	require.True(t, ok)
	assert.Equal(t, "123456789012345", id)
}

func TestResolveDigitBoundary(t *testing.T) {
	r := New("")

	_, ok := r.Resolve(element(t, `<div class="x12345678901234">x</div>`))
	assert.False(t, ok, "14 digits must not resolve")

	id, ok := r.Resolve(element(t, `<div class="x123456789012345">x</div>`))
	require.True(t, ok)
	assert.Equal(t, "123456789012345", id)
}

func TestResolveFirstMatchingClassToken(t *testing.T) {
	n := element(t, `<div class="a b111111111111111 c222222222222222">x</div>`)
	id, ok := New("").Resolve(n)
	require.True(t, ok)
	assert.Equal(t, "111111111111111", id)
}

func TestResolveCustomNamespace(t *testing.T) {
	n := element(t, `<li data-list-item-id="threads___77">x</li>`)

	id, ok := New("threads").Resolve(n)
	require.True(t, ok)
	assert.Equal(t, "77", id)

	// With the default namespace the short suffix fails the digit-run check
	_, ok = New("").Resolve(n)
	assert.False(t, ok)
}

func TestResolveIgnoresNonElements(t *testing.T) {
	_, ok := New("").Resolve(&html.Node{Type: html.TextNode, Data: "#general"})
	assert.False(t, ok)
	_, ok = New("").Resolve(nil)
	assert.False(t, ok)
}
