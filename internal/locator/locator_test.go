package locator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func parse(t *testing.T, doc string) *html.Node {
	t.Helper()
	root, err := html.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	return root
}

func find(root *html.Node, pred func(*html.Node) bool) *html.Node {
	if pred(root) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, pred); found != nil {
			return found
		}
	}
	return nil
}

func byTag(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == tag
	}
}

func TestPath(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		target   string
		expected string
	}{
		{
			name:     "chain without ids reaches the root",
			doc:      `<html><body><div><p><span>x</span></p></div></body></html>`,
			target:   "span",
			expected: "html > body > div > p > span",
		},
		{
			name:     "ancestor id truncates the path",
			doc:      `<html><body><main id="content"><section><a>go</a></section></main></body></html>`,
			target:   "a",
			expected: "main#content > section > a",
		},
		{
			name:     "target with id is a single step",
			doc:      `<html><body><div><button id="buy">Buy</button></div></body></html>`,
			target:   "button",
			expected: "button#buy",
		},
		{
			name:     "tag names are lower case",
			doc:      `<HTML><BODY><DIV><EM>x</EM></DIV></BODY></HTML>`,
			target:   "em",
			expected: "html > body > div > em",
		},
		{
			name:     "empty id is ignored",
			doc:      `<html><body><div id=""><i>x</i></div></body></html>`,
			target:   "i",
			expected: "html > body > div > i",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := parse(t, tt.doc)
			target := find(root, byTag(tt.target))
			require.NotNil(t, target)

			assert.Equal(t, tt.expected, Path(target))
		})
	}
}

func TestPathFromTextNode(t *testing.T) {
	root := parse(t, `<html><body><div id="box"><b>bold</b></div></body></html>`)
	text := find(root, func(n *html.Node) bool { return n.Type == html.TextNode && n.Data == "bold" })
	require.NotNil(t, text)

	assert.Equal(t, "div#box > b", Path(text))
}

func TestElements(t *testing.T) {
	root := parse(t, `<html><head><title>t</title><script>1</script></head>
<body><header id="top"><a>home</a></header><script>2</script><p>text</p></body></html>`)

	var tags []string
	for _, n := range Elements(root) {
		tags = append(tags, n.Data)
	}
	assert.Equal(t, []string{"header", "a", "p"}, tags)
}
