// Package locator computes the structural path of an element in an HTML
// tree, the same way the browser collector does for clicked elements.
package locator

import (
	"strings"

	"golang.org/x/net/html"
)

// Separator joins the steps of a path.
const Separator = " > "

// Path returns the locator for n: lower-case tag names from n up towards the
// root, joined by " > ". The walk stops at the first element that has an id,
// which is emitted as "tag#id". Non-element nodes contribute nothing, and the
// document node ends the walk.
func Path(n *html.Node) string {
	var steps []string
	for node := n; node != nil; node = node.Parent {
		if node.Type == html.DocumentNode {
			break
		}
		if node.Type != html.ElementNode {
			continue
		}

		name := strings.ToLower(node.Data)
		if id := attr(node, "id"); id != "" {
			steps = append(steps, name+"#"+id)
			break
		}
		steps = append(steps, name)
	}

	// Collected target first; the locator reads root first.
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return strings.Join(steps, Separator)
}

// Elements returns every element node under root in document order, skipping
// the structural html, head and body wrappers and anything inside head.
func Elements(root *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch strings.ToLower(n.Data) {
			case "head", "script", "style":
				return
			case "html", "body":
			default:
				out = append(out, n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
