// Package sanitize rewrites message HTML for display.
package sanitize

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var bodyContext = &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}

// parse reads a complete document when the input carries an html element, otherwise a fragment
// as it would appear inside body.
func parse(input string) ([]*html.Node, error) {
	if strings.Contains(strings.ToLower(input), "<html") {
		doc, err := html.Parse(strings.NewReader(input))
		if err != nil {
			return nil, err
		}
		return []*html.Node{doc}, nil
	}
	return html.ParseFragment(strings.NewReader(input), bodyContext)
}

func render(nodes []*html.Node) (string, error) {
	b := &strings.Builder{}
	for _, n := range nodes {
		if err := html.Render(b, n); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

// dropComments removes comment nodes from nodes and everything below them.
func dropComments(nodes []*html.Node) []*html.Node {
	kept := nodes[:0]
	for _, n := range nodes {
		if n.Type == html.CommentNode {
			continue
		}
		removeComments(n)
		kept = append(kept, n)
	}
	return kept
}

func removeComments(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			removeComments(c)
		}
		c = next
	}
}

// eachElement calls fn for every element node in depth first order.
func eachElement(nodes []*html.Node, fn func(*html.Node)) {
	for _, n := range nodes {
		if n.Type == html.ElementNode {
			fn(n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			eachElement([]*html.Node{c}, fn)
		}
	}
}
