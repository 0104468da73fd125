package sanitize

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Prepare readies a message HTML body for display inside a frame. Comments are removed and every
// anchor is given target="_blank", replacing any target it already had.
func Prepare(body string) (string, error) {
	nodes, err := parse(body)
	if err != nil {
		return "", err
	}
	nodes = dropComments(nodes)
	eachElement(nodes, func(n *html.Node) {
		if n.DataAtom != atom.A {
			return
		}
		attrs := n.Attr[:0]
		for _, a := range n.Attr {
			if !strings.EqualFold(a.Key, "target") {
				attrs = append(attrs, a)
			}
		}
		n.Attr = append(attrs, html.Attribute{Key: "target", Val: "_blank"})
	})
	return render(nodes)
}
