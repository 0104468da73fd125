package sanitize

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

var (
	// Style values are checked by filterStyle before the policy runs.
	cssSafe = regexp.MustCompile(".*")
	policy  = bluemonday.UGCPolicy().
		AllowElements("center", "font").
		AllowAttrs("color", "face", "size").OnElements("font").
		AllowAttrs("target").Matching(regexp.MustCompile(`^_blank$`)).OnElements("a").
		AllowAttrs("style").Matching(cssSafe).Globally()
)

// HTML sanitizes a message body for display, while attempting to preserve inline CSS styling.
func HTML(body string) (string, error) {
	nodes, err := parse(body)
	if err != nil {
		return "", err
	}
	eachElement(nodes, filterStyleAttrs)
	output, err := render(nodes)
	if err != nil {
		return "", err
	}
	return policy.Sanitize(output), nil
}

func filterStyleAttrs(n *html.Node) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, "style") {
			a.Val = filterStyle(a.Val)
			if a.Val == "" {
				continue
			}
		}
		attrs = append(attrs, a)
	}
	n.Attr = attrs
}
