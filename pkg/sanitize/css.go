package sanitize

import (
	"strings"

	"github.com/gorilla/css/scanner"
)

// Properties permitted in inline style attributes. Anything able to move content outside of the
// message frame, such as position, is left out.
var allowedProperties = map[string]bool{
	"align":            true,
	"background-color": true,
	"border":           true,
	"border-bottom":    true,
	"border-collapse":  true,
	"border-left":      true,
	"border-radius":    true,
	"border-right":     true,
	"border-spacing":   true,
	"border-top":       true,
	"box-sizing":       true,
	"clear":            true,
	"color":            true,
	"display":          true,
	"float":            true,
	"font":             true,
	"font-family":      true,
	"font-size":        true,
	"font-style":       true,
	"font-weight":      true,
	"height":           true,
	"letter-spacing":   true,
	"line-height":      true,
	"list-style-type":  true,
	"margin":           true,
	"margin-bottom":    true,
	"margin-left":      true,
	"margin-right":     true,
	"margin-top":       true,
	"max-height":       true,
	"max-width":        true,
	"min-width":        true,
	"overflow":         true,
	"padding":          true,
	"padding-bottom":   true,
	"padding-left":     true,
	"padding-right":    true,
	"padding-top":      true,
	"table-layout":     true,
	"text-align":       true,
	"text-decoration":  true,
	"text-indent":      true,
	"text-transform":   true,
	"vertical-align":   true,
	"white-space":      true,
	"width":            true,
	"word-break":       true,
}

// declaration collects the tokens of one property: value pair.
type declaration struct {
	property string
	value    strings.Builder
	invalid  bool
}

func (d *declaration) add(t *scanner.Token) {
	switch {
	case d.invalid, t.Type == scanner.TokenComment:
	case d.property == "":
		switch t.Type {
		case scanner.TokenS:
		case scanner.TokenIdent:
			d.property = strings.ToLower(t.Value)
		default:
			d.invalid = true
		}
	case t.Type == scanner.TokenURI, t.Type == scanner.TokenFunction && strings.EqualFold(t.Value, "expression("):
		// No remote resources or scripted values.
		d.invalid = true
	default:
		d.value.WriteString(t.Value)
	}
}

func (d *declaration) String() string {
	if d.invalid || !allowedProperties[d.property] {
		return ""
	}
	v := strings.TrimSpace(d.value.String())
	if !strings.HasPrefix(v, ":") {
		return ""
	}
	v = strings.TrimSpace(v[1:])
	if v == "" {
		return ""
	}
	return d.property + ": " + v
}

// filterStyle drops every declaration of an inline style whose property is not allowed. A style
// the scanner cannot tokenize is dropped entirely.
func filterStyle(input string) string {
	var kept []string
	d := &declaration{}
	scan := scanner.New(input)
	for {
		t := scan.Next()
		switch {
		case t.Type == scanner.TokenError:
			return ""
		case t.Type == scanner.TokenEOF:
			if s := d.String(); s != "" {
				kept = append(kept, s)
			}
			if len(kept) == 0 {
				return ""
			}
			return strings.Join(kept, "; ") + ";"
		case t.Type == scanner.TokenChar && t.Value == ";":
			if s := d.String(); s != "" {
				kept = append(kept, s)
			}
			d = &declaration{}
		default:
			d.add(t)
		}
	}
}
