package selector

import (
	"fmt"
	"strings"

	"golang.org/x/net/html"
)

// anchorAttrs are the data/semantic attributes that terminate CSS path
// construction when found on an ancestor; they are assumed stable between
// renders of the same document.
var anchorAttrs = []string{"data-test", "data-testid", "data-qa", "itemprop", "property"}

// BuildPath constructs a CSS path that re-locates the element
// deterministically on the same document. It walks the ancestor chain;
// each level is anchored by a semantic attribute or id where one exists,
// otherwise described by tag, first class, and an :nth-of-type
// disambiguator when same-tag siblings are present.
func BuildPath(n *html.Node) string {
	var segments []string

	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if cur.Data == "html" || cur.Data == "body" {
			break
		}

		if attr, val := anchorAttr(cur); attr != "" {
			segments = append([]string{fmt.Sprintf(`%s[%s="%s"]`, cur.Data, attr, val)}, segments...)
			return strings.Join(segments, " > ")
		}
		if id := attrValue(cur, "id"); id != "" {
			segments = append([]string{fmt.Sprintf("%s#%s", cur.Data, id)}, segments...)
			return strings.Join(segments, " > ")
		}

		seg := cur.Data
		if class := firstClass(cur); class != "" {
			seg += "." + class
		}
		if pos, ambiguous := typePosition(cur); ambiguous {
			seg += fmt.Sprintf(":nth-of-type(%d)", pos)
		}
		segments = append([]string{seg}, segments...)
	}

	return strings.Join(segments, " > ")
}

// anchorAttr returns the first prioritized semantic attribute present on
// the node along with its value.
func anchorAttr(n *html.Node) (string, string) {
	for _, name := range anchorAttrs {
		if v := attrValue(n, name); v != "" {
			return name, v
		}
	}
	return "", ""
}

func attrValue(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func firstClass(n *html.Node) string {
	fields := strings.Fields(attrValue(n, "class"))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// typePosition returns the node's 1-based position among same-tag element
// siblings and whether a disambiguator is needed at all.
func typePosition(n *html.Node) (int, bool) {
	if n.Parent == nil {
		return 1, false
	}
	pos := 0
	total := 0
	for sib := n.Parent.FirstChild; sib != nil; sib = sib.NextSibling {
		if sib.Type != html.ElementNode || sib.Data != n.Data {
			continue
		}
		total++
		if sib == n {
			pos = total
		}
	}
	return pos, total > 1
}
