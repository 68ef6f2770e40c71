package selector

import (
	"strings"

	"golang.org/x/net/html"
)

// scanResult is the winning element of a full-tree scan.
type scanResult struct {
	node  *html.Node
	score int
	text  string
}

// skipTags never carry extractable field content.
var skipTags = map[string]struct{}{
	"script": {}, "style": {}, "noscript": {}, "head": {},
	"meta": {}, "link": {}, "title": {},
}

// scanTree walks every element and scores it against a field spec and its
// seed tokens. The score combines seed-token overlap of the element's
// direct text with bonuses for keyword hints in attribute values,
// preferred tag names, and stable identifying attributes. Elements whose
// text fails the spec's hard pattern filter are excluded outright. The
// highest score wins; ties go to the first element in document order.
func scanTree(root *html.Node, spec fieldSpec, seeds []string) *scanResult {
	var best *scanResult

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			if _, skip := skipTags[n.Data]; skip {
				return
			}
			if r := scoreNode(n, spec, seeds); r != nil {
				if best == nil || r.score > best.score {
					best = r
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return best
}

func scoreNode(n *html.Node, spec fieldSpec, seeds []string) *scanResult {
	text := collapse(directText(n))

	if spec.textFilter != nil && !spec.textFilter.MatchString(text) {
		return nil
	}
	if spec.attribute == "" && text == "" {
		return nil
	}

	score := tokenOverlap(text, seeds)

	// Attribute hints: a keyword appearing in a prioritized attribute's
	// value is a strong signal even when the text overlap is weak.
	for _, attrName := range priorityAttrs {
		val := strings.ToLower(attrValue(n, attrName))
		if val == "" {
			continue
		}
		for _, kw := range spec.keywords {
			if strings.Contains(val, kw) {
				score += 2
			}
		}
	}

	for _, tag := range spec.preferredTags {
		if n.Data == tag {
			score++
			break
		}
	}

	if attrValue(n, "data-test") != "" || attrValue(n, "id") != "" {
		score++
	}

	if score <= 0 {
		return nil
	}
	return &scanResult{node: n, score: score, text: text}
}

// directText concatenates only the node's immediate text children, so an
// ancestor never outscores the element that actually holds the value.
func directText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
	}
	return b.String()
}
