// Package tools provides the document-scoped evidence toolset consumed by
// the orchestration pipeline. Every call counts against the caller's
// budget; counters are per-toolset, never process-wide.
package tools

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

// Match is one element returned by a selector query.
type Match struct {
	Text       string
	Attributes map[string]string
	Path       string
	Node       *html.Node
}

// QueryRequest scopes a selector query.
type QueryRequest struct {
	Selector  string
	Attribute string
	Ordinal   int
	All       bool
	Limit     int
}

// Snippet is one text-search excerpt.
type Snippet struct {
	Text  string
	Index int
}

// Toolset is the evidence provider the pipeline probes a document with.
type Toolset interface {
	QuerySelector(req QueryRequest) ([]Match, error)
	SearchText(query string, caseSensitive bool, maxSnippets int) []Snippet
	ReadTranscript() []string
	Invocations() int
	ResetInvocations()
}

// DocumentToolset is a goquery-backed Toolset over a single parsed
// document plus an optional transcript. It is scoped to one orchestration
// invocation and is not safe for concurrent use.
type DocumentToolset struct {
	doc         *goquery.Document
	text        string
	transcript  []string
	invocations int
}

// NewDocumentToolset parses the document once and captures its flattened
// text for searches. The transcript (e.g. OCR lines) may be nil.
func NewDocumentToolset(htmlSrc string, transcript []string) (*DocumentToolset, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
	if err != nil {
		return nil, eris.Wrap(err, "tools: parse document")
	}
	return &DocumentToolset{
		doc:        doc,
		text:       collapseSpace(doc.Text()),
		transcript: transcript,
	}, nil
}

// Document exposes the parsed document for components that share the
// toolset's parse (the derivation engine's full-tree scan).
func (t *DocumentToolset) Document() *goquery.Document {
	return t.doc
}

// QuerySelector runs a CSS selector against the document. When Ordinal is
// set and All is false, only that match is returned.
func (t *DocumentToolset) QuerySelector(req QueryRequest) ([]Match, error) {
	t.invocations++

	sel, err := cascadia.Compile(req.Selector)
	if err != nil {
		return nil, eris.Wrapf(err, "tools: invalid selector %q", req.Selector)
	}

	var matches []Match
	t.doc.FindMatcher(sel).Each(func(i int, s *goquery.Selection) {
		if req.Limit > 0 && len(matches) >= req.Limit {
			return
		}
		matches = append(matches, newMatch(s))
	})

	if !req.All && req.Ordinal > 0 {
		if req.Ordinal >= len(matches) {
			return nil, nil
		}
		return matches[req.Ordinal : req.Ordinal+1], nil
	}
	return matches, nil
}

func newMatch(s *goquery.Selection) Match {
	m := Match{
		Text:       collapseSpace(s.Text()),
		Attributes: map[string]string{},
	}
	if len(s.Nodes) > 0 {
		m.Node = s.Nodes[0]
		for _, a := range s.Nodes[0].Attr {
			m.Attributes[a.Key] = a.Val
		}
		m.Path = nodePath(s.Nodes[0])
	}
	return m
}

// nodePath renders a tag-only ancestor path for diagnostics.
func nodePath(n *html.Node) string {
	var parts []string
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type == html.ElementNode {
			parts = append([]string{cur.Data}, parts...)
		}
	}
	return strings.Join(parts, " > ")
}

// SearchText returns up to maxSnippets excerpts of the document text
// containing the query.
func (t *DocumentToolset) SearchText(query string, caseSensitive bool, maxSnippets int) []Snippet {
	t.invocations++

	haystack := t.text
	needle := query
	if !caseSensitive {
		haystack = strings.ToLower(haystack)
		needle = strings.ToLower(needle)
	}
	if needle == "" || maxSnippets <= 0 {
		return nil
	}

	const window = 80
	var snippets []Snippet
	offset := 0
	for len(snippets) < maxSnippets {
		idx := strings.Index(haystack[offset:], needle)
		if idx < 0 {
			break
		}
		abs := offset + idx
		start := abs - window/2
		if start < 0 {
			start = 0
		}
		end := abs + len(needle) + window/2
		if end > len(t.text) {
			end = len(t.text)
		}
		snippets = append(snippets, Snippet{Text: t.text[start:end], Index: abs})
		offset = abs + len(needle)
	}
	return snippets
}

// ReadTranscript returns the ordered transcript lines.
func (t *DocumentToolset) ReadTranscript() []string {
	t.invocations++
	return t.transcript
}

// Invocations reports the number of tool calls since the last reset.
func (t *DocumentToolset) Invocations() int { return t.invocations }

// ResetInvocations zeroes the counter; the pipeline calls this at each
// pass boundary so pass summaries report per-pass usage.
func (t *DocumentToolset) ResetInvocations() { t.invocations = 0 }

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
