package selector

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func findNode(t *testing.T, htmlSrc, selector string) (*goquery.Document, *html.Node) {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
	require.NoError(t, err)
	sel := doc.Find(selector)
	require.Positive(t, sel.Length(), "selector %q found nothing", selector)
	return doc, sel.Nodes[0]
}

func TestBuildPath_AnchorsOnDataAttribute(t *testing.T) {
	src := `<html><body><div><section data-test="pdp"><div><span class="amount">$149.00</span></div></section></div></body></html>`
	_, n := findNode(t, src, "span.amount")

	path := BuildPath(n)
	assert.Equal(t, `section[data-test="pdp"] > div > span.amount`, path)
}

func TestBuildPath_AnchorsOnID(t *testing.T) {
	src := `<html><body><div id="main"><p>hello</p></div></body></html>`
	_, n := findNode(t, src, "p")

	path := BuildPath(n)
	assert.Equal(t, "div#main > p", path)
}

func TestBuildPath_NthOfTypeDisambiguation(t *testing.T) {
	src := `<html><body><ul><li>a</li><li>b</li><li>c</li></ul></body></html>`
	doc, _ := findNode(t, src, "ul")

	second := doc.Find("li").Eq(1)
	path := BuildPath(second.Nodes[0])
	assert.Equal(t, "ul > li:nth-of-type(2)", path)
}

func TestBuildPath_RelocatesSameElement(t *testing.T) {
	src := `<html><body>
<div class="wrap"><div class="col"><span>first</span></div><div class="col"><span>target</span></div></div>
</body></html>`
	doc, _ := findNode(t, src, "body")

	target := doc.Find("span").Eq(1)
	path := BuildPath(target.Nodes[0])

	relocated := doc.Find(path)
	require.Equal(t, 1, relocated.Length(), "path %q must re-locate exactly one element", path)
	assert.Equal(t, "target", relocated.Text())
}

func TestBuildPath_FirstClassOnly(t *testing.T) {
	src := `<html><body><p class="lead highlight">x</p></body></html>`
	_, n := findNode(t, src, "p")
	assert.Equal(t, "p.lead", BuildPath(n))
}
