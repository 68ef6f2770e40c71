package selector

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rothnic/mercator/internal/model"
	"github.com/rothnic/mercator/internal/tools"
)

// priorityAttrs is the attribute list candidate selectors are generated
// over, most stable first. The same order anchors CSS path construction.
var priorityAttrs = []string{
	"data-test", "data-testid", "data-qa", "aria-label",
	"id", "class", "name", "itemprop", "property",
}

// currencyMarkerRe matches a currency symbol or ISO code next to a digit.
var currencyMarkerRe = regexp.MustCompile(`[$€£¥₹₩]|\b[A-Z]{3}\b`)

var digitRe = regexp.MustCompile(`\d`)

// fieldSpec drives candidate generation and acceptance for one field.
type fieldSpec struct {
	id            string
	required      bool
	keywords      []string
	preferredTags []string
	// attribute to extract instead of text; empty means node text.
	attribute string
	all       bool
	// fixed selectors tried before keyword-generated candidates; these
	// cover well-known metadata locations (canonical link, og tags).
	fixed []model.SelectorStep
	// textFilter, when set, is the hard pattern extracted values must
	// match during the full-tree scan.
	textFilter *regexp.Regexp
	accept     func(spec fieldSpec, matches []tools.Match) bool
}

// acceptText requires a non-empty text match; when seed tokens are known
// the text must overlap them.
func acceptText(seeds []string) func(fieldSpec, []tools.Match) bool {
	return func(_ fieldSpec, matches []tools.Match) bool {
		if len(matches) == 0 {
			return false
		}
		text := strings.TrimSpace(matches[0].Text)
		if text == "" {
			return false
		}
		if len(seeds) == 0 {
			return true
		}
		return tokenOverlap(text, seeds) > 0
	}
}

// acceptPrice requires a currency marker and a digit in the match text.
func acceptPrice(_ fieldSpec, matches []tools.Match) bool {
	if len(matches) == 0 {
		return false
	}
	text := matches[0].Text
	return currencyMarkerRe.MatchString(text) && digitRe.MatchString(text)
}

// acceptAttribute requires the extraction attribute to be present and
// non-empty on the first match.
func acceptAttribute(spec fieldSpec, matches []tools.Match) bool {
	if len(matches) == 0 {
		return false
	}
	return strings.TrimSpace(matches[0].Attributes[spec.attribute]) != ""
}

// acceptAllAttribute requires every match to expose the extraction
// attribute; used for all-match image queries.
func acceptAllAttribute(spec fieldSpec, matches []tools.Match) bool {
	if len(matches) == 0 {
		return false
	}
	for _, m := range matches {
		if strings.TrimSpace(m.Attributes[spec.attribute]) == "" {
			return false
		}
	}
	return true
}

// acceptStructural requires at least one match; rating and breadcrumb
// sub-structures are parsed later by the validator.
func acceptStructural(_ fieldSpec, matches []tools.Match) bool {
	return len(matches) > 0
}

// fieldSpecs returns the ordered specs for one synthesis run. Seeds come
// from the expected record and transcript and parameterize the title
// predicate, so specs are built per run.
func fieldSpecs(titleSeeds []string) []fieldSpec {
	return []fieldSpec{
		{
			id:            model.FieldTitle,
			required:      true,
			keywords:      []string{"product-title", "product-name", "title", "name"},
			preferredTags: []string{"h1", "h2"},
			accept:        acceptText(titleSeeds),
		},
		{
			id:            model.FieldPrice,
			required:      true,
			keywords:      []string{"price", "amount", "offer", "cost"},
			preferredTags: []string{"span", "div", "p"},
			textFilter:    currencyMarkerRe,
			accept:        acceptPrice,
		},
		{
			id:       model.FieldCanonical,
			required: true,
			fixed: []model.SelectorStep{
				{Strategy: model.StrategyCSS, Value: `link[rel="canonical"]`, Attribute: "href"},
				{Strategy: model.StrategyCSS, Value: `meta[property="og:url"]`, Attribute: "content"},
			},
			keywords:  []string{"canonical"},
			attribute: "href",
			accept:    acceptAttribute,
		},
		{
			id: model.FieldDescription,
			fixed: []model.SelectorStep{
				{Strategy: model.StrategyCSS, Value: `meta[name="description"]`, Attribute: "content"},
				{Strategy: model.StrategyCSS, Value: `meta[property="og:description"]`, Attribute: "content"},
			},
			keywords:  []string{"description"},
			attribute: "content",
			accept:    acceptAttribute,
		},
		{
			id:            model.FieldSKU,
			keywords:      []string{"sku", "item-number", "product-id"},
			preferredTags: []string{"span", "div"},
			accept:        acceptText(nil),
		},
		{
			id:            model.FieldBrand,
			keywords:      []string{"brand", "manufacturer", "vendor"},
			preferredTags: []string{"span", "a", "div"},
			accept:        acceptText(nil),
		},
		{
			id:            model.FieldImages,
			required:      true,
			keywords:      []string{"product-image", "gallery", "hero"},
			preferredTags: []string{"img"},
			attribute:     "src",
			all:           true,
			fixed: []model.SelectorStep{
				{Strategy: model.StrategyCSS, Value: `img[itemprop="image"]`, Attribute: "src", All: true},
				{Strategy: model.StrategyCSS, Value: "img", Attribute: "src", All: true},
			},
			accept: acceptAllAttribute,
		},
		{
			id:            model.FieldRating,
			keywords:      []string{"rating", "review", "stars"},
			preferredTags: []string{"div", "span"},
			fixed: []model.SelectorStep{
				{Strategy: model.StrategyCSS, Value: `[itemprop="aggregateRating"]`},
			},
			accept: acceptStructural,
		},
		{
			id:            model.FieldBreadcrumbs,
			keywords:      []string{"breadcrumb", "crumbs"},
			preferredTags: []string{"nav", "ol", "ul"},
			fixed: []model.SelectorStep{
				{Strategy: model.StrategyCSS, Value: `nav[aria-label="breadcrumb"]`},
				{Strategy: model.StrategyCSS, Value: `[itemtype*="BreadcrumbList"]`},
			},
			accept: acceptStructural,
		},
	}
}

// candidates generates keyword-driven attribute selectors for a spec, in
// deterministic preference order: for each prioritized attribute and
// keyword, preferred-tag-prefixed substring forms first, then the bare
// substring form, then the exact form.
func candidates(spec fieldSpec) []model.SelectorStep {
	var steps []model.SelectorStep
	add := func(value, note string) {
		steps = append(steps, model.SelectorStep{
			Strategy:  model.StrategyCSS,
			Value:     value,
			Attribute: spec.attribute,
			All:       spec.all,
			Note:      note,
		})
	}

	for _, attr := range priorityAttrs {
		for _, kw := range spec.keywords {
			for _, tag := range spec.preferredTags {
				add(fmt.Sprintf(`%s[%s*="%s"]`, tag, attr, kw),
					fmt.Sprintf("keyword %q substring on %s, tag %s", kw, attr, tag))
			}
			add(fmt.Sprintf(`[%s*="%s"]`, attr, kw),
				fmt.Sprintf("keyword %q substring on %s", kw, attr))
			add(fmt.Sprintf(`[%s="%s"]`, attr, kw),
				fmt.Sprintf("keyword %q exact on %s", kw, attr))
		}
	}
	return steps
}

// tokenOverlap counts how many seed tokens appear in the normalized text.
func tokenOverlap(text string, seeds []string) int {
	norm := " " + strings.ToLower(collapse(text)) + " "
	count := 0
	for _, seed := range seeds {
		s := strings.ToLower(strings.TrimSpace(seed))
		if s == "" {
			continue
		}
		if strings.Contains(norm, s) {
			count++
		}
	}
	return count
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// seedTokens splits text into lowercase tokens at least three runes long.
func seedTokens(lines []string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, line := range lines {
		for _, tok := range strings.Fields(strings.ToLower(line)) {
			tok = strings.Trim(tok, ".,:;!?\"'()[]")
			if len([]rune(tok)) < 3 {
				continue
			}
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			out = append(out, tok)
		}
	}
	return out
}
