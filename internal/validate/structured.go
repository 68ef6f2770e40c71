package validate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/rothnic/mercator/internal/model"
)

var floatRe = regexp.MustCompile(`\d+(?:\.\d+)?`)

// ExtractRating parses a rating sub-structure from the selected
// container. Ratings bypass the generic selector pipeline: the container
// is located by selector, but its microdata children are parsed directly.
func ExtractRating(sel *goquery.Selection) *model.Rating {
	if sel.Length() == 0 {
		return nil
	}

	rating := &model.Rating{}
	found := false

	if v, ok := microdataValue(sel, "ratingValue"); ok {
		rating.Value = v
		found = true
	}
	if v, ok := microdataValue(sel, "reviewCount"); ok {
		rating.ReviewCount = &v
	}
	if v, ok := microdataValue(sel, "bestRating"); ok {
		rating.BestRating = &v
	}
	if v, ok := microdataValue(sel, "worstRating"); ok {
		rating.WorstRating = &v
	}
	if href, ok := sel.Find("a").Attr("href"); ok {
		rating.URL = href
	}

	if !found {
		// No microdata: take the first numeric token of the container text.
		if m := floatRe.FindString(sel.Text()); m != "" {
			v, err := strconv.ParseFloat(m, 64)
			if err != nil {
				return nil
			}
			rating.Value = v
			found = true
		}
	}
	if !found {
		return nil
	}
	return rating
}

// microdataValue reads an itemprop child's content attribute or text as a
// float.
func microdataValue(sel *goquery.Selection, prop string) (float64, bool) {
	node := sel.Find(`[itemprop="` + prop + `"]`).First()
	if node.Length() == 0 {
		if sel.AttrOr("itemprop", "") == prop {
			node = sel
		} else {
			return 0, false
		}
	}
	raw := node.AttrOr("content", "")
	if raw == "" {
		raw = strings.TrimSpace(node.Text())
	}
	m := floatRe.FindString(raw)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ExtractBreadcrumbs parses a breadcrumb trail from the selected
// container: anchors (or list items) in document order become crumbs with
// 1-based positions.
func ExtractBreadcrumbs(sel *goquery.Selection) []model.Breadcrumb {
	if sel.Length() == 0 {
		return nil
	}

	var crumbs []model.Breadcrumb
	appendCrumb := func(label, href string) {
		label = strings.TrimSpace(label)
		if label == "" {
			return
		}
		crumbs = append(crumbs, model.Breadcrumb{
			Label:    label,
			URL:      href,
			Position: len(crumbs) + 1,
		})
	}

	anchors := sel.Find("a")
	if anchors.Length() > 0 {
		anchors.Each(func(_ int, a *goquery.Selection) {
			appendCrumb(a.Text(), a.AttrOr("href", ""))
		})
		return crumbs
	}

	sel.Find("li").Each(func(_ int, li *goquery.Selection) {
		appendCrumb(li.Text(), "")
	})
	return crumbs
}
