// Package compare implements the type-aware tolerance comparator that
// judges whether an extracted value matches an expected value.
package compare

import (
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/rothnic/mercator/internal/model"
)

// Result is the comparator's verdict for a single field.
type Result struct {
	Status     model.ValidationStatus
	Confidence float64
	Notes      []string
	Errors     []string
}

func pass(confidence float64, notes ...string) Result {
	return Result{Status: model.ValidationPass, Confidence: clamp01(confidence), Notes: notes}
}

func fail(confidence float64, notes ...string) Result {
	return Result{Status: model.ValidationFail, Confidence: clamp01(confidence), Notes: notes}
}

// typeMismatch is a hard fail with confidence 0; the comparator never
// coerces mismatched shapes.
func typeMismatch(kind model.FieldKind, expected, actual any) Result {
	return Result{
		Status:     model.ValidationFail,
		Confidence: 0,
		Errors: []string{fmt.Sprintf(
			"tolerance type mismatch: kind %s cannot compare expected %T against actual %T",
			kind, expected, actual,
		)},
	}
}

// Compare judges actual against expected under the tolerance for the
// given field kind.
func Compare(kind model.FieldKind, expected, actual any, tol model.Tolerance) Result {
	switch kind {
	case model.KindText:
		if tol.Text == nil {
			return missingTolerance(kind)
		}
		return compareText(expected, actual, *tol.Text)
	case model.KindMoney:
		if tol.Money == nil {
			return missingTolerance(kind)
		}
		return compareMoney(expected, actual, *tol.Money)
	case model.KindURL:
		if tol.URL == nil {
			return missingTolerance(kind)
		}
		return compareURL(expected, actual, *tol.URL)
	case model.KindImage:
		if tol.Image == nil {
			return missingTolerance(kind)
		}
		return compareImage(expected, actual, *tol.Image)
	case model.KindRating:
		if tol.Rating == nil {
			return missingTolerance(kind)
		}
		return compareRating(expected, actual, *tol.Rating)
	case model.KindBreadcrumbs:
		if tol.Breadcrumbs == nil {
			return missingTolerance(kind)
		}
		return compareBreadcrumbs(expected, actual, *tol.Breadcrumbs)
	}
	return Result{
		Status:     model.ValidationFail,
		Confidence: 0,
		Errors:     []string{fmt.Sprintf("unknown field kind %q", kind)},
	}
}

func missingTolerance(kind model.FieldKind) Result {
	return Result{
		Status:     model.ValidationFail,
		Confidence: 0,
		Errors:     []string{fmt.Sprintf("no %s tolerance configured", kind)},
	}
}

func compareText(expected, actual any, tol model.TextTolerance) Result {
	es, ok := expected.(string)
	if !ok {
		return typeMismatch(model.KindText, expected, actual)
	}
	as, ok := actual.(string)
	if !ok {
		return typeMismatch(model.KindText, expected, actual)
	}

	if tol.Trim {
		es = strings.TrimSpace(es)
		as = strings.TrimSpace(as)
	}
	if !tol.CaseSensitive {
		es = strings.ToLower(es)
		as = strings.ToLower(as)
	}

	distance := matchr.Levenshtein(es, as)
	eLen := len([]rune(es))
	aLen := len([]rune(as))
	denom := math.Max(float64(eLen), math.Max(float64(aLen), 1))
	ratio := float64(distance) / denom

	note := fmt.Sprintf("edit distance %d, ratio %.4f (max %.4f)", distance, ratio, tol.MaxDistanceRatio)
	if ratio <= tol.MaxDistanceRatio {
		return pass(1-ratio, note)
	}
	return fail(1-ratio, note)
}

func compareMoney(expected, actual any, tol model.MoneyTolerance) Result {
	em, ok := expected.(model.Money)
	if !ok {
		return typeMismatch(model.KindMoney, expected, actual)
	}
	am, ok := actual.(model.Money)
	if !ok {
		return typeMismatch(model.KindMoney, expected, actual)
	}

	if em.CurrencyCode != am.CurrencyCode {
		return fail(0, fmt.Sprintf("currency mismatch: expected %s, got %s", em.CurrencyCode, am.CurrencyCode))
	}

	// Both amounts are scaled to the expected side's precision so that
	// operands carrying different precisions difference correctly.
	scale := math.Pow10(em.Precision)
	eMinor := int64(math.Round(em.Amount * scale))
	aMinor := int64(math.Round(am.Amount * scale))
	minorDelta := aMinor - eMinor
	if minorDelta < 0 {
		minorDelta = -minorDelta
	}

	relDelta := 0.0
	if em.Amount != 0 {
		relDelta = math.Abs(am.Amount-em.Amount) / em.Amount
	}

	note := fmt.Sprintf("minor delta %d (max %d), relative delta %.6f (max %.6f)",
		minorDelta, tol.MaxAbsoluteMinorUnits, relDelta, tol.MaxRelativeDifference)

	// The relative check is skipped when the expected amount is zero or
	// when no relative bound is configured.
	relOK := tol.MaxRelativeDifference <= 0 || em.Amount == 0 || relDelta <= tol.MaxRelativeDifference
	if minorDelta <= tol.MaxAbsoluteMinorUnits && relOK {
		return pass(1-relDelta, note)
	}
	return fail(1-relDelta, note)
}

// normalizeURL applies the configured normalizations via standard URL
// parsing. Malformed URLs fall back to trimmed-string comparison.
func normalizeURL(raw string, stripQuery, collapseSlash bool) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	if stripQuery {
		u.RawQuery = ""
		u.Fragment = ""
	}
	if collapseSlash && len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	return u.String()
}

func compareURL(expected, actual any, tol model.URLTolerance) Result {
	es, ok := expected.(string)
	if !ok {
		return typeMismatch(model.KindURL, expected, actual)
	}
	as, ok := actual.(string)
	if !ok {
		return typeMismatch(model.KindURL, expected, actual)
	}

	en := normalizeURL(es, tol.IgnoreQuery, tol.NormalizeTrailingSlash)
	an := normalizeURL(as, tol.IgnoreQuery, tol.NormalizeTrailingSlash)

	if en == an {
		return pass(1, fmt.Sprintf("normalized URLs equal: %s", en))
	}
	return fail(0, fmt.Sprintf("normalized URLs differ: %s vs %s", en, an))
}

// asStringList accepts a scalar string or a string slice.
func asStringList(v any) ([]string, bool) {
	switch t := v.(type) {
	case string:
		return []string{t}, true
	case []string:
		return t, true
	}
	return nil, false
}

func compareImage(expected, actual any, tol model.ImageTolerance) Result {
	el, ok := asStringList(expected)
	if !ok {
		return typeMismatch(model.KindImage, expected, actual)
	}
	al, ok := asStringList(actual)
	if !ok {
		return typeMismatch(model.KindImage, expected, actual)
	}

	actualSet := make(map[string]struct{}, len(al))
	for _, a := range al {
		actualSet[normalizeURL(a, tol.IgnoreQuery, true)] = struct{}{}
	}

	matched := 0
	var missing []string
	for _, e := range el {
		n := normalizeURL(e, tol.IgnoreQuery, true)
		if _, ok := actualSet[n]; ok {
			matched++
		} else {
			missing = append(missing, n)
		}
	}

	total := len(el)
	if total == 0 {
		return fail(0, "no expected images to compare")
	}
	confidence := float64(matched) / float64(total)
	note := fmt.Sprintf("%d/%d expected images present", matched, total)

	if matched == total {
		return pass(confidence, note)
	}
	return fail(confidence, note, "missing: "+strings.Join(missing, ", "))
}

func compareRating(expected, actual any, tol model.RatingTolerance) Result {
	er, ok := expected.(model.Rating)
	if !ok {
		return typeMismatch(model.KindRating, expected, actual)
	}
	ar, ok := actual.(model.Rating)
	if !ok {
		return typeMismatch(model.KindRating, expected, actual)
	}

	delta := math.Abs(er.Value - ar.Value)
	note := fmt.Sprintf("rating delta %.4f (max %.4f)", delta, tol.MaxDelta)

	if tol.MaxDelta <= 0 {
		if delta == 0 {
			return pass(1, note)
		}
		return fail(0, note)
	}
	confidence := 1 - delta/tol.MaxDelta
	if delta <= tol.MaxDelta {
		return pass(confidence, note)
	}
	return fail(confidence, note)
}

func compareBreadcrumbs(expected, actual any, tol model.BreadcrumbsTolerance) Result {
	el, ok := expected.([]model.Breadcrumb)
	if !ok {
		return typeMismatch(model.KindBreadcrumbs, expected, actual)
	}
	al, ok := actual.([]model.Breadcrumb)
	if !ok {
		return typeMismatch(model.KindBreadcrumbs, expected, actual)
	}

	matched := 0
	var missing []string
	for i, e := range el {
		found := false
		if i < len(al) && al[i].Label == e.Label {
			found = true
		} else if tol.AllowReordering {
			for _, a := range al {
				if a.Label == e.Label && a.URL == e.URL {
					found = true
					break
				}
			}
		}
		if found {
			matched++
		} else {
			missing = append(missing, e.Label)
		}
	}

	total := len(el)
	if total == 0 {
		return pass(1, "no expected breadcrumbs")
	}
	missingCount := total - matched
	confidence := float64(matched) / float64(total)
	note := fmt.Sprintf("%d/%d crumbs matched, %d missing (max %d)", matched, total, missingCount, tol.MaxMissing)

	if missingCount <= tol.MaxMissing {
		return pass(confidence, note)
	}
	return fail(confidence, note, "missing: "+strings.Join(missing, ", "))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
