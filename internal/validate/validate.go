// Package validate executes candidate recipes against documents and
// scores the extraction against an expected record. It is also the
// deterministic replay path for stable recipes.
package validate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rothnic/mercator/internal/compare"
	"github.com/rothnic/mercator/internal/model"
)

// StopReasonSchema is the stop reason for record-schema hard failures,
// distinct from tolerance mismatches.
const StopReasonSchema = "Schema validation failed"

var skuPrefixRe = regexp.MustCompile(`(?i)^(sku|item\s*(?:no\.?|number|#)?)\s*[:#]?\s*`)

// Validate executes every field of the recipe against the document,
// assembles the candidate record, and scores it against the expected
// record. Extraction failures are data in the result; only malformed
// selectors, unknown transforms, and unimplemented strategies are errors.
func Validate(htmlSrc string, recipe *model.Recipe, expected model.Record) (model.DocumentValidationResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlSrc))
	if err != nil {
		return model.DocumentValidationResult{}, eris.Wrap(err, "validate: parse document")
	}
	return validateDoc(doc, recipe, expected)
}

func validateDoc(doc *goquery.Document, recipe *model.Recipe, expected model.Record) (model.DocumentValidationResult, error) {
	log := zap.L().With(zap.String("recipe", recipe.Name))

	values := make(map[string]any, len(recipe.Target.Fields))
	for i := range recipe.Target.Fields {
		fr := &recipe.Target.Fields[i]
		v, err := extractField(doc, fr)
		if err != nil {
			return model.DocumentValidationResult{}, err
		}
		if v != nil {
			values[fr.FieldID] = v
		}
	}

	record := assembleRecord(values)

	// Required fields short-circuit before any schema or tolerance work.
	if missing := record.MissingRequired(); len(missing) > 0 {
		log.Debug("validation short-circuit on missing required fields", zap.Strings("missing", missing))
		return model.DocumentValidationResult{
			Status:     model.ValidationFail,
			Confidence: 0,
			StopReason: fmt.Sprintf("missing required fields: %s", strings.Join(missing, ", ")),
			Record:     &record,
		}, nil
	}

	if err := record.Validate(); err != nil {
		return model.DocumentValidationResult{
			Status:     model.ValidationFail,
			Confidence: 0,
			StopReason: StopReasonSchema,
			Record:     &record,
		}, nil
	}

	fields := make(map[string]model.FieldResult, len(recipe.Target.Fields))
	allPass := true
	sum := 0.0
	count := 0
	criticalFailed := ""

	for i := range recipe.Target.Fields {
		fr := &recipe.Target.Fields[i]

		expectedValue, ok := expected.FieldValue(fr.FieldID)
		if !ok {
			continue
		}
		actualValue, ok := record.FieldValue(fr.FieldID)
		if !ok {
			actualValue = values[fr.FieldID]
		}

		kind := fr.Tolerance.Kind
		if kind == "" {
			kind = model.KindForField(fr.FieldID)
		}
		tol := fr.Tolerance
		if tol.Kind == "" {
			tol, _ = model.DefaultTolerance(fr.FieldID)
		}

		res := compare.Compare(kind, expectedValue, actualValue, tol)
		fields[fr.FieldID] = model.FieldResult{
			FieldID:    fr.FieldID,
			Status:     res.Status,
			Confidence: res.Confidence,
			Extracted:  actualValue,
			Notes:      res.Notes,
			Errors:     res.Errors,
		}

		sum += res.Confidence
		count++
		if res.Status != model.ValidationPass {
			allPass = false
			if criticalFailed == "" && isCritical(fr.FieldID) {
				criticalFailed = fr.FieldID
			}
		}
	}

	result := model.DocumentValidationResult{
		Status: model.ValidationPass,
		Fields: fields,
		Record: &record,
	}
	if count > 0 {
		result.Confidence = sum / float64(count)
	}
	if !allPass {
		result.Status = model.ValidationFail
		if criticalFailed != "" {
			result.StopReason = fmt.Sprintf("critical field failed: %s", criticalFailed)
		}
	}
	return result, nil
}

func isCritical(fieldID string) bool {
	for _, c := range model.CriticalFields {
		if c == fieldID {
			return true
		}
	}
	return false
}

// extractField runs a field recipe's first selector step against the
// document and applies its transform pipeline. Rating and breadcrumb
// fields locate a container by selector but parse a fixed sub-structure
// instead of the generic text/attribute path.
func extractField(doc *goquery.Document, fr *model.FieldRecipe) (any, error) {
	if len(fr.SelectorSteps) == 0 {
		return nil, eris.Errorf("validate: field %s has no selector steps", fr.FieldID)
	}
	step := fr.SelectorSteps[0]

	switch step.Strategy {
	case model.StrategyCSS, "":
	case model.StrategyXPath:
		return nil, eris.Errorf("validate: field %s uses xpath, which is not implemented", fr.FieldID)
	default:
		return nil, eris.Errorf("validate: field %s uses unknown selector strategy %q", fr.FieldID, step.Strategy)
	}

	sel, err := cascadia.Compile(step.Value)
	if err != nil {
		return nil, eris.Wrapf(err, "validate: field %s selector %q", fr.FieldID, step.Value)
	}
	selection := doc.FindMatcher(sel)

	switch fr.FieldID {
	case model.FieldRating:
		r := ExtractRating(selection.First())
		if r == nil {
			return nil, nil
		}
		return *r, nil
	case model.FieldBreadcrumbs:
		crumbs := ExtractBreadcrumbs(selection.First())
		if len(crumbs) == 0 {
			return nil, nil
		}
		return crumbs, nil
	}

	var raw any
	if step.All {
		var list []string
		selection.Each(func(_ int, s *goquery.Selection) {
			if v := stepValue(s, step); v != "" {
				list = append(list, v)
			}
		})
		if len(list) == 0 {
			return nil, nil
		}
		raw = list
	} else {
		idx := step.Ordinal
		if idx >= selection.Length() {
			return nil, nil
		}
		v := stepValue(selection.Eq(idx), step)
		if v == "" {
			return nil, nil
		}
		raw = v
	}

	value, err := applyTransforms(raw, fr.Transforms)
	if err != nil {
		return nil, eris.Wrapf(err, "validate: field %s", fr.FieldID)
	}
	value = postProcess(fr.FieldID, value, raw)
	if value == nil {
		return nil, nil
	}

	ok, err := runValidators(fr, value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return value, nil
}

// runValidators applies a field's validators to the transformed value.
// A failed check discards the value, so required fields surface through
// the record's missing-required short-circuit.
func runValidators(fr *model.FieldRecipe, value any) (bool, error) {
	for _, v := range fr.Validators {
		switch v.Kind {
		case "required", "":
			// Presence is enforced at the record level.
		case "regex":
			re, err := regexp.Compile(v.Pattern)
			if err != nil {
				return false, eris.Wrapf(err, "validate: field %s validator pattern %q", fr.FieldID, v.Pattern)
			}
			for _, s := range validatorStrings(value) {
				if !re.MatchString(s) {
					return false, nil
				}
			}
		case "min_length":
			for _, s := range validatorStrings(value) {
				if len([]rune(s)) < v.Min {
					return false, nil
				}
			}
		default:
			return false, eris.Errorf("validate: field %s has unknown validator kind %q", fr.FieldID, v.Kind)
		}
	}
	return true, nil
}

// validatorStrings yields the textual forms a validator checks. Structured
// values without a text form are exempt.
func validatorStrings(value any) []string {
	switch t := value.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	case model.Money:
		return []string{t.Raw}
	}
	return nil
}

// stepValue extracts the node's text, or the named attribute when the
// step specifies one.
func stepValue(s *goquery.Selection, step model.SelectorStep) string {
	if step.Attribute != "" {
		return strings.TrimSpace(s.AttrOr(step.Attribute, ""))
	}
	return strings.Join(strings.Fields(s.Text()), " ")
}

// postProcess applies field-specific fixups after the transform pipeline.
func postProcess(fieldID string, value, raw any) any {
	switch fieldID {
	case model.FieldSKU:
		if s, ok := value.(string); ok {
			return strings.TrimSpace(skuPrefixRe.ReplaceAllString(s, ""))
		}
	case model.FieldPrice:
		switch v := value.(type) {
		case model.Money:
			if v.Raw == "" {
				if s, ok := raw.(string); ok {
					v.Raw = s
				}
			}
			return v
		case string:
			// No money.parse transform configured; parse here so the
			// record always carries a structured price.
			m, err := model.ParseMoney(v)
			if err != nil {
				return nil
			}
			return m
		}
	case model.FieldImages:
		if list, ok := value.([]string); ok {
			return dedupe(list)
		}
	}
	return value
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// assembleRecord builds the candidate record from extracted field values.
// Shapes that do not fit a field are dropped, never coerced; the schema
// check catches what is missing.
func assembleRecord(values map[string]any) model.Record {
	var r model.Record
	for fieldID, v := range values {
		switch fieldID {
		case model.FieldTitle:
			if s, ok := v.(string); ok {
				r.Title = s
			}
		case model.FieldCanonical:
			if s, ok := v.(string); ok {
				r.CanonicalURL = s
			}
		case model.FieldDescription:
			if s, ok := v.(string); ok {
				r.Description = s
			}
		case model.FieldSKU:
			if s, ok := v.(string); ok {
				r.SKU = s
			}
		case model.FieldBrand:
			if s, ok := v.(string); ok {
				r.Brand = s
			}
		case model.FieldPrice:
			if m, ok := v.(model.Money); ok {
				r.Price = m
			}
		case model.FieldImages:
			switch t := v.(type) {
			case []string:
				r.Images = t
			case string:
				r.Images = []string{t}
			}
		case model.FieldRating:
			if rt, ok := v.(model.Rating); ok {
				rc := rt
				r.Rating = &rc
			}
		case model.FieldBreadcrumbs:
			if bc, ok := v.([]model.Breadcrumb); ok {
				r.Breadcrumbs = bc
			}
		}
	}
	return r
}
