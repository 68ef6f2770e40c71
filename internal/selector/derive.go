// Package selector discovers CSS selectors for target-record fields and
// assembles field recipes, either verbatim from a pre-authored rule set
// or by heuristic inference over the raw document.
package selector

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rothnic/mercator/internal/model"
	"github.com/rothnic/mercator/internal/tools"
	"github.com/rothnic/mercator/internal/validate"
)

// ErrDerivationFailed is raised when no candidate selector satisfies a
// required field's acceptance predicate.
var ErrDerivationFailed = eris.New("selector derivation failed")

// candidateQueryLimit caps matches fetched per candidate probe.
const candidateQueryLimit = 12

// Engine synthesizes field recipes over one document. It is scoped to a
// single toolset and therefore a single orchestration invocation.
type Engine struct {
	ts      *tools.DocumentToolset
	baseURL string
	log     *zap.Logger
}

// NewEngine creates a derivation engine over a document toolset. baseURL
// is used to resolve relative URLs in derived transforms.
func NewEngine(ts *tools.DocumentToolset, baseURL string) *Engine {
	return &Engine{
		ts:      ts,
		baseURL: baseURL,
		log:     zap.L().With(zap.String("component", "selector")),
	}
}

// iteration groups the heuristic work into a fixed, ordered plan; each
// group appends one audit-log entry.
type iteration struct {
	name   string
	fields []string
}

var iterationPlan = []iteration{
	{"hero fields", []string{model.FieldTitle, model.FieldPrice}},
	{"metadata fields", []string{model.FieldCanonical, model.FieldDescription, model.FieldSKU, model.FieldBrand}},
	{"gallery fields", []string{model.FieldImages}},
	{"structured fields", []string{model.FieldRating, model.FieldBreadcrumbs}},
}

// FromRuleSet builds a recipe verbatim from pre-authored field rules; no
// discovery logic runs. Zero-value tolerances are filled from the
// per-field defaults.
func FromRuleSet(name, documentType string, expected model.Record, fields []model.FieldRecipe) (*model.Recipe, error) {
	if len(fields) == 0 {
		return nil, eris.New("selector: rule set has no fields")
	}

	now := time.Now().UTC()
	recipe := &model.Recipe{
		Name:      name,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		Target: model.RecipeTarget{
			DocumentType: documentType,
			Schema:       expected.Clone(),
		},
		Lifecycle: model.NewDraftLifecycle(now, "", "created from rule set"),
	}

	for _, f := range fields {
		if len(f.SelectorSteps) == 0 {
			return nil, eris.Errorf("selector: rule-set field %s has no selector steps", f.FieldID)
		}
		cf := f
		if cf.Tolerance.Kind == "" {
			if def, ok := model.DefaultTolerance(cf.FieldID); ok {
				cf.Tolerance = def
			}
		}
		recipe.Target.Fields = append(recipe.Target.Fields, cf)
		recipe.Provenance = append(recipe.Provenance, model.ProvenanceEntry{
			FieldID:  cf.FieldID,
			Strategy: "rule-set",
			Note:     "selector read verbatim from rule configuration",
		})
	}
	return recipe, nil
}

// Synthesize derives a field recipe for every known field using attribute
// keyword candidates first and the full-tree scored scan as fallback. The
// returned iteration log is deterministic for a given document and
// transcript. A required field with no accepted selector is a hard error.
func (e *Engine) Synthesize(name, documentType string, expected model.Record, transcript []string) (*model.Recipe, []model.IterationLog, error) {
	titleSeeds := titleSeeds(expected, transcript)
	specs := fieldSpecs(titleSeeds)
	byID := make(map[string]fieldSpec, len(specs))
	for _, s := range specs {
		byID[s.id] = s
	}

	now := time.Now().UTC()
	recipe := &model.Recipe{
		Name:      name,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		Target: model.RecipeTarget{
			DocumentType: documentType,
			Schema:       expected.Clone(),
		},
		Lifecycle: model.NewDraftLifecycle(now, "", "synthesized heuristically"),
	}

	var logs []model.IterationLog
	partial := model.Record{}

	for _, iter := range iterationPlan {
		var notes []string
		var changed []string
		var samples []string
		contribution := model.Record{}

		for _, fieldID := range iter.fields {
			spec, ok := byID[fieldID]
			if !ok {
				continue
			}

			fr, sample, note, err := e.deriveField(spec, expected, transcript)
			if err != nil {
				return nil, nil, err
			}
			if fr == nil {
				e.log.Debug("no selector for optional field", zap.String("field", fieldID))
				continue
			}

			recipe.Target.Fields = append(recipe.Target.Fields, *fr)
			recipe.Provenance = append(recipe.Provenance, model.ProvenanceEntry{
				FieldID:  fieldID,
				Strategy: "heuristic",
				Note:     note,
				Sample:   fr.Sample,
			})

			e.setPartialField(&contribution, fieldID, sample)
			notes = append(notes, fmt.Sprintf("%s: %s", fieldID, note))
			changed = append(changed, fmt.Sprintf("%s=%s", fieldID, fr.SelectorSteps[0].Value))
			if fr.Sample != "" {
				samples = append(samples, fr.Sample)
			}
		}

		if len(changed) == 0 {
			continue
		}

		merged, err := model.MergeRecords(partial, contribution)
		if err != nil {
			return nil, nil, err
		}
		partial = merged

		logs = append(logs, model.IterationLog{
			Note:             fmt.Sprintf("derived %s: %s", iter.name, strings.Join(notes, "; ")),
			Partial:          partial.Clone(),
			SelectorsChanged: changed,
			Sample:           strings.Join(samples, " | "),
		})
	}

	if len(recipe.Target.Fields) == 0 {
		return nil, nil, eris.Wrap(ErrDerivationFailed, "selector: no fields derived")
	}
	return recipe, logs, nil
}

// deriveField tries, in order, the spec's fixed selectors, the generated
// attribute-keyword candidates, and the full-tree scored scan.
func (e *Engine) deriveField(spec fieldSpec, expected model.Record, transcript []string) (*model.FieldRecipe, any, string, error) {
	for _, step := range spec.fixed {
		fr, sample, ok := e.tryCandidate(spec, step)
		if ok {
			note := fmt.Sprintf("fixed probe %s matched", step.Value)
			fr.SelectorSteps[0].Note = note
			return fr, sample, note, nil
		}
	}

	for _, step := range candidates(spec) {
		fr, sample, ok := e.tryCandidate(spec, step)
		if ok {
			note := fmt.Sprintf("attribute keyword candidate: %s", step.Note)
			fr.SelectorSteps[0].Note = note
			return fr, sample, note, nil
		}
	}

	if fr, sample, note, ok := e.scanFallback(spec, expected, transcript); ok {
		return fr, sample, note, nil
	}

	if spec.required {
		return nil, nil, "", eris.Wrapf(ErrDerivationFailed,
			"no candidate selector satisfied required field %s", spec.id)
	}
	return nil, nil, "", nil
}

// tryCandidate queries one candidate selector and applies the field's
// acceptance predicate.
func (e *Engine) tryCandidate(spec fieldSpec, step model.SelectorStep) (*model.FieldRecipe, any, bool) {
	matches, err := e.ts.QuerySelector(tools.QueryRequest{
		Selector:  step.Value,
		Attribute: step.Attribute,
		All:       step.All,
		Limit:     candidateQueryLimit,
	})
	if err != nil || !spec.accept(spec, matches) {
		return nil, nil, false
	}

	fr := e.buildFieldRecipe(spec, step)
	sample := e.sampleValue(spec, step, matches)
	fr.Sample = sampleString(sample)
	return fr, sample, true
}

// scanFallback runs the full-tree scored scan, constructs a CSS path for
// the winner, and verifies the path re-locates an acceptable element.
func (e *Engine) scanFallback(spec fieldSpec, expected model.Record, transcript []string) (*model.FieldRecipe, any, string, bool) {
	doc := e.ts.Document()
	if len(doc.Selection.Nodes) == 0 {
		return nil, nil, "", false
	}

	seeds := fieldSeeds(spec, expected, transcript)
	winner := scanTree(doc.Selection.Nodes[0], spec, seeds)
	if winner == nil {
		return nil, nil, "", false
	}

	path := BuildPath(winner.node)
	if path == "" {
		return nil, nil, "", false
	}

	step := model.SelectorStep{
		Strategy:  model.StrategyCSS,
		Value:     path,
		Attribute: spec.attribute,
		All:       spec.all,
	}
	matches, err := e.ts.QuerySelector(tools.QueryRequest{
		Selector:  path,
		Attribute: spec.attribute,
		All:       spec.all,
		Limit:     candidateQueryLimit,
	})
	if err != nil || !spec.accept(spec, matches) {
		return nil, nil, "", false
	}

	note := fmt.Sprintf("full-tree scan winner (score %d), path %s", winner.score, path)
	step.Note = note
	fr := e.buildFieldRecipe(spec, step)
	sample := e.sampleValue(spec, step, matches)
	fr.Sample = sampleString(sample)
	return fr, sample, note, true
}

// buildFieldRecipe attaches the transform pipeline, tolerance, and
// validators appropriate to the field kind.
func (e *Engine) buildFieldRecipe(spec fieldSpec, step model.SelectorStep) *model.FieldRecipe {
	fr := &model.FieldRecipe{
		FieldID:       spec.id,
		SelectorSteps: []model.SelectorStep{step},
	}

	switch spec.id {
	case model.FieldPrice:
		fr.Transforms = []model.Transform{
			{Name: validate.TransformTextCollapse},
			{Name: validate.TransformMoneyParse},
		}
	case model.FieldCanonical:
		fr.Transforms = []model.Transform{
			{Name: validate.TransformURLResolve, Config: map[string]string{
				"base": e.baseURL, "https": "force",
			}},
		}
	case model.FieldImages:
		fr.Transforms = []model.Transform{
			{Name: validate.TransformURLResolve, Config: map[string]string{"base": e.baseURL}},
		}
	case model.FieldRating, model.FieldBreadcrumbs:
		// Structural fields are parsed directly from their container.
	default:
		fr.Transforms = []model.Transform{{Name: validate.TransformTextCollapse}}
	}

	if def, ok := model.DefaultTolerance(spec.id); ok {
		fr.Tolerance = def
	}
	if spec.required {
		fr.Validators = []model.Validator{{Kind: "required"}}
	}
	return fr
}

// sampleValue extracts the provenance sample for an accepted selector.
func (e *Engine) sampleValue(spec fieldSpec, step model.SelectorStep, matches []tools.Match) any {
	if len(matches) == 0 {
		return nil
	}

	switch spec.id {
	case model.FieldRating:
		if sel := e.firstSelection(step.Value); sel != nil {
			if r := validate.ExtractRating(sel); r != nil {
				return *r
			}
		}
		return nil
	case model.FieldBreadcrumbs:
		if sel := e.firstSelection(step.Value); sel != nil {
			if crumbs := validate.ExtractBreadcrumbs(sel); len(crumbs) > 0 {
				return crumbs
			}
		}
		return nil
	}

	if step.All {
		var list []string
		for _, m := range matches {
			v := m.Text
			if step.Attribute != "" {
				v = m.Attributes[step.Attribute]
			}
			if v != "" {
				list = append(list, v)
			}
		}
		return list
	}

	if step.Attribute != "" {
		return matches[0].Attributes[step.Attribute]
	}
	return matches[0].Text
}

// firstSelection re-queries a selector directly on the shared parse; used
// only for structural sample extraction, not counted as a budget probe.
func (e *Engine) firstSelection(selector string) *goquery.Selection {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return nil
	}
	s := e.ts.Document().FindMatcher(sel).First()
	if s.Length() == 0 {
		return nil
	}
	return s
}

// setPartialField writes a derived sample into the iteration's partial
// record contribution.
func (e *Engine) setPartialField(r *model.Record, fieldID string, sample any) {
	switch fieldID {
	case model.FieldTitle:
		if s, ok := sample.(string); ok {
			r.Title = collapse(s)
		}
	case model.FieldPrice:
		if s, ok := sample.(string); ok {
			if m, err := model.ParseMoney(s); err == nil {
				r.Price = m
			}
		}
	case model.FieldCanonical:
		if s, ok := sample.(string); ok {
			r.CanonicalURL = s
		}
	case model.FieldDescription:
		if s, ok := sample.(string); ok {
			r.Description = collapse(s)
		}
	case model.FieldSKU:
		if s, ok := sample.(string); ok {
			r.SKU = collapse(s)
		}
	case model.FieldBrand:
		if s, ok := sample.(string); ok {
			r.Brand = collapse(s)
		}
	case model.FieldImages:
		if list, ok := sample.([]string); ok {
			r.Images = list
		}
	case model.FieldRating:
		if rt, ok := sample.(model.Rating); ok {
			rc := rt
			r.Rating = &rc
		}
	case model.FieldBreadcrumbs:
		if bc, ok := sample.([]model.Breadcrumb); ok {
			r.Breadcrumbs = bc
		}
	}
}

func sampleString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []string:
		return strings.Join(t, ", ")
	default:
		return fmt.Sprintf("%v", t)
	}
}

// titleSeeds derives the seed tokens for title acceptance from the
// expected record when present, otherwise from the transcript.
func titleSeeds(expected model.Record, transcript []string) []string {
	if expected.Title != "" {
		return seedTokens([]string{expected.Title})
	}
	return seedTokens(transcript)
}

// fieldSeeds picks scan seed tokens for one field: the expected value's
// text when populated, else the transcript.
func fieldSeeds(spec fieldSpec, expected model.Record, transcript []string) []string {
	if v, ok := expected.FieldValue(spec.id); ok {
		switch t := v.(type) {
		case string:
			return seedTokens([]string{t})
		case model.Money:
			return seedTokens([]string{t.Raw})
		}
	}
	return seedTokens(transcript)
}
