// Package orchestrate runs the fixed three-pass recipe synthesis loop:
// collect expected data, synthesize a recipe, validate it. Every pass is
// wrapped by a budget guard; validation failure is data, budget
// violations and derivation failures are errors.
package orchestrate

import (
	"net/url"
	"regexp"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rothnic/mercator/internal/model"
	"github.com/rothnic/mercator/internal/rules"
	"github.com/rothnic/mercator/internal/selector"
	"github.com/rothnic/mercator/internal/tools"
	"github.com/rothnic/mercator/internal/validate"
)

// Pass names, in fixed execution order.
const (
	PassCollect    = "collect-expected"
	PassSynthesize = "synthesize-recipe"
	PassValidate   = "validate-recipe"
)

const requiredPasses = 3

// Document is one already-fetched page. HTML and transcript arrive fully
// resolved; nothing in the pipeline performs network I/O.
type Document struct {
	Domain     string
	Path       string
	HTML       string
	Transcript []string
}

// Pipeline runs orchestrations. It is stateless; per-invocation state
// lives in the toolset and budget guard, so one Pipeline may serve many
// concurrent Run calls as long as each gets its own toolset.
type Pipeline struct {
	lookup *rules.Lookup
	now    func() time.Time
}

// New creates a Pipeline over a rule lookup. A nil lookup means every
// document takes the heuristic path.
func New(lookup *rules.Lookup) *Pipeline {
	return &Pipeline{lookup: lookup, now: time.Now}
}

// WithNow fixes the guard clock for tests.
func (p *Pipeline) WithNow(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Run executes the three passes against one document. The toolset must
// be scoped to this document and this invocation.
func (p *Pipeline) Run(doc Document, ts *tools.DocumentToolset, budget model.Budget) (*model.OrchestrationResult, error) {
	log := zap.L().With(zap.String("domain", doc.Domain), zap.String("path", doc.Path))

	// The topology is fixed at three passes; refuse before doing any work.
	if budget.MaxPasses < requiredPasses {
		return nil, eris.Wrapf(ErrBudgetExceeded,
			"budget allows %d passes but the pipeline requires %d", budget.MaxPasses, requiredPasses)
	}

	g := newGuard(budget, p.now)
	result := &model.OrchestrationResult{
		StartedAt: g.startedAt,
		Budget:    budget,
	}

	var rs *rules.RuleSet
	if p.lookup != nil {
		rs = p.lookup.Resolve(doc.Domain, doc.Path)
	}

	// Pass 1: collect expected data.
	summary, err := p.runPass(g, ts, PassCollect, func() (model.PassStatus, string, error) {
		expected, evidence, origin := p.collectExpected(doc, ts, rs)
		result.Expected = model.ExpectedDataSummary{Origin: origin, Expected: expected, Evidence: evidence}
		return model.PassSuccess, "origin " + string(origin), nil
	})
	if err != nil {
		return nil, err
	}
	result.Passes = append(result.Passes, summary)

	// Pass 2: recipe synthesis in the mode pass 1 chose.
	summary, err = p.runPass(g, ts, PassSynthesize, func() (model.PassStatus, string, error) {
		name := doc.Domain + doc.Path
		if result.Expected.Origin == model.OriginRuleSet {
			recipe, err := selector.FromRuleSet(rs.Name, rs.DocumentType, result.Expected.Expected, rs.Fields)
			if err != nil {
				return "", "", err
			}
			result.Synthesis = model.RecipeSynthesisSummary{Origin: model.OriginRuleSet, Recipe: recipe}
			return model.PassSuccess, "rule-set recipe " + rs.Name, nil
		}

		engine := selector.NewEngine(ts, "https://"+doc.Domain)
		transcript := p.transcript(doc, rs)
		recipe, iterations, err := engine.Synthesize(name, "product", result.Expected.Expected, transcript)
		if err != nil {
			return "", "", err
		}
		result.Synthesis = model.RecipeSynthesisSummary{
			Origin:     model.OriginHeuristic,
			Recipe:     recipe,
			Iterations: iterations,
		}
		return model.PassSuccess, "heuristic recipe", nil
	})
	if err != nil {
		return nil, err
	}
	result.Passes = append(result.Passes, summary)

	// Pass 3: validation. A failed validation is a failed pass but a
	// complete, returned result.
	summary, err = p.runPass(g, ts, PassValidate, func() (model.PassStatus, string, error) {
		vres, err := validate.Validate(doc.HTML, result.Synthesis.Recipe, result.Expected.Expected)
		if err != nil {
			return "", "", err
		}
		result.Validation = vres
		if vres.Status == model.ValidationFail {
			return model.PassFailure, vres.StopReason, nil
		}
		return model.PassSuccess, "", nil
	})
	if err != nil {
		return nil, err
	}
	result.Passes = append(result.Passes, summary)

	result.CompletedAt = p.now()
	log.Info("orchestration complete",
		zap.String("origin", string(result.Expected.Origin)),
		zap.String("status", string(result.Validation.Status)),
		zap.Float64("confidence", result.Validation.Confidence),
	)
	return result, nil
}

// runPass wraps one pass with the budget guard and per-pass tool
// accounting.
func (p *Pipeline) runPass(g *guard, ts *tools.DocumentToolset, name string, fn func() (model.PassStatus, string, error)) (model.PassSummary, error) {
	if err := g.before(name); err != nil {
		return model.PassSummary{}, err
	}

	ts.ResetInvocations()
	started := p.now()

	status, notes, err := fn()
	if err != nil {
		return model.PassSummary{}, eris.Wrapf(err, "pass %q", name)
	}

	used := ts.Invocations()
	if err := g.after(name, used); err != nil {
		return model.PassSummary{}, err
	}

	return model.PassSummary{
		Name:            name,
		Status:          status,
		ToolInvocations: used,
		Elapsed:         p.now().Sub(started),
		Notes:           notes,
	}, nil
}

// transcript picks the rule set's transcript when present, otherwise the
// caller-supplied one.
func (p *Pipeline) transcript(doc Document, rs *rules.RuleSet) []string {
	if rs != nil && len(rs.Transcript) > 0 {
		return rs.Transcript
	}
	return doc.Transcript
}

var currencyLineRe = regexp.MustCompile(`[$€£¥₹₩]\s*\d|\d+\.\d{2}`)

// collectExpected reads the expected record from the rule set, or seeds
// one from the transcript and structural probes when no rules match.
func (p *Pipeline) collectExpected(doc Document, ts *tools.DocumentToolset, rs *rules.RuleSet) (model.Record, []string, model.Origin) {
	if rs != nil {
		return rs.Expected.Clone(), append([]string(nil), rs.Evidence...), model.OriginRuleSet
	}

	var expected model.Record
	var evidence []string

	lines := ts.ReadTranscript()
	for _, line := range lines {
		if currencyLineRe.MatchString(line) && expected.Price.IsZero() {
			if m, err := model.ParseMoney(line); err == nil {
				expected.Price = m
				evidence = append(evidence, "price from transcript: "+line)
				continue
			}
		}
		if expected.Title == "" {
			expected.Title = line
			evidence = append(evidence, "title from transcript: "+line)
		}
	}

	// Structural probes fill whatever the transcript could not.
	if expected.Title == "" {
		if matches, err := ts.QuerySelector(tools.QueryRequest{Selector: "title", Limit: 1}); err == nil && len(matches) > 0 {
			expected.Title = matches[0].Text
			evidence = append(evidence, "title from document <title>")
		}
	}
	if matches, err := ts.QuerySelector(tools.QueryRequest{Selector: `link[rel="canonical"]`, Attribute: "href", Limit: 1}); err == nil && len(matches) > 0 {
		expected.CanonicalURL = matches[0].Attributes["href"]
		evidence = append(evidence, "canonical from link[rel=canonical]")
	}
	if expected.Price.IsZero() {
		for _, snip := range ts.SearchText("$", true, 3) {
			if m, err := model.ParseMoney(snip.Text); err == nil {
				expected.Price = m
				evidence = append(evidence, "price from document text: "+snip.Text)
				break
			}
		}
	}
	if matches, err := ts.QuerySelector(tools.QueryRequest{Selector: "img", Attribute: "src", All: true}); err == nil {
		base, _ := url.Parse("https://" + doc.Domain)
		for _, m := range matches {
			src := m.Attributes["src"]
			if src == "" {
				continue
			}
			if ref, err := url.Parse(src); err == nil && base != nil {
				src = base.ResolveReference(ref).String()
			}
			expected.Images = append(expected.Images, src)
		}
		if len(expected.Images) > 0 {
			evidence = append(evidence, "images from img[src] probe")
		}
	}

	return expected, evidence, model.OriginHeuristic
}
