package model

import (
	"time"
)

// SelectorStrategy names how a selector step locates nodes.
type SelectorStrategy string

const (
	StrategyCSS   SelectorStrategy = "css"
	StrategyXPath SelectorStrategy = "xpath"
)

// SelectorStep locates one or more nodes in a document. A field may carry
// multiple steps for future multi-stage extraction; only the first step is
// consulted by the validator today.
type SelectorStep struct {
	Strategy  SelectorStrategy `json:"strategy" yaml:"strategy"`
	Value     string           `json:"value" yaml:"value"`
	Attribute string           `json:"attribute,omitempty" yaml:"attribute,omitempty"`
	Ordinal   int              `json:"ordinal,omitempty" yaml:"ordinal,omitempty"`
	All       bool             `json:"all,omitempty" yaml:"all,omitempty"`
	Note      string           `json:"note,omitempty" yaml:"note,omitempty"`
}

// Transform names a pure, deterministic post-extraction function with its
// configuration. Known names: text.collapse, money.parse, url.resolve.
type Transform struct {
	Name   string            `json:"name" yaml:"name"`
	Config map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
}

// Validator names a lightweight per-field check applied to extracted text.
type Validator struct {
	Kind    string `json:"kind" yaml:"kind"` // required | regex | min_length
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Min     int    `json:"min,omitempty" yaml:"min,omitempty"`
}

// FieldMetrics accumulates validation outcomes for one field.
type FieldMetrics struct {
	SampleCount int `json:"sample_count"`
	PassCount   int `json:"pass_count"`
	FailCount   int `json:"fail_count"`
}

// FieldRecipe is the full extraction instruction set for one field.
// Invariant: at least one selector step.
type FieldRecipe struct {
	FieldID       string         `json:"field_id" yaml:"field_id"`
	SelectorSteps []SelectorStep `json:"selector_steps" yaml:"selector_steps"`
	Transforms    []Transform    `json:"transforms,omitempty" yaml:"transforms,omitempty"`
	Tolerance     Tolerance      `json:"tolerance" yaml:"tolerance"`
	Validators    []Validator    `json:"validators,omitempty" yaml:"validators,omitempty"`
	Metrics       FieldMetrics   `json:"metrics" yaml:"-"`
	Sample        string         `json:"sample,omitempty" yaml:"sample,omitempty"`
}

// LifecycleState is a recipe's trust level. Only draft and stable are
// reachable today; candidate and retired are reserved.
type LifecycleState string

const (
	StateDraft     LifecycleState = "draft"
	StateCandidate LifecycleState = "candidate"
	StateStable    LifecycleState = "stable"
	StateRetired   LifecycleState = "retired"
)

// LifecycleEvent is one append-only history entry.
type LifecycleEvent struct {
	State LifecycleState `json:"state"`
	At    time.Time      `json:"at"`
	Actor string         `json:"actor,omitempty"`
	Notes string         `json:"notes,omitempty"`
}

// Lifecycle tracks a recipe's current state and full history.
type Lifecycle struct {
	State   LifecycleState   `json:"state"`
	Since   time.Time        `json:"since"`
	History []LifecycleEvent `json:"history"`
}

// RecipeTarget describes what a recipe extracts: the document type, the
// expected record used for validation, and the per-field instructions.
type RecipeTarget struct {
	DocumentType string        `json:"document_type" yaml:"document_type"`
	Schema       Record        `json:"schema" yaml:"schema"`
	Fields       []FieldRecipe `json:"fields" yaml:"fields"`
}

// RecipeMetrics aggregates validation outcomes across all fields.
type RecipeMetrics struct {
	SampleCount int `json:"sample_count"`
	PassCount   int `json:"pass_count"`
	FailCount   int `json:"fail_count"`
}

// ProvenanceEntry records how one field's selector was chosen.
type ProvenanceEntry struct {
	FieldID  string `json:"field_id"`
	Strategy string `json:"strategy"`
	Note     string `json:"note,omitempty"`
	Sample   string `json:"sample,omitempty"`
}

// Recipe is a versioned set of field-level extraction instructions plus
// lifecycle metadata.
type Recipe struct {
	ID         string            `json:"id,omitempty"`
	Name       string            `json:"name"`
	Version    int               `json:"version"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
	Target     RecipeTarget      `json:"target"`
	Lifecycle  Lifecycle         `json:"lifecycle"`
	Metrics    RecipeMetrics     `json:"metrics"`
	Provenance []ProvenanceEntry `json:"provenance,omitempty"`
}

// Field returns the field recipe for a field id, or nil.
func (r *Recipe) Field(fieldID string) *FieldRecipe {
	for i := range r.Target.Fields {
		if r.Target.Fields[i].FieldID == fieldID {
			return &r.Target.Fields[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the recipe.
func (r *Recipe) Clone() *Recipe {
	out := *r
	out.Target.Fields = make([]FieldRecipe, len(r.Target.Fields))
	for i, f := range r.Target.Fields {
		cf := f
		cf.SelectorSteps = append([]SelectorStep(nil), f.SelectorSteps...)
		cf.Transforms = make([]Transform, len(f.Transforms))
		for j, tr := range f.Transforms {
			ct := tr
			if tr.Config != nil {
				ct.Config = make(map[string]string, len(tr.Config))
				for k, v := range tr.Config {
					ct.Config[k] = v
				}
			}
			cf.Transforms[j] = ct
		}
		cf.Validators = append([]Validator(nil), f.Validators...)
		cf.Tolerance = f.Tolerance.Clone()
		out.Target.Fields[i] = cf
	}
	out.Lifecycle.History = append([]LifecycleEvent(nil), r.Lifecycle.History...)
	out.Provenance = append([]ProvenanceEntry(nil), r.Provenance...)
	out.Target.Schema = r.Target.Schema.Clone()
	return &out
}

// NewDraftLifecycle returns a lifecycle starting in draft at the given time.
func NewDraftLifecycle(at time.Time, actor, notes string) Lifecycle {
	return Lifecycle{
		State: StateDraft,
		Since: at,
		History: []LifecycleEvent{
			{State: StateDraft, At: at, Actor: actor, Notes: notes},
		},
	}
}
