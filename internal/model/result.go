package model

import "time"

// Origin tags where a recipe's selectors came from.
type Origin string

const (
	OriginRuleSet   Origin = "rule-set"
	OriginHeuristic Origin = "heuristic"
)

// PassStatus is the outcome of one orchestration pass.
type PassStatus string

const (
	PassSuccess PassStatus = "success"
	PassFailure PassStatus = "failure"
)

// ValidationStatus is the outcome of comparing an extraction against the
// expected record.
type ValidationStatus string

const (
	ValidationPass ValidationStatus = "pass"
	ValidationFail ValidationStatus = "fail"
)

// FieldResult is the comparator outcome for one field.
type FieldResult struct {
	FieldID    string           `json:"field_id"`
	Status     ValidationStatus `json:"status"`
	Confidence float64          `json:"confidence"`
	Extracted  any              `json:"extracted,omitempty"`
	Notes      []string         `json:"notes,omitempty"`
	Errors     []string         `json:"errors,omitempty"`
}

// DocumentValidationResult is the full outcome of validating a recipe
// against one document. A failure is data, not an error: StopReason
// explains missing-required, schema, or critical-field failures.
type DocumentValidationResult struct {
	Status     ValidationStatus       `json:"status"`
	Confidence float64                `json:"confidence"`
	StopReason string                 `json:"stop_reason,omitempty"`
	Fields     map[string]FieldResult `json:"fields,omitempty"`
	Record     *Record                `json:"record,omitempty"`
}

// IterationLog is one entry of the heuristic synthesis audit trail. The
// log must be reproducible from the same document and transcript.
type IterationLog struct {
	Note             string   `json:"note"`
	Partial          Record   `json:"partial"`
	SelectorsChanged []string `json:"selectors_changed"`
	Sample           string   `json:"sample,omitempty"`
}

// ExpectedDataSummary is the outcome of pass 1.
type ExpectedDataSummary struct {
	Origin   Origin   `json:"origin"`
	Expected Record   `json:"expected"`
	Evidence []string `json:"evidence,omitempty"`
}

// RecipeSynthesisSummary is the outcome of pass 2.
type RecipeSynthesisSummary struct {
	Origin     Origin         `json:"origin"`
	Recipe     *Recipe        `json:"recipe"`
	Iterations []IterationLog `json:"iterations,omitempty"`
}

// PassSummary reports one pass's status and the tool invocations it alone
// consumed.
type PassSummary struct {
	Name            string        `json:"name"`
	Status          PassStatus    `json:"status"`
	ToolInvocations int           `json:"tool_invocations"`
	Elapsed         time.Duration `json:"elapsed"`
	Notes           string        `json:"notes,omitempty"`
}

// Budget bounds one orchestration invocation. The three limits are
// independent; exceeding any one fails the whole orchestration.
type Budget struct {
	MaxPasses          int           `json:"max_passes"`
	MaxToolInvocations int           `json:"max_tool_invocations"`
	MaxElapsed         time.Duration `json:"max_elapsed"`
}

// DefaultBudget returns the standard orchestration budget.
func DefaultBudget() Budget {
	return Budget{
		MaxPasses:          3,
		MaxToolInvocations: 250,
		MaxElapsed:         2 * time.Minute,
	}
}

// OrchestrationResult is the consolidated outcome of one three-pass run.
type OrchestrationResult struct {
	StartedAt   time.Time                `json:"started_at"`
	CompletedAt time.Time                `json:"completed_at"`
	Budget      Budget                   `json:"budget"`
	Expected    ExpectedDataSummary      `json:"expected"`
	Synthesis   RecipeSynthesisSummary   `json:"synthesis"`
	Validation  DocumentValidationResult `json:"validation"`
	Passes      []PassSummary            `json:"passes"`
}
