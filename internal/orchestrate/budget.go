package orchestrate

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/rothnic/mercator/internal/model"
)

// ErrBudgetExceeded is raised when any of the three budget limits is
// exceeded. It is fatal to the orchestration call and never retried here.
var ErrBudgetExceeded = eris.New("budget exceeded")

// guard enforces the pass-count, tool-invocation, and wall-clock limits.
// Counters and clock are per-invocation.
type guard struct {
	budget    model.Budget
	startedAt time.Time
	passes    int
	tools     int
	now       func() time.Time
}

func newGuard(budget model.Budget, now func() time.Time) *guard {
	if now == nil {
		now = time.Now
	}
	return &guard{budget: budget, startedAt: now(), now: now}
}

// before is checked as a pass starts.
func (g *guard) before(pass string) error {
	if g.passes+1 > g.budget.MaxPasses {
		return eris.Wrapf(ErrBudgetExceeded,
			"pass count limit %d reached entering pass %q (observed %d)",
			g.budget.MaxPasses, pass, g.passes+1)
	}
	return g.check(pass)
}

// after is checked as a pass completes, once its tool usage is known.
func (g *guard) after(pass string, toolsUsed int) error {
	g.passes++
	g.tools += toolsUsed
	return g.check(pass)
}

func (g *guard) check(pass string) error {
	if g.tools > g.budget.MaxToolInvocations {
		return eris.Wrapf(ErrBudgetExceeded,
			"tool invocation limit %d exceeded in pass %q (observed %d)",
			g.budget.MaxToolInvocations, pass, g.tools)
	}
	if elapsed := g.now().Sub(g.startedAt); elapsed > g.budget.MaxElapsed {
		return eris.Wrapf(ErrBudgetExceeded,
			"elapsed time limit %s exceeded in pass %q (observed %s)",
			g.budget.MaxElapsed, pass, elapsed)
	}
	return nil
}
