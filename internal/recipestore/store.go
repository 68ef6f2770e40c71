// Package recipestore persists versioned recipes and drives the
// draft-to-stable promotion state machine. Records are append-only in
// history; the store never rewrites past lifecycle events.
package recipestore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/rothnic/mercator/internal/model"
)

// Sentinel errors raised by store operations. Caller-facing, never
// retried internally.
var (
	ErrNotFound          = eris.New("recipe not found")
	ErrAlreadyStable     = eris.New("recipe already stable")
	ErrInvalidTransition = eris.New("invalid lifecycle transition")
)

// DocumentTarget scopes a stored recipe to the pages it was derived for.
type DocumentTarget struct {
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// StoredRecipe is a recipe plus store-level metadata. Callers receive
// snapshots; mutating one never changes the persisted record.
type StoredRecipe struct {
	ID         string          `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	PromotedAt *time.Time      `json:"promoted_at,omitempty"`
	Target     *DocumentTarget `json:"document_target,omitempty"`
	Recipe     model.Recipe    `json:"recipe"`
}

// DraftOptions annotate recipe creation.
type DraftOptions struct {
	Actor  string
	Notes  string
	Target *DocumentTarget
}

// PromoteOptions annotate the promotion event.
type PromoteOptions struct {
	Actor string
	Notes string
}

// Filter narrows List results.
type Filter struct {
	State model.LifecycleState
	Limit int
}

// Store is the persistence interface for recipes.
type Store interface {
	CreateDraft(ctx context.Context, recipe *model.Recipe, opts DraftOptions) (*StoredRecipe, error)
	Promote(ctx context.Context, id string, opts PromoteOptions) (*StoredRecipe, error)
	List(ctx context.Context, filter Filter) ([]StoredRecipe, error)
	GetByID(ctx context.Context, id string) (*StoredRecipe, error)
	GetLatestStable(ctx context.Context) (*StoredRecipe, error)
	RecordValidation(ctx context.Context, id string, passed bool) error

	Migrate(ctx context.Context) error
	Close() error
}

// prepareDraft applies the create-draft rules shared by every backend:
// only draft-state recipes are accepted, ids are assigned when absent,
// and history gains a draft event unless it already ends in one.
func prepareDraft(recipe *model.Recipe, opts DraftOptions, now time.Time) (*StoredRecipe, error) {
	if recipe == nil {
		return nil, eris.New("recipestore: nil recipe")
	}
	if recipe.Lifecycle.State != model.StateDraft {
		return nil, eris.Wrapf(ErrInvalidTransition,
			"create draft from state %q", recipe.Lifecycle.State)
	}

	clone := recipe.Clone()
	if clone.ID == "" {
		clone.ID = uuid.New().String()
	}
	if clone.Lifecycle.Since.IsZero() {
		clone.Lifecycle.Since = now
	}

	history := clone.Lifecycle.History
	if len(history) == 0 || history[len(history)-1].State != model.StateDraft {
		clone.Lifecycle.History = append(history, model.LifecycleEvent{
			State: model.StateDraft,
			At:    now,
			Actor: opts.Actor,
			Notes: opts.Notes,
		})
	}

	return &StoredRecipe{
		ID:        clone.ID,
		CreatedAt: now,
		UpdatedAt: now,
		Target:    opts.Target,
		Recipe:    *clone,
	}, nil
}

// applyPromotion transitions one re-read record to stable. The caller
// holds whatever lock its backend needs; this only checks and mutates.
func (sr *StoredRecipe) applyPromotion(opts PromoteOptions, now time.Time) error {
	switch sr.Recipe.Lifecycle.State {
	case model.StateDraft:
	case model.StateStable:
		return eris.Wrapf(ErrAlreadyStable, "recipe %s", sr.ID)
	default:
		return eris.Wrapf(ErrInvalidTransition,
			"promote recipe %s from state %q", sr.ID, sr.Recipe.Lifecycle.State)
	}

	sr.Recipe.Lifecycle.State = model.StateStable
	sr.Recipe.Lifecycle.Since = now
	sr.Recipe.Lifecycle.History = append(sr.Recipe.Lifecycle.History, model.LifecycleEvent{
		State: model.StateStable,
		At:    now,
		Actor: opts.Actor,
		Notes: opts.Notes,
	})
	sr.Recipe.UpdatedAt = now
	sr.UpdatedAt = now
	promoted := now
	sr.PromotedAt = &promoted
	return nil
}

// recordValidation folds one validation outcome into the metrics.
func (sr *StoredRecipe) recordValidation(passed bool, now time.Time) {
	sr.Recipe.Metrics.SampleCount++
	if passed {
		sr.Recipe.Metrics.PassCount++
	} else {
		sr.Recipe.Metrics.FailCount++
	}
	sr.Recipe.UpdatedAt = now
	sr.UpdatedAt = now
}
