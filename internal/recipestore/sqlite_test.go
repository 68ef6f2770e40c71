package recipestore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rothnic/mercator/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "recipes.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func draftRecipe(name string) *model.Recipe {
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	return &model.Recipe{
		Name:      name,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
		Target: model.RecipeTarget{
			DocumentType: "product",
			Fields: []model.FieldRecipe{
				{
					FieldID:       model.FieldTitle,
					SelectorSteps: []model.SelectorStep{{Strategy: model.StrategyCSS, Value: `h1[data-test="product-title"]`}},
					Transforms:    []model.Transform{{Name: "text.collapse"}},
				},
			},
		},
		Lifecycle: model.NewDraftLifecycle(now, "synth", "initial draft"),
	}
}

func TestSQLite_CreateDraft_AssignsID(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sr, err := st.CreateDraft(ctx, draftRecipe("shop kettle"), DraftOptions{
		Actor:  "tester",
		Target: &DocumentTarget{Domain: "shop.example.com", Path: "/products/kettle"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sr.ID)
	assert.Equal(t, model.StateDraft, sr.Recipe.Lifecycle.State)
	require.NotNil(t, sr.Target)
	assert.Equal(t, "shop.example.com", sr.Target.Domain)

	got, err := st.GetByID(ctx, sr.ID)
	require.NoError(t, err)
	assert.Equal(t, sr.ID, got.ID)
	assert.Equal(t, "shop kettle", got.Recipe.Name)
}

func TestSQLite_CreateDraft_RejectsNonDraft(t *testing.T) {
	st := newTestSQLiteStore(t)

	r := draftRecipe("already stable")
	r.Lifecycle.State = model.StateStable

	_, err := st.CreateDraft(context.Background(), r, DraftOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestSQLite_CreateDraft_KeepsTrailingDraftEvent(t *testing.T) {
	st := newTestSQLiteStore(t)

	r := draftRecipe("single event")
	sr, err := st.CreateDraft(context.Background(), r, DraftOptions{})
	require.NoError(t, err)
	// History already ends in draft, so no second event is appended.
	assert.Len(t, sr.Recipe.Lifecycle.History, 1)
}

func TestSQLite_Promote(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sr, err := st.CreateDraft(ctx, draftRecipe("promotable"), DraftOptions{})
	require.NoError(t, err)

	promoted, err := st.Promote(ctx, sr.ID, PromoteOptions{Actor: "reviewer", Notes: "looks good"})
	require.NoError(t, err)
	assert.Equal(t, model.StateStable, promoted.Recipe.Lifecycle.State)
	require.NotNil(t, promoted.PromotedAt)

	history := promoted.Recipe.Lifecycle.History
	require.Len(t, history, 2)
	assert.Equal(t, model.StateDraft, history[0].State)
	assert.Equal(t, model.StateStable, history[1].State)
	assert.Equal(t, "reviewer", history[1].Actor)

	// Second promotion of the same id is rejected.
	_, err = st.Promote(ctx, sr.ID, PromoteOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyStable))
}

func TestSQLite_Promote_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.Promote(context.Background(), "missing-id", PromoteOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLite_Promote_Race(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sr, err := st.CreateDraft(ctx, draftRecipe("contested"), DraftOptions{})
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = st.Promote(ctx, sr.ID, PromoteOptions{})
		}(i)
	}
	wg.Wait()

	var ok, alreadyStable int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyStable):
			alreadyStable++
		default:
			t.Fatalf("unexpected promote error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, alreadyStable)
}

func TestSQLite_List_OrderAndFilter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	st.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first, err := st.CreateDraft(ctx, draftRecipe("first"), DraftOptions{})
	require.NoError(t, err)
	second, err := st.CreateDraft(ctx, draftRecipe("second"), DraftOptions{})
	require.NoError(t, err)

	_, err = st.Promote(ctx, first.ID, PromoteOptions{})
	require.NoError(t, err)

	all, err := st.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Ascending update time: the untouched draft now precedes the
	// freshly promoted record.
	assert.Equal(t, second.ID, all[0].ID)
	assert.Equal(t, first.ID, all[1].ID)

	stable, err := st.List(ctx, Filter{State: model.StateStable})
	require.NoError(t, err)
	require.Len(t, stable, 1)
	assert.Equal(t, first.ID, stable[0].ID)
}

func TestSQLite_GetLatestStable(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	st.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	_, err := st.GetLatestStable(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))

	a, err := st.CreateDraft(ctx, draftRecipe("a"), DraftOptions{})
	require.NoError(t, err)
	b, err := st.CreateDraft(ctx, draftRecipe("b"), DraftOptions{})
	require.NoError(t, err)

	_, err = st.Promote(ctx, a.ID, PromoteOptions{})
	require.NoError(t, err)
	_, err = st.Promote(ctx, b.ID, PromoteOptions{})
	require.NoError(t, err)

	latest, err := st.GetLatestStable(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, latest.ID)
}

func TestSQLite_RecordValidation(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	sr, err := st.CreateDraft(ctx, draftRecipe("measured"), DraftOptions{})
	require.NoError(t, err)

	require.NoError(t, st.RecordValidation(ctx, sr.ID, true))
	require.NoError(t, st.RecordValidation(ctx, sr.ID, true))
	require.NoError(t, st.RecordValidation(ctx, sr.ID, false))

	got, err := st.GetByID(ctx, sr.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Recipe.Metrics.SampleCount)
	assert.Equal(t, 2, got.Recipe.Metrics.PassCount)
	assert.Equal(t, 1, got.Recipe.Metrics.FailCount)
}

func TestSQLite_DocumentRoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	r := draftRecipe("round trip")
	r.Target.Fields[0].Tolerance = model.Tolerance{
		Kind: model.KindText,
		Text: &model.TextTolerance{MaxDistanceRatio: 0.1},
	}

	sr, err := st.CreateDraft(ctx, r, DraftOptions{})
	require.NoError(t, err)

	got, err := st.GetByID(ctx, sr.ID)
	require.NoError(t, err)

	want, err := json.Marshal(sr.Recipe.Target.Fields)
	require.NoError(t, err)
	have, err := json.Marshal(got.Recipe.Target.Fields)
	require.NoError(t, err)
	assert.JSONEq(t, string(want), string(have))
	assert.True(t, got.CreatedAt.Equal(sr.CreatedAt))
}
