package recipestore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rothnic/mercator/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func storedDoc(t *testing.T, name string, state model.LifecycleState) (string, []byte) {
	t.Helper()
	r := draftRecipe(name)
	sr, err := prepareDraft(r, DraftOptions{}, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	sr.Recipe.Lifecycle.State = state
	doc, err := json.Marshal(sr)
	require.NoError(t, err)
	return sr.ID, doc
}

func TestPostgres_GetByID_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT document FROM recipes WHERE id = \$1`).
		WithArgs("missing-id").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetByID(context.Background(), "missing-id")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateDraft(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO recipes`).
		WithArgs(pgxmock.AnyArg(), string(model.StateDraft), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	sr, err := s.CreateDraft(context.Background(), draftRecipe("pg draft"), DraftOptions{
		Target: &DocumentTarget{Domain: "shop.example.com", Path: "/products/kettle"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sr.ID)
	assert.Equal(t, model.StateDraft, sr.Recipe.Lifecycle.State)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateDraft_RejectsNonDraft(t *testing.T) {
	s, _ := newMockPostgresStore(t)

	r := draftRecipe("pg stable")
	r.Lifecycle.State = model.StateStable

	_, err := s.CreateDraft(context.Background(), r, DraftOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestPostgres_Promote(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	id, doc := storedDoc(t, "pg promotable", model.StateDraft)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT document FROM recipes WHERE id = \$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"document"}).AddRow(doc))
	mock.ExpectExec(`UPDATE recipes SET state = \$1`).
		WithArgs(string(model.StateStable), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	promoted, err := s.Promote(context.Background(), id, PromoteOptions{Actor: "reviewer"})
	require.NoError(t, err)
	assert.Equal(t, model.StateStable, promoted.Recipe.Lifecycle.State)
	require.NotNil(t, promoted.PromotedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Promote_AlreadyStable(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	id, doc := storedDoc(t, "pg already stable", model.StateStable)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT document FROM recipes WHERE id = \$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"document"}).AddRow(doc))
	mock.ExpectRollback()

	_, err := s.Promote(context.Background(), id, PromoteOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyStable))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Promote_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT document FROM recipes WHERE id = \$1 FOR UPDATE`).
		WithArgs("missing-id").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := s.Promote(context.Background(), "missing-id", PromoteOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_List_StateFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	_, docA := storedDoc(t, "pg list a", model.StateStable)
	_, docB := storedDoc(t, "pg list b", model.StateStable)

	mock.ExpectQuery(`SELECT document FROM recipes WHERE state = \$1 ORDER BY updated_at ASC LIMIT \$2`).
		WithArgs(string(model.StateStable), 100).
		WillReturnRows(pgxmock.NewRows([]string{"document"}).AddRow(docA).AddRow(docB))

	out, err := s.List(context.Background(), Filter{State: model.StateStable})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "pg list a", out[0].Recipe.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetLatestStable(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	id, doc := storedDoc(t, "pg latest", model.StateStable)

	mock.ExpectQuery(`SELECT document FROM recipes WHERE state = \$1 ORDER BY updated_at DESC LIMIT 1`).
		WithArgs(string(model.StateStable)).
		WillReturnRows(pgxmock.NewRows([]string{"document"}).AddRow(doc))

	latest, err := s.GetLatestStable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id, latest.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RecordValidation(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	id, doc := storedDoc(t, "pg measured", model.StateDraft)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT document FROM recipes WHERE id = \$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"document"}).AddRow(doc))
	mock.ExpectExec(`UPDATE recipes SET state = \$1`).
		WithArgs(string(model.StateDraft), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := s.RecordValidation(context.Background(), id, true)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_BulkImport(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	_, doc := storedDoc(t, "pg import", model.StateDraft)

	var sr StoredRecipe
	require.NoError(t, json.Unmarshal(doc, &sr))

	mock.ExpectCopyFrom(pgx.Identifier{"recipes"},
		[]string{"id", "state", "domain", "path", "document", "created_at", "updated_at", "promoted_at"}).
		WillReturnResult(1)

	n, err := s.BulkImport(context.Background(), []StoredRecipe{sr})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
