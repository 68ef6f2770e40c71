package recipestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/rothnic/mercator/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Each record is
// one JSON document in a TEXT column; state and timestamps are mirrored
// into their own columns for filtering and ordering.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens a SQLite database at the given path and configures
// WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	// One connection serializes promote transactions, so two concurrent
	// promotions of the same id cannot both read the draft state.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS recipes (
	id          TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	domain      TEXT,
	path        TEXT,
	document    TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	promoted_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_recipes_state ON recipes(state);
CREATE INDEX IF NOT EXISTS idx_recipes_updated_at ON recipes(updated_at);
CREATE INDEX IF NOT EXISTS idx_recipes_domain_path ON recipes(domain, path);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateDraft(ctx context.Context, recipe *model.Recipe, opts DraftOptions) (*StoredRecipe, error) {
	sr, err := prepareDraft(recipe, opts, s.now())
	if err != nil {
		return nil, err
	}

	doc, err := json.Marshal(sr)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal recipe document")
	}

	var domain, path sql.NullString
	if sr.Target != nil {
		domain = sql.NullString{String: sr.Target.Domain, Valid: true}
		path = sql.NullString{String: sr.Target.Path, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO recipes (id, state, domain, path, document, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sr.ID, string(model.StateDraft), domain, path, string(doc),
		isoTime(sr.CreatedAt), isoTime(sr.UpdatedAt),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert recipe %s", sr.ID)
	}
	return sr, nil
}

func (s *SQLiteStore) Promote(ctx context.Context, id string, opts PromoteOptions) (*StoredRecipe, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin promote")
	}
	defer tx.Rollback()

	// Re-read inside the transaction; the second of two racing
	// promotions observes the committed stable state here.
	sr, err := scanStored(tx.QueryRowContext(ctx,
		`SELECT document FROM recipes WHERE id = ?`, id))
	if err != nil {
		return nil, err
	}

	if err := sr.applyPromotion(opts, s.now()); err != nil {
		return nil, err
	}

	if err := s.writeBack(ctx, tx, sr); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: commit promote %s", id)
	}
	return sr, nil
}

func (s *SQLiteStore) RecordValidation(ctx context.Context, id string, passed bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin record validation")
	}
	defer tx.Rollback()

	sr, err := scanStored(tx.QueryRowContext(ctx,
		`SELECT document FROM recipes WHERE id = ?`, id))
	if err != nil {
		return err
	}

	sr.recordValidation(passed, s.now())

	if err := s.writeBack(ctx, tx, sr); err != nil {
		return err
	}
	return eris.Wrapf(tx.Commit(), "sqlite: commit record validation %s", id)
}

func (s *SQLiteStore) GetByID(ctx context.Context, id string) (*StoredRecipe, error) {
	return scanStored(s.db.QueryRowContext(ctx,
		`SELECT document FROM recipes WHERE id = ?`, id))
}

func (s *SQLiteStore) GetLatestStable(ctx context.Context) (*StoredRecipe, error) {
	return scanStored(s.db.QueryRowContext(ctx,
		`SELECT document FROM recipes WHERE state = ? ORDER BY updated_at DESC LIMIT 1`,
		string(model.StateStable)))
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]StoredRecipe, error) {
	query := `SELECT document FROM recipes WHERE 1=1`
	var args []any

	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, string(filter.State))
	}
	query += ` ORDER BY updated_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list recipes")
	}
	defer rows.Close()

	var out []StoredRecipe
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan recipe row")
		}
		var sr StoredRecipe
		if err := json.Unmarshal([]byte(doc), &sr); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal recipe document")
		}
		out = append(out, sr)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list recipes iterate")
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) writeBack(ctx context.Context, ex execer, sr *StoredRecipe) error {
	doc, err := json.Marshal(sr)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal recipe document")
	}

	var promoted sql.NullString
	if sr.PromotedAt != nil {
		promoted = sql.NullString{String: isoTime(*sr.PromotedAt), Valid: true}
	}

	res, err := ex.ExecContext(ctx,
		`UPDATE recipes SET state = ?, document = ?, updated_at = ?, promoted_at = ? WHERE id = ?`,
		string(sr.Recipe.Lifecycle.State), string(doc), isoTime(sr.UpdatedAt), promoted, sr.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update recipe %s", sr.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "recipe %s", sr.ID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanStored(row scannable) (*StoredRecipe, error) {
	var doc string
	err := row.Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan recipe")
	}

	var sr StoredRecipe
	if err := json.Unmarshal([]byte(doc), &sr); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal recipe document")
	}
	return &sr, nil
}

// isoTime renders timestamps as fixed-width ISO-8601 so lexical
// ordering in SQL matches chronological ordering.
func isoTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000000Z07:00")
}
