package recipestore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/rothnic/mercator/internal/db"
	"github.com/rothnic/mercator/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	now     func() time.Time
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{
		pool:    pool,
		closeFn: pool.Close,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS recipes (
	id          TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	domain      TEXT,
	path        TEXT,
	document    JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL,
	promoted_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_recipes_state ON recipes(state);
CREATE INDEX IF NOT EXISTS idx_recipes_updated_at ON recipes(updated_at);
CREATE INDEX IF NOT EXISTS idx_recipes_domain_path ON recipes(domain, path);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateDraft(ctx context.Context, recipe *model.Recipe, opts DraftOptions) (*StoredRecipe, error) {
	sr, err := prepareDraft(recipe, opts, s.currentTime())
	if err != nil {
		return nil, err
	}

	doc, err := json.Marshal(sr)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal recipe document")
	}

	var domain, path *string
	if sr.Target != nil {
		domain, path = &sr.Target.Domain, &sr.Target.Path
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO recipes (id, state, domain, path, document, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		sr.ID, string(model.StateDraft), domain, path, string(doc), sr.CreatedAt, sr.UpdatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert recipe %s", sr.ID)
	}
	return sr, nil
}

func (s *PostgresStore) Promote(ctx context.Context, id string, opts PromoteOptions) (*StoredRecipe, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin promote")
	}
	defer tx.Rollback(ctx)

	// FOR UPDATE serializes racing promotions on one id; the loser
	// re-reads the committed stable state.
	sr, err := scanStoredPgx(tx.QueryRow(ctx,
		`SELECT document FROM recipes WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}

	if err := sr.applyPromotion(opts, s.currentTime()); err != nil {
		return nil, err
	}

	if err := writeBackPgx(ctx, tx, sr); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrapf(err, "postgres: commit promote %s", id)
	}
	return sr, nil
}

func (s *PostgresStore) RecordValidation(ctx context.Context, id string, passed bool) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin record validation")
	}
	defer tx.Rollback(ctx)

	sr, err := scanStoredPgx(tx.QueryRow(ctx,
		`SELECT document FROM recipes WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return err
	}

	sr.recordValidation(passed, s.currentTime())

	if err := writeBackPgx(ctx, tx, sr); err != nil {
		return err
	}
	return eris.Wrapf(tx.Commit(ctx), "postgres: commit record validation %s", id)
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (*StoredRecipe, error) {
	return scanStoredPgx(s.pool.QueryRow(ctx,
		`SELECT document FROM recipes WHERE id = $1`, id))
}

func (s *PostgresStore) GetLatestStable(ctx context.Context) (*StoredRecipe, error) {
	return scanStoredPgx(s.pool.QueryRow(ctx,
		`SELECT document FROM recipes WHERE state = $1 ORDER BY updated_at DESC LIMIT 1`,
		string(model.StateStable)))
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]StoredRecipe, error) {
	query := `SELECT document FROM recipes`
	var args []any

	if filter.State != "" {
		query += ` WHERE state = $1`
		args = append(args, string(filter.State))
	}
	query += ` ORDER BY updated_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(args) == 0 {
		query += ` LIMIT $1`
	} else {
		query += ` LIMIT $2`
	}
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list recipes")
	}
	defer rows.Close()

	var out []StoredRecipe
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "postgres: scan recipe row")
		}
		var sr StoredRecipe
		if err := json.Unmarshal(doc, &sr); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal recipe document")
		}
		out = append(out, sr)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list recipes iterate")
}

// BulkImport loads pre-built stored recipes with the COPY protocol.
// Intended for seeding a fresh database from an exported recipe set.
func (s *PostgresStore) BulkImport(ctx context.Context, recipes []StoredRecipe) (int64, error) {
	columns := []string{"id", "state", "domain", "path", "document", "created_at", "updated_at", "promoted_at"}
	rows := make([][]any, 0, len(recipes))
	for i := range recipes {
		sr := &recipes[i]
		doc, err := json.Marshal(sr)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal recipe %s", sr.ID)
		}
		var domain, path *string
		if sr.Target != nil {
			domain, path = &sr.Target.Domain, &sr.Target.Path
		}
		rows = append(rows, []any{
			sr.ID, string(sr.Recipe.Lifecycle.State), domain, path,
			string(doc), sr.CreatedAt, sr.UpdatedAt, sr.PromotedAt,
		})
	}
	return db.CopyFrom(ctx, s.pool, "recipes", columns, rows)
}

func (s *PostgresStore) currentTime() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now().UTC()
}

func writeBackPgx(ctx context.Context, tx pgx.Tx, sr *StoredRecipe) error {
	doc, err := json.Marshal(sr)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal recipe document")
	}

	tag, err := tx.Exec(ctx,
		`UPDATE recipes SET state = $1, document = $2, updated_at = $3, promoted_at = $4 WHERE id = $5`,
		string(sr.Recipe.Lifecycle.State), string(doc), sr.UpdatedAt, sr.PromotedAt, sr.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update recipe %s", sr.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "recipe %s", sr.ID)
	}
	return nil
}

func scanStoredPgx(row pgx.Row) (*StoredRecipe, error) {
	var doc []byte
	err := row.Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan recipe")
	}

	var sr StoredRecipe
	if err := json.Unmarshal(doc, &sr); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal recipe document")
	}
	return &sr, nil
}
