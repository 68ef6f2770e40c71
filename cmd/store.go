package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/rothnic/mercator/internal/recipestore"
	"github.com/rothnic/mercator/internal/rules"
)

func initStore(ctx context.Context) (recipestore.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "mercator.db"
		}
		return recipestore.NewSQLite(dsn)
	case "postgres":
		return recipestore.NewPostgres(ctx, cfg.Store.DatabaseURL, &cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initLookup loads the rule-set directory. A missing directory is not an
// error; it just means every document takes the heuristic path.
func initLookup() (*rules.Lookup, error) {
	if cfg.Rules.Dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(cfg.Rules.Dir); os.IsNotExist(err) {
		zap.L().Debug("rules directory absent, heuristic mode only", zap.String("dir", cfg.Rules.Dir))
		return nil, nil
	}
	lookup, err := rules.LoadDir(cfg.Rules.Dir)
	if err != nil {
		return nil, eris.Wrapf(err, "load rules from %s", cfg.Rules.Dir)
	}
	return lookup, nil
}
