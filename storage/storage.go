package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/coachdiary/core"
	"github.com/trezcool/coachdiary/core/result"
	"github.com/trezcool/coachdiary/core/roster"
	"github.com/trezcool/coachdiary/core/standard"
	"github.com/trezcool/coachdiary/core/user"
	rediscache "github.com/trezcool/coachdiary/storage/cache/redis"
	"github.com/trezcool/coachdiary/storage/database"
	inmemdb "github.com/trezcool/coachdiary/storage/database/inmem"
	boiledrepos "github.com/trezcool/coachdiary/storage/database/sqlboiler"
	sqlxrepos "github.com/trezcool/coachdiary/storage/database/sqlx"
)

// Storage gathers the repositories of the configured database engine.
type Storage struct {
	DB        *sqlx.DB // nil on the memory engine
	Tx        core.TxRunner
	Users     user.Repository
	Roster    roster.Repository
	Standards standard.Repository
	Results   result.Repository
	Reports   result.ReportRepository
	Levels    standard.LevelCache // nil when no redis server is configured

	closers []func() error
}

type options struct {
	skipMigrations bool
}

type Option func(*options)

// WithoutMigrations leaves the postgres schema as it is.
func WithoutMigrations() Option {
	return func(o *options) { o.skipMigrations = true }
}

// Open sets up the database of conf.Database.Engine (creating and migrating postgres databases)
// and the levels cache when conf.Redis.Addr is set.
func Open(ctx context.Context, conf *core.Config, opts ...Option) (*Storage, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	var store Storage

	switch conf.Database.Engine {
	case core.EngineMemory:
		db := inmemdb.Open()
		store.Tx = db
		store.Users = inmemdb.NewUserRepository(db)
		store.Roster = inmemdb.NewRosterRepository(db)
		store.Standards = inmemdb.NewStandardRepository(db)
		store.Results = inmemdb.NewResultRepository(db)
		store.Reports = inmemdb.NewReportRepository(db)

	case core.EnginePostgres:
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		store.DB = db
		store.closers = append(store.closers, db.Close)
		if !o.skipMigrations {
			if err = database.Migrate(db.DB); err != nil {
				_ = store.Close()
				return nil, err
			}
		}
		store.Tx = database.NewTxRunner(db)
		store.Users = sqlxrepos.NewUserRepository(db)
		store.Roster = sqlxrepos.NewRosterRepository(db)
		store.Standards = sqlxrepos.NewStandardRepository(db)
		store.Results = sqlxrepos.NewResultRepository(db)
		store.Reports = boiledrepos.NewReportRepository(db)

	default:
		return nil, fmt.Errorf("unsupported database engine %q", conf.Database.Engine)
	}

	if conf.Redis.Addr != "" {
		client, err := rediscache.Connect(ctx, conf.Redis)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		store.closers = append(store.closers, client.Close)
		store.Levels = rediscache.NewLevelCache(client, conf.Redis.LevelsTTL)
	}
	return &store, nil
}

// Close releases the connections in reverse order of opening.
func (s *Storage) Close() error {
	var err error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if cerr := s.closers[i](); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing storage")
		}
	}
	s.closers = nil
	return err
}
