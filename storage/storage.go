// Package storage opens the account store selected by the configuration.
package storage

import (
	"context"

	"github.com/pkg/errors"

	"github.com/madrasa-app/madrasa/core"
	"github.com/madrasa-app/madrasa/core/account"
	"github.com/madrasa-app/madrasa/storage/database"
	inmemdb "github.com/madrasa-app/madrasa/storage/database/inmem"
	mongodb "github.com/madrasa-app/madrasa/storage/database/mongo"
	sqlxrepos "github.com/madrasa-app/madrasa/storage/database/sqlx"
)

type Store struct {
	Accounts account.Repository
	close    func() error
}

func (s *Store) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Open connects to the configured store, migrating postgres or creating the mongo indexes on the way.
func Open(ctx context.Context, conf *core.Config) (*Store, error) {
	switch conf.Storage {
	case core.StoragePostgres:
		db, err := database.Open(ctx, conf)
		if err != nil {
			return nil, err
		}
		if err = database.Migrate(ctx, db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Store{Accounts: sqlxrepos.NewAccountRepository(db), close: db.Close}, nil

	case core.StorageMongo:
		db, err := mongodb.Open(ctx, conf)
		if err != nil {
			return nil, err
		}
		if err = db.CreateIndexes(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &Store{Accounts: mongodb.NewAccountRepository(db), close: db.Close}, nil

	case core.StorageMemory:
		db := inmemdb.NewDB()
		return &Store{Accounts: inmemdb.NewAccountRepository(db), close: db.Close}, nil

	default:
		return nil, errors.Errorf("unknown storage driver %q", conf.Storage)
	}
}
