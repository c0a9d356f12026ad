package cli

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"emailthing/internal/maillist"
	"emailthing/internal/migrations"
	"emailthing/internal/repository"
	"emailthing/pkg/db"
)

type listStore interface {
	maillist.Store
	MailboxRole(ctx context.Context, mailboxID, userID string) (string, error)
}

func isPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// openStore opens the store named by dsn and returns a cleanup func.
// SQLite files are migrated on open; PostgreSQL is migrated only by
// the migrate command.
func openStore(ctx context.Context, dsn string, logger *zap.Logger) (listStore, func(), error) {
	if !isPostgres(dsn) {
		s, err := repository.NewSQLiteStore(ctx, dsn, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}

	pool, err := db.ConnectDSN(ctx, dsn, logger)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewPostgresStore(pool), pool.Close, nil
}

func migrate(ctx context.Context, dsn string, logger *zap.Logger) error {
	if !isPostgres(dsn) {
		s, err := repository.NewSQLiteStore(ctx, dsn, logger)
		if err != nil {
			return err
		}
		return s.Close()
	}

	pool, err := db.ConnectDSN(ctx, dsn, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	sqlDB := db.OpenSQL(pool)
	defer sqlDB.Close()
	return migrations.Up(ctx, sqlDB, migrations.Postgres, logger)
}
