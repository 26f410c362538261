package kvstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/akriventsev/bookshelf/framework/core"
	"github.com/pressly/goose/v3"
)

//go:embed migrations
var migrationsFS embed.FS

// Migrate применяет встроенные миграции схемы для указанного диалекта
func Migrate(ctx context.Context, db *sql.DB, dialect goose.Dialect) error {
	dir, err := migrationsDir(dialect)
	if err != nil {
		return err
	}

	fsys, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return core.Wrap(err, core.ErrInternal, "failed to open embedded migrations")
	}

	provider, err := goose.NewProvider(dialect, db, fsys)
	if err != nil {
		return core.Wrap(err, core.ErrInternal, "failed to create migration provider")
	}

	if _, err := provider.Up(ctx); err != nil {
		return core.Wrap(err, core.ErrTransport, fmt.Sprintf("failed to run %s migrations", dialect))
	}
	return nil
}

func migrationsDir(dialect goose.Dialect) (string, error) {
	switch dialect {
	case goose.DialectSQLite3:
		return "migrations/sqlite", nil
	case goose.DialectPostgres:
		return "migrations/postgres", nil
	default:
		return "", core.NewError(core.ErrInvalidArgument, fmt.Sprintf("unsupported migration dialect: %s", dialect))
	}
}
