package database

import (
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"dockhand/internal/config"
)

func New(conf *config.DHConfig) (*sqlx.DB, error) {
	switch conf.Database.Driver {
	case "postgres":
		return sqlx.Connect("pgx", conf.GetDatabaseURL())
	case "sqlite":
		// sqlite understands $N natively, so the same queries serve both drivers
		sqlx.BindDriver("sqlite", sqlx.DOLLAR)
		db, err := sqlx.Connect("sqlite", conf.GetDatabaseURL())
		if err != nil {
			return nil, err
		}
		// sqlite serializes writers; a single connection avoids SQLITE_BUSY
		// under the concurrent worker pool
		db.SetMaxOpenConns(1)
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", conf.Database.Driver)
	}
}
