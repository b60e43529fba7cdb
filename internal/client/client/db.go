package client

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/goalie/internal/client/migrations"
	"github.com/dmitrijs2005/goalie/internal/logging"
	"github.com/pressly/goose/v3"
)

// gooseLogger sends goose progress to the application log instead of stdout.
type gooseLogger struct {
	ctx context.Context
	log logging.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.log.Debug(l.ctx, strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	msg := strings.TrimSpace(fmt.Sprintf(format, v...))
	l.log.Error(l.ctx, msg)
	panic(msg)
}

// RunMigrations applies the embedded goose migrations to db. Progress is
// logged at debug level.
func RunMigrations(ctx context.Context, db *sql.DB, logger logging.Logger) error {
	if logger == nil {
		logger = logging.Nop()
	}
	goose.SetLogger(gooseLogger{ctx: ctx, log: logger.With("component", "migrations")})
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens the local SQLite database at dsn and brings its schema up
// to date. The pool is limited to a single connection: SQLite serialises
// writers anyway and in-memory databases are per connection.
func InitDatabase(ctx context.Context, dsn string, logger logging.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}
