// Package migrations embeds the schema migrations and applies them with
// goose. Both the bot on startup and the migrate CLI go through Run.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// FS holds the embedded *.sql migration files.
//
//go:embed *.sql
var FS embed.FS

// Run brings the schema up to the latest version. Goose tracks applied
// versions in its own table, so calling this on every startup is safe.
func Run(db *sql.DB) error {
	goose.SetBaseFS(FS)

	// modernc.org/sqlite registers as "sqlite", but goose knows the
	// dialect under its mattn-era name.
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}

	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
