/*
Package sqlite opens the roster store on a local SQLite file.

PURPOSE:
  Thin driver layer over store/sqlstore: mattn/go-sqlite3, ? placeholders
  and SQLite's constraint codes for duplicate detection. Everything else
  (schema, queries, Reset for demo scenarios) is shared with PostgreSQL.

CONNECTION:
  Foreign keys on, WAL journal, a single open connection. An in-memory
  database (":memory:") lives and dies with that connection, which is what
  the tests rely on.

USAGE:
  store, err := sqlite.New("./data/roster.db")
  ...
  defer store.Close()

SEE ALSO:
  - store/sqlstore: Queries and schema
  - store/postgres: PostgreSQL variant
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"github.com/warp/crew-roster/store/sqlstore"
)

// New opens dbPath and migrates the schema.
func New(dbPath string) (*sqlstore.Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := sqlstore.New(db, sqlstore.Options{
		Dialect:           sqlstore.Question,
		IsUniqueViolation: isDuplicate,
	})
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func isDuplicate(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
