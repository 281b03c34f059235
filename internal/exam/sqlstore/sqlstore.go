package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Store persists tests and attempts in sqlite or postgres through database/sql.
// Queries are written with ? placeholders and rebound per dialect.
type Store struct {
	db      *sql.DB
	dialect Dialect
}

// Open connects to the database and ensures the schema exists.
func Open(ctx context.Context, dialect Dialect, dsn string) (*Store, error) {
	switch dialect {
	case DialectSQLite, "":
		return NewSQLiteStore(dsn)
	case DialectPostgres:
		if strings.TrimSpace(dsn) == "" {
			dsn = "postgres://localhost:5432/exam?sslmode=disable"
		}
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		store := &Store{db: db, dialect: DialectPostgres}
		if err := store.initSchema(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", dialect)
	}
}

func NewSQLiteStore(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		path = "exam.db"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	store := &Store{db: db, dialect: DialectSQLite}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	var builder strings.Builder
	builder.Grow(len(query) + 8)
	n := 0
	for idx := 0; idx < len(query); idx++ {
		if query[idx] == '?' {
			n++
			builder.WriteByte('$')
			builder.WriteString(strconv.Itoa(n))
			continue
		}
		builder.WriteByte(query[idx])
	}
	return builder.String()
}

// forUpdate returns the row-lock suffix for selects inside a transaction.
// sqlite serializes writers on its single connection and needs none.
func (s *Store) forUpdate() string {
	if s.dialect == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
