// Package dialect provides the database dialect abstraction used by veil
// sessions.
//
// # Supported Dialects
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// The names match the database/sql driver names registered by
// github.com/lib/pq, github.com/go-sql-driver/mysql and modernc.org/sqlite.
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// Tx extends ExecQuerier with Commit and Rollback. The dialect/sql
// sub-package implements both on top of database/sql and provides the
// statement builders the session compiles queries with.
package dialect
