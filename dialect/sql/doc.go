// Package sql provides the database/sql backed driver and the statement
// builders used by the session engine.
//
// # Builders
//
// Statements render in a single pass through a Builder, which quotes
// identifiers and numbers placeholders for the target dialect:
//
//	s := sql.Dialect(dialect.Postgres).
//	    Select(sql.Col("users.id"), sql.Col("users.name")).
//	    From(sql.Table("users")).
//	    Where(sql.And(sql.EQ("users.name", "ed"), sql.IsTrue("users.public")))
//	query, args := s.Query()
//	// SELECT "users"."id", "users"."name" FROM "users"
//	//   WHERE "users"."name" = $1 AND CAST("users"."public" AS BOOLEAN)
//
// A Selector with an alias can be used as a derived table in FROM or
// JOIN clauses of another Selector.
//
// # Drivers
//
// Driver wraps a *sql.DB. StatsDriver and DebugDriver wrap any
// dialect.Driver and can be stacked:
//
//	drv, err := sql.Open(dialect.SQLite, "file:app.db?_pragma=foreign_keys(1)")
//	if err != nil {
//	    return err
//	}
//	logged := sql.NewDebugDriver(sql.NewStatsDriver(drv), logger)
package sql
