// Package fixture provides the User/Address schema and the deterministic
// dataset the visibility layer is tested against.
package fixture

import (
	"context"
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/syssam/veil/dialect"
	"github.com/syssam/veil/dialect/sql"
	"github.com/syssam/veil/schema"
	"github.com/syssam/veil/schema/edge"
	"github.com/syssam/veil/schema/field"
	"github.com/syssam/veil/session"
)

// DDL creates the tables of the fixture schema on SQLite.
//
//go:embed schema.sql
var DDL string

var (
	// User has a name, a public flag and many addresses.
	User = schema.New("User",
		schema.Fields(
			field.String("name"),
			field.Bool("public").Default(false),
		),
		schema.Edges(
			edge.To("addresses", "Address").Field("user_id"),
		),
		schema.Visibility(schema.PublicField("public")),
	)

	// Address has an email, a public flag and belongs to a user.
	Address = schema.New("Address",
		schema.Fields(
			field.String("email"),
			field.Int64("user_id").Optional(),
			field.Bool("public").Default(false),
		),
		schema.Edges(
			edge.From("user", "User").Field("user_id"),
		),
		schema.Visibility(schema.PublicField("public")),
	)

	// Graph registers User and Address.
	Graph = schema.MustGraph(User, Address)
)

// UserPublic holds the public flags of users u1 to u6.
var UserPublic = []bool{true, true, false, false, true, true}

// AddressPublic holds the public flags of the two addresses of each user.
var AddressPublic = [][2]bool{
	{true, true},
	{false, true},
	{false, false},
	{false, true},
	{true, false},
	{false, false},
}

// Open returns a driver over a new SQLite database holding the seeded
// dataset. The database is removed with the test.
func Open(t testing.TB) *sql.Driver {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.db")
	drv, err := sql.Open(dialect.SQLite, "file:"+path+"?_pragma=foreign_keys(1)")
	if err != nil {
		t.Fatalf("fixture: open: %v", err)
	}
	t.Cleanup(func() { drv.Close() })
	ctx := context.Background()
	if err := Migrate(ctx, drv); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	if err := Seed(ctx, session.New(drv, Graph)); err != nil {
		t.Fatalf("fixture: %v", err)
	}
	return drv
}

// Migrate creates the tables.
func Migrate(ctx context.Context, drv dialect.ExecQuerier) error {
	for _, stmt := range strings.Split(DDL, ";") {
		if stmt = strings.TrimSpace(stmt); stmt == "" {
			continue
		}
		if err := drv.Exec(ctx, stmt, []any{}, nil); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Seed inserts users u1 to u6 and their addresses uNa1 and uNa2 through
// the session.
func Seed(ctx context.Context, sess *session.Session) error {
	users := make([]*session.Entity, len(UserPublic))
	for i, public := range UserPublic {
		u, err := sess.Create(User, map[string]any{
			"name":   fmt.Sprintf("u%d", i+1),
			"public": public,
		})
		if err != nil {
			return err
		}
		users[i] = u
	}
	if err := sess.Commit(ctx); err != nil {
		return fmt.Errorf("seed users: %w", err)
	}
	for i, u := range users {
		for j, public := range AddressPublic[i] {
			_, err := sess.Create(Address, map[string]any{
				"email":   fmt.Sprintf("u%da%d", i+1, j+1),
				"user_id": u.ID(),
				"public":  public,
			})
			if err != nil {
				return err
			}
		}
	}
	if err := sess.Commit(ctx); err != nil {
		return fmt.Errorf("seed addresses: %w", err)
	}
	return nil
}
