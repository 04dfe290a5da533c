// Package sqlitetest opens throwaway in-memory SQLite databases carrying the
// directory schema, for tests that want a real database/sql store.
package sqlitetest

import (
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mattn/go-sqlite3"
)

// DriverName is sqlite3 with LOWER() folding all of Unicode, as MySQL's
// collation does. The built-in LOWER only folds ASCII.
const DriverName = "sqlite3_unicode"

var register sync.Once

func registerDriver() {
	register.Do(func() {
		sql.Register(DriverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				return conn.RegisterFunc("lower", unicodeLower, true)
			},
		})
	})
}

func unicodeLower(v any) any {
	switch s := v.(type) {
	case string:
		return strings.ToLower(s)
	case []byte:
		return strings.ToLower(string(s))
	default:
		return v
	}
}

//go:embed schema.sql
var schema string

var seq atomic.Int64

// Open returns a fresh database private to t. It is closed on cleanup.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	registerDriver()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared&_foreign_keys=on", name, seq.Add(1))
	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// a single connection keeps the shared in-memory db alive and serializes writers
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Exec(schema); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}
