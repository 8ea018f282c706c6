package dbtest

import (
	"fmt"
	"strings"
	"testing"

	"chatwave-backend/internal/db"
)

// OpenTest returns a migrated in-memory SQLite database private to the test.
func OpenTest(t testing.TB) *db.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	d, err := db.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := d.Migrate(); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(d.Close)
	return d
}
