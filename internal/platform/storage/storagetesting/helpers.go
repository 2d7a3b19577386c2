// Package storagetesting holds helpers for the Postgres integration suite.
package storagetesting

import (
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Open opens a connection to the integration test database. The suite is
// skipped when DATABASE_URL is not set.
func Open(t *testing.T) *sqlx.DB {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("set DATABASE_URL to run Postgres integration tests")
	}

	db, err := sqlx.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("can't open connection to %q: %s", dbURL, err)
	}

	return db
}

// CleanupData deletes all rows in dependency order.
func CleanupData(t *testing.T, db *sqlx.DB) {
	t.Helper()

	for _, table := range []string{"products", "catalogue_pages", "catalogues", "scrape_jobs"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Fatalf("can't delete %s data: %s", table, err)
		}
	}
}

// CountRows returns the number of rows in table.
func CountRows(t *testing.T, db *sqlx.DB, table string) int {
	t.Helper()

	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM "+table); err != nil {
		t.Fatalf("can't count %s rows: %s", table, err)
	}

	return count
}
