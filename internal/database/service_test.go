package database

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupTestDB opens an in-memory database with the full schema. A single
// connection is forced because every pooled connection to :memory: would
// otherwise get its own empty database.
func setupTestDB(t *testing.T) (*Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	service := &Service{db: db}
	if err := service.InitSchema(false); err != nil {
		t.Fatalf("Failed to initialize schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, cleanup
}

func createTestUser(t *testing.T, service *Service, id, code string) {
	t.Helper()
	_, err := service.db.Exec(queryInsertUser, id, "Test "+id, id+"@example.com", code)
	if err != nil {
		t.Fatalf("Failed to insert test user %s: %v", id, err)
	}
}

func createTestOffer(t *testing.T, service *Service, id string) {
	t.Helper()
	_, err := service.db.Exec(queryInsertOffer,
		id, "Test Cask "+id, "https://example.com/img.jpg", "Speyside",
		"4.5", "100.00", "10.0", "2030-01-01 00:00:00")
	if err != nil {
		t.Fatalf("Failed to insert test offer %s: %v", id, err)
	}
}
