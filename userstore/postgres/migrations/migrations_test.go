package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(Migrations, ".")
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected embedded migrations")
	}
	body, err := fs.ReadFile(Migrations, entries[0].Name())
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	for _, marker := range []string{"-- +goose Up", "-- +goose Down", "CREATE TABLE IF NOT EXISTS users"} {
		if !strings.Contains(string(body), marker) {
			t.Fatalf("expected %q in %s", marker, entries[0].Name())
		}
	}
}
