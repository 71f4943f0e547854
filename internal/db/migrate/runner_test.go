package migrate

import (
	"errors"
	"io/fs"
	"strings"
	"testing"

	"orgscope/internal/db"
)

func TestRun_EmptyDSN(t *testing.T) {
	err := Run("", Up, nil)
	if !errors.Is(err, db.ErrEmptyDSN) {
		t.Fatalf("Run with empty DSN err = %v, want ErrEmptyDSN", err)
	}
	if _, _, err := Version(""); !errors.Is(err, db.ErrEmptyDSN) {
		t.Fatalf("Version with empty DSN err = %v, want ErrEmptyDSN", err)
	}
}

func TestParseDirection(t *testing.T) {
	testCases := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"up", Up, false},
		{"down", Down, false},
		{"", "", true},
		{"UP", "", true},
		{"sideways", "", true},
	}
	for _, tc := range testCases {
		got, err := ParseDirection(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseDirection(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("ParseDirection(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRun_InvalidDirection(t *testing.T) {
	err := Run("postgres://localhost/test", Direction("left"), nil)
	if err == nil || !strings.Contains(err.Error(), "direction") {
		t.Fatalf("Run with invalid direction err = %v", err)
	}
}

func TestRun_InvalidDSN(t *testing.T) {
	for _, dsn := range []string{"invalid-dsn", "://localhost/test", "postgres://localhost with spaces/test"} {
		if err := Run(dsn, Up, nil); err == nil {
			t.Errorf("Run with invalid DSN %q should return error", dsn)
		}
	}
}

func TestMigrationFS_Pairs(t *testing.T) {
	entries, err := fs.ReadDir(db.MigrationFS, "migrations")
	if err != nil {
		t.Fatal(err)
	}
	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	if ups == 0 || ups != downs {
		t.Errorf("migrations: %d up, %d down", ups, downs)
	}
}

func TestMigrationFS_CreatesTables(t *testing.T) {
	b, err := fs.ReadFile(db.MigrationFS, "migrations/000001_init.up.sql")
	if err != nil {
		t.Fatal(err)
	}
	for _, table := range []string{"users", "organizations", "organization_members", "user_roles", "policies", "audit_logs"} {
		if !strings.Contains(string(b), "CREATE TABLE IF NOT EXISTS "+table+" ") {
			t.Errorf("init migration does not create %s", table)
		}
	}
}
