package database

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildPostgresDSNDefaults(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{
		User: "trackgate",
		Name: "trackgate",
	})
	if err != nil {
		t.Fatalf("build dsn: %v", err)
	}

	expected := "host=localhost port=5432 user=trackgate dbname=trackgate TimeZone=UTC application_name=trackgate sslmode=disable"
	if dsn != expected {
		t.Fatalf("expected %q, got %q", expected, dsn)
	}
}

func TestBuildPostgresDSNWithOptions(t *testing.T) {
	dsn, err := buildPostgresDSN(Config{
		User:     "user",
		Name:     "db",
		Host:     "db.example.com",
		Port:     6543,
		Password: "pass",
		Options: map[string]string{
			"sslmode":     "require",
			"search_path": "public",
		},
	})
	if err != nil {
		t.Fatalf("build dsn: %v", err)
	}

	if !containsAll(
		dsn,
		"host=db.example.com",
		"port=6543",
		"user=user",
		"dbname=db",
		"password=pass",
		"sslmode=require",
		"search_path=public",
	) {
		t.Fatalf("dsn missing expected components: %q", dsn)
	}
}

func TestBuildPostgresDSNRequiresUserAndName(t *testing.T) {
	if _, err := buildPostgresDSN(Config{}); err == nil {
		t.Fatalf("expected error for missing credentials")
	}
}

func TestBuildMySQLDSNDefaults(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{
		User: "trackgate",
		Name: "trackgate",
	})
	if err != nil {
		t.Fatalf("build dsn: %v", err)
	}

	expected := "trackgate@tcp(127.0.0.1:3306)/trackgate?charset=utf8mb4&loc=UTC&parseTime=True"
	if dsn != expected {
		t.Fatalf("expected %q, got %q", expected, dsn)
	}
}

func TestBuildMySQLDSNWithOptions(t *testing.T) {
	dsn, err := buildMySQLDSN(Config{
		User:     "user",
		Password: "secret",
		Name:     "db",
		Host:     "db.example.com",
		Port:     3307,
		Options: map[string]string{
			"tls": "skip-verify",
		},
	})
	if err != nil {
		t.Fatalf("build dsn: %v", err)
	}

	if !containsAll(
		dsn,
		"user:secret@tcp(db.example.com:3307)/db?",
		"charset=utf8mb4",
		"loc=UTC",
		"parseTime=True",
		"tls=skip-verify",
	) {
		t.Fatalf("dsn missing expected components: %q", dsn)
	}
}

func TestBuildMySQLDSNRequiresUserAndName(t *testing.T) {
	if _, err := buildMySQLDSN(Config{Host: "localhost"}); err == nil {
		t.Fatalf("expected error for missing credentials")
	}
}

func TestSQLiteDSN(t *testing.T) {
	for _, path := range []string{"", " ", ":memory:"} {
		dsn, err := sqliteDSN(Config{Path: path})
		if err != nil {
			t.Fatalf("sqlite dsn for %q: %v", path, err)
		}
		if dsn != sqliteMemoryDSN {
			t.Fatalf("expected memory dsn for %q, got %q", path, dsn)
		}
	}

	path := filepath.Join(t.TempDir(), "data", "trackgate.db")
	dsn, err := sqliteDSN(Config{Path: path, Options: map[string]string{"_busy_timeout": "100"}})
	if err != nil {
		t.Fatalf("sqlite dsn: %v", err)
	}
	expected := "file:" + filepath.ToSlash(path) + "?_busy_timeout=100&_foreign_keys=1&_journal_mode=WAL"
	if dsn != expected {
		t.Fatalf("expected %q, got %q", expected, dsn)
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("expected parent directory to be created: %v", err)
	}

	dsn, err = sqliteDSN(Config{DSN: "file:custom.db", Path: path})
	if err != nil || dsn != "file:custom.db" {
		t.Fatalf("expected dsn override, got %q (%v)", dsn, err)
	}
}

func TestRenderOptionsOverridesDefaults(t *testing.T) {
	got := renderOptions(map[string]string{"b": "1", "a": "2"}, map[string]string{"b": "3", "c": "4"})
	expected := []string{"a=2", "b=3", "c=4"}
	if strings.Join(got, ",") != strings.Join(expected, ",") {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}

func containsAll(value string, parts ...string) bool {
	for _, part := range parts {
		if !strings.Contains(value, part) {
			return false
		}
	}
	return true
}
