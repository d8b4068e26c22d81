package db_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"contestoj/internal/common/db"

	"github.com/go-sql-driver/mysql"
)

func TestUniqueViolation(t *testing.T) {
	dup := &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'alice' for key 'contest_competitors.PRIMARY'"}

	key, ok := db.UniqueViolation(fmt.Errorf("exec failed: %w", dup))
	if !ok {
		t.Fatal("expected duplicate key to be detected through wrapping")
	}
	if key != "contest_competitors.PRIMARY" {
		t.Fatalf("unexpected key name: %q", key)
	}

	if _, ok := db.UniqueViolation(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"}); ok {
		t.Fatal("deadlock must not be reported as duplicate")
	}
	if _, ok := db.UniqueViolation(errors.New("plain")); ok {
		t.Fatal("plain error must not be reported as duplicate")
	}
}

func TestExtractDuplicateKeyName(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"Duplicate entry 'x' for key 'PRIMARY'", "PRIMARY"},
		{"Duplicate entry 'x' for key `uniq_name`", "uniq_name"},
		{"something else", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := db.ExtractDuplicateKeyName(tt.message); got != tt.want {
			t.Errorf("ExtractDuplicateKeyName(%q) = %q, want %q", tt.message, got, tt.want)
		}
	}
}

func TestIsNoRows(t *testing.T) {
	if !db.IsNoRows(fmt.Errorf("scan failed: %w", sql.ErrNoRows)) {
		t.Fatal("wrapped ErrNoRows should be detected")
	}
	if db.IsNoRows(errors.New("other")) {
		t.Fatal("unexpected no-rows detection")
	}
}

var (
	_ db.Querier  = (*db.MySQL)(nil)
	_ db.Database = (*db.MySQL)(nil)
)

func TestNewMySQLWithDB_ImplementsDatabase(t *testing.T) {
	sqlDB, err := sql.Open("mysql", "u:p@tcp(127.0.0.1:1)/contest")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	var database db.Database = db.NewMySQLWithDB(sqlDB)
	var q db.Querier = database
	if q == nil {
		t.Fatal("database should be usable as a querier")
	}
	if err := database.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNewMySQLWithConfig_RequiresDSN(t *testing.T) {
	if _, err := db.NewMySQLWithConfig(nil); err == nil {
		t.Fatal("nil config should fail")
	}
	if _, err := db.NewMySQLWithConfig(&db.MySQLConfig{}); err == nil {
		t.Fatal("empty dsn should fail")
	}
}
