package repository

import "testing"

func TestDayBucketExprByDialectSQLite(t *testing.T) {
	got := dayBucketExprByDialect("sqlite", "created_at")
	want := "CAST(date(created_at) AS TEXT)"
	if got != want {
		t.Fatalf("sqlite day expr mismatch, want %s got %s", want, got)
	}
}

func TestDayBucketExprByDialectPostgres(t *testing.T) {
	got := dayBucketExprByDialect("postgres", "created_at")
	want := "to_char(created_at, 'YYYY-MM-DD')"
	if got != want {
		t.Fatalf("postgres day expr mismatch, want %s got %s", want, got)
	}
}

func TestDBDialectNameDefaultsToSQLite(t *testing.T) {
	if got := dbDialectName(nil); got != "sqlite" {
		t.Fatalf("nil db should default to sqlite, got %s", got)
	}
}
