package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestRebindPostgresPlaceholders(t *testing.T) {
	db := WrapDB(nil, DialectPostgres)
	got := db.Rebind("SELECT * FROM users WHERE email=? OR username=? LIMIT 1")
	want := "SELECT * FROM users WHERE email=$1 OR username=$2 LIMIT 1"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	lite := WrapDB(nil, DialectSQLite)
	if q := lite.Rebind("a=? AND b=?"); q != "a=? AND b=?" {
		t.Fatalf("sqlite query must not change, got %q", q)
	}
}

func TestSessionsStoreIssuesRebindedStatements(t *testing.T) {
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer raw.Close()
	db := WrapDB(raw, DialectPostgres)
	sessions := NewSessionsStore(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sessions SET is_valid=$1 WHERE user_id=$2 AND is_valid=$3`)).
		WithArgs(false, "u1", true).
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err := sessions.InvalidateAllForUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 rows, got %d", n)
	}

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE sessions SET last_used_at=$1 WHERE id=$2`)).
		WithArgs(sqlmock.AnyArg(), "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	if err := sessions.Touch(context.Background(), "missing", time.Now()); err != ErrNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPageNormalizes(t *testing.T) {
	page, limit, offset := Page(0, 500, 10, 100)
	if page != 1 || limit != 100 || offset != 0 {
		t.Fatalf("unexpected page=%d limit=%d offset=%d", page, limit, offset)
	}
	page, limit, offset = Page(3, 0, 10, 100)
	if page != 3 || limit != 10 || offset != 20 {
		t.Fatalf("unexpected page=%d limit=%d offset=%d", page, limit, offset)
	}
}
