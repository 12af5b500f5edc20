package records

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func TestAdd(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO registro (texto)
VALUES ($1)
RETURNING id`)).
		WithArgs("revisar la estantería 3").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))

	record, err := repo.Add(context.Background(), "  revisar la estantería 3 ")
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if record.ID != 7 || record.Texto != "revisar la estantería 3" {
		t.Fatalf("Add() = %+v", record)
	}
	assertSQLMock(t, mock)
}

func TestAddRequiresText(t *testing.T) {
	db, mock := newSQLMock(t)
	if _, err := NewRepository(db).Add(context.Background(), "   "); err == nil {
		t.Fatal("Add() expected error for blank text")
	}
	assertSQLMock(t, mock)
}

func TestGet(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(`SELECT id, texto\s+FROM registro\s+WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "texto"}).AddRow(int64(7), "hola"))

	record, err := repo.Get(context.Background(), 7)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if record.Texto != "hola" {
		t.Fatalf("Texto = %q", record.Texto)
	}
	assertSQLMock(t, mock)
}

func TestGetReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(`SELECT id, texto`).
		WithArgs(int64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), 99)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() error = %v, want ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func TestDelete(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM registro WHERE id = $1`)).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Delete(context.Background(), 7); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestDeleteReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM registro WHERE id = $1`)).
		WithArgs(int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.Delete(context.Background(), 8); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete() error = %v, want ErrNotFound", err)
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
