package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"sismed/internal/domain"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// nullToStringPtr converts sql.NullString to *string, nil when NULL
func nullToStringPtr(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

// stringPtrToNull converts *string to sql.NullString, NULL when nil
func stringPtrToNull(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// ============================================================================
// Error Classification
// ============================================================================

// classify wraps a driver error into a typed domain error for op
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return domain.E(domain.KindInternal, op, err)
	}

	var se *msqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			return domain.E(domain.KindConstraint, op, err)
		case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_READONLY:
			return domain.E(domain.KindStorageUnavailable, op, err)
		}
	}

	return domain.E(domain.KindInternal, op, err)
}

// ============================================================================
// Result Helpers
// ============================================================================

// insertedID returns the rowid assigned by an INSERT
func insertedID(op string, res sql.Result) (int64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, classify(op, err)
	}
	return id, nil
}

// affectedRows returns the row count touched by an UPDATE or DELETE
func affectedRows(op string, res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify(op, err)
	}
	return n, nil
}

// execAffected runs an UPDATE or DELETE and reports the affected rows
func (r *Repository) execAffected(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(op, err)
	}
	return affectedRows(op, res)
}

// execInsert runs an INSERT and reports the new id
func (r *Repository) execInsert(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, classify(op, err)
	}
	return insertedID(op, res)
}
