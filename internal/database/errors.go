package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrConnection reports that the store could not be reached. It is never
	// retried internally.
	ErrConnection = errors.New("database connection error")
	// ErrConstraintViolation reports a rejected write (foreign key, uniqueness,
	// not-null).
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrForeignKey refines ErrConstraintViolation: a referenced row is missing.
	ErrForeignKey = fmt.Errorf("%w: foreign key", ErrConstraintViolation)
	// ErrDuplicate refines ErrConstraintViolation: a unique key already exists.
	ErrDuplicate = fmt.Errorf("%w: duplicate key", ErrConstraintViolation)
	// ErrInvalidIdentifier rejects table or column names that are not plain
	// SQL identifiers.
	ErrInvalidIdentifier = errors.New("invalid identifier")
	// ErrEmptyCondition rejects updates without a WHERE clause.
	ErrEmptyCondition = errors.New("update requires a condition")
	// ErrEmptyData rejects writes with no columns.
	ErrEmptyData = errors.New("no columns to write")
)

// classify wraps a driver error with the matching sentinel so callers can
// use errors.Is without knowing the driver.
func classify(op, table string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s %s: %w", op, table, err)
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		switch {
		case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%s %s: %w: %v", op, table, ErrForeignKey, err)
		case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s %s: %w: %v", op, table, ErrDuplicate, err)
		case code&0xff == sqlite3.SQLITE_CONSTRAINT:
			// Primary code only: fall back to the message text.
			msg := strings.ToUpper(sqliteErr.Error())
			switch {
			case strings.Contains(msg, "FOREIGN KEY"):
				return fmt.Errorf("%s %s: %w: %v", op, table, ErrForeignKey, err)
			case strings.Contains(msg, "UNIQUE"):
				return fmt.Errorf("%s %s: %w: %v", op, table, ErrDuplicate, err)
			}
			return fmt.Errorf("%s %s: %w: %v", op, table, ErrConstraintViolation, err)
		case code&0xff == sqlite3.SQLITE_CANTOPEN, code&0xff == sqlite3.SQLITE_IOERR:
			return fmt.Errorf("%s %s: %w: %v", op, table, ErrConnection, err)
		}
		return fmt.Errorf("%s %s: %w", op, table, err)
	}

	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) ||
		errors.As(err, &netErr) || strings.Contains(err.Error(), "sql: database is closed") {
		return fmt.Errorf("%s %s: %w: %v", op, table, ErrConnection, err)
	}

	return fmt.Errorf("%s %s: %w", op, table, err)
}
