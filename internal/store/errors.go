package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a single-row lookup or mutation matched nothing.
var ErrNotFound = errors.New("store: record not found")

// Violation tags a store failure in terms the services can act on without
// knowing which database produced it.
type Violation int

const (
	ViolationNone Violation = iota
	ViolationUnique
	ViolationForeignKey
	ViolationCheck
	ViolationUnavailable
)

func (v Violation) String() string {
	switch v {
	case ViolationUnique:
		return "unique violation"
	case ViolationForeignKey:
		return "foreign key violation"
	case ViolationCheck:
		return "check violation"
	case ViolationUnavailable:
		return "store unavailable"
	default:
		return "store error"
	}
}

type Error struct {
	Violation Violation
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Violation, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ViolationOf returns the tag attached by the store, or ViolationNone.
func ViolationOf(err error) Violation {
	var e *Error
	if errors.As(err, &e) {
		return e.Violation
	}
	return ViolationNone
}

type classifier func(error) Violation

func translate(classify classifier, err error) error {
	if err == nil || errors.Is(err, ErrNotFound) {
		return err
	}
	var tagged *Error
	if errors.As(err, &tagged) {
		return err
	}
	v := classifyCommon(err)
	if v == ViolationNone {
		v = classify(err)
	}
	if v == ViolationNone {
		return err
	}
	return &Error{Violation: v, Err: err}
}

// classifyCommon recognises connectivity failures that look the same for every driver.
func classifyCommon(err error) Violation {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone):
		return ViolationUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ViolationUnavailable
	}
	return ViolationNone
}

func classifyPostgres(err error) Violation {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return ViolationUnique
		case pgErr.Code == "23503":
			return ViolationForeignKey
		case pgErr.Code == "23514":
			return ViolationCheck
		case strings.HasPrefix(pgErr.Code, "08"), // connection_exception
			pgErr.Code == "53300", // too_many_connections
			pgErr.Code == "57P01", // admin_shutdown
			pgErr.Code == "57P03": // cannot_connect_now
			return ViolationUnavailable
		}
		return ViolationNone
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return ViolationUnavailable
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return ViolationUnavailable
	}
	return ViolationNone
}

func classifySQLite(err error) Violation {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return ViolationNone
	}
	switch sqliteErr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		return ViolationUnique
	case sqlite3.ErrConstraintForeignKey:
		return ViolationForeignKey
	case sqlite3.ErrConstraintCheck:
		return ViolationCheck
	}
	switch sqliteErr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen:
		return ViolationUnavailable
	}
	return ViolationNone
}
