// Package apperr tags engine errors with a kind so callers can tell retryable
// failures from terminal ones without inspecting storage exceptions.
package apperr

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Kind classifies an error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindTransient
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindIntegrity:
		return "integrity"
	default:
		return "internal"
	}
}

// HTTPStatus maps a kind to the status code the front door returns.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return fiber.StatusBadRequest
	case KindNotFound:
		return fiber.StatusNotFound
	case KindConflict, KindIntegrity:
		return fiber.StatusConflict
	case KindTransient:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// Error is a sentinel with a kind. Compare with errors.Is.
type Error struct {
	kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }
func (e *Error) Kind() Kind    { return e.kind }

func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func Validation(msg string) *Error { return New(KindValidation, msg) }
func NotFound(msg string) *Error   { return New(KindNotFound, msg) }
func Conflict(msg string) *Error   { return New(KindConflict, msg) }
func Integrity(msg string) *Error  { return New(KindIntegrity, msg) }

// ErrTransient wraps storage failures that are safe to retry.
var ErrTransient = New(KindTransient, "Temporary storage failure, retry the operation")

type kinded interface {
	Kind() Kind
}

// KindOf returns the kind of the first tagged error in err's chain, falling
// back to storage error classification.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return classifyStorage(err)
}

// Retryable reports whether the whole operation may be retried safely.
func Retryable(err error) bool {
	return err != nil && KindOf(err) == KindTransient
}

// FromStorage wraps a raw storage error: transient failures become
// ErrTransient (keeping the cause), everything else is returned unchanged.
func FromStorage(err error) error {
	if err == nil {
		return nil
	}
	var k kinded
	if errors.As(err, &k) {
		return err
	}
	if classifyStorage(err) == KindTransient {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}
	return err
}

// IsUniqueViolation reports a unique constraint failure from any supported driver.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func classifyStorage(err error) Kind {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return KindNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, driver.ErrBadConn) {
		return KindTransient
	}
	if IsUniqueViolation(err) {
		return KindConflict
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001", // serialization_failure
			pgErr.Code == "40P01", // deadlock_detected
			pgErr.Code == "55P03", // lock_not_available
			pgErr.Code == "57014", // query_canceled (statement/lock timeout)
			strings.HasPrefix(pgErr.Code, "08"):
			return KindTransient
		}
		return KindInternal
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY") {
		return KindTransient
	}
	return KindInternal
}
