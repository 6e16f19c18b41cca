package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// duplicateKeyMessages covers drivers whose errors do not reach us typed:
// postgres through other drivers, MySQL 1062 and SQLite 2067.
var duplicateKeyMessages = []string{
	"duplicate key value violates unique constraint",
	"Error 1062",
	"UNIQUE constraint failed",
}

// IsDuplicateKeyErr reports whether err is a unique constraint violation,
// e.g. a business joining a waitlist queue it already waits in.
func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	msg := err.Error()
	for _, needle := range duplicateKeyMessages {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
