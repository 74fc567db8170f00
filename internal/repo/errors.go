package repo

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrorNotFound  = errors.New("not found")
	ErrorConflict  = errors.New("conflict")
	ErrorKeyExists = errors.New("idempotency key already used")
)

const (
	uniqueViolationCode     = "23505"
	foreignKeyViolationCode = "23503"
	checkViolationCode      = "23514"
)

func mapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return fmt.Errorf("%w: %s", ErrorConflict, pgErr.ConstraintName)
		case foreignKeyViolationCode, checkViolationCode:
			return fmt.Errorf("%w: constraint %s: %v", ErrorConflict, pgErr.ConstraintName, err)
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrorConflict
	}
	return err
}
