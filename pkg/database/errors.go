package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
)

// Postgres error codes the ledger reacts to
const (
	pqLockNotAvailable     = "55P03"
	pqDeadlockDetected     = "40P01"
	pqSerializationFailure = "40001"
	pqQueryCanceled        = "57014"
	pqUniqueViolation      = "23505"
	pqForeignKeyViolation  = "23503"
	pqNotNullViolation     = "23502"
	pqCheckViolation       = "23514"
	pqNumericOutOfRange    = "22003"
)

// MapError translates PostgreSQL failures into AppErrors. AppErrors and
// errors that are not pq errors are returned unchanged.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}

	switch pqErr.Code {
	case pqLockNotAvailable, pqDeadlockDetected, pqSerializationFailure, pqQueryCanceled:
		return errors.ContendedResource(pqErr)

	case pqUniqueViolation:
		return errors.Conflict(formatConstraintMessage(pqErr)).WithCause(pqErr)

	case pqForeignKeyViolation:
		return errors.BadRequest("referenced record does not exist").WithCause(pqErr)

	case pqNotNullViolation:
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.ValidationField(col, "must not be empty").WithCause(pqErr)

	case pqCheckViolation:
		return mapCheckConstraint(pqErr)

	case pqNumericOutOfRange:
		return errors.ValidationField("value", "out of range").
			WithMessageKey("errors.value_out_of_range").
			WithCause(pqErr)

	default:
		return err
	}
}

func mapCheckConstraint(pqErr *pq.Error) error {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "quantity_non_negative"):
		return errors.InvariantViolation("check " + constraint + " violated: " + pqErr.Message)

	case strings.Contains(constraint, "status_valid"):
		return errors.ValidationField("status", "unknown status").WithCause(pqErr)

	default:
		return errors.BadRequest("data validation failed: " + constraint).WithCause(pqErr)
	}
}

func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.HasPrefix(constraint, "dispenses_pkey"):
		return "a dispense with this id already exists"
	case strings.HasPrefix(constraint, "goods_receipts_pkey"):
		return "a goods receipt with this id already exists"
	default:
		return "a record with these values already exists"
	}
}
