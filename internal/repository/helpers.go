package repository

import (
	"database/sql"
	"errors"

	"github.com/lib/pq"

	apperrors "github.com/shoesfit/partner-server-go/internal/errors"
)

const pgUniqueViolation = "23505"

// HandleNotFound processes a database query result, converting sql.ErrNoRows
// to a nil result without error. This is a common pattern for Find* operations
// where a missing row is not an error condition.
//
// Usage:
//
//	var item model.Item
//	err := r.db.GetContext(ctx, &item, query, args...)
//	return HandleNotFound(&item, err)
func HandleNotFound[T any](result *T, err error) (*T, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// uniqueFields maps unique constraint names to the request field they guard.
var uniqueFields = map[string]string{
	"partners_login_id_key":        "loginId",
	"partners_owner_email_key":     "ownerEmail",
	"partners_business_number_key": "businessNumber",
}

// mapUniqueViolation turns a postgres unique violation into a Conflict naming
// the offending field. Other errors pass through untouched.
func mapUniqueViolation(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != pgUniqueViolation {
		return err
	}
	if field, ok := uniqueFields[pqErr.Constraint]; ok {
		return apperrors.Conflict(field).WithCause(err)
	}
	return apperrors.New(apperrors.ErrCodeConflict, "Resource already exists").WithCause(err)
}
