// Package dbutil maps gorm results onto the application error kinds.
package dbutil

import (
	apperrors "github.com/Aidin1998/teammatch/pkg/errors"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const DuplicateKeyErrorCode = "23505"

// WrapError classifies a gorm error. Errors that are already classified pass through.
func WrapError(err error) error {
	var pgErr *pgconn.PgError
	var appErr *apperrors.Error

	if err == nil {
		return nil
	} else if apperrors.As(err, &appErr) {
		return err
	} else if apperrors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFound.Wrap(err)
	} else if apperrors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.Duplicate.Explain("duplication of key").Wrap(err)
	} else if apperrors.As(err, &pgErr) {
		switch pgErr.Code {
		case DuplicateKeyErrorCode:
			return apperrors.Duplicate.
				Explain("duplication of key").
				Wrap(err)
		}
	}

	return err
}
