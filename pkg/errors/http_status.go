package custom_error

import (
	"errors"
	"net/http"
)

// IsDomainError reports whether err belongs to the workflow error taxonomy,
// as opposed to an unexpected failure.
func IsDomainError(err error) bool {
	var (
		validationErr *ValidationError
		guardErr      *StateGuardError
		ruleErr       *BusinessRuleError
		blockErr      *ReferentialBlockError
		forbiddenErr  *ForbiddenError
		notFoundErr   *NotFoundError
		uniqueErr     *UniqueViolationError
		fkErr         *ForeignKeyViolationError
	)

	return errors.As(err, &validationErr) ||
		errors.As(err, &guardErr) ||
		errors.As(err, &ruleErr) ||
		errors.As(err, &blockErr) ||
		errors.As(err, &forbiddenErr) ||
		errors.As(err, &notFoundErr) ||
		errors.As(err, &uniqueErr) ||
		errors.As(err, &fkErr)
}

func HTTPStatus(err error) int {
	var (
		validationErr *ValidationError
		guardErr      *StateGuardError
		ruleErr       *BusinessRuleError
		blockErr      *ReferentialBlockError
		forbiddenErr  *ForbiddenError
		notFoundErr   *NotFoundError
		uniqueErr     *UniqueViolationError
		fkErr         *ForeignKeyViolationError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		return http.StatusNotFound
	case errors.As(err, &forbiddenErr):
		return http.StatusForbidden
	case errors.As(err, &guardErr), errors.As(err, &blockErr), errors.As(err, &uniqueErr), errors.As(err, &fkErr):
		return http.StatusConflict
	case errors.As(err, &ruleErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
