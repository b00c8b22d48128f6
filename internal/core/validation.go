package core

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gwi.com/chat-threads/internal/apperr"
	"gwi.com/chat-threads/internal/store"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// rule maps a failed validator tag to the message returned to callers.
// Rules are checked in order, so a missing field wins over a malformed one.
type rule struct {
	tag     string
	message string
}

func checkInput(input interface{}, rules ...rule) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Unexpected(err)
	}
	for _, r := range rules {
		for _, fe := range fieldErrs {
			if fe.Tag() == r.tag {
				return apperr.Validation(r.message)
			}
		}
	}
	return apperr.Validation(fieldErrs[0].Error())
}

// parseID canonicalises a UUID. A malformed id can never name a stored row.
func parseID(id string) (string, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return parsed.String(), true
}

// storeError maps store failures that no caller handled explicitly.
func storeError(err error) error {
	if store.ViolationOf(err) == store.ViolationUnavailable {
		return apperr.Transient(err)
	}
	return apperr.Unexpected(err)
}
