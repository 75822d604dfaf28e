package internal

import (
	validation "github.com/jellydator/validation"
)

// AddFieldError records a message against a field, appending to any message
// already accumulated for that field. Validation failures are collected per
// request and reported together, so one field may carry several symptoms of
// the same root cause.
func AddFieldError(errs validation.Errors, field, code, message string) {
	if prev, ok := errs[field]; ok {
		message = prev.Error() + "; " + message
	}
	errs[field] = validation.NewError(code, message)
}
