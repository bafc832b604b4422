package apperror

import "errors"

type ErrorCode string

const (
	ErrorCodeValidation      ErrorCode = "validation_error"
	ErrorCodeForbidden       ErrorCode = "forbidden"
	ErrorCodeNotFound        ErrorCode = "not_found"
	ErrorCodeAlreadyClosed   ErrorCode = "already_closed"
	ErrorCodeDuplicateReview ErrorCode = "duplicate_review"
	ErrorCodeInternal        ErrorCode = "internal_error"
)

type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(code ErrorCode, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func Validation(message string) *Error {
	return New(ErrorCodeValidation, message, nil)
}

func Forbidden(message string) *Error {
	return New(ErrorCodeForbidden, message, nil)
}

func NotFound(message string, err error) *Error {
	return New(ErrorCodeNotFound, message, err)
}

func Internal(message string, err error) *Error {
	return New(ErrorCodeInternal, message, err)
}

// CodeOf returns the code of the first *Error in the chain, or internal_error.
func CodeOf(err error) ErrorCode {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrorCodeInternal
}

func Is(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	return CodeOf(err) == code
}

// KeepsPending reports whether a failed flow step should leave the actor's
// pending action in place so the next input retries it.
func KeepsPending(err error) bool {
	return Is(err, ErrorCodeValidation)
}
