package api

import (
	"net/http"

	"github.com/ThomasGodWeb/WorkBot/internal/apperror"
)

type HTTPError struct {
	StatusCode int
	Message    string
	ErrorLog   error
}

func (e *HTTPError) Error() string {
	return e.Message
}

type ApiError struct {
	Error string `json:"message"`
}

// StatusOf maps an application error code onto an HTTP status.
func StatusOf(err error) int {
	switch apperror.CodeOf(err) {
	case apperror.ErrorCodeValidation:
		return http.StatusBadRequest
	case apperror.ErrorCodeForbidden:
		return http.StatusForbidden
	case apperror.ErrorCodeNotFound:
		return http.StatusNotFound
	case apperror.ErrorCodeAlreadyClosed, apperror.ErrorCodeDuplicateReview:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
