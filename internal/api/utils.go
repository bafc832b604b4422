package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ThomasGodWeb/WorkBot/internal/api/middleware"
	"github.com/ThomasGodWeb/WorkBot/internal/apperror"
)

type apiFunc func(http.ResponseWriter, *http.Request) error

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// MakeHTTPHandleFunc runs f on the request queue behind CORS, logging and
// any auth middleware, and renders its error as an ApiError.
func (s *APIServer) MakeHTTPHandleFunc(f apiFunc, authMiddleware ...middleware.Middleware) http.HandlerFunc {
	baseHandler := func(w http.ResponseWriter, r *http.Request) {
		err := s.requestQueueManager.Submit(r.Context(), func() error {
			return f(w, r)
		})
		if err != nil {
			s.writeError(w, r, err)
		}
	}

	middlewares := []middleware.Middleware{
		middleware.CORS(s.cors),
		middleware.Logging(s.log),
	}

	finalHandler := func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		middleware.Chain(baseHandler, authMiddleware...)(w, r)
	}

	return middleware.Chain(finalHandler, middlewares...)
}

func (s *APIServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.ErrorLog != nil {
			s.log.Warn().Err(httpErr.ErrorLog).Str("path", r.URL.Path).Int("status", httpErr.StatusCode).Msg("request rejected")
		}
		_ = WriteJSON(w, httpErr.StatusCode, ApiError{Error: httpErr.Message})
		return
	}

	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Code != apperror.ErrorCodeInternal {
		_ = WriteJSON(w, StatusOf(err), ApiError{Error: appErr.Message})
		return
	}

	s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	_ = WriteJSON(w, http.StatusInternalServerError, ApiError{Error: "Internal server error"})
}
