package endpoints

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/ThomasGodWeb/WorkBot/internal/api"
)

type HTTPError = api.HTTPError

type ApiMessageResponse struct {
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	return api.WriteJSON(w, status, v)
}

func MethodHandler(
	w http.ResponseWriter,
	r *http.Request,
	allowed map[string]func(http.ResponseWriter, *http.Request) error,
) error {
	if handler, ok := allowed[r.Method]; ok {
		return handler(w, r)
	}
	return &HTTPError{
		StatusCode: http.StatusMethodNotAllowed,
		Message:    "Method not allowed.",
		ErrorLog:   fmt.Errorf("method not allowed"),
	}
}

// pathSegments splits what follows prefix into non-empty segments.
func pathSegments(path, prefix string) ([]string, error) {
	trimmed := strings.TrimPrefix(path, prefix)
	if trimmed == path {
		return nil, &HTTPError{StatusCode: http.StatusNotFound, Message: "Not found", ErrorLog: fmt.Errorf("path mismatch: %s", path)}
	}
	var out []string
	for _, seg := range strings.Split(trimmed, "/") {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out, nil
}

func parseID(raw, what string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &HTTPError{
			StatusCode: http.StatusBadRequest,
			Message:    "Invalid " + what,
			ErrorLog:   fmt.Errorf("invalid %s %q", what, raw),
		}
	}
	return id, nil
}

func queryLimit(r *http.Request, def int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}
