package endpoints

import (
	"fmt"
	"net/http"

	"lead-routing-backend/internal/api"
)

type HTTPError = api.HTTPError

type ApiMessageResponse struct {
	Message string `json:"message"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) error {
	return api.WriteJSON(w, status, v)
}

// serviceHTTPError maps the shared service error codes onto HTTP statuses.
// Every service package uses the same code strings, so translation lives in
// one place instead of per endpoint group.
func serviceHTTPError(code, message string, cause error) *HTTPError {
	errorLog := cause
	if errorLog != nil {
		errorLog = fmt.Errorf("%s: %w", message, cause)
	} else {
		errorLog = fmt.Errorf("%s", message)
	}

	status := http.StatusInternalServerError
	switch code {
	case "validation_error":
		status = http.StatusBadRequest
	case "not_found":
		status = http.StatusNotFound
	case "conflict":
		status = http.StatusConflict
	case "unauthorized":
		status = http.StatusUnauthorized
	case "gateway_error":
		status = http.StatusBadGateway
	default:
		message = "Internal server error"
	}

	return &HTTPError{
		StatusCode: status,
		Message:    message,
		ErrorLog:   errorLog,
	}
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
