package server

import (
	"encoding/json"
	"net/http"
)

// HTTPError is an error carrying the status code sent to the client.
type HTTPError struct {
	Code    int
	Message string
}

func (e *HTTPError) Error() string {
	return e.Message
}

func badRequest(msg string) *HTTPError {
	return &HTTPError{Code: http.StatusBadRequest, Message: msg}
}

// JSONResponse writes data as a JSON body with the given status.
func JSONResponse(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// JSONError writes {"error": message}.
func JSONError(w http.ResponseWriter, status int, message string) error {
	return JSONResponse(w, status, map[string]string{
		"error": message,
	})
}

// HandleError maps err to a JSON error response. Errors other than
// *HTTPError become a 500.
func HandleError(w http.ResponseWriter, err error) {
	if httpErr, ok := err.(*HTTPError); ok {
		JSONError(w, httpErr.Code, httpErr.Message)
	} else {
		JSONError(w, http.StatusInternalServerError, "Internal server error")
	}
}
