// Package httputil provides JSON response helpers and the HTTP error
// taxonomy shared by all handlers. Error responses are JSON objects with a
// message field and a matching status; internals are never exposed.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
)

// StatusError is an error that knows its HTTP status. Domain packages
// return these so handlers can map failures without switching on types.
type StatusError interface {
	error
	HTTPStatus() int
}

// APIError is a plain status-carrying error.
type APIError struct {
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *APIError) Error() string   { return e.Message }
func (e *APIError) HTTPStatus() int { return e.Status }

// Conflict returns a 409 error.
func Conflict(message string) *APIError {
	return &APIError{Status: http.StatusConflict, Message: message}
}

// Forbidden returns a 403 error.
func Forbidden(message string) *APIError {
	return &APIError{Status: http.StatusForbidden, Message: message}
}

// Unauthorized returns a 401 error.
func Unauthorized(message string) *APIError {
	return &APIError{Status: http.StatusUnauthorized, Message: message}
}

// BadRequest returns a 400 error.
func BadRequest(message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Message: message}
}

// NotFound returns a 404 error.
func NotFound(message string) *APIError {
	return &APIError{Status: http.StatusNotFound, Message: message}
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes an error response. StatusErrors keep their status and
// message; anything else is a 500 with a generic message so internal detail
// never leaks to clients.
func WriteError(w http.ResponseWriter, err error) {
	var se StatusError
	if errors.As(err, &se) {
		WriteJSON(w, se.HTTPStatus(), map[string]string{"message": se.Error()})
		return
	}
	WriteJSON(w, http.StatusInternalServerError, map[string]string{
		"message": "internal server error",
	})
}

// WriteErrorMessage writes a JSON error response with an explicit status.
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, map[string]string{"message": message})
}
