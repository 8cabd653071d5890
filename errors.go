package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
)

// Store-level errors.
var (
	ErrDuplicateEmail  = errors.New("email already exists")
	ErrDuplicateSecret = errors.New("token secret already exists")
)

// Service-level errors.
var (
	ErrInvalidCredentials      = errors.New("invalid email or password")
	ErrInvalidOrExpiredToken   = errors.New("invalid or expired refresh token")
	ErrInvalidGoogleCredential = errors.New("invalid google credential")
)

// ValidationError accumulates field-level messages in the shape the API
// returns them. Field insertion order is preserved so First is deterministic.
type ValidationError struct {
	fields []string
	Errors map[string][]string
}

func newValidationError() *ValidationError {
	return &ValidationError{Errors: map[string][]string{}}
}

func (e *ValidationError) add(field, message string) {
	if _, ok := e.Errors[field]; !ok {
		e.fields = append(e.fields, field)
	}
	e.Errors[field] = append(e.Errors[field], message)
}

func (e *ValidationError) ok() bool { return len(e.fields) == 0 }

// First returns the first message of the first failing field.
func (e *ValidationError) First() string {
	if len(e.fields) == 0 {
		return ""
	}
	return e.Errors[e.fields[0]][0]
}

func (e *ValidationError) Error() string { return e.First() }

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write json: %v", err)
	}
}

// writeError writes the generic failure envelope.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

// writeValidationError writes the field-level failure envelope.
func writeValidationError(w http.ResponseWriter, status int, ve *ValidationError) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"message": ve.First(),
		"errors":  ve.Errors,
	})
}

// writeInternalError logs the raw error and answers with a sanitized message.
// Store and crypto failures must never leak to clients.
func writeInternalError(w http.ResponseWriter, message string, err error) {
	log.Printf("internal error: %v", err)
	writeError(w, http.StatusInternalServerError, message)
}
