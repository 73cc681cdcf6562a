/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"fmt"
	"net/http"
	"strings"
)

// Error is the body of an error response: {"error": {"domain": ..., "code": ..., "message": ..., "context": {...}}}.
// Throttling rejections carry the exceeded rule in the context.
type Error struct {
	Domain  string                 `json:"domain"`
	Code    string                 `json:"code"`
	Message string                 `json:"message,omitempty"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error codes. Codes of other 4xx statuses are derived from the status text, see errorCodeFromStatus.
var (
	ErrCodeInternal         = "internalError"
	ErrCodeNotFound         = "notFound"
	ErrCodeMethodNotAllowed = "methodNotAllowed"
	ErrCodeBadRequest       = "badRequest"
	ErrCodeTooManyRequests  = "tooManyRequests"
)

// Error messages.
var (
	ErrMessageInternal         = "Internal error."
	ErrMessageNotFound         = "Not found."
	ErrMessageMethodNotAllowed = "Method not allowed."
	ErrMessageTooManyRequests  = "Too many requests."
)

// NewError creates a new Error.
func NewError(domain, code, message string) *Error {
	return &Error{Domain: domain, Code: code, Message: message}
}

// NewInternalError creates an Error with the internalError code.
func NewInternalError(domain string) *Error {
	return NewError(domain, ErrCodeInternal, ErrMessageInternal)
}

// AddContext sets the context field and returns the error, so calls may be chained.
func (e *Error) AddContext(field string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = map[string]interface{}{}
	}
	e.Context[field] = value
	return e
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: %s", e.Domain, e.Code)
	}
	return fmt.Sprintf("%s: %s: %s", e.Domain, e.Code, e.Message)
}

// errorCodeFromStatus returns the status text in lower camel case ("Request Entity Too Large" -> "requestEntityTooLarge").
func errorCodeFromStatus(status int) string {
	if status == http.StatusInternalServerError {
		return ErrCodeInternal
	}
	words := strings.Fields(http.StatusText(status))
	for i, word := range words {
		word = strings.ToLower(word)
		if i > 0 && word != "" {
			word = strings.ToUpper(word[:1]) + word[1:]
		}
		words[i] = word
	}
	return strings.Join(words, "")
}
