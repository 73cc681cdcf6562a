/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"code.cloudfoundry.org/bytefmt"
)

// MalformedRequestError is an error that occurs in case of incorrect request.
type MalformedRequestError struct {
	HTTPStatusCode int
	Message        string
}

// Error returns a string representation of MalformedRequestError.
func (e *MalformedRequestError) Error() string {
	return e.Message
}

func newBadRequestError(format string, args ...interface{}) *MalformedRequestError {
	return &MalformedRequestError{http.StatusBadRequest, fmt.Sprintf(format, args...)}
}

// NewTooLargeMalformedRequestError creates a new MalformedRequestError for case when request body is too large.
func NewTooLargeMalformedRequestError(maxSizeBytes uint64) *MalformedRequestError {
	return &MalformedRequestError{
		http.StatusRequestEntityTooLarge,
		fmt.Sprintf("Request body must not be larger than %s.", bytefmt.ByteSize(maxSizeBytes)),
	}
}

// SetRequestMaxBodySize wraps request body with a reader which limits the number of bytes to read.
// DecodeRequestJSON reports a too large body as MalformedRequestError with 413 status code.
func SetRequestMaxBodySize(rw http.ResponseWriter, r *http.Request, maxSizeBytes uint64) {
	r.Body = http.MaxBytesReader(rw, r.Body, int64(maxSizeBytes)) //nolint:gosec // maxSizeBytes is a reasonable value
}

// DecodeRequestJSON reads request body and decodes it as a single JSON object.
// Unknown fields are rejected. All client mistakes are returned as *MalformedRequestError.
func DecodeRequestJSON(r *http.Request, dst interface{}) error {
	if reqContentType := r.Header.Get("Content-Type"); reqContentType != "" {
		contentType, _, err := mime.ParseMediaType(reqContentType)
		if err != nil {
			return &MalformedRequestError{
				http.StatusUnsupportedMediaType, fmt.Sprintf("Failed to parse Content-Type header: %s.", err)}
		}
		if contentType != ContentTypeAppJSON {
			return &MalformedRequestError{
				http.StatusUnsupportedMediaType, fmt.Sprintf("Content-Type %q is not supported.", contentType)}
		}
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return convertDecodeError(err)
	}
	if decoder.More() {
		return newBadRequestError("Request body must only contain a single JSON object.")
	}
	return nil
}

func convertDecodeError(err error) error {
	var syntaxErr *json.SyntaxError
	var unmarshalTypeErr *json.UnmarshalTypeError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.Is(err, io.EOF):
		return newBadRequestError("Request body must not be empty.")
	case errors.Is(err, io.ErrUnexpectedEOF):
		return newBadRequestError("Request body contains badly-formed JSON.")
	case errors.As(err, &syntaxErr):
		return newBadRequestError("Request body contains badly-formed JSON (at position %d).", syntaxErr.Offset)
	case errors.As(err, &unmarshalTypeErr):
		if unmarshalTypeErr.Field != "" {
			return newBadRequestError("Request body contains an invalid value for the %q field (at position %d).",
				unmarshalTypeErr.Field, unmarshalTypeErr.Offset)
		}
		return newBadRequestError("Request body contains an invalid value of type %q for the field of type %s.",
			unmarshalTypeErr.Value, unmarshalTypeErr.Type.String())
	case errors.As(err, &maxBytesErr):
		return NewTooLargeMalformedRequestError(uint64(maxBytesErr.Limit)) //nolint:gosec // limit is positive
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		return newBadRequestError("Request body contains unknown field %s.", strings.TrimPrefix(err.Error(), "json: unknown field "))
	default:
		return err
	}
}
