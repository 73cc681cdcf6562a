/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/acronis/go-throttlekit/log"
)

// ContentTypeAppJSON represents MIME media type for JSON.
const ContentTypeAppJSON = "application/json"

// ErrorResponseData is the body of an error response.
type ErrorResponseData struct {
	Err *Error `json:"error"`
}

func (e *ErrorResponseData) Error() string {
	return fmt.Sprintf("error response: %v", e.Err)
}

// RespondJSON writes data as JSON with 200 status.
func RespondJSON(rw http.ResponseWriter, respData interface{}, logger log.FieldLogger) {
	RespondCodeAndJSON(rw, http.StatusOK, respData, logger)
}

// RespondCodeAndJSON writes data as JSON with the status. Nil data means an empty body.
// Content-Type is set to application/json unless the handler has already set it.
func RespondCodeAndJSON(rw http.ResponseWriter, statusCode int, respData interface{}, logger log.FieldLogger) {
	if respData == nil {
		rw.WriteHeader(statusCode)
		return
	}

	body, err := marshalJSON(respData)
	if err != nil {
		logError(logger, "error while marshaling json for response body", err)
		rw.WriteHeader(http.StatusInternalServerError)
		return
	}

	if rw.Header().Get("Content-Type") == "" {
		rw.Header().Set("Content-Type", ContentTypeAppJSON)
	}
	rw.WriteHeader(statusCode)
	if _, err = rw.Write(body); err != nil {
		logError(logger, "error while writing response body", err)
	}
}

// RespondError writes {"error": {...}} with the status. The error is logged and counted in metrics.
func RespondError(rw http.ResponseWriter, httpStatusCode int, err *Error, logger log.FieldLogger) {
	if logger != nil {
		logger.Error("error in response", errorLogFields(err)...)
	}
	incResponseErrors(err.Domain, err.Code)
	RespondCodeAndJSON(rw, httpStatusCode, ErrorResponseData{Err: err}, logger)
}

// RespondInternalError writes the internalError with 500 status.
func RespondInternalError(rw http.ResponseWriter, domain string, logger log.FieldLogger) {
	RespondError(rw, http.StatusInternalServerError, NewInternalError(domain), logger)
}

// RespondMalformedRequestError writes reqErr with its status; the error code is derived from the status.
func RespondMalformedRequestError(rw http.ResponseWriter, domain string, reqErr *MalformedRequestError, logger log.FieldLogger) {
	RespondError(rw, reqErr.HTTPStatusCode,
		NewError(domain, errorCodeFromStatus(reqErr.HTTPStatusCode), reqErr.Message), logger)
}

// RespondMalformedRequestOrInternalError responds with *MalformedRequestError from the err chain if there is one,
// and with the internalError otherwise.
func RespondMalformedRequestOrInternalError(rw http.ResponseWriter, domain string, err error, logger log.FieldLogger) {
	var reqErr *MalformedRequestError
	if errors.As(err, &reqErr) {
		RespondMalformedRequestError(rw, domain, reqErr, logger)
		return
	}
	logError(logger, "request handling failed", err)
	RespondInternalError(rw, domain, logger)
}

// marshalJSON keeps "<", ">" and "&" as is, scope names may contain them.
func marshalJSON(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func errorLogFields(err *Error) []log.Field {
	fields := []log.Field{log.String("error_code", err.Code), log.String("error_message", err.Message)}
	if len(err.Context) == 0 {
		return fields
	}
	ctxLines := make([]string, 0, len(err.Context))
	for k, v := range err.Context {
		ctxLines = append(ctxLines, fmt.Sprintf("%s: %v", k, v))
	}
	sort.Strings(ctxLines)
	return append(fields, log.Strings("error_context", ctxLines))
}

func logError(logger log.FieldLogger, msg string, err error) {
	if logger != nil {
		logger.Error(msg, log.Error(err))
	}
}
