/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/acronis/go-throttlekit/restapi"
)

// RequestBodyLimit is a middleware that limits the request body size.
// A request declaring a larger Content-Length gets 413 without calling the handler.
// Otherwise, reading the body past the limit fails and restapi.DecodeRequestJSON reports it as 413.
func RequestBodyLimit(maxSizeBytes uint64, errDomain string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if r.ContentLength > 0 && uint64(r.ContentLength) > maxSizeBytes {
				restapi.RespondMalformedRequestError(rw, errDomain,
					restapi.NewTooLargeMalformedRequestError(maxSizeBytes), GetLoggerFromContext(r.Context()))
				return
			}
			restapi.SetRequestMaxBodySize(rw, r, maxSizeBytes)
			next.ServeHTTP(rw, r)
		})
	}
}
