/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// RoutePatternGetterFunc is a function for getting route pattern from the request (e.g. "/api/throttling/v1/rules").
type RoutePatternGetterFunc func(r *http.Request) string

// WrapResponseWriter is a proxy around http.ResponseWriter that allows to get the response status and size.
type WrapResponseWriter = chimw.WrapResponseWriter

// WrapResponseWriterIfNeeded wraps an http.ResponseWriter if it is not already wrapped.
func WrapResponseWriterIfNeeded(rw http.ResponseWriter, protoMajor int) WrapResponseWriter {
	if wrw, ok := rw.(WrapResponseWriter); ok {
		return wrw
	}
	return chimw.NewWrapResponseWriter(rw, protoMajor)
}

func isExcludedEndpoint(urlPath string, endpoints []string) bool {
	for _, endpoint := range endpoints {
		if urlPath == endpoint {
			return true
		}
	}
	return false
}
