/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"sync"

	"github.com/acronis/go-throttlekit/log"
)

// LoggingParams stores fields that underlying middlewares and handlers add to the "response completed" message
// of the Logging middleware.
type LoggingParams struct {
	mu     sync.Mutex
	fields []log.Field
}

// ExtendFields extends list of fields that will be logged by the Logging middleware.
func (lp *LoggingParams) ExtendFields(fields ...log.Field) {
	lp.mu.Lock()
	lp.fields = append(lp.fields, fields...)
	lp.mu.Unlock()
}

func (lp *LoggingParams) getFields() []log.Field {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	return append([]log.Field(nil), lp.fields...)
}
