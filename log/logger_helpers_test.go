/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"io"

	"github.com/ssgreg/logf"
)

type syncAppenderWriter struct {
	appender logf.Appender
}

//nolint:gocritic
func (w syncAppenderWriter) WriteEntry(e logf.Entry) {
	_ = w.appender.Append(e)
	_ = w.appender.Flush()
}

func newTestLogfLogger(cfg *Config, out io.Writer) *logf.Logger {
	return logf.NewLogger(logfLevel(cfg.Level), syncAppenderWriter{newAppender(cfg, out)})
}
