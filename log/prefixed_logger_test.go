/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrefixedLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewDefaultConfig()
	cfg.Level = LevelDebug
	logger := NewPrefixedLogger(&LogfAdapter{Logger: newTestLogfLogger(cfg, &buf)}, "[reload] ")

	logger.Infof("loaded %d rules", 4)
	logger.With(String("file", "rules.properties")).Warn("file is missing")
	logger.WithLevel(LevelError).Debug("hidden")

	out := buf.String()
	require.Contains(t, out, `"msg":"[reload] loaded 4 rules"`)
	require.Contains(t, out, `"msg":"[reload] file is missing"`)
	require.Contains(t, out, `"file":"rules.properties"`)
	require.NotContains(t, out, "hidden")
}
