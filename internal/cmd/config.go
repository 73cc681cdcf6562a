/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cmd

import (
	"path/filepath"
	"strings"

	"github.com/acronis/go-throttlekit/config"
	"github.com/acronis/go-throttlekit/httpserver"
	"github.com/acronis/go-throttlekit/log"
	"github.com/acronis/go-throttlekit/profserver"
	"github.com/acronis/go-throttlekit/throttleclient"
	"github.com/acronis/go-throttlekit/throttling"
)

// EnvVarsPrefix is a prefix of environment variables that override the configuration file
// (e.g. THROTTLED_SERVER_ADDRESS, THROTTLED_THROTTLING_DISABLED).
const EnvVarsPrefix = "throttled"

// AppConfig is the configuration of the throttling daemon.
type AppConfig struct {
	Log        *log.Config
	Server     *httpserver.Config
	Throttling *throttling.Config
	ProfServer *profserver.Config

	// ThrottleClient is used by the commands that call a running daemon.
	ThrottleClient *throttleclient.Config

	path string
}

// ThrottlingConfigLoader returns a loader that re-reads the throttling section from the same sources.
func (c *AppConfig) ThrottlingConfigLoader() throttling.ConfigLoader {
	return func() (*throttling.Config, error) {
		appCfg, err := LoadAppConfig(c.path)
		if err != nil {
			return nil, err
		}
		return appCfg.Throttling, nil
	}
}

// LoadAppConfig loads the configuration from the file (YAML, or JSON if the file has the .json extension)
// and environment variables. Only defaults and environment variables are used if path is empty.
func LoadAppConfig(path string) (*AppConfig, error) {
	cfg := &AppConfig{
		Log:        log.NewConfig(""),
		Server:     httpserver.NewConfig(""),
		Throttling: throttling.NewConfig(""),
		ProfServer: profserver.NewConfig(""),

		ThrottleClient: throttleclient.NewConfig(""),

		path: path,
	}
	loader := config.NewDefaultLoader(EnvVarsPrefix)
	if path == "" {
		if err := loader.Load(cfg.Log, cfg.Server, cfg.Throttling, cfg.ProfServer, cfg.ThrottleClient); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	dataType := config.DataTypeYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		dataType = config.DataTypeJSON
	}
	if err := loader.LoadFromFile(path, dataType, cfg.Log, cfg.Server, cfg.Throttling, cfg.ProfServer, cfg.ThrottleClient); err != nil {
		return nil, err
	}
	return cfg, nil
}
