/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttling

import (
	"context"
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/acronis/go-throttlekit/log"
)

// ConfigLoader loads the current throttling section of the application configuration.
type ConfigLoader func() (*Config, error)

// ReloaderOption is an option for Reloader.
type ReloaderOption func(*Reloader)

// WithConfigLoader makes Reloader load the throttling section on every run.
// Then changes of the disabled flag, the default rule, the inline rules and the rules file path
// are applied without restart.
func WithConfigLoader(load ConfigLoader) ReloaderOption {
	return func(r *Reloader) {
		r.loadConfig = load
	}
}

// Reloader re-reads the rules file when its modification time changes and reloads the processor.
// It's supposed to be run periodically (e.g. by service.PeriodicWorker); it is not safe for concurrent use.
type Reloader struct {
	cfg         *Config
	loadConfig  ConfigLoader
	processor   *Processor
	logger      log.FieldLogger
	lastModTime time.Time
}

// NewReloader creates a new Reloader. The passed config and the current state of its rules file
// are considered as already loaded.
func NewReloader(cfg *Config, processor *Processor, logger log.FieldLogger, options ...ReloaderOption) *Reloader {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	r := &Reloader{cfg: cfg, processor: processor, logger: logger}
	for _, opt := range options {
		opt(r)
	}
	if cfg.RulesFile != "" {
		if fi, err := os.Stat(cfg.RulesFile); err == nil {
			r.lastModTime = fi.ModTime()
		}
	}
	return r
}

// Run checks the configuration once. If the rules file or the throttling section has changed,
// the whole configuration is rebuilt and swapped. On error the previous configuration stays in effect.
func (r *Reloader) Run(_ context.Context) error {
	cfg := r.cfg
	if r.loadConfig != nil {
		var err error
		if cfg, err = r.loadConfig(); err != nil {
			return fmt.Errorf("load throttling config: %w", err)
		}
	}
	var modTime time.Time
	if cfg.RulesFile != "" {
		fi, err := os.Stat(cfg.RulesFile)
		if err != nil {
			return fmt.Errorf("stat throttling rules file: %w", err)
		}
		modTime = fi.ModTime()
	}
	if modTime.Equal(r.lastModTime) && sameRulesSource(r.cfg, cfg) {
		return nil
	}
	newCfg, err := LoadConfiguration(cfg)
	if err != nil {
		return fmt.Errorf("reload throttling configuration: %w", err)
	}
	r.processor.Reload(newCfg)
	r.cfg = cfg
	r.lastModTime = modTime
	r.logger.Info("throttling configuration source has changed", log.String("rules_file", cfg.RulesFile))
	return nil
}

// sameRulesSource reports whether both configs produce the same Configuration from the same rules file.
func sameRulesSource(a, b *Config) bool {
	return a.Disabled == b.Disabled &&
		a.RulesFile == b.RulesFile &&
		a.DefaultInterval == b.DefaultInterval &&
		a.DefaultLimit == b.DefaultLimit &&
		slices.Equal(a.Rules, b.Rules)
}
