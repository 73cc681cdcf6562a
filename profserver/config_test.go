/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package profserver

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-throttlekit/config"
)

func TestConfig_Set(t *testing.T) {
	tests := []struct {
		name    string
		cfgData string
		wantCfg *Config
		wantErr string
	}{
		{
			name:    "defaults",
			cfgData: "",
			wantCfg: &Config{Enabled: false, Address: defaultAddress},
		},
		{
			name:    "enabled",
			cfgData: "profServer:\n  enabled: true\n  address: 0.0.0.0:6060\n",
			wantCfg: &Config{Enabled: true, Address: "0.0.0.0:6060"},
		},
		{
			name:    "enabled without address",
			cfgData: "profServer:\n  enabled: true\n  address: \"\"\n",
			wantErr: "profServer.address: must be set when profiling server is enabled",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig("")
			err := config.NewLoader(config.NewViperAdapter()).LoadFromReader(
				bytes.NewBufferString(tt.cfgData), config.DataTypeYAML, cfg)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantCfg.Enabled, cfg.Enabled)
			require.Equal(t, tt.wantCfg.Address, cfg.Address)
			require.Equal(t, "profServer", cfg.KeyPrefix())
		})
	}
}
