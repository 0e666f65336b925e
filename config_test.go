package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const minimalConfig = `
feed:
  sources:
    - region: Rapid Bus KL
      endpoints: ["prasarana?category=rapid-bus-kl"]
    - region: Penang
      endpoints: ["prasarana?category=rapid-bus-penang"]
`

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "live_buses", cfg.Store.Table)
	assert.Equal(t, "transit.db", cfg.Store.Path)
	assert.Equal(t, int64(16<<20), cfg.Feed.MaxBodyBytes)
	assert.Equal(t, 3600*time.Second, cfg.Freshness.MaxAge)
	assert.Equal(t, 300*time.Second, cfg.Freshness.FutureTolerance)
	assert.Equal(t, DefaultFreshnessWindow, cfg.Freshness.Window())
	assert.Equal(t, 20*time.Second, cfg.Poll.Interval)
	assert.True(t, cfg.Poll.Enabled)
	assert.Empty(t, cfg.Redis.Addr)
	assert.Equal(t, "Asia/Kuala_Lumpur", cfg.Display.Timezone)
	assert.Equal(t, "Rapid Bus KL", cfg.Display.PrimaryRegion)

	require.Len(t, cfg.Feed.Sources, 2)
	assert.Equal(t, formatGTFSRT, cfg.Feed.Sources[0].Format)
	assert.Equal(t, []string{"prasarana?category=rapid-bus-penang"}, cfg.Feed.Sources[1].Endpoints)
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
feed:
  base_url: http://feeds.local/
  max_body_bytes: 1024
  sources:
    - region: Oslo
      endpoints: [vm]
      format: siri_json
store:
  table: positions
poll:
  interval: 45s
redis:
  addr: localhost:6379
display:
  timezone: Europe/Oslo
  primary_region: Oslo
`)
	t.Setenv("TRANSIT_SERVER_PORT", "9191")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "http://feeds.local/", cfg.Feed.BaseURL)
	assert.Equal(t, int64(1024), cfg.Feed.MaxBodyBytes)
	assert.Equal(t, formatSiriJSON, cfg.Feed.Sources[0].Format)
	assert.Equal(t, "positions", cfg.Store.Table)
	assert.Equal(t, 45*time.Second, cfg.Poll.Interval)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no sources", `store: {table: live_buses}`},
		{"bad table name", minimalConfig + "store:\n  table: \"live buses; DROP\"\n"},
		{"unknown format", "feed:\n  sources:\n    - region: A\n      endpoints: [a]\n      format: csv\n"},
		{"duplicate region", "feed:\n  sources:\n    - region: A\n      endpoints: [a]\n    - region: A\n      endpoints: [b]\n"},
		{"empty endpoints", "feed:\n  sources:\n    - region: A\n      endpoints: []\n"},
		{"poll too fast", minimalConfig + "poll:\n  interval: 100ms\n"},
		{"bad timezone", minimalConfig + "display:\n  timezone: Mars/Olympus\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}
