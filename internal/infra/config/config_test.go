package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg := Config{
		Storefront: StorefrontConfig{BaseURL: "https://shop.example.com/api"},
	}
	require.NoError(t, defaults.Set(&cfg))
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing storefront base url",
			mutate:  func(c *Config) { c.Storefront.BaseURL = "" },
			wantErr: true,
			errMsg:  "BaseURL",
		},
		{
			name:    "unknown preview source",
			mutate:  func(c *Config) { c.Preview.Source = "soundcloud" },
			wantErr: true,
			errMsg:  "Source",
		},
		{
			name:    "unknown output type",
			mutate:  func(c *Config) { c.Output.Type = "alsa" },
			wantErr: true,
			errMsg:  "Type",
		},
		{
			name:    "unknown playlist driver",
			mutate:  func(c *Config) { c.Playlist.Driver = "redis" },
			wantErr: true,
			errMsg:  "Driver",
		},
		{
			name:    "settle delay too long",
			mutate:  func(c *Config) { c.Playback.SettleDelayMs = 10000 },
			wantErr: true,
			errMsg:  "SettleDelayMs",
		},
		{
			name: "invalid market length",
			mutate: func(c *Config) {
				c.Spotify.Market = "JAPAN"
			},
			wantErr: true,
			errMsg:  "Market",
		},
		{
			name:    "spotify source without credentials",
			mutate:  func(c *Config) { c.Preview.Source = SourceSpotify },
			wantErr: true,
			errMsg:  "spotify preview source",
		},
		{
			name: "spotify source with credentials",
			mutate: func(c *Config) {
				c.Preview.Source = SourceSpotify
				c.Spotify = SpotifyConfig{ClientID: "id", ClientSecret: "secret", RefreshToken: "rt", Market: "US"}
			},
			wantErr: false,
		},
		{
			name:    "partial lastfm credentials",
			mutate:  func(c *Config) { c.LastFm.APIKey = "key" },
			wantErr: true,
			errMsg:  "lastfm",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)

			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err, "expected validation to fail")
				assert.Contains(t, err.Error(), tt.errMsg,
					"error message should mention the problematic field")
			} else {
				assert.NoError(t, err, "expected validation to pass")
			}
		})
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`
storefront:
  base_url: https://shop.example.com/api
output:
  type: mpd
  settings:
    addr: 127.0.0.1:6600
`))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, SourceStorefront, cfg.Preview.Source)
	assert.Equal(t, 15*time.Minute, cfg.PreviewTTL())
	assert.Equal(t, 10*time.Second, cfg.StorefrontTimeout())
	assert.Equal(t, 2000, cfg.Playback.PreviousThresholdMs)
	assert.Equal(t, 500, cfg.Playback.ProgressIntervalMs)
	assert.Equal(t, "file", cfg.Playlist.Driver)
	assert.Equal(t, "beatdeck:playlist", cfg.Playlist.Key)
	assert.Equal(t, "127.0.0.1:6600", cfg.Output.Settings["addr"])
	assert.False(t, cfg.LastFm.Enabled())
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("storefront: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = Parse([]byte("server:\n  addr: :9000\n"))
	assert.ErrorContains(t, err, "config validation failed")
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api:
  token: from-file
storefront:
  base_url: https://shop.example.com/api
  api_key: from-file
`), 0o600))

	t.Setenv("API_TOKEN", "from-env")
	t.Setenv("STOREFRONT_API_KEY", "key-from-env")
	t.Setenv("LASTFM_API_KEY", "k")
	t.Setenv("LASTFM_API_SECRET", "s")
	t.Setenv("LASTFM_SESSION_KEY", "sk")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.API.Token)
	assert.Equal(t, "key-from-env", cfg.Storefront.APIKey)
	assert.True(t, cfg.LastFm.Enabled())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}
