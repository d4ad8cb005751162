package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/creasty/defaults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/beatdeck/internal/infra/config"
	"github.com/osa030/beatdeck/internal/infra/lastfm"
	"github.com/osa030/beatdeck/internal/infra/mpd"
	"github.com/osa030/beatdeck/internal/infra/storage"
	"github.com/osa030/beatdeck/internal/infra/storefront"
)

func defaultConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	require.NoError(t, defaults.Set(cfg))
	cfg.Storefront.BaseURL = "http://shop.example.com/api"
	return cfg
}

func TestDecodeSettings(t *testing.T) {
	tests := []struct {
		name     string
		settings map[string]any
		want     mpd.Config
		wantErr  string
	}{
		{
			name:     "defaults",
			settings: nil,
			want:     mpd.Config{Addr: "localhost:6600"},
		},
		{
			name:     "explicit",
			settings: map[string]any{"addr": "10.0.0.5:6601", "password": "pw"},
			want:     mpd.Config{Addr: "10.0.0.5:6601", Password: "pw"},
		},
		{
			name:     "invalid address",
			settings: map[string]any{"addr": "no-port"},
			wantErr:  "validation failed",
		},
		{
			name:     "wrong type",
			settings: map[string]any{"addr": []string{"x"}},
			wantErr:  "failed to decode settings",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got mpd.Config
			err := decodeSettings(tt.settings, &got)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewOutputFromConfig_Errors(t *testing.T) {
	cfg := defaultConfig(t)

	cfg.Output.Type = "alsa"
	_, err := NewOutputFromConfig(cfg)
	assert.ErrorContains(t, err, "unsupported output type")

	cfg.Output.Type = config.OutputMPD
	cfg.Output.Settings = map[string]any{"addr": "no-port"}
	_, err = NewOutputFromConfig(cfg)
	assert.ErrorContains(t, err, "mpd output")
}

func TestNewFetcherFromConfig_Storefront(t *testing.T) {
	cfg := defaultConfig(t)
	sf, err := storefront.New(storefront.Config{BaseURL: cfg.Storefront.BaseURL})
	require.NoError(t, err)

	fetcher, err := NewFetcherFromConfig(context.Background(), cfg, sf)
	require.NoError(t, err)
	assert.Same(t, sf, fetcher)

	cfg.Preview.Source = "soundcloud"
	_, err = NewFetcherFromConfig(context.Background(), cfg, sf)
	assert.ErrorContains(t, err, "unsupported preview source")
}

func TestNewNotifiersFromConfig(t *testing.T) {
	cfg := defaultConfig(t)
	sf, err := storefront.New(storefront.Config{BaseURL: cfg.Storefront.BaseURL})
	require.NoError(t, err)

	notifiers, err := NewNotifiersFromConfig(cfg, sf)
	require.NoError(t, err)
	require.Len(t, notifiers, 1)

	cfg.LastFm = config.LastFmConfig{APIKey: "k", APISecret: "s", SessionKey: "sk"}
	notifiers, err = NewNotifiersFromConfig(cfg, sf)
	require.NoError(t, err)
	require.Len(t, notifiers, 2)
	assert.IsType(t, &lastfm.Client{}, notifiers[1])
}

func TestNewStoreFromConfig(t *testing.T) {
	tests := []struct {
		driver string
		file   string
	}{
		{storage.DriverFile, "beatdeck_playlist.json"},
		{storage.DriverSQLite, sqliteFile},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			cfg := defaultConfig(t)
			cfg.Playlist.Driver = tt.driver
			cfg.Playlist.Path = t.TempDir()

			store, err := NewStoreFromConfig(cfg)
			require.NoError(t, err)
			defer store.Close()

			require.NoError(t, store.Put(cfg.Playlist.Key, []byte(`[]`)))
			_, err = os.Stat(filepath.Join(cfg.Playlist.Path, tt.file))
			assert.NoError(t, err)
		})
	}
}
