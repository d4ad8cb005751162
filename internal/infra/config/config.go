// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Preview sources.
const (
	SourceStorefront = "storefront"
	SourceSpotify    = "spotify"
)

// Output types.
const (
	OutputMPD     = "mpd"
	OutputSpeaker = "speaker"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	API        APIConfig        `yaml:"api"`
	Storefront StorefrontConfig `yaml:"storefront"`
	Preview    PreviewConfig    `yaml:"preview"`
	Spotify    SpotifyConfig    `yaml:"spotify"`
	Playback   PlaybackConfig   `yaml:"playback"`
	Output     OutputConfig     `yaml:"output"`
	Playlist   PlaylistConfig   `yaml:"playlist"`
	LastFm     LastFmConfig     `yaml:"lastfm"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr  string      `yaml:"addr" default:":8080"`
	Hooks HooksConfig `yaml:"hooks"`
}

// HooksConfig represents lifecycle hooks configuration.
type HooksConfig struct {
	OnStarted []string `yaml:"on_started"`
	OnStopped []string `yaml:"on_stopped"`
}

// APIConfig represents the control API configuration.
// An empty token disables authentication.
type APIConfig struct {
	Token string `yaml:"token"`
}

// StorefrontConfig represents the storefront backend configuration.
type StorefrontConfig struct {
	BaseURL   string `yaml:"base_url" validate:"required,url"`
	APIKey    string `yaml:"api_key"`
	TimeoutMs int    `yaml:"timeout_ms" default:"10000" validate:"gte=100,lte=60000"`
}

// PreviewConfig represents preview resolution configuration.
type PreviewConfig struct {
	Source string `yaml:"source" default:"storefront" validate:"oneof=storefront spotify"`
	TTLSec int    `yaml:"ttl_sec" default:"900" validate:"gte=1"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	SettleDelayMs       int  `yaml:"settle_delay_ms" default:"50" validate:"gte=0,lte=5000"`
	ProgressIntervalMs  int  `yaml:"progress_interval_ms" default:"500" validate:"gte=50,lte=10000"`
	PreviousThresholdMs int  `yaml:"previous_threshold_ms" default:"2000" validate:"gte=0,lte=60000"`
	LoadTimeoutMs       int  `yaml:"load_timeout_ms" default:"15000" validate:"gte=100,lte=120000"`
	PrefetchNext        bool `yaml:"prefetch_next"`
}

// OutputConfig represents the audio output backend configuration.
type OutputConfig struct {
	Type     string         `yaml:"type" default:"mpd" validate:"oneof=mpd speaker"`
	Settings map[string]any `yaml:"settings"`
}

// PlaylistConfig represents persistent playlist storage.
type PlaylistConfig struct {
	Driver string `yaml:"driver" default:"file" validate:"oneof=file sqlite"`
	Path   string `yaml:"path" default:"data" validate:"required"`
	Key    string `yaml:"key" default:"beatdeck:playlist" validate:"required"`
}

// LastFmConfig represents the optional Last.fm now-playing notifier.
type LastFmConfig struct {
	APIKey     string `yaml:"api_key"`
	APISecret  string `yaml:"api_secret"`
	SessionKey string `yaml:"session_key"`
}

// Enabled reports whether every Last.fm credential is present.
func (c LastFmConfig) Enabled() bool {
	return c.APIKey != "" && c.APISecret != "" && c.SessionKey != ""
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	overrides := []struct {
		env    string
		target *string
	}{
		{"STOREFRONT_API_KEY", &c.Storefront.APIKey},
		{"API_TOKEN", &c.API.Token},
		{"SPOTIFY_CLIENT_ID", &c.Spotify.ClientID},
		{"SPOTIFY_CLIENT_SECRET", &c.Spotify.ClientSecret},
		{"SPOTIFY_REFRESH_TOKEN", &c.Spotify.RefreshToken},
		{"LASTFM_API_KEY", &c.LastFm.APIKey},
		{"LASTFM_API_SECRET", &c.LastFm.APISecret},
		{"LASTFM_SESSION_KEY", &c.LastFm.SessionKey},
	}
	for _, o := range overrides {
		if v := os.Getenv(o.env); v != "" {
			*o.target = v
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Preview.Source == SourceSpotify {
		if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" || c.Spotify.RefreshToken == "" {
			return errors.New("spotify preview source requires client_id, client_secret and refresh_token")
		}
	}

	// Partial Last.fm credentials are almost always a typo.
	l := c.LastFm
	if !l.Enabled() && (l.APIKey != "" || l.APISecret != "" || l.SessionKey != "") {
		return errors.New("lastfm requires api_key, api_secret and session_key together")
	}

	return nil
}

// PreviewTTL returns the preview cache lifetime.
func (c *Config) PreviewTTL() time.Duration {
	return time.Duration(c.Preview.TTLSec) * time.Second
}

// StorefrontTimeout returns the storefront HTTP timeout.
func (c *Config) StorefrontTimeout() time.Duration {
	return time.Duration(c.Storefront.TimeoutMs) * time.Millisecond
}
