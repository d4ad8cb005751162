package session

import (
	"context"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/beatdeck/internal/app/bump"
	"github.com/osa030/beatdeck/internal/app/playback"
	"github.com/osa030/beatdeck/internal/app/preview"
	"github.com/osa030/beatdeck/internal/infra/config"
	"github.com/osa030/beatdeck/internal/infra/lastfm"
	"github.com/osa030/beatdeck/internal/infra/mpd"
	"github.com/osa030/beatdeck/internal/infra/speaker"
	"github.com/osa030/beatdeck/internal/infra/spotify"
	"github.com/osa030/beatdeck/internal/infra/storage"
	"github.com/osa030/beatdeck/internal/infra/storefront"
)

// sqliteFile is the database name under playlist.path for the sqlite driver.
const sqliteFile = "beatdeck.db"

// Output is a playback output that holds resources.
type Output interface {
	playback.Output
	Close() error
}

// decodeSettings decodes free-form settings into cfg, then applies defaults
// and validation.
func decodeSettings(settings map[string]any, cfg any) error {
	if err := mapstructure.Decode(settings, cfg); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(cfg); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}

// NewOutputFromConfig creates the audio output named by cfg.Output.Type.
func NewOutputFromConfig(cfg *config.Config) (Output, error) {
	zlog.Debug().Msgf("creating output: type=%s settings=%+v", cfg.Output.Type, cfg.Output.Settings)

	switch cfg.Output.Type {
	case config.OutputMPD:
		var c mpd.Config
		if err := decodeSettings(cfg.Output.Settings, &c); err != nil {
			return nil, errors.Wrap(err, "mpd output")
		}
		out, err := mpd.New(c)
		if err != nil {
			return nil, err
		}
		return out, nil

	case config.OutputSpeaker:
		var c speaker.Config
		if err := decodeSettings(cfg.Output.Settings, &c); err != nil {
			return nil, errors.Wrap(err, "speaker output")
		}
		out, err := speaker.New(c)
		if err != nil {
			return nil, err
		}
		return out, nil

	default:
		return nil, errors.Newf("unsupported output type: %s", cfg.Output.Type)
	}
}

// NewFetcherFromConfig creates the preview source named by cfg.Preview.Source.
func NewFetcherFromConfig(ctx context.Context, cfg *config.Config, sf *storefront.Client) (preview.Fetcher, error) {
	switch cfg.Preview.Source {
	case config.SourceStorefront, "":
		return sf, nil

	case config.SourceSpotify:
		client, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create spotify client")
		}
		return client, nil

	default:
		return nil, errors.Newf("unsupported preview source: %s", cfg.Preview.Source)
	}
}

// NewNotifiersFromConfig returns the storefront notifier plus Last.fm when
// configured.
func NewNotifiersFromConfig(cfg *config.Config, sf *storefront.Client) ([]bump.Notifier, error) {
	notifiers := []bump.Notifier{sf}

	if cfg.LastFm.Enabled() {
		client, err := lastfm.New(lastfm.Config{
			APIKey:     cfg.LastFm.APIKey,
			APISecret:  cfg.LastFm.APISecret,
			SessionKey: cfg.LastFm.SessionKey,
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to create last.fm client")
		}
		notifiers = append(notifiers, client)
		zlog.Info().Msg("registered notifier: lastfm")
	}

	return notifiers, nil
}

// NewStoreFromConfig opens the playlist storage.
func NewStoreFromConfig(cfg *config.Config) (storage.Store, error) {
	path := cfg.Playlist.Path
	if cfg.Playlist.Driver == storage.DriverSQLite {
		path = filepath.Join(path, sqliteFile)
	}
	return storage.Open(cfg.Playlist.Driver, path)
}
