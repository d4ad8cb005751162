// Package lastfm provides a Last.fm "now playing" notifier.
package lastfm

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/beatdeck/internal/domain/track"
)

// Client is a Last.fm API client for authenticated write calls.
type Client struct {
	apiKey     string
	apiSecret  string
	sessionKey string
	baseURL    string
	httpClient *http.Client
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey     string
	APISecret  string
	SessionKey string
}

// Enabled reports whether every credential is present.
func (c Config) Enabled() bool {
	return c.APIKey != "" && c.APISecret != "" && c.SessionKey != ""
}

// NowPlayingResponse represents the response from track.updateNowPlaying.
type NowPlayingResponse struct {
	NowPlaying struct {
		Track struct {
			Text string `json:"#text"`
		} `json:"track"`
		IgnoredMessage struct {
			Code string `json:"code"`
			Text string `json:"#text"`
		} `json:"ignoredMessage"`
	} `json:"nowplaying"`
}

// LastFMError represents an error response from Last.fm API.
type LastFMError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if !cfg.Enabled() {
		return nil, errors.New("last.fm API key, secret and session key are required")
	}

	return &Client{
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		sessionKey: cfg.SessionKey,
		baseURL:    "https://ws.audioscrobbler.com/2.0/",
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// UpdateNowPlaying marks a track as currently playing.
// Reference: https://www.last.fm/api/show/track.updateNowPlaying
func (c *Client) UpdateNowPlaying(ctx context.Context, trackName, artistName string, duration time.Duration) error {
	if trackName == "" || artistName == "" {
		return errors.New("track name and artist name are required")
	}

	params := url.Values{}
	params.Set("method", "track.updateNowPlaying")
	params.Set("api_key", c.apiKey)
	params.Set("sk", c.sessionKey)
	params.Set("artist", artistName)
	params.Set("track", trackName)
	if duration > 0 {
		params.Set("duration", strconv.Itoa(int(duration.Seconds())))
	}
	params.Set("api_sig", sign(params, c.apiSecret))
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(params.Encode()))
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	// Check for Last.fm API errors
	var apiError LastFMError
	if err := json.Unmarshal(body, &apiError); err == nil && apiError.Error != 0 {
		return errors.Errorf("last.fm API error %d: %s", apiError.Error, apiError.Message)
	}

	var response NowPlayingResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	if code := response.NowPlaying.IgnoredMessage.Code; code != "" && code != "0" {
		zlog.Debug().Msgf("lastfm: now playing ignored code=%s: %s", code, response.NowPlaying.IgnoredMessage.Text)
	}

	return nil
}

// TrackStarted reports any started track as now playing.
func (c *Client) TrackStarted(ctx context.Context, t track.Track) error {
	return c.UpdateNowPlaying(ctx, t.Title, t.ArtistName, t.Duration)
}

// ContainerStarted is a no-op; Last.fm has no notion of packs or kits.
func (c *Client) ContainerStarted(context.Context, track.Container) error {
	return nil
}

// sign computes api_sig: md5 of the sorted name/value pairs followed by the
// shared secret. format and callback are excluded.
func sign(params url.Values, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "format" || k == "callback" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(params.Get(k))
	}
	b.WriteString(secret)

	sum := md5.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
