// Package spotify provides a preview source backed by the Spotify API.
// Albums play the role of packs; each album track's preview_url is its
// preview.
package spotify

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/beatdeck/internal/app/preview"
	"github.com/osa030/beatdeck/internal/domain/track"
)

// pageSize is the maximum album tracks page size.
const pageSize = 50

// Client is a Spotify API client.
type Client struct {
	client     *spotify.Client
	market     string
	maxRetries int
	retryDelay time.Duration
}

// Config represents Spotify client configuration.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Market       string
}

// New creates a new Spotify client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RefreshToken == "" {
		return nil, errors.New("spotify credentials are required")
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithScopes(spotifyauth.ScopeUserReadPrivate),
	)

	// Create token from refresh token
	token := &oauth2.Token{
		RefreshToken: cfg.RefreshToken,
	}

	return newClient(auth.Client(ctx, token), cfg.Market), nil
}

func newClient(httpClient *http.Client, market string, opts ...spotify.ClientOption) *Client {
	if market == "" {
		market = "JP"
	}
	return &Client{
		client:     spotify.New(httpClient, opts...),
		market:     market,
		maxRetries: 3,
		retryDelay: time.Second,
	}
}

// FetchContainer lists the preview URLs of every track on an album.
func (c *Client) FetchContainer(ctx context.Context, container track.Container) ([]preview.Preview, error) {
	if container.Kind != track.KindPackMember {
		return nil, errors.Newf("spotify: unsupported container kind %q", container.Kind)
	}
	albumID := extractAlbumID(container.ID)
	if albumID == "" {
		return nil, errors.New("invalid album ID")
	}

	var previews []preview.Preview
	offset := 0
	for {
		var page *spotify.SimpleTrackPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetAlbumTracks(ctx, spotify.ID(albumID),
				spotify.Limit(pageSize),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "failed to get album tracks")
		}

		for _, t := range page.Tracks {
			if t.ID == "" {
				continue
			}
			previews = append(previews, convertTrack(&t))
		}

		if len(page.Tracks) < pageSize {
			break
		}
		offset += pageSize
	}

	return previews, nil
}

// FetchTrack returns the preview URL of a single track.
func (c *Client) FetchTrack(ctx context.Context, trackID string) (string, error) {
	id := extractTrackID(trackID)

	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to get track")
	}
	if result.PreviewURL == "" {
		return "", errors.Wrapf(preview.ErrNoPreview, "track %s", id)
	}
	return result.PreviewURL, nil
}

// convertTrack converts a Spotify SimpleTrack to a preview entry.
func convertTrack(t *spotify.SimpleTrack) preview.Preview {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	var cover string
	if len(t.Album.Images) > 0 {
		cover = t.Album.Images[0].URL
	}

	return preview.Preview{
		TrackID:    string(t.ID),
		URL:        t.PreviewURL,
		Title:      t.Name,
		ArtistName: strings.Join(artists, ", "),
		CoverURL:   cover,
		Duration:   time.Duration(t.Duration) * time.Millisecond,
	}
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry aborted")
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}

// extractID extracts a resource ID from a Spotify URL or URI of the given kind.
func extractID(input, kind string) string {
	input = strings.TrimSpace(input)
	// Handle Spotify URI format: spotify:<kind>:ID
	if prefix := "spotify:" + kind + ":"; strings.HasPrefix(input, prefix) {
		return strings.TrimPrefix(input, prefix)
	}

	// Handle URL format: https://open.spotify.com/<kind>/ID or https://open.spotify.com/intl-XX/<kind>/ID
	sep := "/" + kind + "/"
	if strings.Contains(input, "open.spotify.com") && strings.Contains(input, sep) {
		parts := strings.Split(input, sep)
		// Remove query parameters and trailing slashes
		id := strings.Split(parts[len(parts)-1], "?")[0]
		return strings.TrimRight(id, "/")
	}

	// Assume it's already an ID
	return input
}

func extractAlbumID(input string) string { return extractID(input, "album") }

func extractTrackID(input string) string { return extractID(input, "track") }
