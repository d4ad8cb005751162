// Package storefront provides a client for the storefront preview and
// play-count endpoints.
package storefront

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/beatdeck/internal/app/preview"
	"github.com/osa030/beatdeck/internal/domain/track"
)

// Client talks to the storefront backend.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Config represents storefront client configuration.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// containerPreview is one element of the container previews response.
type containerPreview struct {
	TrackID         string  `json:"trackId"`
	PreviewURL      string  `json:"previewUrl"`
	Title           string  `json:"title"`
	ArtistName      string  `json:"artistName"`
	CoverURL        string  `json:"coverUrl"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// trackPreviewResponse is the single-track preview response.
type trackPreviewResponse struct {
	URL string `json:"url"`
}

// APIError represents a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return "storefront API error " + http.StatusText(e.StatusCode)
	}
	return "storefront API error " + http.StatusText(e.StatusCode) + ": " + e.Message
}

// New creates a new storefront client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("storefront base URL is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, errors.Wrap(err, "invalid storefront base URL")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// FetchContainer lists the previews of every track in a pack or kit.
func (c *Client) FetchContainer(ctx context.Context, container track.Container) ([]preview.Preview, error) {
	path := "/containers/" + string(container.Kind) + "s/" + url.PathEscape(container.ID) + "/previews"

	var items []containerPreview
	if err := c.do(ctx, http.MethodGet, path, &items); err != nil {
		return nil, errors.Wrapf(err, "failed to fetch previews for %s", container.Key())
	}

	previews := make([]preview.Preview, 0, len(items))
	for _, it := range items {
		if it.TrackID == "" {
			continue
		}
		previews = append(previews, preview.Preview{
			TrackID:    it.TrackID,
			URL:        it.PreviewURL,
			Title:      it.Title,
			ArtistName: it.ArtistName,
			CoverURL:   it.CoverURL,
			Duration:   time.Duration(it.DurationSeconds * float64(time.Second)),
		})
	}
	return previews, nil
}

// FetchTrack returns a signed preview URL for a standalone track.
func (c *Client) FetchTrack(ctx context.Context, trackID string) (string, error) {
	var resp trackPreviewResponse
	if err := c.do(ctx, http.MethodGet, "/tracks/"+url.PathEscape(trackID)+"/preview", &resp); err != nil {
		return "", errors.Wrapf(err, "failed to fetch preview for track %s", trackID)
	}
	if resp.URL == "" {
		return "", errors.Wrapf(preview.ErrNoPreview, "track %s", trackID)
	}
	return resp.URL, nil
}

// TrackStarted records a play of a standalone track.
func (c *Client) TrackStarted(ctx context.Context, t track.Track) error {
	if err := c.do(ctx, http.MethodPost, "/tracks/"+url.PathEscape(t.ID)+"/play", nil); err != nil {
		return errors.Wrapf(err, "failed to bump track %s", t.ID)
	}
	return nil
}

// ContainerStarted records a play of a pack or kit.
func (c *Client) ContainerStarted(ctx context.Context, container track.Container) error {
	path := "/" + string(container.Kind) + "s/" + url.PathEscape(container.ID) + "/play"
	if err := c.do(ctx, http.MethodPost, path, nil); err != nil {
		return errors.Wrapf(err, "failed to bump %s", container.Key())
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	zlog.Debug().Msgf("storefront: %s %s status=%d", method, path, resp.StatusCode)

	if out == nil || len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}
