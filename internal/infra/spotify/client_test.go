package spotify

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"

	"github.com/osa030/beatdeck/internal/app/preview"
	"github.com/osa030/beatdeck/internal/domain/track"
)

func TestExtractAlbumID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Spotify URI format",
			input:    "spotify:album:4aawyAB9vmqN3uQ7FjRGTy",
			expected: "4aawyAB9vmqN3uQ7FjRGTy",
		},
		{
			name:     "Spotify URL format",
			input:    "https://open.spotify.com/album/4aawyAB9vmqN3uQ7FjRGTy",
			expected: "4aawyAB9vmqN3uQ7FjRGTy",
		},
		{
			name:     "Spotify URL with query params",
			input:    "https://open.spotify.com/album/4aawyAB9vmqN3uQ7FjRGTy?si=abc123",
			expected: "4aawyAB9vmqN3uQ7FjRGTy",
		},
		{
			name:     "Localised URL with trailing slash",
			input:    "https://open.spotify.com/intl-ja/album/abc123/",
			expected: "abc123",
		},
		{
			name:     "Plain album ID",
			input:    "4aawyAB9vmqN3uQ7FjRGTy",
			expected: "4aawyAB9vmqN3uQ7FjRGTy",
		},
		{
			name:     "Empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "Track URI is not stripped",
			input:    "spotify:track:abc",
			expected: "spotify:track:abc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := extractAlbumID(tt.input)
			assert.Equal(t, tt.expected, result,
				"extractAlbumID(%s) should return %s", tt.input, tt.expected)
		})
	}
}

func TestExtractTrackID(t *testing.T) {
	assert.Equal(t, "abc", extractTrackID("spotify:track:abc"))
	assert.Equal(t, "abc", extractTrackID("https://open.spotify.com/track/abc?si=x"))
	assert.Equal(t, "abc", extractTrackID(" abc "))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: false,
		},
		{
			name:     "rate limit error with 429",
			err:      errors.New("Error 429: rate limit exceeded"),
			expected: true,
		},
		{
			name:     "server error 500",
			err:      errors.New("Error 500: internal server error"),
			expected: true,
		},
		{
			name:     "server error 503",
			err:      errors.New("503 Service Unavailable"),
			expected: true,
		},
		{
			name:     "client error 400",
			err:      errors.New("400 Bad Request"),
			expected: false,
		},
		{
			name:     "not found error",
			err:      errors.New("404 not found"),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := isRetryable(tt.err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func testClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c := newClient(srv.Client(), "US", spotify.WithBaseURL(srv.URL+"/"))
	c.retryDelay = time.Millisecond
	return c
}

func TestClient_FetchContainer(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/albums/alb1/tracks", r.URL.Path)
		assert.Equal(t, "US", r.URL.Query().Get("market"))

		if r.URL.Query().Get("offset") == "0" {
			items := make([]string, 0, pageSize)
			for i := 0; i < pageSize; i++ {
				items = append(items, fmt.Sprintf(`{"id":"t%d","name":"Song %d","preview_url":"https://p.scdn.co/mp3-preview/%d","duration_ms":30000,"artists":[{"name":"A"},{"name":"B"}]}`, i, i, i))
			}
			fmt.Fprintf(w, `{"items":[%s],"total":%d}`, strings.Join(items, ","), pageSize+1)
			return
		}
		fmt.Fprint(w, `{"items":[{"id":"last","name":"Last","preview_url":"","duration_ms":1000,"artists":[]}],"total":51}`)
	})

	got, err := c.FetchContainer(context.Background(), track.Container{Kind: track.KindPackMember, ID: "spotify:album:alb1"})
	require.NoError(t, err)
	require.Len(t, got, pageSize+1)
	assert.Equal(t, preview.Preview{
		TrackID:    "t0",
		URL:        "https://p.scdn.co/mp3-preview/0",
		Title:      "Song 0",
		ArtistName: "A, B",
		Duration:   30 * time.Second,
	}, got[0])
	assert.Equal(t, "last", got[pageSize].TrackID)
	assert.Empty(t, got[pageSize].URL)
}

func TestClient_FetchContainer_RejectsKits(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := c.FetchContainer(context.Background(), track.Container{Kind: track.KindKitMember, ID: "1"})
	assert.Error(t, err)
}

func TestClient_FetchTrack(t *testing.T) {
	c := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tracks/withpreview":
			fmt.Fprint(w, `{"id":"withpreview","name":"x","preview_url":"https://p.scdn.co/mp3-preview/x"}`)
		case "/tracks/nopreview":
			fmt.Fprint(w, `{"id":"nopreview","name":"y","preview_url":null}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"error":{"status":404,"message":"non existing id"}}`)
		}
	})

	url, err := c.FetchTrack(context.Background(), "https://open.spotify.com/track/withpreview")
	require.NoError(t, err)
	assert.Equal(t, "https://p.scdn.co/mp3-preview/x", url)

	_, err = c.FetchTrack(context.Background(), "nopreview")
	assert.ErrorIs(t, err, preview.ErrNoPreview)

	_, err = c.FetchTrack(context.Background(), "missing")
	assert.Error(t, err)
}

func TestRetry(t *testing.T) {
	c := &Client{maxRetries: 3, retryDelay: time.Millisecond}

	calls := 0
	err := c.retry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("503 Service Unavailable")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = c.retry(context.Background(), func() error {
		calls++
		return errors.New("400 Bad Request")
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = c.retry(ctx, func() error { return errors.New("429") })
	assert.ErrorIs(t, err, context.Canceled)
}
