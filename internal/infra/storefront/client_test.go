package storefront

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/beatdeck/internal/app/preview"
	"github.com/osa030/beatdeck/internal/domain/track"
)

func TestNew(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	c, err := New(Config{BaseURL: "https://shop.example.com/api/"})
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example.com/api", c.baseURL)
	assert.Equal(t, 10*time.Second, c.httpClient.Timeout)
}

func TestClient_FetchContainer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/containers/kits/7/previews", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		w.Write([]byte(`[
			{"trackId":"k1","previewUrl":"https://cdn/k1.mp3?sig=1","title":"Kick","artistName":"Maker","durationSeconds":2.5},
			{"trackId":"","previewUrl":"https://cdn/skip.mp3"},
			{"trackId":"k2","previewUrl":"https://cdn/k2.mp3?sig=1","title":"Snare","artistName":"Maker","durationSeconds":1}
		]`))
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "secret"})
	require.NoError(t, err)

	got, err := c.FetchContainer(context.Background(), track.Container{Kind: track.KindKitMember, ID: "7"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, preview.Preview{
		TrackID:    "k1",
		URL:        "https://cdn/k1.mp3?sig=1",
		Title:      "Kick",
		ArtistName: "Maker",
		Duration:   2500 * time.Millisecond,
	}, got[0])
	assert.Equal(t, "k2", got[1].TrackID)
}

func TestClient_FetchTrack(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr error
	}{
		{name: "ok", status: http.StatusOK, body: `{"url":"https://cdn/t.mp3?sig=2"}`, want: "https://cdn/t.mp3?sig=2"},
		{name: "empty url", status: http.StatusOK, body: `{"url":""}`, wantErr: preview.ErrNoPreview},
		{name: "not found", status: http.StatusNotFound, body: `missing`},
		{name: "bad json", status: http.StatusOK, body: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/tracks/t%201/preview", r.URL.EscapedPath())
				assert.Empty(t, r.Header.Get("X-Api-Key"))
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := New(Config{BaseURL: srv.URL})
			require.NoError(t, err)

			got, err := c.FetchTrack(context.Background(), "t 1")
			if tt.want != "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "expired", http.StatusForbidden)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.FetchContainer(context.Background(), track.Container{Kind: track.KindPackMember, ID: "1"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "expired", apiErr.Message)
}

func TestClient_Bumps(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.TrackStarted(ctx, track.Standalone("t1", "T", "A")))
	require.NoError(t, c.ContainerStarted(ctx, track.Container{Kind: track.KindPackMember, ID: "42"}))
	require.NoError(t, c.ContainerStarted(ctx, track.Container{Kind: track.KindKitMember, ID: "7"}))

	assert.Equal(t, []string{"/tracks/t1/play", "/packs/42/play", "/kits/7/play"}, paths)
}
