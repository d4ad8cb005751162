// Package speaker provides a playback output that decodes MP3 previews and
// plays them on the local sound card.
package speaker

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrAudioUnavailable is returned by New in builds without audio support.
var ErrAudioUnavailable = errors.New("audio output is not available in this build")

// Config holds speaker output settings.
type Config struct {
	SampleRate     int   `mapstructure:"sample_rate" default:"44100" validate:"min=8000,max=192000"`
	BufferMs       int   `mapstructure:"buffer_ms" default:"100" validate:"min=10,max=1000"`
	FetchTimeoutMs int   `mapstructure:"fetch_timeout_ms" default:"10000" validate:"min=1"`
	MaxBytes       int64 `mapstructure:"max_bytes" default:"20971520" validate:"min=1"`
}

// fetcher downloads previews into memory.
type fetcher struct {
	client   *http.Client
	maxBytes int64
}

func newFetcher(cfg Config) *fetcher {
	return &fetcher{
		client:   &http.Client{Timeout: time.Duration(cfg.FetchTimeoutMs) * time.Millisecond},
		maxBytes: cfg.MaxBytes,
	}
}

func (f *fetcher) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to download preview")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("preview download failed: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read preview")
	}
	if int64(len(data)) > f.maxBytes {
		return nil, errors.Newf("preview exceeds %d bytes", f.maxBytes)
	}
	return data, nil
}
