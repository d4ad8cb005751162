// Package preview resolves playable preview URLs for queue entries.
package preview

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/osa030/beatdeck/internal/domain/track"
)

// ErrNoPreview is returned by fetchers when a track has no preview.
var ErrNoPreview = errors.New("no preview available")

// DefaultTTL is the cache lifetime used when none is configured.
const DefaultTTL = 15 * time.Minute

// Preview is one entry of a container listing.
type Preview struct {
	TrackID    string
	URL        string
	Title      string
	ArtistName string
	CoverURL   string
	Duration   time.Duration
}

// Fetcher loads signed preview URLs from the catalog backend.
type Fetcher interface {
	FetchContainer(ctx context.Context, c track.Container) ([]Preview, error)
	FetchTrack(ctx context.Context, trackID string) (string, error)
}

// cacheEntry holds a container's url map.
type cacheEntry struct {
	urls      map[string]string
	previews  []Preview
	fetchedAt time.Time
}

// Resolver turns queue entries into playable URLs. Container listings are
// cached per container for the TTL; standalone tracks use their own AudioURL
// as the cache. Failures resolve to empty results and are only logged.
type Resolver struct {
	fetcher Fetcher
	ttl     time.Duration
	now     func() time.Time

	mu    sync.RWMutex
	cache map[string]*cacheEntry

	group singleflight.Group
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// NewResolver creates a resolver. A non-positive ttl falls back to DefaultTTL.
func NewResolver(fetcher Fetcher, ttl time.Duration, opts ...Option) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Resolver{
		fetcher: fetcher,
		ttl:     ttl,
		now:     time.Now,
		cache:   make(map[string]*cacheEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the URL for t, or "" when it cannot be played.
func (r *Resolver) Resolve(ctx context.Context, t track.Track, force bool) string {
	if c, ok := t.Container(); ok {
		return r.ResolveContainer(ctx, c, force)[t.ID]
	}
	if t.AudioURL != "" && !force {
		return t.AudioURL
	}
	return r.ResolveTrack(ctx, t.ID)
}

// ResolveContainer returns track id -> url for every member of c. The cached
// entry is used when fresh and force is false. Concurrent misses for the same
// container share one fetch.
func (r *Resolver) ResolveContainer(ctx context.Context, c track.Container, force bool) map[string]string {
	entry, err := r.load(ctx, c, force)
	if err != nil {
		zlog.Warn().Msgf("preview: failed to resolve container: container=%s force=%v err=%v", c.Key(), force, err)
		return map[string]string{}
	}
	return entry.urls
}

// ResolveTrack fetches a single signed URL for a standalone track.
func (r *Resolver) ResolveTrack(ctx context.Context, trackID string) string {
	url, err := r.fetcher.FetchTrack(ctx, trackID)
	if err != nil {
		zlog.Warn().Msgf("preview: failed to resolve track: track=%s err=%v", trackID, err)
		return ""
	}
	return url
}

// ContainerTracks lists c as queue entries with their URLs already attached.
func (r *Resolver) ContainerTracks(ctx context.Context, c track.Container) ([]track.Track, error) {
	entry, err := r.load(ctx, c, false)
	if err != nil {
		return nil, err
	}

	tracks := make([]track.Track, 0, len(entry.previews))
	for _, p := range entry.previews {
		tracks = append(tracks, track.Track{
			ID:         p.TrackID,
			Title:      p.Title,
			ArtistName: p.ArtistName,
			CoverURL:   p.CoverURL,
			AudioURL:   p.URL,
			Duration:   p.Duration,
			Source:     track.Source{Kind: c.Kind, ContainerID: c.ID},
		})
	}
	return tracks, nil
}

// Invalidate drops the cached entry for c.
func (r *Resolver) Invalidate(c track.Container) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, c.Key())
}

func (r *Resolver) load(ctx context.Context, c track.Container, force bool) (*cacheEntry, error) {
	key := c.Key()

	if !force {
		r.mu.RLock()
		entry, ok := r.cache[key]
		r.mu.RUnlock()
		if ok && r.now().Sub(entry.fetchedAt) < r.ttl {
			zlog.Debug().Msgf("preview: cache hit: container=%s", key)
			return entry, nil
		}
	}

	// Forced and unforced fetches don't share a flight, otherwise a forced
	// refresh could join an in-flight fetch that started before the failure.
	flight := key
	if force {
		flight += "#force"
	}

	v, err, shared := r.group.Do(flight, func() (any, error) {
		previews, err := r.fetcher.FetchContainer(ctx, c)
		if err != nil {
			return nil, err
		}

		entry := &cacheEntry{
			urls:      make(map[string]string, len(previews)),
			previews:  previews,
			fetchedAt: r.now(),
		}
		for _, p := range previews {
			if p.URL != "" {
				entry.urls[p.TrackID] = p.URL
			}
		}

		r.mu.Lock()
		r.cache[key] = entry
		r.mu.Unlock()

		zlog.Debug().Msgf("preview: fetched container: container=%s tracks=%d", key, len(previews))
		return entry, nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", key)
	}
	if shared {
		zlog.Debug().Msgf("preview: joined in-flight fetch: container=%s", key)
	}
	return v.(*cacheEntry), nil
}
