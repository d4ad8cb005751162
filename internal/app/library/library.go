// Package library keeps the user's persistent playlist in durable storage.
package library

import (
	"encoding/json"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/beatdeck/internal/domain/playlist"
	"github.com/osa030/beatdeck/internal/domain/track"
)

// DefaultKey is the storage key of the playlist.
const DefaultKey = "beatdeck:playlist"

// SourceKey tags queues built from the playlist.
const SourceKey = "playlist"

// Store is the durable storage used by the library.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, data []byte) error
}

// Library is a playlist mirrored to storage on every mutation.
type Library struct {
	mu    sync.Mutex
	store Store
	key   string
	list  *playlist.Playlist
}

// Open loads the playlist stored under key. A missing or unreadable value
// yields an empty playlist.
func Open(store Store, key string) *Library {
	if key == "" {
		key = DefaultKey
	}
	return &Library{store: store, key: key, list: load(store, key)}
}

func load(store Store, key string) *playlist.Playlist {
	data, err := store.Get(key)
	if err != nil {
		// storage.ErrNotFound on first run lands here too.
		zlog.Debug().Msgf("library: no stored playlist key=%s: %v", key, err)
		return playlist.New(nil)
	}

	var tracks []track.Track
	if err := json.Unmarshal(data, &tracks); err != nil {
		zlog.Warn().Msgf("library: discarding malformed playlist key=%s: %v", key, err)
		return playlist.New(nil)
	}
	return playlist.New(tracks)
}

// Tracks returns a copy of the playlist.
func (l *Library) Tracks() []track.Track {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]track.Track{}, l.list.Tracks...)
}

// Len returns the number of tracks.
func (l *Library) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list.Len()
}

// Add appends items not already present and persists the result.
func (l *Library) Add(items ...track.Track) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.draftLocked()
	added := next.Add(items...)
	if added == 0 {
		return 0, nil
	}
	return added, l.commitLocked(next)
}

// RemoveAt removes the track at index and persists the result.
func (l *Library) RemoveAt(index int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.draftLocked()
	if !next.RemoveAt(index) {
		return false, nil
	}
	return true, l.commitLocked(next)
}

// Clear empties the playlist and persists the result.
func (l *Library) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.draftLocked()
	next.Clear()
	return l.commitLocked(next)
}

// draftLocked returns a copy of the playlist to mutate.
func (l *Library) draftLocked() *playlist.Playlist {
	return &playlist.Playlist{Tracks: append([]track.Track{}, l.list.Tracks...)}
}

// commitLocked persists next and makes it current. On failure the current
// playlist is left as it was.
func (l *Library) commitLocked(next *playlist.Playlist) error {
	data, err := json.Marshal(next.Tracks)
	if err != nil {
		return errors.Wrap(err, "failed to encode playlist")
	}
	if err := l.store.Put(l.key, data); err != nil {
		return errors.Wrap(err, "failed to persist playlist")
	}
	l.list = next
	return nil
}
