// Package queue provides the playback queue store.
package queue

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/beatdeck/internal/domain/track"
)

// RepeatMode controls what happens at the end of a track.
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatAll RepeatMode = "all"
	RepeatOne RepeatMode = "one"
)

// ParseRepeatMode parses "off", "all" or "one".
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch m := RepeatMode(s); m {
	case RepeatOff, RepeatAll, RepeatOne:
		return m, nil
	default:
		return "", errors.Newf("unknown repeat mode %q", s)
	}
}

// Snapshot is an immutable copy of the queue state.
type Snapshot struct {
	Tracks     []track.Track
	Cursor     int
	SourceKey  string
	Signature  string
	Shuffle    bool
	Repeat     RepeatMode
	Generation uint64 // Incremented on every wholesale replace
}

// Len returns the number of queued tracks.
func (s Snapshot) Len() int {
	return len(s.Tracks)
}

// Current returns the track under the cursor.
func (s Snapshot) Current() (track.Track, bool) {
	if s.Cursor < 0 || s.Cursor >= len(s.Tracks) {
		return track.Track{}, false
	}
	return s.Tracks[s.Cursor], true
}

// RemoveResult describes the effect of RemoveAt on the cursor.
type RemoveResult struct {
	RemovedCurrent bool // The removed entry was under the cursor
	Emptied        bool // The queue is now empty
}

// Store holds the ordered track list, cursor, shuffle flag and repeat mode.
// It is not safe for concurrent use; the playback controller owns it.
type Store struct {
	tracks     []track.Track
	cursor     int
	sourceKey  string
	signature  string
	shuffle    bool
	repeat     RepeatMode
	generation uint64
}

// NewStore creates an empty queue.
func NewStore() *Store {
	return &Store{repeat: RepeatOff}
}

// Replace swaps the queue wholesale. It is a no-op, returning false, when
// the same signature and source key are already active at the same index.
// startIndex is clamped into range.
func (s *Store) Replace(tracks []track.Track, startIndex int, sourceKey string) bool {
	sig := track.Signature(tracks)
	index := clamp(startIndex, len(tracks))
	if len(s.tracks) > 0 && sig == s.signature && sourceKey == s.sourceKey && index == s.cursor {
		return false
	}

	s.tracks = append([]track.Track(nil), tracks...)
	s.signature = sig
	s.sourceKey = sourceKey
	s.cursor = index
	s.generation++
	return true
}

// Append adds tracks to the end without touching the cursor.
func (s *Store) Append(tracks ...track.Track) {
	s.tracks = append(s.tracks, tracks...)
	s.signature = track.Signature(s.tracks)
}

// RemoveAt removes one entry and adjusts the cursor. Out-of-range indexes
// are ignored.
func (s *Store) RemoveAt(index int) (RemoveResult, bool) {
	if index < 0 || index >= len(s.tracks) {
		return RemoveResult{}, false
	}

	var res RemoveResult
	s.tracks = append(s.tracks[:index:index], s.tracks[index+1:]...)
	s.signature = track.Signature(s.tracks)

	switch {
	case len(s.tracks) == 0:
		s.cursor = 0
		res.Emptied = true
		res.RemovedCurrent = true
	case index < s.cursor:
		s.cursor--
	case index == s.cursor:
		res.RemovedCurrent = true
		if s.cursor > len(s.tracks)-1 {
			s.cursor = len(s.tracks) - 1
		}
	}
	return res, true
}

// SetCursor moves the cursor. Out-of-range indexes are ignored.
func (s *Store) SetCursor(index int) bool {
	if index < 0 || index >= len(s.tracks) {
		return false
	}
	s.cursor = index
	return true
}

// SetShuffle sets the shuffle flag.
func (s *Store) SetShuffle(on bool) {
	s.shuffle = on
}

// SetRepeat sets the repeat mode.
func (s *Store) SetRepeat(mode RepeatMode) {
	s.repeat = mode
}

// SetAudioURL records a resolved URL on the entry at index.
func (s *Store) SetAudioURL(index int, url string) {
	if index < 0 || index >= len(s.tracks) {
		return
	}
	s.tracks[index].AudioURL = url
}

// Len returns the number of queued tracks.
func (s *Store) Len() int {
	return len(s.tracks)
}

// Cursor returns the current index.
func (s *Store) Cursor() int {
	return s.cursor
}

// Generation returns the replace counter used to detect stale results.
func (s *Store) Generation() uint64 {
	return s.generation
}

// At returns the entry at index.
func (s *Store) At(index int) (track.Track, bool) {
	if index < 0 || index >= len(s.tracks) {
		return track.Track{}, false
	}
	return s.tracks[index], true
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		Tracks:     append([]track.Track(nil), s.tracks...),
		Cursor:     s.cursor,
		SourceKey:  s.sourceKey,
		Signature:  s.signature,
		Shuffle:    s.shuffle,
		Repeat:     s.repeat,
		Generation: s.generation,
	}
}

func clamp(i, n int) int {
	if n == 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
