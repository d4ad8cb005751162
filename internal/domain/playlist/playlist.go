// Package playlist provides the Playlist domain entity.
package playlist

import "github.com/osa030/beatdeck/internal/domain/track"

// Playlist is a user-curated, ordered list of tracks kept independently of
// the playback queue. Track ids are unique within a playlist.
type Playlist struct {
	Tracks []track.Track
}

// New creates a playlist from tracks, dropping later duplicates.
func New(tracks []track.Track) *Playlist {
	p := &Playlist{Tracks: make([]track.Track, 0, len(tracks))}
	p.Add(tracks...)
	return p
}

// Add appends items whose id is not already present; the first occurrence wins.
// Returns the number of tracks appended.
func (p *Playlist) Add(items ...track.Track) int {
	seen := make(map[string]struct{}, len(p.Tracks)+len(items))
	for _, t := range p.Tracks {
		seen[t.ID] = struct{}{}
	}

	added := 0
	for _, t := range items {
		if _, ok := seen[t.ID]; ok {
			continue
		}
		seen[t.ID] = struct{}{}
		p.Tracks = append(p.Tracks, t)
		added++
	}
	return added
}

// RemoveAt removes the track at index. Out-of-range indexes are ignored.
func (p *Playlist) RemoveAt(index int) bool {
	if index < 0 || index >= len(p.Tracks) {
		return false
	}
	p.Tracks = append(p.Tracks[:index:index], p.Tracks[index+1:]...)
	return true
}

// Clear removes all tracks.
func (p *Playlist) Clear() {
	p.Tracks = []track.Track{}
}

// Len returns the number of tracks.
func (p *Playlist) Len() int {
	return len(p.Tracks)
}

// TrackIDs returns all track IDs in the playlist.
func (p *Playlist) TrackIDs() []string {
	return track.IDs(p.Tracks)
}

// TotalDuration returns the total duration of all tracks in seconds.
func (p *Playlist) TotalDuration() int64 {
	var total int64
	for _, t := range p.Tracks {
		total += int64(t.Duration.Seconds())
	}
	return total
}
