// Package track provides the Track domain entity.
package track

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// Kind identifies where a queue entry was sourced from.
type Kind string

const (
	KindTrack      Kind = "track" // Standalone track, no container
	KindPackMember Kind = "pack"  // Member of a multi-track pack
	KindKitMember  Kind = "kit"   // Member of a sample kit
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTrack, KindPackMember, KindKitMember:
		return true
	default:
		return false
	}
}

// Source is the tagged variant attached to every queue entry at construction time.
type Source struct {
	Kind        Kind   `json:"kind"`
	ContainerID string `json:"containerId,omitempty"`
}

// Validate checks that a standalone source carries no container and that a
// member source carries exactly one.
func (s Source) Validate() error {
	switch s.Kind {
	case KindTrack, "":
		if s.ContainerID != "" {
			return errors.Newf("standalone track cannot belong to container %q", s.ContainerID)
		}
	case KindPackMember, KindKitMember:
		if s.ContainerID == "" {
			return errors.Newf("%s member requires a container id", s.Kind)
		}
	default:
		return errors.Newf("unknown source kind %q", s.Kind)
	}
	return nil
}

// Container identifies a pack or kit.
type Container struct {
	Kind Kind
	ID   string
}

// Key returns the cache / dedupe key, e.g. "pack:42".
func (c Container) Key() string {
	return string(c.Kind) + ":" + c.ID
}

// ParseContainer parses a "pack:42" / "kit:7" key.
func ParseContainer(key string) (Container, error) {
	kind, id, ok := strings.Cut(key, ":")
	c := Container{Kind: Kind(kind), ID: id}
	if !ok || id == "" || (c.Kind != KindPackMember && c.Kind != KindKitMember) {
		return Container{}, errors.Newf("invalid container key %q", key)
	}
	return c, nil
}

// Track is the atomic playable unit.
type Track struct {
	ID         string        // Identifier, unique within its container
	Title      string        // Display title
	ArtistName string        // Display artist
	CoverURL   string        // Cover art URL
	AudioURL   string        // Resolved (possibly expiring) preview URL, empty if unresolved
	Duration   time.Duration // Preview length, zero if unknown
	Source     Source        // Standalone or container member
}

// Standalone creates a track with no container.
func Standalone(id, title, artist string) Track {
	return Track{ID: id, Title: title, ArtistName: artist, Source: Source{Kind: KindTrack}}
}

// PackMember creates a track played as part of a pack.
func PackMember(packID, id, title, artist string) Track {
	return Track{ID: id, Title: title, ArtistName: artist, Source: Source{Kind: KindPackMember, ContainerID: packID}}
}

// KitMember creates a track played as part of a kit.
func KitMember(kitID, id, title, artist string) Track {
	return Track{ID: id, Title: title, ArtistName: artist, Source: Source{Kind: KindKitMember, ContainerID: kitID}}
}

// Container returns the container this track belongs to, if any.
func (t Track) Container() (Container, bool) {
	if t.Source.Kind != KindPackMember && t.Source.Kind != KindKitMember {
		return Container{}, false
	}
	return Container{Kind: t.Source.Kind, ID: t.Source.ContainerID}, true
}

// IsStandalone reports whether the track has no container.
func (t Track) IsStandalone() bool {
	_, ok := t.Container()
	return !ok
}

type wireTrack struct {
	ID         string `json:"id"`
	Title      string `json:"title,omitempty"`
	ArtistName string `json:"artistName,omitempty"`
	CoverURL   string `json:"coverUrl,omitempty"`
	AudioURL   string `json:"audioUrl,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
	Source     Source `json:"source"`
}

// MarshalJSON encodes the track in the bus wire format.
func (t Track) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireTrack{
		ID:         t.ID,
		Title:      t.Title,
		ArtistName: t.ArtistName,
		CoverURL:   t.CoverURL,
		AudioURL:   t.AudioURL,
		DurationMs: t.Duration.Milliseconds(),
		Source:     t.Source,
	})
}

// UnmarshalJSON decodes the bus wire format. A missing kind means standalone.
func (t *Track) UnmarshalJSON(data []byte) error {
	var w wireTrack
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Source.Kind == "" {
		w.Source.Kind = KindTrack
	}
	if err := w.Source.Validate(); err != nil {
		return err
	}
	*t = Track{
		ID:         w.ID,
		Title:      w.Title,
		ArtistName: w.ArtistName,
		CoverURL:   w.CoverURL,
		AudioURL:   w.AudioURL,
		Duration:   time.Duration(w.DurationMs) * time.Millisecond,
		Source:     w.Source,
	}
	return nil
}

// IDs returns the ordered track ids.
func IDs(tracks []Track) []string {
	return lo.Map(tracks, func(t Track, _ int) string { return t.ID })
}

// Signature joins the ordered track ids into a single comparable token.
func Signature(tracks []Track) string {
	return strings.Join(IDs(tracks), "\x1f")
}
