package playback

import (
	"github.com/osa030/beatdeck/internal/app/queue"
	"github.com/osa030/beatdeck/internal/domain/track"
)

// Progress is the playback position in seconds.
type Progress struct {
	Current  float64 `json:"current"`
	Duration float64 `json:"duration"`
}

// Snapshot is the now-playing state published after every mutation.
type Snapshot struct {
	Playing        bool             `json:"playing"`
	State          string           `json:"state"`
	Failed         bool             `json:"failed"`
	Cursor         int              `json:"cursor"`
	CurrentTrackID string           `json:"currentTrackId"`
	SourceKey      string           `json:"sourceKey"`
	Queue          []track.Track    `json:"queueSnapshot"`
	Shuffle        bool             `json:"shuffle"`
	RepeatMode     queue.RepeatMode `json:"repeatMode"`
	Progress       Progress         `json:"progress"`
}

// Publisher receives snapshots. Publish must not block.
type Publisher interface {
	Publish(Snapshot)
}

type nopPublisher struct{}

func (nopPublisher) Publish(Snapshot) {}
