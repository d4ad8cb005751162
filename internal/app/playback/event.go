package playback

import (
	"context"
	"time"
)

// Output is the single audio output. Only the Controller may drive it.
type Output interface {
	// Load swaps the media source and blocks until it is ready to play.
	Load(ctx context.Context, m Media) error
	Play() error
	Pause() error
	Resume() error
	Seek(pos time.Duration) error
	Stop() error
	Position() time.Duration
	Duration() time.Duration
	// Events reports asynchronous completion and failure of loaded media.
	Events() <-chan MediaEvent
}

// Media is a source handed to the output. Token ties later events to it.
type Media struct {
	Token uint64
	URL   string
}

// MediaEventType represents an asynchronous output event type.
type MediaEventType int

const (
	MediaEnded MediaEventType = iota // Media played to completion
	MediaError                       // Decode or network failure during playback
)

// String returns the string representation of the event type.
func (e MediaEventType) String() string {
	switch e {
	case MediaEnded:
		return "ended"
	case MediaError:
		return "error"
	default:
		return "unknown"
	}
}

// MediaEvent represents an asynchronous output event.
type MediaEvent struct {
	Type  MediaEventType
	Token uint64 // Token of the Media the event belongs to
	Err   error  // Set for MediaError
}
