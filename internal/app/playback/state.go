// Package playback provides the playback controller that owns the audio output.
package playback

// State represents the playback state.
type State int

const (
	StateIdle    State = iota // Nothing loaded, or stopped after the queue ran out
	StateLoading              // Resolving a URL or buffering media
	StatePlaying              // Media is producing audio
	StatePaused               // Media is loaded but paused
	StateEnded                // Media finished; resolved immediately by the advance policy
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateEnded:
		return "ended"
	default:
		return "unknown"
	}
}
