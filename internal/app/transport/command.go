// Package transport provides the ordered command bus between the UI and the
// playback controller, and fans state snapshots back out to subscribers.
package transport

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	"github.com/osa030/beatdeck/internal/app/queue"
	"github.com/osa030/beatdeck/internal/domain/track"
)

// Event names on the wire.
const (
	EventReplaceQueue  = "replace-queue"
	EventQueueAppend   = "queue-append"
	EventQueueRemove   = "queue-remove"
	EventTogglePlay    = "toggle-play"
	EventPause         = "pause"
	EventResume        = "resume"
	EventNext          = "next"
	EventPrevious      = "previous"
	EventToggleShuffle = "toggle-shuffle"
	EventSetRepeat     = "set-repeat"
	EventSeekToPercent = "seek-to-percent"
	EventPlayAtIndex   = "play-at-index"
	EventGetState      = "get-state"
	EventStateSnapshot = "state-snapshot"
)

// ErrUnknownCommand is returned by Decode for unrecognised event names.
var ErrUnknownCommand = errors.New("unknown command")

// Command is a closed set of messages the controller accepts.
type Command interface {
	command()
}

type (
	// ReplaceQueue swaps the queue and plays Index.
	ReplaceQueue struct {
		List      []track.Track `json:"list"`
		Index     int           `json:"index"`
		SourceKey string        `json:"sourceKey"`
	}
	// QueueAppend adds Items to the end of the queue.
	QueueAppend struct {
		Items []track.Track `json:"items"`
	}
	// QueueRemove removes the entry at Index.
	QueueRemove struct {
		Index int `json:"index"`
	}
	TogglePlay    struct{}
	Pause         struct{}
	Resume        struct{}
	Next          struct{}
	Previous      struct{}
	ToggleShuffle struct{}
	// SetRepeat sets the repeat mode.
	SetRepeat struct {
		Mode queue.RepeatMode `json:"mode"`
	}
	// SeekToPercent seeks to Pct in [0,1] of the current track.
	SeekToPercent struct {
		Pct float64 `json:"pct"`
	}
	// PlayAtIndex force-plays the entry at Index.
	PlayAtIndex struct {
		Index int `json:"index"`
	}
	// GetState asks for a snapshot re-emit.
	GetState struct{}
)

func (ReplaceQueue) command()  {}
func (QueueAppend) command()   {}
func (QueueRemove) command()   {}
func (TogglePlay) command()    {}
func (Pause) command()         {}
func (Resume) command()        {}
func (Next) command()          {}
func (Previous) command()      {}
func (ToggleShuffle) command() {}
func (SetRepeat) command()     {}
func (SeekToPercent) command() {}
func (PlayAtIndex) command()   {}
func (GetState) command()      {}

// Name returns the wire name of cmd.
func Name(cmd Command) string {
	switch cmd.(type) {
	case ReplaceQueue:
		return EventReplaceQueue
	case QueueAppend:
		return EventQueueAppend
	case QueueRemove:
		return EventQueueRemove
	case TogglePlay:
		return EventTogglePlay
	case Pause:
		return EventPause
	case Resume:
		return EventResume
	case Next:
		return EventNext
	case Previous:
		return EventPrevious
	case ToggleShuffle:
		return EventToggleShuffle
	case SetRepeat:
		return EventSetRepeat
	case SeekToPercent:
		return EventSeekToPercent
	case PlayAtIndex:
		return EventPlayAtIndex
	case GetState:
		return EventGetState
	default:
		return ""
	}
}

// Envelope is the wire form of a command.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode wraps cmd in an envelope.
func Encode(cmd Command) (Envelope, error) {
	name := Name(cmd)
	if name == "" {
		return Envelope{}, errors.Wrapf(ErrUnknownCommand, "%T", cmd)
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return Envelope{}, errors.Wrapf(err, "encode %s", name)
	}
	if string(payload) == "{}" {
		payload = nil
	}
	return Envelope{Event: name, Payload: payload}, nil
}

// Decode builds a typed command from its wire name and JSON payload.
// Out-of-range percentages are clamped; unknown repeat modes are rejected.
func Decode(name string, payload []byte) (Command, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	var (
		cmd Command
		err error
	)
	switch name {
	case EventReplaceQueue:
		var c ReplaceQueue
		err = json.Unmarshal(payload, &c)
		cmd = c
	case EventQueueAppend:
		var c QueueAppend
		err = json.Unmarshal(payload, &c)
		cmd = c
	case EventQueueRemove:
		var c QueueRemove
		err = json.Unmarshal(payload, &c)
		cmd = c
	case EventTogglePlay:
		cmd = TogglePlay{}
	case EventPause:
		cmd = Pause{}
	case EventResume:
		cmd = Resume{}
	case EventNext:
		cmd = Next{}
	case EventPrevious:
		cmd = Previous{}
	case EventToggleShuffle:
		cmd = ToggleShuffle{}
	case EventSetRepeat:
		var c SetRepeat
		if err = json.Unmarshal(payload, &c); err == nil {
			c.Mode, err = queue.ParseRepeatMode(string(c.Mode))
		}
		cmd = c
	case EventSeekToPercent:
		var c SeekToPercent
		err = json.Unmarshal(payload, &c)
		c.Pct = min(max(c.Pct, 0), 1)
		cmd = c
	case EventPlayAtIndex:
		var c PlayAtIndex
		err = json.Unmarshal(payload, &c)
		cmd = c
	case EventGetState:
		cmd = GetState{}
	default:
		return nil, errors.Wrapf(ErrUnknownCommand, "%q", name)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", name)
	}
	return cmd, nil
}
