package playback

import (
	"time"

	"github.com/osa030/beatdeck/internal/app/queue"
)

// Attempt is one rung of the start retry ladder.
type Attempt int

const (
	AttemptCurrentCached Attempt = iota // Requested index, cached URL
	AttemptCurrentForced                // Requested index, forced re-resolution
	AttemptNextCached                   // Following index (wrapping), cached URL
	AttemptNextForced                   // Following index, forced re-resolution
	AttemptExhausted                    // Give up
)

// MaxAttempts bounds the number of load attempts for one start request.
const MaxAttempts = int(AttemptExhausted)

// String returns the string representation of the attempt.
func (a Attempt) String() string {
	switch a {
	case AttemptCurrentCached:
		return "current-cached"
	case AttemptCurrentForced:
		return "current-forced"
	case AttemptNextCached:
		return "next-cached"
	case AttemptNextForced:
		return "next-forced"
	case AttemptExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Next returns the attempt that follows a failed one.
func (a Attempt) Next() Attempt {
	if a >= AttemptExhausted {
		return AttemptExhausted
	}
	return a + 1
}

// Force reports whether the attempt bypasses cached URLs.
func (a Attempt) Force() bool {
	return a == AttemptCurrentForced || a == AttemptNextForced
}

// Index returns the queue index the attempt targets.
func (a Attempt) Index(origin, length int) int {
	if length == 0 {
		return 0
	}
	if a == AttemptNextCached || a == AttemptNextForced {
		return (origin + 1) % length
	}
	return origin
}

// Action is the outcome of an advance decision.
type Action int

const (
	ActionStop    Action = iota // Stop playback, cursor unchanged
	ActionRestart               // Replay the current index from zero
	ActionAdvance               // Start Index
)

// Decision is the result of the advance policy.
type Decision struct {
	Action Action
	Index  int
}

// decideOnEnd applies the end-of-track policy: repeat one restarts, then the
// same stepping rules as a manual next.
func decideOnEnd(cursor, length int, shuffle bool, repeat queue.RepeatMode, pick func(int) int) Decision {
	if length > 0 && repeat == queue.RepeatOne {
		return Decision{Action: ActionRestart, Index: cursor}
	}
	return decideNext(cursor, length, shuffle, repeat, pick)
}

// decideNext applies the manual next policy. Shuffle picks uniformly among
// the other indexes; otherwise step forward, wrapping only with repeat all.
func decideNext(cursor, length int, shuffle bool, repeat queue.RepeatMode, pick func(int) int) Decision {
	switch {
	case length == 0:
		return Decision{Action: ActionStop, Index: cursor}
	case shuffle && length > 1:
		i := pick(length - 1)
		if i >= cursor {
			i++
		}
		return Decision{Action: ActionAdvance, Index: i}
	case cursor < length-1:
		return Decision{Action: ActionAdvance, Index: cursor + 1}
	case repeat == queue.RepeatAll:
		return Decision{Action: ActionAdvance, Index: 0}
	default:
		return Decision{Action: ActionStop, Index: cursor}
	}
}

// decidePrevious restarts the current track once playback is past threshold,
// otherwise moves back one index, always wrapping.
func decidePrevious(cursor, length int, pos, threshold time.Duration) Decision {
	if length == 0 {
		return Decision{Action: ActionStop, Index: cursor}
	}
	if pos >= threshold {
		return Decision{Action: ActionRestart, Index: cursor}
	}
	return Decision{Action: ActionAdvance, Index: (cursor - 1 + length) % length}
}
