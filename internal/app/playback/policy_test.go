package playback

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/osa030/beatdeck/internal/app/queue"
)

func noPick(int) int { panic("pick must not be called") }

func TestAttempt_Ladder(t *testing.T) {
	var seen []Attempt
	for a := AttemptCurrentCached; a != AttemptExhausted; a = a.Next() {
		seen = append(seen, a)
	}

	assert.Equal(t, []Attempt{AttemptCurrentCached, AttemptCurrentForced, AttemptNextCached, AttemptNextForced}, seen)
	assert.Len(t, seen, MaxAttempts)
	assert.Equal(t, AttemptExhausted, AttemptExhausted.Next())

	assert.False(t, AttemptCurrentCached.Force())
	assert.True(t, AttemptCurrentForced.Force())
	assert.False(t, AttemptNextCached.Force())
	assert.True(t, AttemptNextForced.Force())

	assert.Equal(t, 2, AttemptCurrentForced.Index(2, 3))
	assert.Equal(t, 0, AttemptNextCached.Index(2, 3), "next wraps")
	assert.Equal(t, 0, AttemptNextForced.Index(0, 1))
}

func TestDecideOnEnd(t *testing.T) {
	tests := []struct {
		name    string
		cursor  int
		length  int
		shuffle bool
		repeat  queue.RepeatMode
		want    Decision
	}{
		{name: "repeat one restarts", cursor: 1, length: 3, repeat: queue.RepeatOne, want: Decision{ActionRestart, 1}},
		{name: "repeat one beats shuffle", cursor: 1, length: 3, shuffle: true, repeat: queue.RepeatOne, want: Decision{ActionRestart, 1}},
		{name: "middle advances", cursor: 1, length: 3, repeat: queue.RepeatOff, want: Decision{ActionAdvance, 2}},
		{name: "last stops", cursor: 2, length: 3, repeat: queue.RepeatOff, want: Decision{ActionStop, 2}},
		{name: "last wraps with repeat all", cursor: 2, length: 3, repeat: queue.RepeatAll, want: Decision{ActionAdvance, 0}},
		{name: "single shuffle falls through", cursor: 0, length: 1, shuffle: true, repeat: queue.RepeatOff, want: Decision{ActionStop, 0}},
		{name: "empty stops", cursor: 0, length: 0, repeat: queue.RepeatOne, want: Decision{ActionStop, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decideOnEnd(tt.cursor, tt.length, tt.shuffle, tt.repeat, noPick))
		})
	}
}

func TestDecideNext_IgnoresRepeatOne(t *testing.T) {
	assert.Equal(t, Decision{ActionAdvance, 2}, decideNext(1, 3, false, queue.RepeatOne, noPick))
	assert.Equal(t, Decision{ActionStop, 2}, decideNext(2, 3, false, queue.RepeatOne, noPick))
	assert.Equal(t, Decision{ActionAdvance, 0}, decideNext(2, 3, false, queue.RepeatAll, noPick))
}

func TestDecide_RepeatOneNeverMovesCursor(t *testing.T) {
	cursor := 3
	for i := 0; i < 50; i++ {
		d := decideOnEnd(cursor, 5, i%2 == 0, queue.RepeatOne, rand.IntN)
		assert.Equal(t, ActionRestart, d.Action)
		cursor = d.Index
	}
	assert.Equal(t, 3, cursor)
}

func TestDecide_ShuffleNeverSelfRepeats(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for length := 2; length <= 6; length++ {
		hits := make(map[int]int)
		for i := 0; i < 600; i++ {
			cursor := rng.IntN(length)
			d := decideOnEnd(cursor, length, true, queue.RepeatOff, rng.IntN)
			assert.Equal(t, ActionAdvance, d.Action)
			assert.NotEqual(t, cursor, d.Index)
			assert.GreaterOrEqual(t, d.Index, 0)
			assert.Less(t, d.Index, length)
			hits[d.Index]++
		}
		assert.Len(t, hits, length, "every index reachable")
	}
}

func TestDecidePrevious(t *testing.T) {
	threshold := 2 * time.Second

	assert.Equal(t, Decision{ActionAdvance, 0}, decidePrevious(1, 3, 500*time.Millisecond, threshold))
	assert.Equal(t, Decision{ActionAdvance, 2}, decidePrevious(0, 3, 0, threshold), "wraps regardless of repeat")
	assert.Equal(t, Decision{ActionRestart, 1}, decidePrevious(1, 3, 2*time.Second, threshold))
	assert.Equal(t, Decision{ActionRestart, 1}, decidePrevious(1, 3, 10*time.Second, threshold))
	assert.Equal(t, Decision{ActionStop, 0}, decidePrevious(0, 0, 0, threshold))
}
