package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/beatdeck/internal/app/playback"
	"github.com/osa030/beatdeck/internal/app/queue"
	"github.com/osa030/beatdeck/internal/domain/track"
)

type recordingPlayer struct {
	mu    sync.Mutex
	calls []string
}

func (p *recordingPlayer) record(s string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, s)
	return nil
}

func (p *recordingPlayer) snapshot() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *recordingPlayer) ReplaceQueue([]track.Track, int, string) error { return p.record("replace") }
func (p *recordingPlayer) AppendQueue([]track.Track)                     { _ = p.record("append") }
func (p *recordingPlayer) RemoveAt(int) error                            { return p.record("remove") }
func (p *recordingPlayer) TogglePlay() error                             { return p.record("toggle") }
func (p *recordingPlayer) Pause() error                                  { return p.record("pause") }
func (p *recordingPlayer) Resume() error                                 { return p.record("resume") }
func (p *recordingPlayer) Next() error                                   { return p.record("next") }
func (p *recordingPlayer) Previous() error                               { return p.record("previous") }
func (p *recordingPlayer) ToggleShuffle()                                { _ = p.record("shuffle") }
func (p *recordingPlayer) SetRepeat(queue.RepeatMode)                    { _ = p.record("repeat") }
func (p *recordingPlayer) SeekPercent(float64) error                     { return p.record("seek") }
func (p *recordingPlayer) PlayAt(int) error                              { return p.record("play-at") }
func (p *recordingPlayer) Emit()                                         { _ = p.record("emit") }

func TestBus_DeliversInOrder(t *testing.T) {
	bus := NewBus(4)
	player := &recordingPlayer{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Run(ctx, player)

	cmds := []Command{ReplaceQueue{}, Next{}, Pause{}, SeekToPercent{Pct: 0.5}, Resume{}, PlayAtIndex{}, GetState{}, ToggleShuffle{}, SetRepeat{}, QueueAppend{}, QueueRemove{}, Previous{}, TogglePlay{}}
	for _, cmd := range cmds {
		require.NoError(t, bus.Dispatch(ctx, cmd))
	}

	want := []string{"replace", "next", "pause", "seek", "resume", "play-at", "emit", "shuffle", "repeat", "append", "remove", "previous", "toggle"}
	assert.Eventually(t, func() bool {
		return len(player.snapshot()) == len(want)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, player.snapshot())
}

func TestBus_DispatchAfterClose(t *testing.T) {
	bus := NewBus(1)
	bus.Close()
	bus.Close()

	assert.ErrorIs(t, bus.Dispatch(context.Background(), Next{}), ErrBusClosed)
}

func TestBus_DispatchHonoursContext(t *testing.T) {
	bus := NewBus(1)
	require.NoError(t, bus.Dispatch(context.Background(), Next{}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, bus.Dispatch(ctx, Next{}), context.DeadlineExceeded)
}

func TestBus_PublishFanOut(t *testing.T) {
	bus := NewBus(1)
	a := bus.Subscribe(4)
	b := bus.Subscribe(4)
	assert.Equal(t, 2, bus.SubscriberCount())

	bus.Publish(playback.Snapshot{Cursor: 1})

	for _, sub := range []*Subscription{a, b} {
		select {
		case n := <-sub.C:
			assert.Equal(t, uint64(1), n.SequenceNo)
			assert.Equal(t, EventStateSnapshot, n.Event)
			assert.Equal(t, 1, n.Snapshot.Cursor)
		case <-time.After(time.Second):
			t.Fatal("notification not delivered")
		}
	}

	bus.Unsubscribe(a.ID)
	assert.Equal(t, 1, bus.SubscriberCount())
	_, open := <-a.C
	assert.False(t, open)
}

func TestBus_SlowSubscriberKeepsLatest(t *testing.T) {
	bus := NewBus(1)
	sub := bus.Subscribe(1)

	for i := 1; i <= 5; i++ {
		bus.Publish(playback.Snapshot{Cursor: i})
	}

	n := <-sub.C
	assert.Equal(t, 5, n.Snapshot.Cursor)
	assert.Equal(t, uint64(5), n.SequenceNo)
}

func TestBus_SubscribeReplaysLatest(t *testing.T) {
	bus := NewBus(1)
	bus.Publish(playback.Snapshot{Cursor: 2, State: "playing"})

	sub := bus.Subscribe(2)
	n := <-sub.C
	assert.Equal(t, 2, n.Snapshot.Cursor)
}

func TestBus_CloseClosesSubscriptions(t *testing.T) {
	bus := NewBus(1)
	sub := bus.Subscribe(1)

	bus.Close()
	_, open := <-sub.C
	assert.False(t, open)
	assert.Zero(t, bus.SubscriberCount())

	late := bus.Subscribe(1)
	_, open = <-late.C
	assert.False(t, open)
}
