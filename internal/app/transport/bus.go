package transport

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/beatdeck/internal/app/playback"
	"github.com/osa030/beatdeck/internal/app/queue"
	"github.com/osa030/beatdeck/internal/domain/track"
)

// ErrBusClosed is returned by Dispatch after Close.
var ErrBusClosed = errors.New("bus is closed")

// Player is the command surface of the playback controller.
type Player interface {
	ReplaceQueue(tracks []track.Track, index int, sourceKey string) error
	AppendQueue(tracks []track.Track)
	RemoveAt(index int) error
	TogglePlay() error
	Pause() error
	Resume() error
	Next() error
	Previous() error
	ToggleShuffle()
	SetRepeat(mode queue.RepeatMode)
	SeekPercent(pct float64) error
	PlayAt(index int) error
	Emit()
}

// Notification is one published snapshot.
type Notification struct {
	SequenceNo uint64
	Event      string
	Snapshot   playback.Snapshot
}

// Subscription receives notifications until unsubscribed.
type Subscription struct {
	ID string
	C  <-chan Notification

	ch chan Notification
}

// Bus delivers commands to a single consumer in arrival order and fans
// snapshots out to subscribers without blocking the publisher.
type Bus struct {
	commands chan Command
	done     chan struct{}
	once     sync.Once

	mu            sync.RWMutex
	subscriptions map[string]*Subscription
	sequenceNo    uint64
	latest        *Notification
}

// NewBus creates a bus with a command buffer of the given size.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		commands:      make(chan Command, buffer),
		done:          make(chan struct{}),
		subscriptions: make(map[string]*Subscription),
	}
}

// Dispatch enqueues cmd. It blocks only while the buffer is full.
func (b *Bus) Dispatch(ctx context.Context, cmd Command) error {
	select {
	case <-b.done:
		return ErrBusClosed
	default:
	}

	select {
	case b.commands <- cmd:
		return nil
	case <-b.done:
		return ErrBusClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run applies commands to p one at a time until ctx is done or the bus closes.
func (b *Bus) Run(ctx context.Context, p Player) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case cmd := <-b.commands:
			b.apply(p, cmd)
		}
	}
}

func (b *Bus) apply(p Player, cmd Command) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Msgf("transport: panic applying %s: %v", Name(cmd), r)
		}
	}()

	var err error
	switch c := cmd.(type) {
	case ReplaceQueue:
		err = p.ReplaceQueue(c.List, c.Index, c.SourceKey)
	case QueueAppend:
		p.AppendQueue(c.Items)
	case QueueRemove:
		err = p.RemoveAt(c.Index)
	case TogglePlay:
		err = p.TogglePlay()
	case Pause:
		err = p.Pause()
	case Resume:
		err = p.Resume()
	case Next:
		err = p.Next()
	case Previous:
		err = p.Previous()
	case ToggleShuffle:
		p.ToggleShuffle()
	case SetRepeat:
		p.SetRepeat(c.Mode)
	case SeekToPercent:
		err = p.SeekPercent(c.Pct)
	case PlayAtIndex:
		err = p.PlayAt(c.Index)
	case GetState:
		p.Emit()
	}
	if err != nil {
		zlog.Debug().Msgf("transport: %s not applied: %v", Name(cmd), err)
	}
}

// Publish implements playback.Publisher.
func (b *Bus) Publish(s playback.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sequenceNo++
	n := Notification{SequenceNo: b.sequenceNo, Event: EventStateSnapshot, Snapshot: s}
	b.latest = &n
	for _, sub := range b.subscriptions {
		deliver(sub.ch, n)
	}
}

// deliver sends n without blocking, dropping the oldest pending
// notification when the subscriber is behind.
func deliver(ch chan Notification, n Notification) {
	select {
	case ch <- n:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- n:
	default:
	}
}

// Subscribe registers a subscriber. The latest snapshot, if any, is queued
// first.
func (b *Bus) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Notification, buffer)
	sub := &Subscription{ID: uuid.New().String(), C: ch, ch: ch}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.latest != nil {
		ch <- *b.latest
	}
	select {
	case <-b.done:
		close(ch)
		return sub
	default:
	}
	b.subscriptions[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subscriptions[id]; ok {
		delete(b.subscriptions, id)
		close(sub.ch)
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscriptions)
}

// Close stops Run, rejects further commands and closes every subscription.
func (b *Bus) Close() {
	b.once.Do(func() {
		close(b.done)
		b.mu.Lock()
		defer b.mu.Unlock()
		for id, sub := range b.subscriptions {
			delete(b.subscriptions, id)
			close(sub.ch)
		}
	})
}
