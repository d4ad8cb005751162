// Package bump reports play-start analytics at most once per queue position.
package bump

import (
	"context"
	"strconv"
	"sync"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/beatdeck/internal/app/queue"
	"github.com/osa030/beatdeck/internal/domain/track"
)

// Notifier receives play-start signals.
type Notifier interface {
	TrackStarted(ctx context.Context, t track.Track) error
	ContainerStarted(ctx context.Context, c track.Container) error
}

// Reporter deduplicates play-bumps. A standalone track fires once per
// (source key, queue signature, cursor); a container fires once per
// (container, queue signature) whichever member starts. Notification
// failures are logged and never reach the caller.
type Reporter struct {
	notifiers []Notifier
	timeout   time.Duration

	mu            sync.Mutex
	lastTrack     string
	lastContainer string

	wg sync.WaitGroup
}

// NewReporter creates a reporter dispatching to notifiers.
func NewReporter(timeout time.Duration, notifiers ...Notifier) *Reporter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Reporter{notifiers: notifiers, timeout: timeout}
}

// Bump records that the entry at index of snap started playing. It returns
// true when a notification was dispatched.
func (r *Reporter) Bump(snap queue.Snapshot, index int) bool {
	if index < 0 || index >= len(snap.Tracks) {
		return false
	}
	t := snap.Tracks[index]

	r.mu.Lock()
	c, member := t.Container()
	if member {
		key := c.Key() + "|" + snap.Signature
		if key == r.lastContainer {
			r.mu.Unlock()
			return false
		}
		r.lastContainer = key
	} else {
		key := snap.SourceKey + "|" + snap.Signature + "|" + strconv.Itoa(index)
		if key == r.lastTrack {
			r.mu.Unlock()
			return false
		}
		r.lastTrack = key
	}
	r.mu.Unlock()

	for _, n := range r.notifiers {
		r.wg.Add(1)
		go func(n Notifier) {
			defer r.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			defer cancel()

			var err error
			if member {
				err = n.ContainerStarted(ctx, c)
			} else {
				err = n.TrackStarted(ctx, t)
			}
			if err != nil {
				zlog.Warn().Msgf("bump: notification failed: track=%s err=%v", t.ID, err)
			}
		}(n)
	}
	return true
}

// Reset forgets the last keys so the next start fires again.
func (r *Reporter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastTrack = ""
	r.lastContainer = ""
}

// Wait blocks until in-flight notifications finish.
func (r *Reporter) Wait() {
	r.wg.Wait()
}
