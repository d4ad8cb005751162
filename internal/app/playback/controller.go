package playback

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/beatdeck/internal/app/queue"
	"github.com/osa030/beatdeck/internal/domain/track"
)

// Errors
var (
	ErrEmptyQueue           = errors.New("queue is empty")
	ErrIndexOutOfRange      = errors.New("index out of range")
	ErrPlayLocked           = errors.New("a start attempt is already in flight")
	ErrTransitionInProgress = errors.New("transition in progress")
	ErrUnresolvedMedia      = errors.New("no playable url after all attempts")
)

// Resolver turns a queue entry into a playable URL, "" when unplayable.
type Resolver interface {
	Resolve(ctx context.Context, t track.Track, force bool) string
}

// Reporter is notified on every successful start.
type Reporter interface {
	Bump(snap queue.Snapshot, index int) bool
}

// Config holds controller configuration.
type Config struct {
	SettleDelay       time.Duration // Pause between Load and Play
	ProgressInterval  time.Duration // Snapshot rate while playing
	PreviousThreshold time.Duration // Position past which previous restarts the track
	LoadTimeout       time.Duration // Upper bound for one Load
	PrefetchNext      bool          // Pre-resolve the following entry after a start
}

// Option configures a Controller.
type Option func(*Controller)

// WithRand overrides the shuffle index source. pick(n) must return [0,n).
func WithRand(pick func(n int) int) Option {
	return func(c *Controller) { c.pick = pick }
}

// Controller owns the queue and the audio output and drives every transition.
// All public methods are safe for concurrent use; start attempts run on a
// background goroutine and never hold the lock across I/O.
type Controller struct {
	mu sync.Mutex

	store  *queue.Store
	state  State
	failed bool

	// Play-lock: one start attempt in flight at a time.
	starting bool
	// Transition-lock around PlayAt.
	transition atomic.Bool
	// Set when a queue-identity change was refused by the play-lock; the
	// in-flight attempt hands over to the new cursor when it notices.
	pendingStart bool

	// Bumped by anything that invalidates an in-flight attempt.
	epoch uint64
	// Token of the most recent Load, and of the media currently playing.
	mediaToken  uint64
	activeToken uint64

	output    Output
	resolver  Resolver
	reporter  Reporter
	publisher Publisher
	config    Config
	pick      func(int) int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController creates a new playback controller.
func NewController(config Config, output Output, resolver Resolver, reporter Reporter, publisher Publisher, opts ...Option) *Controller {
	if config.PreviousThreshold <= 0 {
		config.PreviousThreshold = 2 * time.Second
	}
	if config.ProgressInterval <= 0 {
		config.ProgressInterval = 500 * time.Millisecond
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = 15 * time.Second
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		store:     queue.NewStore(),
		state:     StateIdle,
		output:    output,
		resolver:  resolver,
		reporter:  reporter,
		publisher: publisher,
		config:    config,
		pick:      rand.IntN,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run consumes output events and publishes progress until ctx is done.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.config.ProgressInterval)
	defer ticker.Stop()

	events := c.output.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.handleMediaEvent(ev)
		case <-ticker.C:
			c.mu.Lock()
			if c.state == StatePlaying {
				c.publishLocked()
			}
			c.mu.Unlock()
		}
	}
}

// ReplaceQueue swaps the queue and starts playing at index. Replacing the
// active queue with an identical one at the same index does nothing while
// media is loaded or loading.
func (c *Controller) ReplaceQueue(tracks []track.Track, index int, sourceKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	valid := make([]track.Track, 0, len(tracks))
	for _, t := range tracks {
		if err := t.Source.Validate(); err != nil {
			zlog.Warn().Msgf("playback: dropping invalid queue entry: track=%s err=%v", t.ID, err)
			continue
		}
		valid = append(valid, t)
	}

	if !c.store.Replace(valid, index, sourceKey) {
		if c.state == StateIdle || c.state == StateEnded {
			return c.startLocked(c.store.Cursor(), AttemptCurrentCached, false)
		}
		zlog.Debug().Msgf("playback: replace ignored, queue already active: source=%s index=%d", sourceKey, index)
		return nil
	}

	c.epoch++
	if c.store.Len() == 0 {
		c.stopLocked()
		c.publishLocked()
		return ErrEmptyQueue
	}

	err := c.startLocked(c.store.Cursor(), AttemptCurrentCached, false)
	if errors.Is(err, ErrPlayLocked) {
		c.pendingStart = true
		c.publishLocked()
		return nil
	}
	return err
}

// AppendQueue adds tracks to the end of the queue without touching playback.
func (c *Controller) AppendQueue(tracks []track.Track) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, t := range tracks {
		if err := t.Source.Validate(); err != nil {
			zlog.Warn().Msgf("playback: dropping invalid queue entry: track=%s err=%v", t.ID, err)
			continue
		}
		c.store.Append(t)
	}
	c.publishLocked()
}

// RemoveAt removes a queue entry. Removing the entry under the cursor while
// it is playing starts the entry that took its place. A removal during a
// start attempt restarts the attempt against the new layout.
func (c *Controller) RemoveAt(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, ok := c.store.RemoveAt(index)
	if !ok {
		zlog.Debug().Msgf("playback: remove ignored: index=%d len=%d", index, c.store.Len())
		return ErrIndexOutOfRange
	}

	switch {
	case res.Emptied:
		c.epoch++
		c.stopLocked()
	case res.RemovedCurrent:
		c.epoch++
		switch c.state {
		case StatePlaying, StateLoading:
			if err := c.startLocked(c.store.Cursor(), AttemptCurrentCached, false); errors.Is(err, ErrPlayLocked) {
				c.pendingStart = true
			}
		case StatePaused:
			c.stopLocked()
		}
	case c.starting:
		// The in-flight attempt indexes the old layout; rerun it at the
		// shifted cursor.
		c.epoch++
		c.pendingStart = true
	}
	c.publishLocked()
	return nil
}

// PlayAt force-plays the entry at index. Calls arriving while a previous
// PlayAt is still transitioning are dropped.
func (c *Controller) PlayAt(index int) error {
	if !c.transition.CompareAndSwap(false, true) {
		zlog.Debug().Msgf("playback: play-at dropped, transition in progress: index=%d", index)
		return ErrTransitionInProgress
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if index < 0 || index >= c.store.Len() {
		c.transition.Store(false)
		return ErrIndexOutOfRange
	}

	if err := c.startLocked(index, AttemptCurrentCached, true); err != nil {
		c.transition.Store(false)
		return err
	}
	return nil
}

// TogglePlay pauses when playing and plays otherwise.
func (c *Controller) TogglePlay() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StatePlaying:
		return c.pauseLocked()
	case StatePaused:
		return c.resumeLocked()
	case StateLoading:
		return nil
	default:
		return c.startLocked(c.store.Cursor(), AttemptCurrentCached, false)
	}
}

// Pause pauses the current playback.
func (c *Controller) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePlaying {
		return nil
	}
	return c.pauseLocked()
}

func (c *Controller) pauseLocked() error {
	if err := c.output.Pause(); err != nil {
		return errors.Wrap(err, "failed to pause output")
	}
	c.state = StatePaused
	c.publishLocked()
	return nil
}

// Resume resumes paused playback, or starts the current entry when stopped.
func (c *Controller) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StatePaused:
		return c.resumeLocked()
	case StateIdle, StateEnded:
		return c.startLocked(c.store.Cursor(), AttemptCurrentCached, false)
	default:
		return nil
	}
}

func (c *Controller) resumeLocked() error {
	if err := c.output.Resume(); err != nil {
		return errors.Wrap(err, "failed to resume output")
	}
	c.state = StatePlaying
	c.publishLocked()
	return nil
}

// Next skips forward. Repeat one is ignored; at the last index without
// repeat all playback stops.
func (c *Controller) Next() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store.Len() == 0 {
		zlog.Debug().Msg("playback: next on empty queue")
		return ErrEmptyQueue
	}
	snap := c.store.Snapshot()
	return c.applyLocked(decideNext(snap.Cursor, snap.Len(), snap.Shuffle, snap.Repeat, c.pick))
}

// Previous restarts the current track when past the threshold, otherwise
// moves to the previous index, wrapping.
func (c *Controller) Previous() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store.Len() == 0 {
		zlog.Debug().Msg("playback: previous on empty queue")
		return ErrEmptyQueue
	}

	var pos time.Duration
	if c.state == StatePlaying || c.state == StatePaused {
		pos = c.output.Position()
	}
	d := decidePrevious(c.store.Cursor(), c.store.Len(), pos, c.config.PreviousThreshold)
	if d.Action == ActionRestart && c.state == StatePaused {
		if err := c.output.Seek(0); err != nil {
			return errors.Wrap(err, "failed to seek")
		}
		c.publishLocked()
		return nil
	}
	return c.applyLocked(d)
}

// ToggleShuffle flips the shuffle flag.
func (c *Controller) ToggleShuffle() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.SetShuffle(!c.store.Snapshot().Shuffle)
	c.publishLocked()
}

// SetRepeat sets the repeat mode. Unknown modes are ignored.
func (c *Controller) SetRepeat(mode queue.RepeatMode) {
	mode, err := queue.ParseRepeatMode(string(mode))
	if err != nil {
		zlog.Warn().Msgf("playback: set-repeat ignored: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.SetRepeat(mode)
	c.publishLocked()
}

// SeekPercent seeks to pct of the current track; pct is clamped to [0,1].
func (c *Controller) SeekPercent(pct float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StatePlaying && c.state != StatePaused {
		return nil
	}
	pct = min(max(pct, 0), 1)
	dur := c.output.Duration()
	if dur <= 0 {
		return nil
	}
	if err := c.output.Seek(time.Duration(float64(dur) * pct)); err != nil {
		return errors.Wrap(err, "failed to seek")
	}
	c.publishLocked()
	return nil
}

// Emit re-publishes the current snapshot.
func (c *Controller) Emit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishLocked()
}

// Snapshot returns the current now-playing state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// State returns the current playback state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close stops playback and waits for in-flight attempts.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.epoch++
	c.stopLocked()
}

func (c *Controller) handleMediaEvent(ev MediaEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ev.Token != c.activeToken || (c.state != StatePlaying && c.state != StatePaused) {
		zlog.Debug().Msgf("playback: ignoring stale media event: type=%s token=%d active=%d", ev.Type, ev.Token, c.activeToken)
		return
	}

	switch ev.Type {
	case MediaEnded:
		c.state = StateEnded
		snap := c.store.Snapshot()
		d := decideOnEnd(snap.Cursor, snap.Len(), snap.Shuffle, snap.Repeat, c.pick)
		zlog.Debug().Msgf("playback: track ended: index=%d action=%d next=%d", snap.Cursor, d.Action, d.Index)
		if err := c.applyLocked(d); err != nil {
			zlog.Warn().Msgf("playback: advance failed: %v", err)
		}
	case MediaError:
		zlog.Warn().Msgf("playback: media error, retrying with fresh url: index=%d err=%v", c.store.Cursor(), ev.Err)
		if err := c.startLocked(c.store.Cursor(), AttemptCurrentForced, false); err != nil {
			zlog.Warn().Msgf("playback: retry not started: %v", err)
		}
	}
}

// applyLocked carries out an advance decision.
func (c *Controller) applyLocked(d Decision) error {
	switch d.Action {
	case ActionRestart:
		if c.state != StatePlaying && c.state != StateEnded {
			return c.startLocked(d.Index, AttemptCurrentCached, false)
		}
		if err := c.output.Seek(0); err != nil {
			return errors.Wrap(err, "failed to seek")
		}
		if err := c.output.Play(); err != nil {
			return errors.Wrap(err, "failed to replay")
		}
		c.state = StatePlaying
		c.publishLocked()
		return nil
	case ActionAdvance:
		return c.startLocked(d.Index, AttemptCurrentCached, false)
	default:
		c.epoch++
		c.stopLocked()
		c.publishLocked()
		return nil
	}
}

// stopLocked silences the output and goes idle. The cursor is kept.
func (c *Controller) stopLocked() {
	if err := c.output.Stop(); err != nil {
		zlog.Warn().Msgf("playback: failed to stop output: %v", err)
	}
	c.state = StateIdle
	c.activeToken = 0
}

// attemptRun carries the identity of one start request through the ladder.
type attemptRun struct {
	origin         int
	attempt        Attempt
	epoch          uint64
	ownsTransition bool
}

// startLocked takes the play-lock and launches the retry ladder at index.
func (c *Controller) startLocked(index int, from Attempt, ownsTransition bool) error {
	if c.store.Len() == 0 {
		zlog.Debug().Msg("playback: start on empty queue ignored")
		return ErrEmptyQueue
	}
	if c.starting {
		zlog.Debug().Msgf("playback: start rejected, attempt in flight: index=%d", index)
		return ErrPlayLocked
	}

	c.starting = true
	c.failed = false
	c.state = StateLoading
	c.activeToken = 0
	c.store.SetCursor(index)
	if err := c.output.Stop(); err != nil {
		zlog.Warn().Msgf("playback: failed to stop output: %v", err)
	}
	c.publishLocked()

	c.wg.Add(1)
	go c.runLadder(attemptRun{origin: index, attempt: from, epoch: c.epoch, ownsTransition: ownsTransition})
	return nil
}

// runLadder walks the attempts until one plays, the request goes stale or
// the ladder is exhausted.
func (c *Controller) runLadder(run attemptRun) {
	defer c.wg.Done()

	for attempt := run.attempt; attempt != AttemptExhausted; attempt = attempt.Next() {
		c.mu.Lock()
		if c.abandonIfStaleLocked(run) {
			c.mu.Unlock()
			return
		}
		index := attempt.Index(run.origin, c.store.Len())
		t, _ := c.store.At(index)
		c.store.SetCursor(index)
		c.mediaToken++
		token := c.mediaToken
		c.mu.Unlock()

		zlog.Debug().Msgf("playback: attempt: %s index=%d track=%s", attempt, index, t.ID)

		url := c.resolver.Resolve(c.ctx, t, attempt.Force())
		if url == "" {
			zlog.Warn().Msgf("playback: no url: attempt=%s track=%s", attempt, t.ID)
			continue
		}

		c.mu.Lock()
		if c.abandonIfStaleLocked(run) {
			c.mu.Unlock()
			return
		}
		if t.IsStandalone() {
			c.store.SetAudioURL(index, url)
		}
		c.mu.Unlock()

		loadCtx, cancel := context.WithTimeout(c.ctx, c.config.LoadTimeout)
		err := c.output.Load(loadCtx, Media{Token: token, URL: url})
		cancel()
		if err != nil {
			zlog.Warn().Msgf("playback: load failed: attempt=%s track=%s err=%v", attempt, t.ID, err)
			continue
		}

		if c.config.SettleDelay > 0 {
			select {
			case <-time.After(c.config.SettleDelay):
			case <-c.ctx.Done():
			}
		}

		c.mu.Lock()
		if c.abandonIfStaleLocked(run) {
			c.mu.Unlock()
			return
		}
		if err := c.output.Play(); err != nil {
			c.mu.Unlock()
			zlog.Warn().Msgf("playback: play failed: attempt=%s track=%s err=%v", attempt, t.ID, err)
			continue
		}
		c.state = StatePlaying
		c.activeToken = token
		snap := c.store.Snapshot()
		c.releaseLocked(run)
		c.publishLocked()
		c.mu.Unlock()

		zlog.Info().Msgf("playback: started: index=%d track=%s attempt=%s", index, t.ID, attempt)
		c.onStarted(snap, index)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.abandonIfStaleLocked(run) {
		return
	}
	zlog.Error().Msgf("playback: giving up: origin=%d err=%v", run.origin, ErrUnresolvedMedia)
	c.stopLocked()
	c.failed = true
	c.releaseLocked(run)
	c.publishLocked()
}

// abandonIfStaleLocked releases the locks of a superseded run and hands over
// to a pending start. Returns true when the run must stop.
func (c *Controller) abandonIfStaleLocked(run attemptRun) bool {
	if c.ctx.Err() == nil && run.epoch == c.epoch {
		return false
	}
	zlog.Debug().Msgf("playback: discarding stale attempt: origin=%d", run.origin)
	c.releaseLocked(run)
	if c.pendingStart && c.ctx.Err() == nil {
		c.pendingStart = false
		if err := c.startLocked(c.store.Cursor(), AttemptCurrentCached, false); err != nil {
			zlog.Debug().Msgf("playback: pending start not launched: %v", err)
			c.state = StateIdle
			c.publishLocked()
		}
	}
	return true
}

func (c *Controller) releaseLocked(run attemptRun) {
	c.starting = false
	if run.ownsTransition {
		c.transition.Store(false)
	}
}

// onStarted runs the side effects of a successful start.
func (c *Controller) onStarted(snap queue.Snapshot, index int) {
	if c.reporter != nil {
		c.reporter.Bump(snap, index)
	}
	if !c.config.PrefetchNext || snap.Len() < 2 {
		return
	}

	next := (index + 1) % snap.Len()
	t := snap.Tracks[next]
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		url := c.resolver.Resolve(c.ctx, t, false)
		if url == "" || !t.IsStandalone() {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if cur, ok := c.store.At(next); ok && cur.ID == t.ID && c.store.Generation() == snap.Generation {
			c.store.SetAudioURL(next, url)
		}
	}()
}

func (c *Controller) publishLocked() {
	c.publisher.Publish(c.snapshotLocked())
}

func (c *Controller) snapshotLocked() Snapshot {
	q := c.store.Snapshot()
	snap := Snapshot{
		Playing:    c.state == StatePlaying || c.state == StateLoading,
		State:      c.state.String(),
		Failed:     c.failed,
		Cursor:     q.Cursor,
		SourceKey:  q.SourceKey,
		Queue:      q.Tracks,
		Shuffle:    q.Shuffle,
		RepeatMode: q.Repeat,
	}
	if cur, ok := q.Current(); ok {
		snap.CurrentTrackID = cur.ID
		snap.Progress.Duration = cur.Duration.Seconds()
	}
	if c.state == StatePlaying || c.state == StatePaused {
		snap.Progress.Current = c.output.Position().Seconds()
		if d := c.output.Duration(); d > 0 {
			snap.Progress.Duration = d.Seconds()
		}
	}
	return snap
}
