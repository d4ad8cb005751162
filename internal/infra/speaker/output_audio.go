//go:build (linux && cgo) || windows || darwin

package speaker

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/beatdeck/internal/app/playback"
)

// Available indicates whether audio playback is supported in this build.
const Available = true

// mixer is the sound card side of the output.
type mixer interface {
	Init(sampleRate beep.SampleRate, bufferSize int) error
	Play(s ...beep.Streamer)
	Clear()
	Lock()
	Unlock()
	Close()
}

type deviceMixer struct{}

func (deviceMixer) Init(sr beep.SampleRate, n int) error { return speaker.Init(sr, n) }
func (deviceMixer) Play(s ...beep.Streamer)              { speaker.Play(s...) }
func (deviceMixer) Clear()                               { speaker.Clear() }
func (deviceMixer) Lock()                                { speaker.Lock() }
func (deviceMixer) Unlock()                              { speaker.Unlock() }
func (deviceMixer) Close()                               { speaker.Close() }

// Output plays one decoded preview at a time through the speaker.
type Output struct {
	mu sync.Mutex

	mixer       mixer
	fetcher     *fetcher
	sampleRate  beep.SampleRate
	buffer      time.Duration
	initialized bool

	streamer beep.StreamSeekCloser
	format   beep.Format
	ctrl     *beep.Ctrl
	token    uint64
	// Set by the end callback once the mixer has dropped the sequence.
	// Guarded by the mixer lock.
	drained bool

	events chan playback.MediaEvent
	done   chan struct{}
	once   sync.Once
}

// New creates a speaker output. The sound card is opened on first Load.
func New(cfg Config) (*Output, error) {
	return &Output{
		mixer:      deviceMixer{},
		fetcher:    newFetcher(cfg),
		sampleRate: beep.SampleRate(cfg.SampleRate),
		buffer:     time.Duration(cfg.BufferMs) * time.Millisecond,
		events:     make(chan playback.MediaEvent, 8),
		done:       make(chan struct{}),
	}, nil
}

// Load downloads and decodes m, leaving it paused at the start.
func (o *Output) Load(ctx context.Context, m playback.Media) error {
	data, err := o.fetcher.fetch(ctx, m.URL)
	if err != nil {
		return err
	}
	streamer, format, err := decode(data)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if err := ctx.Err(); err != nil {
		streamer.Close()
		return err
	}
	return o.attachLocked(streamer, format, m.Token)
}

// attachLocked replaces the current media with streamer, paused at the start.
func (o *Output) attachLocked(streamer beep.StreamSeekCloser, format beep.Format, token uint64) error {
	o.stopLocked()

	if !o.initialized {
		if err := o.mixer.Init(o.sampleRate, o.sampleRate.N(o.buffer)); err != nil {
			streamer.Close()
			return errors.Wrap(err, "failed to initialise speaker")
		}
		o.initialized = true
	}

	o.streamer = streamer
	o.format = format
	o.token = token

	o.mixer.Lock()
	o.drained = false
	o.mixer.Unlock()
	o.queueLocked(true)
	return nil
}

// queueLocked hands the current media to the mixer followed by the end
// callback. The mixer drops the sequence once it has played out and the
// resampler stays at its end mark, so a replay after the end needs both
// rebuilt.
func (o *Output) queueLocked(paused bool) {
	// Resample if needed to match speaker sample rate
	resampled := beep.Resample(4, o.format.SampleRate, o.sampleRate, o.streamer)
	o.ctrl = &beep.Ctrl{Streamer: resampled, Paused: paused}

	streamer, token := o.streamer, o.token
	o.mixer.Play(beep.Seq(o.ctrl, beep.Callback(func() {
		// Runs on the mixer goroutine with the mixer lock held.
		o.drained = true
		ev := playback.MediaEvent{Type: playback.MediaEnded, Token: token}
		if err := streamer.Err(); err != nil {
			ev = playback.MediaEvent{Type: playback.MediaError, Token: token, Err: err}
		}
		go o.emit(ev)
	})))
}

func decode(data []byte) (beep.StreamSeekCloser, beep.Format, error) {
	streamer, format, err := mp3.Decode(nopCloser{bytes.NewReader(data)})
	if err != nil {
		return nil, beep.Format{}, errors.Wrap(err, "failed to decode mp3")
	}
	return streamer, format, nil
}

func (o *Output) emit(ev playback.MediaEvent) {
	select {
	case o.events <- ev:
	case <-o.done:
	}
}

// Play starts the loaded media.
func (o *Output) Play() error {
	return o.setPaused(false)
}

// Pause pauses playback.
func (o *Output) Pause() error {
	return o.setPaused(true)
}

// Resume resumes paused playback.
func (o *Output) Resume() error {
	return o.setPaused(false)
}

func (o *Output) setPaused(paused bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.ctrl == nil {
		return errors.New("nothing loaded")
	}
	o.mixer.Lock()
	o.ctrl.Paused = paused
	requeue := !paused && o.drained
	if requeue {
		o.drained = false
	}
	o.mixer.Unlock()

	if requeue {
		zlog.Debug().Msgf("speaker: requeueing drained media: token=%d", o.token)
		o.queueLocked(false)
	}
	return nil
}

// Seek sets the playback position, clamped to the media length.
func (o *Output) Seek(d time.Duration) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.streamer == nil {
		return nil
	}

	o.mixer.Lock()
	defer o.mixer.Unlock()

	samples := min(max(o.format.SampleRate.N(d), 0), max(o.streamer.Len()-1, 0))
	if err := o.streamer.Seek(samples); err != nil {
		return errors.Wrap(err, "failed to seek")
	}
	return nil
}

// Stop stops playback and releases the decoded media.
func (o *Output) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked()
	return nil
}

// stopLocked stops playback (must be called with lock held).
func (o *Output) stopLocked() {
	if o.initialized {
		o.mixer.Clear()
	}
	if o.streamer != nil {
		if err := o.streamer.Close(); err != nil {
			zlog.Debug().Msgf("speaker: close streamer: %v", err)
		}
		o.streamer = nil
	}
	o.ctrl = nil
}

// Position returns the current playback position.
func (o *Output) Position() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.streamer == nil {
		return 0
	}

	o.mixer.Lock()
	pos := o.streamer.Position()
	o.mixer.Unlock()

	return o.format.SampleRate.D(pos)
}

// Duration returns the total duration of the current media.
func (o *Output) Duration() time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.streamer == nil {
		return 0
	}
	return o.format.SampleRate.D(o.streamer.Len())
}

// Events reports end and error of the current media.
func (o *Output) Events() <-chan playback.MediaEvent {
	return o.events
}

// Close stops playback and closes the speaker.
func (o *Output) Close() error {
	o.once.Do(func() {
		close(o.done)
		o.mu.Lock()
		defer o.mu.Unlock()
		o.stopLocked()
		if o.initialized {
			o.mixer.Close()
			o.initialized = false
		}
	})
	return nil
}

// nopCloser wraps a bytes.Reader to implement io.ReadCloser.
type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
