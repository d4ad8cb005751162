// Package mpd provides a playback output that streams previews through an
// MPD server.
package mpd

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fhs/gompd/v2/mpd"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/beatdeck/internal/app/playback"
)

// Config holds MPD output settings.
type Config struct {
	Addr     string `mapstructure:"addr" default:"localhost:6600" validate:"required,hostname_port"`
	Password string `mapstructure:"password"`
}

// Output drives a single-entry MPD queue. Every Load replaces the queue.
type Output struct {
	mu      sync.Mutex
	config  Config
	client  *mpd.Client
	watcher *mpd.Watcher

	token   uint64
	playing bool // play issued and not yet stopped by us or by MPD

	events chan playback.MediaEvent
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// New connects to MPD and starts watching the player subsystem.
func New(config Config) (*Output, error) {
	o := &Output{
		config: config,
		events: make(chan playback.MediaEvent, 8),
		done:   make(chan struct{}),
	}
	if err := o.connectLocked(); err != nil {
		return nil, err
	}

	watcher, err := mpd.NewWatcher("tcp", config.Addr, config.Password, "player")
	if err != nil {
		o.client.Close()
		return nil, errors.Wrap(err, "failed to create MPD watcher")
	}
	o.watcher = watcher

	o.wg.Add(1)
	go o.watch()

	zlog.Info().Msgf("mpd: output ready addr=%s", config.Addr)
	return o, nil
}

func (o *Output) connectLocked() error {
	client, err := mpd.Dial("tcp", o.config.Addr)
	if err != nil {
		return errors.Wrap(err, "failed to connect to MPD")
	}
	if o.config.Password != "" {
		if err := client.Command("password %s", o.config.Password).OK(); err != nil {
			client.Close()
			return errors.Wrap(err, "MPD authentication failed")
		}
	}
	o.client = client
	return nil
}

// ensureConnectedLocked reconnects when MPD has dropped the idle connection.
func (o *Output) ensureConnectedLocked() error {
	if o.client != nil {
		if err := o.client.Ping(); err == nil {
			return nil
		}
		zlog.Warn().Msg("mpd: connection lost, reconnecting")
		o.client.Close()
		o.client = nil
	}
	return o.connectLocked()
}

// Load replaces the MPD queue with m and checks MPD accepted it.
func (o *Output) Load(ctx context.Context, m playback.Media) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := o.ensureConnectedLocked(); err != nil {
		return err
	}

	o.playing = false
	o.token = m.Token

	if err := o.client.Stop(); err != nil {
		return errors.Wrap(err, "failed to stop")
	}
	if err := o.client.Command("clearerror").OK(); err != nil {
		return errors.Wrap(err, "failed to clear error")
	}
	if err := o.client.Clear(); err != nil {
		return errors.Wrap(err, "failed to clear queue")
	}
	if err := o.client.Add(m.URL); err != nil {
		return errors.Wrapf(err, "failed to add %s", m.URL)
	}

	status, err := o.client.Status()
	if err != nil {
		return errors.Wrap(err, "failed to read status")
	}
	if msg := status["error"]; msg != "" {
		return errors.Newf("mpd rejected media: %s", msg)
	}
	return nil
}

// Play starts the loaded media.
func (o *Output) Play() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.ensureConnectedLocked(); err != nil {
		return err
	}
	if err := o.client.Play(0); err != nil {
		return errors.Wrap(err, "failed to play")
	}
	o.playing = true
	return nil
}

// Pause pauses playback.
func (o *Output) Pause() error {
	return o.command(func(c *mpd.Client) error { return c.Pause(true) }, "pause")
}

// Resume resumes paused playback.
func (o *Output) Resume() error {
	return o.command(func(c *mpd.Client) error { return c.Pause(false) }, "resume")
}

// Seek jumps to pos within the current media.
func (o *Output) Seek(pos time.Duration) error {
	return o.command(func(c *mpd.Client) error { return c.SeekCur(pos, false) }, "seek")
}

// Stop stops playback without emitting an end event.
func (o *Output) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.playing = false
	if o.client == nil {
		return nil
	}
	if err := o.client.Stop(); err != nil {
		return errors.Wrap(err, "failed to stop")
	}
	return nil
}

func (o *Output) command(fn func(*mpd.Client) error, name string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.ensureConnectedLocked(); err != nil {
		return err
	}
	if err := fn(o.client); err != nil {
		return errors.Wrapf(err, "failed to %s", name)
	}
	return nil
}

// Position returns the elapsed time of the current media.
func (o *Output) Position() time.Duration {
	return o.statusSeconds("elapsed")
}

// Duration returns the length of the current media, 0 when unknown.
func (o *Output) Duration() time.Duration {
	return o.statusSeconds("duration")
}

func (o *Output) statusSeconds(key string) time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.client == nil {
		return 0
	}
	status, err := o.client.Status()
	if err != nil {
		return 0
	}
	return parseSeconds(status[key])
}

func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

// Events reports end and error of the current media.
func (o *Output) Events() <-chan playback.MediaEvent {
	return o.events
}

func (o *Output) watch() {
	defer o.wg.Done()
	for {
		select {
		case <-o.done:
			return
		case subsystem, ok := <-o.watcher.Event:
			if !ok {
				return
			}
			if subsystem == "player" {
				o.checkPlayer()
			}
		case err, ok := <-o.watcher.Error:
			if !ok {
				return
			}
			zlog.Error().Msgf("mpd: watcher error: %v", err)
		}
	}
}

// checkPlayer turns "stopped after we started playing" into an event.
func (o *Output) checkPlayer() {
	o.mu.Lock()
	if !o.playing || o.client == nil {
		o.mu.Unlock()
		return
	}
	status, err := o.client.Status()
	if err != nil {
		o.mu.Unlock()
		zlog.Warn().Msgf("mpd: status after player change: %v", err)
		return
	}

	var ev *playback.MediaEvent
	switch {
	case status["error"] != "":
		ev = &playback.MediaEvent{Type: playback.MediaError, Token: o.token, Err: errors.New(status["error"])}
	case status["state"] == "stop":
		ev = &playback.MediaEvent{Type: playback.MediaEnded, Token: o.token}
	}
	if ev != nil {
		o.playing = false
	}
	o.mu.Unlock()

	if ev == nil {
		return
	}
	select {
	case o.events <- *ev:
	case <-o.done:
	}
}

// Close stops watching and disconnects.
func (o *Output) Close() error {
	var err error
	o.once.Do(func() {
		close(o.done)
		o.wg.Wait()
		if o.watcher != nil {
			// The idle loop may be blocked delivering a change.
			go drain(o.watcher)
			o.watcher.Close()
		}

		o.mu.Lock()
		defer o.mu.Unlock()
		if o.client != nil {
			err = o.client.Close()
			o.client = nil
		}
	})
	return err
}

func drain(w *mpd.Watcher) {
	for {
		select {
		case _, ok := <-w.Event:
			if !ok {
				return
			}
		case _, ok := <-w.Error:
			if !ok {
				return
			}
		}
	}
}
