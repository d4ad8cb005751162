//go:build !((linux && cgo) || windows || darwin)

package speaker

import (
	"context"
	"time"

	"github.com/osa030/beatdeck/internal/app/playback"
)

// Available indicates whether audio playback is supported in this build.
// Audio requires CGO for native sound libraries.
const Available = false

// Output is a placeholder for builds without audio support.
type Output struct{}

// New always fails with ErrAudioUnavailable.
func New(Config) (*Output, error) {
	return nil, ErrAudioUnavailable
}

func (*Output) Load(context.Context, playback.Media) error { return ErrAudioUnavailable }
func (*Output) Play() error                                 { return ErrAudioUnavailable }
func (*Output) Pause() error                                { return ErrAudioUnavailable }
func (*Output) Resume() error                               { return ErrAudioUnavailable }
func (*Output) Seek(time.Duration) error                    { return ErrAudioUnavailable }
func (*Output) Stop() error                                 { return nil }
func (*Output) Position() time.Duration                     { return 0 }
func (*Output) Duration() time.Duration                     { return 0 }
func (*Output) Events() <-chan playback.MediaEvent          { return nil }
func (*Output) Close() error                                { return nil }
