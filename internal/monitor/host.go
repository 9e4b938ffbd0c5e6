package monitor

import (
	"context"
	"errors"
	"image"
	"time"
)

var (
	// ErrMissingFrame means the video source produced no frame for this tick.
	ErrMissingFrame = errors.New("video frame unavailable")

	// ErrMissingAudioSource means the audio source could not be queried.
	ErrMissingAudioSource = errors.New("audio source unavailable")
)

// FrameSource returns the most recent decoded frame of a named video source.
type FrameSource interface {
	Frame(ctx context.Context, source string) (image.Image, error)
}

// AudioSource returns the current linear volume of a named audio source.
type AudioSource interface {
	OutputVolume(ctx context.Context, source string) (float64, error)
}

// Transport controls the active recording.
type Transport interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
}

// Host bundles everything the monitor needs from the recording application.
type Host interface {
	FrameSource
	AudioSource
	Transport
}

// TickFunc is a timer callback.
type TickFunc func(ctx context.Context)

// Timer is a recurring timer handle.
type Timer interface {
	Reset(period time.Duration)
	Stop()
}

// Scheduler registers recurring timers.
type Scheduler interface {
	Schedule(fn TickFunc, period time.Duration) Timer
}
