package obs

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/audiolibrelab/autopause/internal/monitor"
)

// AudioMode selects how the audio level is read.
type AudioMode string

const (
	// AudioModeVolume reads the input's fader volume.
	AudioModeVolume AudioMode = "volume"
	// AudioModeMeter reads the live level from volume meter events.
	AudioModeMeter AudioMode = "meter"
)

// ParseAudioMode validates an audio mode name.
func ParseAudioMode(s string) (AudioMode, error) {
	switch AudioMode(strings.ToLower(s)) {
	case AudioModeVolume, "":
		return AudioModeVolume, nil
	case AudioModeMeter:
		return AudioModeMeter, nil
	}
	return "", fmt.Errorf("unknown audio mode %q (want volume or meter)", s)
}

// EventSubscriptions returns the subscription mask a mode needs.
func (m AudioMode) EventSubscriptions() int {
	if m == AudioModeMeter {
		return EventSubscriptionInputVolumeMeters
	}
	return EventSubscriptionNone
}

// Host adapts a Client to the monitor's capability interfaces.
type Host struct {
	client          *Client
	mode            AudioMode
	screenshotWidth int
}

var _ monitor.Host = (*Host)(nil)

// NewHost wraps client. screenshotWidth scales frames down before comparison; zero keeps full size.
func NewHost(client *Client, mode AudioMode, screenshotWidth int) *Host {
	return &Host{client: client, mode: mode, screenshotWidth: screenshotWidth}
}

// Frame implements monitor.FrameSource.
func (h *Host) Frame(ctx context.Context, source string) (image.Image, error) {
	img, err := h.client.GetSourceScreenshot(ctx, source, h.screenshotWidth)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", monitor.ErrMissingFrame, err)
	}
	return img, err
}

// OutputVolume implements monitor.AudioSource.
func (h *Host) OutputVolume(ctx context.Context, source string) (float64, error) {
	if h.mode == AudioModeMeter {
		level, ok := h.client.MeterLevel(source)
		if !ok {
			return 0, fmt.Errorf("%w: no recent meter reading for %q", monitor.ErrMissingAudioSource, source)
		}
		return level, nil
	}

	v, err := h.client.GetInputVolume(ctx, source)
	if errors.Is(err, ErrNotFound) {
		return 0, fmt.Errorf("%w: %v", monitor.ErrMissingAudioSource, err)
	}
	if err != nil {
		return 0, err
	}
	return v.Mul, nil
}

// Pause implements monitor.Transport. Pausing an already paused recording succeeds.
func (h *Host) Pause(ctx context.Context) error {
	err := h.client.PauseRecord(ctx)
	if hasCode(err, CodeOutputPaused) {
		return nil
	}
	return err
}

// Resume implements monitor.Transport. Resuming a running recording succeeds.
func (h *Host) Resume(ctx context.Context) error {
	err := h.client.ResumeRecord(ctx)
	if hasCode(err, CodeOutputNotPaused) {
		return nil
	}
	return err
}

func hasCode(err error, code int) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.Code == code
}
