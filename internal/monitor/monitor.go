// Package monitor pauses and resumes a recording when the scene goes still and silent.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"
)

// Settings holds the user-tunable thresholds.
type Settings struct {
	CheckInterval      int     `json:"check_interval"`      // seconds
	SilenceThreshold   float64 `json:"silence_threshold"`   // dB
	StillnessThreshold float64 `json:"stillness_threshold"` // fraction of changed pixels
	VideoSource        string  `json:"video_source"`
	AudioSource        string  `json:"audio_source"`
}

// DefaultSettings returns the stock thresholds.
func DefaultSettings() Settings {
	return Settings{
		CheckInterval:      1,
		SilenceThreshold:   -50.0,
		StillnessThreshold: 0.01,
		VideoSource:        "Scene",
		AudioSource:        "Desktop Audio",
	}
}

// Period returns the timer period for the check interval.
func (s Settings) Period() time.Duration {
	if s.CheckInterval < 1 {
		return time.Second
	}
	return time.Duration(s.CheckInterval) * time.Second
}

// State is the recording state as seen by the monitor.
type State string

const (
	StateRecording State = "RECORDING"
	StatePaused    State = "PAUSED"
)

// Snapshot describes the outcome of the most recent tick.
type Snapshot struct {
	State        State     `json:"state"`
	Ticks        uint64    `json:"ticks"`
	LastTick     time.Time `json:"last_tick"`
	HaveFrame    bool      `json:"have_frame"`
	DiffFraction float64   `json:"diff_fraction"`
	LevelDB      float64   `json:"level_db"`
	Still        bool      `json:"still"`
	Silent       bool      `json:"silent"`
	LastError    string    `json:"last_error,omitempty"`
	Settings     Settings  `json:"settings"`
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithLogger sets the logger used for tick diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.logger = l }
}

// WithClock overrides the time source used for snapshots.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// Monitor is the poll-driven stillness/silence decision loop.
type Monitor struct {
	host      Host
	scheduler Scheduler
	logger    *slog.Logger
	now       func() time.Time

	// tickMu serializes ticks; mu guards the fields below and is never
	// held across host calls.
	tickMu sync.Mutex

	mu        sync.Mutex
	settings  Settings
	paused    bool
	lastFrame *image.Gray
	timer     Timer
	period    time.Duration
	unloaded  bool
	snap      Snapshot
}

// New creates a monitor bound to host and scheduler.
func New(host Host, scheduler Scheduler, opts ...Option) *Monitor {
	m := &Monitor{
		host:      host,
		scheduler: scheduler,
		logger:    slog.Default(),
		now:       time.Now,
		settings:  DefaultSettings(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load resets state, applies settings, runs one tick immediately and starts the timer.
func (m *Monitor) Load(ctx context.Context, s Settings) {
	m.mu.Lock()
	m.paused = false
	m.lastFrame = nil
	m.unloaded = false
	m.snap = Snapshot{}
	m.mu.Unlock()

	m.ApplySettings(s)
	m.logger.Info("monitor loaded",
		"check_interval", s.CheckInterval,
		"silence_threshold", s.SilenceThreshold,
		"stillness_threshold", s.StillnessThreshold,
		"video_source", s.VideoSource,
		"audio_source", s.AudioSource)

	m.EvaluateTick(ctx)
}

// ApplySettings replaces the settings; they take effect on the next tick.
// An existing timer is reset to the new period rather than replaced.
func (m *Monitor) ApplySettings(s Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.settings = s
	m.logger.Info("updated settings",
		"check_interval", s.CheckInterval,
		"silence_threshold", s.SilenceThreshold,
		"stillness_threshold", s.StillnessThreshold)

	if m.timer != nil {
		m.period = s.Period()
		m.timer.Reset(m.period)
	}
}

// Unload stops the timer. It is safe to call more than once and leaves
// the recording state untouched.
func (m *Monitor) Unload() {
	m.mu.Lock()
	t := m.timer
	m.timer = nil
	m.unloaded = true
	m.mu.Unlock()

	if t != nil {
		t.Stop()
		m.logger.Info("monitor unloaded")
	}
}

// Paused reports whether the monitor has paused the recording.
func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// Settings returns the active settings.
func (m *Monitor) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// Snapshot returns the outcome of the most recent tick.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap := m.snap
	snap.State = m.state()
	snap.Settings = m.settings
	return snap
}

// EvaluateTick runs one pause/resume decision. Failures are logged, never returned.
// Host calls run without holding the state lock, so Snapshot and ApplySettings
// do not wait on a slow host.
func (m *Monitor) EvaluateTick(ctx context.Context) {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()

	m.mu.Lock()
	s := m.settings
	last := m.lastFrame
	paused := m.paused
	m.snap.Ticks++
	m.snap.LastTick = m.now()
	m.mu.Unlock()

	err := m.tick(ctx, s, last, paused)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.snap.LastError = err.Error()
		switch {
		case errors.Is(err, ErrMissingFrame):
			m.logger.Warn("no frame available, skipping tick", "source", s.VideoSource, "error", err)
		default:
			m.logger.Error("tick failed", "error", err)
		}
	} else {
		m.snap.LastError = ""
	}

	m.reschedule()
}

func (m *Monitor) tick(ctx context.Context, s Settings, last *image.Gray, paused bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()

	frame, err := m.host.Frame(ctx, s.VideoSource)
	if err != nil {
		return fmt.Errorf("get frame: %w", err)
	}
	if frame == nil {
		return ErrMissingFrame
	}

	luma := Luma(frame)
	still := false
	fraction := 1.0
	if last != nil {
		fraction = DiffFraction(last, luma)
		still = IsStill(fraction, s.StillnessThreshold)
	}
	m.mu.Lock()
	m.lastFrame = luma
	m.mu.Unlock()

	silent := false
	db := FloorDB
	volume, err := m.host.OutputVolume(ctx, s.AudioSource)
	switch {
	case errors.Is(err, ErrMissingAudioSource):
		m.logger.Warn("no audio source available, assuming not silent", "source", s.AudioSource, "error", err)
	case err != nil:
		return fmt.Errorf("get audio volume: %w", err)
	default:
		db = VolumeToDB(volume)
		silent = IsSilent(db, s.SilenceThreshold)
	}

	m.mu.Lock()
	m.snap.HaveFrame = true
	m.snap.DiffFraction = fraction
	m.snap.LevelDB = db
	m.snap.Still = still
	m.snap.Silent = silent
	m.mu.Unlock()

	m.logger.Debug("tick evaluated",
		"diff_fraction", fraction,
		"level_db", db,
		"still", still,
		"silent", silent,
		"paused", paused)

	m.transition(ctx, still, silent, paused)
	return nil
}

// transition applies the edge-triggered pause/resume rule.
func (m *Monitor) transition(ctx context.Context, still, silent, paused bool) {
	switch {
	case still && silent && !paused:
		if err := m.host.Pause(ctx); err != nil {
			m.logger.Warn("pause request failed", "error", err)
		}
		m.setPaused(true)
		m.logger.Info("recording paused", "reason", "still and silent")
	case !still && !silent && paused:
		if err := m.host.Resume(ctx); err != nil {
			m.logger.Warn("resume request failed", "error", err)
		}
		m.setPaused(false)
		m.logger.Info("recording resumed", "reason", "motion and sound")
	}
}

func (m *Monitor) setPaused(p bool) {
	m.mu.Lock()
	m.paused = p
	m.mu.Unlock()
}

// reschedule makes sure exactly one timer runs at the configured period.
func (m *Monitor) reschedule() {
	if m.unloaded || m.scheduler == nil {
		return
	}
	period := m.settings.Period()
	if m.timer == nil {
		m.timer = m.scheduler.Schedule(m.EvaluateTick, period)
		m.period = period
		return
	}
	if period != m.period {
		m.timer.Reset(period)
		m.period = period
	}
}

func (m *Monitor) state() State {
	if m.paused {
		return StatePaused
	}
	return StateRecording
}
