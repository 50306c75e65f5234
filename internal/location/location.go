// Package location acquires a one-shot GPS fix for the capture session.
package location

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/geotag/photomap/internal/config"
	"github.com/geotag/photomap/internal/geo"
	"github.com/geotag/photomap/internal/notify"
	"github.com/geotag/photomap/pkg/core"
)

// Options tune a fix request.
type Options struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaximumAge   time.Duration
}

// DefaultOptions asks for a high-accuracy fix within 15s, accepting one up to 10s old.
func DefaultOptions() Options {
	return Options{HighAccuracy: true, Timeout: 15 * time.Second, MaximumAge: 10 * time.Second}
}

// OptionsFromConfig converts the location config section.
func OptionsFromConfig(cfg config.LocationConfig) Options {
	opts := Options{HighAccuracy: cfg.HighAccuracy, Timeout: cfg.Timeout, MaximumAge: cfg.MaximumAge}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	return opts
}

// Provider is the device positioning capability.
type Provider interface {
	GetCurrentPosition(ctx context.Context, opts Options) (core.Coords, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, opts Options) (core.Coords, error)

// GetCurrentPosition calls f.
func (f ProviderFunc) GetCurrentPosition(ctx context.Context, opts Options) (core.Coords, error) {
	return f(ctx, opts)
}

// Permissions is the subset of the permission gate the acquirer needs.
type Permissions interface {
	RequestLocation(ctx context.Context) bool
}

// Sink receives an acquired fix.
type Sink interface {
	SetLocation(core.Coords)
}

// Phase of the acquisition state machine.
type Phase int

const (
	Idle Phase = iota
	Acquiring
	Acquired
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Acquiring:
		return "acquiring"
	case Acquired:
		return "acquired"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Failure reasons.
const (
	ReasonPermissionDenied = "permission denied"
	ReasonTimeout          = "location timeout"
)

// State is the observable acquirer state.
type State struct {
	Phase  Phase
	Coords core.Coords
	Reason string
}

// Status renders the state for a capture screen.
func (s State) Status() string {
	switch s.Phase {
	case Acquiring:
		return "Getting location..."
	case Acquired:
		return "Location: " + geo.FormatCoords(s.Coords)
	case Failed:
		return "Location unavailable: " + s.Reason
	default:
		return "Location not requested"
	}
}

// CanRetry reports whether a retry affordance should be shown.
func (s State) CanRetry() bool {
	return s.Phase == Idle || s.Phase == Failed
}

// Dependencies holds the acquirer collaborators. Notifier and Logger are optional.
type Dependencies struct {
	Permissions Permissions
	Provider    Provider
	Sink        Sink
	Notifier    notify.Notifier
	Logger      *slog.Logger
}

// Acquirer runs Idle -> Acquiring -> Acquired|Failed with at most one
// acquisition in flight.
type Acquirer struct {
	deps Dependencies
	opts Options

	mu        sync.Mutex
	state     State
	listeners []func(State)
}

// New creates an idle acquirer.
func New(deps Dependencies, opts Options) *Acquirer {
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Acquirer{deps: deps, opts: opts}
}

// State returns the current state.
func (a *Acquirer) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// OnChange registers a listener for state transitions.
func (a *Acquirer) OnChange(fn func(State)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// Acquire requests a fix and blocks until it resolves. While an acquisition
// is already running it returns the current state without side effects. If
// ctx is cancelled the acquirer goes back to its previous state and the
// session is left untouched.
func (a *Acquirer) Acquire(ctx context.Context) State {
	a.mu.Lock()
	if a.state.Phase == Acquiring {
		st := a.state
		a.mu.Unlock()
		return st
	}
	previous := a.state
	a.state = State{Phase: Acquiring}
	listeners := append([]func(State){}, a.listeners...)
	a.mu.Unlock()

	for _, l := range listeners {
		l(State{Phase: Acquiring})
	}

	if !a.deps.Permissions.RequestLocation(ctx) {
		if ctx.Err() != nil {
			return a.transition(previous)
		}
		return a.fail(ReasonPermissionDenied)
	}

	fixCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
	defer cancel()

	coords, err := a.deps.Provider.GetCurrentPosition(fixCtx, a.opts)
	if err == nil {
		err = geo.Validate(coords)
	}

	switch {
	case ctx.Err() != nil:
		return a.transition(previous)
	case err == nil:
		a.deps.Sink.SetLocation(coords)
		a.deps.Logger.Debug("Location acquired", "latitude", coords.Latitude, "longitude", coords.Longitude)
		return a.transition(State{Phase: Acquired, Coords: coords})
	case errors.Is(err, core.ErrPermissionDenied):
		return a.fail(ReasonPermissionDenied)
	case errors.Is(err, core.ErrLocationTimeout), errors.Is(err, context.DeadlineExceeded):
		return a.fail(ReasonTimeout)
	default:
		return a.fail(err.Error())
	}
}

// Retry re-enters Acquiring from any settled state.
func (a *Acquirer) Retry(ctx context.Context) State {
	return a.Acquire(ctx)
}

func (a *Acquirer) fail(reason string) State {
	a.deps.Logger.Warn("Location acquisition failed", "reason", reason)
	if reason == ReasonPermissionDenied {
		a.deps.Notifier.Failure("Permission denied", "Location access is required.")
	} else {
		a.deps.Notifier.Failure("Location error", reason)
	}
	return a.transition(State{Phase: Failed, Reason: reason})
}

func (a *Acquirer) transition(s State) State {
	a.mu.Lock()
	a.state = s
	listeners := append([]func(State){}, a.listeners...)
	a.mu.Unlock()

	for _, l := range listeners {
		l(s)
	}
	return s
}
