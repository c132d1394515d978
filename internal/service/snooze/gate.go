package snooze

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/oshokin/frigate-notifier/internal/domain/alarm"
	"github.com/oshokin/frigate-notifier/internal/logger"
	repo "github.com/oshokin/frigate-notifier/internal/repository/state"
)

// AlarmSource reads the current alarm panel mode.
type AlarmSource interface {
	ArmState(ctx context.Context) (domain.ArmState, error)
}

// Options configures the gate.
type Options struct {
	// Action is the notification action identifier that activates the snooze.
	Action string
	// Duration is how long a snooze lasts.
	Duration time.Duration
	// Now returns the current time; defaults to time.Now.
	Now func() time.Time
}

// Status describes the snooze as seen by the CLI and the HTTP API.
type Status struct {
	// Snooze is the stored snooze; nil when none was ever stored.
	Snooze *domain.Snooze
	// Active reports whether the snooze window covers the current time.
	Active bool
	// ArmState is the alarm panel mode, StateUnknown when it could not be read.
	ArmState domain.ArmState
	// Suppressing reports whether notifications are currently suppressed.
	Suppressing bool
}

// Gate decides whether notifications are snoozed.
type Gate struct {
	// repo persists the snooze-until instant.
	repo repo.Repository
	// alarm reads the alarm panel.
	alarm AlarmSource
	// action is the snooze action identifier.
	action string
	// duration is the snooze length.
	duration time.Duration
	// now is the clock.
	now func() time.Time
	// mu serialises read-modify-write of the snooze.
	mu sync.Mutex
}

// NewGate creates a gate backed by the repository and alarm source.
func NewGate(repository repo.Repository, alarmSource AlarmSource, opts Options) *Gate {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Gate{
		repo:     repository,
		alarm:    alarmSource,
		action:   opts.Action,
		duration: opts.Duration,
		now:      opts.Now,
	}
}

// Action returns the action identifier the gate reacts to.
func (g *Gate) Action() string {
	return g.action
}

// HandleAction activates the snooze when action matches the snooze action.
// It reports whether the action was the snooze action.
func (g *Gate) HandleAction(ctx context.Context, action string, actor *domain.Actor) (bool, error) {
	if action != g.action {
		logger.DebugKV(ctx, "Ignoring notification action", "action", action)

		return false, nil
	}

	if _, err := g.Activate(ctx, actor); err != nil {
		return true, err
	}

	return true, nil
}

// Activate snoozes notifications for the configured duration from now.
func (g *Gate) Activate(ctx context.Context, actor *domain.Actor) (*domain.Snooze, error) {
	now := g.now()

	return g.store(ctx, &domain.Snooze{
		Until:     now.Add(g.duration),
		UpdatedAt: now,
		LastActor: actor.Clone(),
	})
}

// Clear ends any active snooze.
func (g *Gate) Clear(ctx context.Context, actor *domain.Actor) (*domain.Snooze, error) {
	return g.store(ctx, &domain.Snooze{
		UpdatedAt: g.now(),
		LastActor: actor.Clone(),
	})
}

// IsSnoozed reports true only while the alarm is disarmed and the current
// time is before the stored snooze-until instant. If the alarm state cannot
// be read the gate answers false and returns the error.
func (g *Gate) IsSnoozed(ctx context.Context) (bool, error) {
	snooze, err := g.load(ctx)
	if err != nil {
		return false, err
	}

	if !snooze.ActiveAt(g.now()) {
		return false, nil
	}

	armState, err := g.alarm.ArmState(ctx)
	if err != nil {
		return false, fmt.Errorf("read alarm state: %w", err)
	}

	return armState.IsDisarmed(), nil
}

// Status returns the stored snooze together with the alarm mode.
func (g *Gate) Status(ctx context.Context) (*Status, error) {
	snooze, err := g.load(ctx)
	if err != nil {
		return nil, err
	}

	status := &Status{
		Active:   snooze.ActiveAt(g.now()),
		ArmState: domain.StateUnknown,
	}

	if !snooze.Until.IsZero() {
		status.Snooze = snooze
	}

	armState, err := g.alarm.ArmState(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Failed to read alarm state", "error", err)

		return status, nil
	}

	status.ArmState = armState
	status.Suppressing = status.Active && armState.IsDisarmed()

	return status, nil
}

// load returns the stored snooze, or an empty one when none exists.
func (g *Gate) load(ctx context.Context) (*domain.Snooze, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	snooze, err := g.repo.Load(ctx)
	switch {
	case err == nil && snooze != nil:
		return snooze, nil
	case err == nil, errors.Is(err, repo.ErrNotFound):
		return new(domain.Snooze), nil
	default:
		return nil, fmt.Errorf("load snooze: %w", err)
	}
}

// store persists snooze and logs the change.
func (g *Gate) store(ctx context.Context, snooze *domain.Snooze) (*domain.Snooze, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.repo.Save(ctx, snooze); err != nil {
		logger.Errorf(ctx, "Failed to persist snooze: %v", err)

		return nil, fmt.Errorf("persist snooze: %w", err)
	}

	logger.InfoKV(ctx, "Snooze updated", "until", snooze.Until, "actor", snooze.LastActor)

	return snooze.Clone(), nil
}
