package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/frigate-notifier/internal/config"
	domain "github.com/oshokin/frigate-notifier/internal/domain/alarm"
	"github.com/oshokin/frigate-notifier/internal/homeassistant"
	"github.com/oshokin/frigate-notifier/internal/logger"
	repo "github.com/oshokin/frigate-notifier/internal/repository/state"
	"github.com/oshokin/frigate-notifier/internal/service/common"
	"github.com/oshokin/frigate-notifier/internal/service/snooze"
)

// Operation selects what the command does with the snooze.
type Operation string

const (
	// OperationSnooze starts a snooze.
	OperationSnooze Operation = "snooze"
	// OperationClear ends any snooze.
	OperationClear Operation = "clear"
	// OperationStatus only prints the snooze.
	OperationStatus Operation = "status"
)

// Options configures the snooze command.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// Operation is the requested change.
	Operation Operation
	// Duration overrides the configured snooze duration when positive.
	Duration time.Duration
}

// errUnknownOperation is returned for an unsupported operation.
var errUnknownOperation = errors.New("unknown snooze operation")

// Run performs the requested operation and logs the resulting status.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "frigate-snooze")

	// Load settings from configuration file.
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	gate, err := newGate(cfg, opts.Duration)
	if err != nil {
		return err
	}

	status, err := apply(ctx, gate, opts.Operation)
	if err != nil {
		return err
	}

	logger.Infof(ctx, "Snooze: %s", formatStatus(status))

	return nil
}

// newGate builds a snooze gate on the configured store.
func newGate(cfg *config.Config, duration time.Duration) (*snooze.Gate, error) {
	ha := &cfg.HomeAssistant

	client, err := homeassistant.NewClient(ha.URL, ha.Token, homeassistant.WithTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("create home assistant client: %w", err)
	}

	var repository repo.Repository = repo.NewFileRepository(cfg.SnoozeStore.Path)
	if cfg.SnoozeStore.Kind == config.SnoozeStoreHomeAssistant {
		repository = repo.NewEntityRepository(client, ha.SnoozeEntity)
	}

	if duration <= 0 {
		duration = cfg.Notifications.SnoozeDuration
	}

	return snooze.NewGate(repository, client.AlarmPanel(ha.AlarmEntity), snooze.Options{
		Action:   cfg.Notifications.SnoozeAction,
		Duration: duration,
	}), nil
}

// apply runs op against gate and returns the status afterwards.
func apply(ctx context.Context, gate *snooze.Gate, op Operation) (*snooze.Status, error) {
	switch op {
	case OperationStatus:
	case OperationSnooze, OperationClear:
		// Identify current user and hostname for the audit trail.
		actor, err := common.DetectActor()
		if err != nil {
			return nil, err
		}

		if op == OperationSnooze {
			_, err = gate.Activate(ctx, actor)
		} else {
			_, err = gate.Clear(ctx, actor)
		}

		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownOperation, op)
	}

	return gate.Status(ctx)
}

// formatStatus converts a snooze status to a readable log message.
func formatStatus(status *snooze.Status) string {
	if status == nil {
		return "<nil status>"
	}

	if status.Snooze == nil {
		return fmt.Sprintf("not set, alarm %s", status.ArmState)
	}

	state := "inactive"
	if status.Active {
		state = "active"
	}

	if status.Suppressing {
		state = "suppressing notifications"
	}

	return fmt.Sprintf("%s until %s, alarm %s, changed by %s (%s)",
		state,
		status.Snooze.Until.Format(time.RFC3339),
		status.ArmState,
		formatActor(status.Snooze.LastActor),
		status.Snooze.UpdatedAt.Format(time.RFC3339),
	)
}

// formatActor renders username@hostname with a fallback.
func formatActor(actor *domain.Actor) string {
	if actor == nil {
		return "<unknown>"
	}

	return fmt.Sprintf("%s@%s", actor.Username, actor.Hostname)
}
