package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/oshokin/frigate-notifier/internal/domain/alarm"
	"github.com/oshokin/frigate-notifier/internal/homeassistant"
)

// EntityClient is the part of the Home Assistant client the entity repository uses.
type EntityClient interface {
	GetState(ctx context.Context, entityID string) (*homeassistant.State, error)
	SetDateTime(ctx context.Context, entityID string, t time.Time) error
}

// EntityRepository persists the snooze in a Home Assistant input_datetime entity.
// The entity only holds the instant, so UpdatedAt and LastActor are kept in memory.
type EntityRepository struct {
	// client talks to Home Assistant.
	client EntityClient
	// entityID is the input_datetime entity, e.g. input_datetime.camera_snooze_until.
	entityID string

	// last remembers metadata that the entity cannot store.
	last *domain.Snooze
	// mu protects last.
	mu sync.Mutex
}

// NewEntityRepository creates a repository backed by the given entity.
func NewEntityRepository(client EntityClient, entityID string) *EntityRepository {
	return &EntityRepository{
		client:   client,
		entityID: entityID,
	}
}

// Load reads the snooze instant from the entity's timestamp attribute.
func (r *EntityRepository) Load(ctx context.Context) (*domain.Snooze, error) {
	entity, err := r.client.GetState(ctx, r.entityID)
	if err != nil {
		if errors.Is(err, homeassistant.ErrEntityNotFound) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("read snooze entity: %w", err)
	}

	until, ok := entity.Timestamp()
	if !ok {
		return nil, ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	snooze := &domain.Snooze{Until: until}
	if r.last != nil && r.last.Until.Equal(until) {
		snooze.UpdatedAt = r.last.UpdatedAt
		snooze.LastActor = r.last.LastActor.Clone()
	}

	return snooze, nil
}

// Save writes the snooze instant to the entity.
func (r *EntityRepository) Save(ctx context.Context, snooze *domain.Snooze) error {
	if err := r.client.SetDateTime(ctx, r.entityID, snooze.Until); err != nil {
		return fmt.Errorf("write snooze entity: %w", err)
	}

	r.mu.Lock()
	r.last = snooze.Clone()
	r.mu.Unlock()

	return nil
}
