package syncer

import (
	"context"
	"fmt"

	"clinicsync/internal/database"
	"clinicsync/internal/models"

	"github.com/rs/zerolog"
)

// Route is the pair of stores one pass reads from and writes to.
type Route struct {
	Direction   models.Direction
	Source      *database.DB
	Destination *database.DB
}

// Handler applies one queue item to the destination store.
type Handler interface {
	EntityType() models.EntityType
	Process(ctx context.Context, item models.QueueItem, route Route) error
}

// Finder loads one record of a tenant, returning nil when it does not exist.
type Finder[T any] func(ctx context.Context, db *database.DB, entityID string, tenantID int64) (*T, error)

// Saver writes one record of a tenant, including its child collections if it
// has any.
type Saver[T any] func(ctx context.Context, db *database.DB, tenantID int64, rec *T) error

// Options describes how a strategy reaches its entity.
type Options[T any] struct {
	Find Finder[T]
	Save Saver[T]
	// Adopt copies the winner onto the managed destination record. Entities
	// without child collections leave it nil and the winner is saved as is.
	Adopt func(managed, winner *T)
	// Kinds restricts the accepted change kinds. Empty means all three.
	Kinds []models.ChangeKind
}

// Strategy is the create/update/delete handler shared by every entity type.
type Strategy[T any, P interface {
	*T
	models.Syncable
}] struct {
	entityType models.EntityType
	opts       Options[T]
	kinds      map[models.ChangeKind]bool
	logger     *zerolog.Logger
}

func NewStrategy[T any, P interface {
	*T
	models.Syncable
}](entityType models.EntityType, opts Options[T], logger *zerolog.Logger) *Strategy[T, P] {
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = []models.ChangeKind{models.ChangeCreate, models.ChangeUpdate, models.ChangeDelete}
	}
	allowed := make(map[models.ChangeKind]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}

	return &Strategy[T, P]{
		entityType: entityType,
		opts:       opts,
		kinds:      allowed,
		logger:     logger,
	}
}

func (s *Strategy[T, P]) EntityType() models.EntityType {
	return s.entityType
}

func (s *Strategy[T, P]) Process(ctx context.Context, item models.QueueItem, route Route) error {
	if !s.kinds[item.ChangeKind] {
		return fmt.Errorf("%w %q for %s", ErrUnknownChangeKind, item.ChangeKind, s.entityType)
	}

	switch item.ChangeKind {
	case models.ChangeCreate:
		return s.create(ctx, item, route)
	case models.ChangeUpdate:
		return s.update(ctx, item, route)
	case models.ChangeDelete:
		return s.delete(ctx, item, route)
	default:
		return fmt.Errorf("%w %q for %s", ErrUnknownChangeKind, item.ChangeKind, s.entityType)
	}
}

// create inserts the source record unless the destination already has it,
// in which case the item is handled as an update.
func (s *Strategy[T, P]) create(ctx context.Context, item models.QueueItem, route Route) error {
	existing, err := s.opts.Find(ctx, route.Destination, item.EntityID, item.TenantID)
	if err != nil {
		return err
	}
	if existing != nil {
		return s.update(ctx, item, route)
	}

	source, err := s.opts.Find(ctx, route.Source, item.EntityID, item.TenantID)
	if err != nil {
		return err
	}
	if source == nil {
		s.missingSource(item, route)
		return nil
	}

	return s.opts.Save(ctx, route.Destination, item.TenantID, source)
}

func (s *Strategy[T, P]) update(ctx context.Context, item models.QueueItem, route Route) error {
	source, err := s.opts.Find(ctx, route.Source, item.EntityID, item.TenantID)
	if err != nil {
		return err
	}
	if source == nil {
		s.missingSource(item, route)
		return nil
	}

	destination, err := s.opts.Find(ctx, route.Destination, item.EntityID, item.TenantID)
	if err != nil {
		return err
	}
	if destination == nil {
		return s.opts.Save(ctx, route.Destination, item.TenantID, source)
	}

	winner, ok := Resolve(P(source), P(destination), route.Direction)
	if !ok {
		s.logger.Debug().
			Str("entity_type", string(s.entityType)).
			Str("entity_id", item.EntityID).
			Str("direction", route.Direction.String()).
			Msg("destination is up to date, keeping it")
		return nil
	}

	if s.opts.Adopt != nil {
		s.opts.Adopt(destination, winner)
		return s.opts.Save(ctx, route.Destination, item.TenantID, destination)
	}
	return s.opts.Save(ctx, route.Destination, item.TenantID, winner)
}

// delete marks the destination record as deleted. Absent records are a no-op.
func (s *Strategy[T, P]) delete(ctx context.Context, item models.QueueItem, route Route) error {
	destination, err := s.opts.Find(ctx, route.Destination, item.EntityID, item.TenantID)
	if err != nil {
		return err
	}
	if destination == nil {
		s.logger.Debug().
			Str("entity_type", string(s.entityType)).
			Str("entity_id", item.EntityID).
			Msg("nothing to delete in destination")
		return nil
	}

	deletable, ok := any(destination).(models.SoftDeletable)
	if !ok {
		return fmt.Errorf("%w %q for %s", ErrUnknownChangeKind, item.ChangeKind, s.entityType)
	}
	deletable.MarkDeleted()

	return s.opts.Save(ctx, route.Destination, item.TenantID, destination)
}

func (s *Strategy[T, P]) missingSource(item models.QueueItem, route Route) {
	s.logger.Warn().
		Err(ErrMissingSource).
		Str("entity_type", string(s.entityType)).
		Str("entity_id", item.EntityID).
		Int64("account_id", item.TenantID).
		Str("direction", route.Direction.String()).
		Msg("skipping sync item")
}
