package syncer

import "errors"

var (
	// ErrMissingSource is logged only; the originating record is treated as handled.
	ErrMissingSource = errors.New("source record not found")

	// ErrUnknownEntityType is logged and skipped; the item stays in the queue.
	ErrUnknownEntityType = errors.New("unknown entity type")

	// ErrUnknownChangeKind fails the attempt and goes through the retry path.
	ErrUnknownChangeKind = errors.New("unknown change type")

	ErrInvalidEntityID = errors.New("invalid entity id")
)
