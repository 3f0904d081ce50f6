package syncer

import "clinicsync/internal/models"

// Resolve decides whether source should overwrite destination. It returns the
// record to persist and true, or false when the destination is kept.
//
// Rules, in order: both stamps missing keeps the destination; a missing source
// stamp never overwrites a stamped destination; a missing destination stamp
// takes the source; a strictly newer source wins; ties go to the destination.
// Both records must be non-nil.
func Resolve[P models.Syncable](source, destination P, _ models.Direction) (P, bool) {
	var none P
	srcAt := source.LastUpdated()
	dstAt := destination.LastUpdated()

	switch {
	case srcAt == nil && dstAt == nil:
		return none, false
	case srcAt == nil:
		return none, false
	case dstAt == nil:
		return source, true
	case srcAt.After(*dstAt):
		return source, true
	default:
		return none, false
	}
}
