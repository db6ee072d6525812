package domain

import "context"

// TallyPublisher hands a committed snapshot to whoever fans it out to viewers.
// Implementations must not block on slow viewers.
type TallyPublisher interface {
	PublishTally(ctx context.Context, snapshot Snapshot) error
}
