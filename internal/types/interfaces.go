package types

import (
	"context"
	"time"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// NotificationSink receives a ResolvedOrder after it has been durably
// recorded. The pipeline calls it at most once per recorded order item;
// delivery failures are logged and never retried at this layer.
type NotificationSink interface {
	Notify(ctx context.Context, order ResolvedOrder) error
}

// CommandDispatcher carries a fully substituted command string to the system
// that executes it, together with the identity it targets. Dispatch is
// fire-and-forget from the pipeline's perspective.
type CommandDispatcher interface {
	Dispatch(ctx context.Context, command string, identity string) error
}
