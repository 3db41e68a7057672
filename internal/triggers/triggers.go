// Package triggers holds the event-trigger detectors: handlers invoked by the
// document store's change feed that decide, at most once per logical event,
// whether a notification job should be enqueued. Detectors never raise errors
// back to the feed - internal failures degrade gracefully and are logged.
package triggers

import (
	"context"

	"hooked-notifications-worker/internal/models"
	"hooked-notifications-worker/internal/services"
)

// Store is what the detectors need from the document store.
type Store interface {
	ClaimIdempotencyKey(ctx context.Context, key string) (bool, error)
	EnqueueJob(ctx context.Context, job *models.NotificationJob) (bool, error)
	IsForeground(ctx context.Context, sessionId string) bool
	IsMuted(ctx context.Context, eventId, muterSessionId, mutedSessionId string) (bool, error)
	ProfileSessionId(ctx context.Context, eventId, profileId string) (string, error)
	ProfileDisplayName(ctx context.Context, eventId, profileId string) (string, error)
}

// Detectors bundles the trigger handlers with their dependencies. onEnqueue
// is called after every job creation so the delivery worker can drain
// opportunistically instead of waiting for the next scheduled cycle.
type Detectors struct {
	store     Store
	metrics   *services.Metrics
	onEnqueue func()
}

func NewDetectors(store Store, metrics *services.Metrics, onEnqueue func()) *Detectors {
	if onEnqueue == nil {
		onEnqueue = func() {}
	}
	return &Detectors{store: store, metrics: metrics, onEnqueue: onEnqueue}
}
