package triggers

import (
	"context"
	"errors"

	"hooked-notifications-worker/internal/models"
	"hooked-notifications-worker/internal/services"
)

// fakeStore implements Store in memory, including the enqueue-time duplicate
// suppression contract (same aggregation key + subject drops silently).
type fakeStore struct {
	claims     map[string]bool
	claimErr   error
	enqueued   []*models.NotificationJob
	enqueueErr error
	foreground map[string]bool
	muted      map[string]bool
	muteErr    error
	sessions   map[string]string
	sessionErr error
	names      map[string]string
	nameErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		claims:     make(map[string]bool),
		foreground: make(map[string]bool),
		muted:      make(map[string]bool),
		sessions:   make(map[string]string),
		names:      make(map[string]string),
	}
}

func (f *fakeStore) ClaimIdempotencyKey(_ context.Context, key string) (bool, error) {
	if f.claimErr != nil {
		return false, f.claimErr
	}
	if f.claims[key] {
		return false, nil
	}
	f.claims[key] = true
	return true, nil
}

func (f *fakeStore) EnqueueJob(_ context.Context, job *models.NotificationJob) (bool, error) {
	if f.enqueueErr != nil {
		return false, f.enqueueErr
	}
	for _, existing := range f.enqueued {
		if existing.AggregationKey == job.AggregationKey && existing.SubjectSessionId == job.SubjectSessionId {
			return false, nil
		}
	}
	f.enqueued = append(f.enqueued, job)
	return true, nil
}

func (f *fakeStore) IsForeground(_ context.Context, sessionId string) bool {
	return f.foreground[sessionId]
}

func (f *fakeStore) IsMuted(_ context.Context, eventId, muterSessionId, mutedSessionId string) (bool, error) {
	if f.muteErr != nil {
		return false, f.muteErr
	}
	return f.muted[eventId+"|"+muterSessionId+"|"+mutedSessionId], nil
}

func (f *fakeStore) ProfileSessionId(_ context.Context, eventId, profileId string) (string, error) {
	if f.sessionErr != nil {
		return "", f.sessionErr
	}
	return f.sessions[eventId+"|"+profileId], nil
}

func (f *fakeStore) ProfileDisplayName(_ context.Context, eventId, profileId string) (string, error) {
	if f.nameErr != nil {
		return "", f.nameErr
	}
	return f.names[eventId+"|"+profileId], nil
}

func newTestDetectors(store *fakeStore) (*Detectors, *services.Metrics, *int) {
	metrics := services.NewMetrics()
	kicks := 0
	d := NewDetectors(store, metrics, func() { kicks++ })
	return d, metrics, &kicks
}

var errBoom = errors.New("boom")
