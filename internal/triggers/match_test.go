package triggers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hooked-notifications-worker/internal/constants"
	"hooked-notifications-worker/internal/models"
)

func mutualLike(isMutual bool) *models.LikeSnapshot {
	return &models.LikeSnapshot{
		EventId:        "ev1",
		LikerSessionId: "sA",
		LikedSessionId: "sB",
		IsMutual:       isMutual,
	}
}

func TestHandleLikeWrittenRisingEdgeOnly(t *testing.T) {
	tests := []struct {
		name     string
		before   *models.LikeSnapshot
		after    *models.LikeSnapshot
		wantJobs int
	}{
		{name: "created already mutual", before: nil, after: mutualLike(true), wantJobs: 2},
		{name: "flips to mutual", before: mutualLike(false), after: mutualLike(true), wantJobs: 2},
		{name: "rewrite while mutual", before: mutualLike(true), after: mutualLike(true), wantJobs: 0},
		{name: "becomes non-mutual", before: mutualLike(true), after: mutualLike(false), wantJobs: 0},
		{name: "created non-mutual", before: nil, after: mutualLike(false), wantJobs: 0},
		{name: "deleted", before: mutualLike(true), after: nil, wantJobs: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			d, _, _ := newTestDetectors(store)

			d.HandleLikeWritten(context.Background(), tt.before, tt.after)
			assert.Len(t, store.enqueued, tt.wantJobs)
		})
	}
}

func TestHandleLikeWrittenEnqueuesBothParticipants(t *testing.T) {
	store := newFakeStore()
	d, metrics, kicks := newTestDetectors(store)

	d.HandleLikeWritten(context.Background(), mutualLike(false), mutualLike(true))

	require.Len(t, store.enqueued, 2)
	byRecipient := map[string]*models.NotificationJob{}
	for _, job := range store.enqueued {
		byRecipient[job.SubjectSessionId] = job
	}

	jobA := byRecipient["sA"]
	require.NotNil(t, jobA)
	assert.Equal(t, constants.JobTypeMatch, jobA.Type)
	assert.Equal(t, "match:ev1:sA", jobA.AggregationKey)
	assert.Equal(t, "sB", jobA.ActorSessionId.String)
	assert.Equal(t, "sB", jobA.Data["partnerSessionId"])

	jobB := byRecipient["sB"]
	require.NotNil(t, jobB)
	assert.Equal(t, "match:ev1:sB", jobB.AggregationKey)
	assert.Equal(t, "sA", jobB.ActorSessionId.String)

	assert.Equal(t, int64(2), metrics.MatchJobsEnqueued.Load())
	assert.Equal(t, 2, *kicks)
}

func TestHandleLikeWrittenAtMostOncePerPair(t *testing.T) {
	store := newFakeStore()
	d, metrics, _ := newTestDetectors(store)

	// The same rising edge arrives twice - both sides' like rows get written
	// when mutuality is established
	d.HandleLikeWritten(context.Background(), mutualLike(false), mutualLike(true))
	d.HandleLikeWritten(context.Background(), mutualLike(false), mutualLike(true))

	assert.Len(t, store.enqueued, 2)
	assert.Equal(t, int64(1), metrics.IdempotentReplays.Load())
	// Claim key uses the sorted pair, not per-recipient keys
	assert.True(t, store.claims["match:ev1:sA-sB"])
}

func TestHandleLikeWrittenReversedPairSharesClaim(t *testing.T) {
	store := newFakeStore()
	d, _, _ := newTestDetectors(store)

	d.HandleLikeWritten(context.Background(), nil, mutualLike(true))

	// The mirror write (B's like row flipping) claims the same key and stops
	mirror := &models.LikeSnapshot{EventId: "ev1", LikerSessionId: "sB", LikedSessionId: "sA", IsMutual: true}
	d.HandleLikeWritten(context.Background(), nil, mirror)

	assert.Len(t, store.enqueued, 2)
	assert.Len(t, store.claims, 1)
}

func TestHandleLikeWrittenForegroundChecksAreIndependent(t *testing.T) {
	store := newFakeStore()
	store.foreground["sA"] = true
	d, metrics, _ := newTestDetectors(store)

	d.HandleLikeWritten(context.Background(), mutualLike(false), mutualLike(true))

	// A is in-app and self-notifies; B still gets a push
	require.Len(t, store.enqueued, 1)
	assert.Equal(t, "sB", store.enqueued[0].SubjectSessionId)
	assert.Equal(t, int64(1), metrics.TriggerForegroundSkips.Load())
}

func TestHandleLikeWrittenClaimErrorStopsQuietly(t *testing.T) {
	store := newFakeStore()
	store.claimErr = errBoom
	d, _, _ := newTestDetectors(store)

	d.HandleLikeWritten(context.Background(), nil, mutualLike(true))
	assert.Empty(t, store.enqueued)
}
