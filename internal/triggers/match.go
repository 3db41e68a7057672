package triggers

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"hooked-notifications-worker/internal/constants"
	"hooked-notifications-worker/internal/models"
)

// HandleLikeWritten fires on every write to a like document and enqueues
// match notifications only on the rising edge: before not mutual, after
// mutual. Both sides' like rows get rewritten when mutuality is established,
// so the sorted-pair idempotency claim is what keeps a match to one firing.
func (d *Detectors) HandleLikeWritten(ctx context.Context, before, after *models.LikeSnapshot) {
	if after == nil || !after.IsMutual {
		return
	}
	if before != nil && before.IsMutual {
		// Already mutual - a rewrite, not a new match
		return
	}

	a, b := sortedPair(after.LikerSessionId, after.LikedSessionId)
	idemKey := fmt.Sprintf("%s:%s:%s-%s", constants.IdemPrefixMatch, after.EventId, a, b)

	claimed, err := d.store.ClaimIdempotencyKey(ctx, idemKey)
	if err != nil {
		log.Printf("match claim err key=%s: %v", idemKey, err)
		return
	}
	if !claimed {
		d.metrics.IdempotentReplays.Add(1)
		return
	}

	// Each participant gets their own job and their own foreground check -
	// one side receiving a push while the other is in-app is valid.
	pairs := [2]struct{ recipient, partner string }{
		{after.LikerSessionId, after.LikedSessionId},
		{after.LikedSessionId, after.LikerSessionId},
	}
	for _, p := range pairs {
		if d.store.IsForeground(ctx, p.recipient) {
			d.metrics.TriggerForegroundSkips.Add(1)
			continue
		}

		job := &models.NotificationJob{
			Type:             constants.JobTypeMatch,
			EventId:          after.EventId,
			SubjectSessionId: p.recipient,
			ActorSessionId:   sql.NullString{String: p.partner, Valid: true},
			Title:            "You have a new match!",
			Data: map[string]string{
				"type":             constants.JobTypeMatch,
				"eventId":          after.EventId,
				"partnerSessionId": p.partner,
			},
			AggregationKey: fmt.Sprintf("match:%s:%s", after.EventId, p.recipient),
		}

		created, err := d.store.EnqueueJob(ctx, job)
		if err != nil {
			log.Printf("match enqueue err recipient=%s: %v", p.recipient, err)
			continue
		}
		if !created {
			d.metrics.DuplicateJobsDropped.Add(1)
			continue
		}
		d.metrics.MatchJobsEnqueued.Add(1)
		d.onEnqueue()
	}
}

func sortedPair(x, y string) (string, string) {
	if x <= y {
		return x, y
	}
	return y, x
}
